// Package main provides the Leadflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/leadflowhq/leadflow/pkg/cmd"
	"github.com/leadflowhq/leadflow/pkg/eventbus"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/services"
	"github.com/leadflowhq/leadflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	runService := services.NewRun(
		a.persistence,
		cmd.NewExecutor(a.persistence, a.eventBus, a.logger),
		cmd.NewDryRunner(a.persistence, a.logger),
	)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(a.persistence),
		services.NewLead(a.persistence, a.validate),
		runService,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Leadflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
