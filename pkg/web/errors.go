package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/leadflowhq/leadflow/pkg/engine"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func unprocessable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType("invalid_workflow").
		WithDetail(detail)

	return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors to problem+json
// responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return conflict(c, err.Error())

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsLeadNotFound(err):
		return notFound(c, "lead not found")

	case errors.Is(err, persistence.ErrTraceNotFound):
		return notFound(c, "trace not found")

	case errors.Is(err, engine.ErrNotPaused):
		return notFound(c, "no paused run for this workflow and lead")

	case errors.Is(err, engine.ErrPauseNodeInvalid):
		return conflict(c, err.Error())

	case errors.Is(err, engine.ErrInvalidWorkflow):
		return unprocessable(c, err.Error())

	case errors.Is(err, engine.ErrWorkflowInactive):
		return conflict(c, "workflow is not active")

	default:
		return internalError(c, err)
	}
}
