package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	leadService     *services.Lead
	runService      *services.Run
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	leadService *services.Lead,
	runService *services.Run,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		leadService:     leadService,
		runService:      runService,
		validator:       validate,
	}
}

// Register mounts every route on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/archive", h.ArchiveWorkflow)
	w.Post("/:id/validate", h.ValidateWorkflow)
	w.Post("/:id/execute", h.ExecuteWorkflow)
	w.Post("/:id/resume", h.ResumeWorkflow)
	w.Post("/:id/dry-run", h.DryRunWorkflow)

	l := app.Group("/leads")
	l.Post("/", h.CreateLead)
	l.Get("/:id", h.GetLead)
	l.Patch("/:id", h.PatchLead)
	l.Get("/:id/activities", h.GetLeadActivities)
	l.Post("/:id/rescore", h.RescoreLead)
	l.Post("/:id/enrich", h.EnrichLead)

	app.Get("/traces/:id", h.GetTrace)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.workflowService.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if !ok {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req, err := h.parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflowService.ListWorkflows(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":     result.Workflows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

func (h *APIHandlers) parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
	req := &services.ListWorkflowsRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.OwnerID = c.Query("owner_id")

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	body := c.Body()

	if err := validateWorkflowDocument(body); err != nil {
		return badRequest(c, err.Error())
	}

	var req CreateWorkflowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Nodes:       req.Nodes,
		Edges:       req.Edges,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	body := c.Body()

	if err := validateWorkflowDocument(body); err != nil {
		return badRequest(c, err.Error())
	}

	var req UpdateWorkflowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	existing.Nodes = req.Nodes
	existing.Edges = req.Edges

	updated, err := h.workflowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ArchiveWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	result, err := h.workflowService.ValidateGraph(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trace, err := h.runService.Execute(c.Context(), c.Params("id"), req.LeadID, req.TriggerData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trace)
}

func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	var req ResumeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trace, err := h.runService.Resume(c.Context(), c.Params("id"), req.LeadID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trace)
}

func (h *APIHandlers) DryRunWorkflow(c fiber.Ctx) error {
	var req DryRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	trace, testRunID, err := h.runService.DryRun(c.Context(), c.Params("id"), req.LeadID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(DryRunResponse{TestRunID: testRunID, Trace: trace})
}

func (h *APIHandlers) GetTrace(c fiber.Ctx) error {
	trace, err := h.runService.Trace(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trace)
}

func (h *APIHandlers) CreateLead(c fiber.Ctx) error {
	var lead models.Lead
	if err := c.Bind().JSON(&lead); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.leadService.Save(c.Context(), &lead)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetLead(c fiber.Ctx) error {
	lead, err := h.leadService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsLeadNotFound(err) {
			return notFound(c, "Lead not found")
		}

		return internalError(c, err)
	}

	return c.JSON(lead)
}

func (h *APIHandlers) PatchLead(c fiber.Ctx) error {
	var req PatchLeadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	lead, err := h.leadService.Patch(c.Context(), c.Params("id"), req.Patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(lead)
}

func (h *APIHandlers) GetLeadActivities(c fiber.Ctx) error {
	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit")
		}

		limit = parsed
	}

	activities, err := h.leadService.Activities(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"activities": activities})
}

func (h *APIHandlers) RescoreLead(c fiber.Ctx) error {
	var req RescoreRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	lead, err := h.leadService.Rescore(c.Context(), c.Params("id"), &req.Model)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(lead)
}

func (h *APIHandlers) EnrichLead(c fiber.Ctx) error {
	var req EnrichRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	lead, err := h.leadService.Enrich(c.Context(), c.Params("id"), req.Payload, req.Overwrite)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(lead)
}
