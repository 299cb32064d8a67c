// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/services"
)

type APIHandlers struct {
	orchestration *services.Orchestration
	exporter      *services.Exporter
}

func NewAPIHandlers(orchestration *services.Orchestration, exporter *services.Exporter) *APIHandlers {
	return &APIHandlers{
		orchestration: orchestration,
		exporter:      exporter,
	}
}

// tenantID resolves the caller's tenant from the gateway-set header. Every
// route requires it; workflows are never visible across tenants.
func tenantID(c fiber.Ctx) string {
	return c.Get(TenantHeader)
}

func isAsync(c fiber.Ctx) bool {
	return c.Query("async") == "true"
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.orchestration.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Sagaflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Sagaflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	req, err := parseListWorkflowsRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.orchestration.ListWorkflows(c.Context(), tenant, *req)
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

func parseListWorkflowsRequest(c fiber.Ctx) (*services.ListWorkflowsRequest, error) {
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

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	if typeStr := c.Query("type"); typeStr != "" {
		workflowType := models.WorkflowType(typeStr)
		req.Type = &workflowType
	}

	return req, nil
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.orchestration.GetWorkflow(c.Context(), tenant, id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) GetStatistics(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	stats, err := h.orchestration.Statistics(c.Context(), tenant)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) ExportWorkflows(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	format := services.ExportFormat(c.Query("format", "json"))

	filter := persistence.WorkflowFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		filter.Status = &status
	}

	switch format {
	case services.ExportFormatCSV:
		c.Set(fiber.HeaderContentType, "text/csv")
	case services.ExportFormatJSON:
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	default:
		return badRequest(c, "Invalid export format: "+string(format))
	}

	err := h.exporter.Export(c.Context(), tenant, filter, format, c.Response().BodyWriter())
	if err != nil {
		return handleServiceError(c, err)
	}

	return nil
}

func (h *APIHandlers) ProvisionSubscriber(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	var body ProvisionBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req := services.ProvisionSubscriberRequest{
		TenantID:      tenant,
		SubscriberID:  body.SubscriberID,
		ServicePlan:   body.ServicePlan,
		ONUSerial:     body.ONUSerial,
		CPEMAC:        body.CPEMAC,
		InitiatorID:   body.InitiatorID,
		InitiatorType: body.InitiatorType,
	}

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitProvisionSubscriber(c.Context(), req)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.ProvisionSubscriber(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) DeprovisionSubscriber(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	var body SubscriberBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req := services.DeprovisionSubscriberRequest{
		TenantID:      tenant,
		SubscriberID:  body.SubscriberID,
		InitiatorID:   body.InitiatorID,
		InitiatorType: body.InitiatorType,
	}

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitDeprovisionSubscriber(c.Context(), req)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.DeprovisionSubscriber(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) ActivateService(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	var body SubscriberBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req := services.ActivateServiceRequest{
		TenantID:      tenant,
		SubscriberID:  body.SubscriberID,
		InitiatorID:   body.InitiatorID,
		InitiatorType: body.InitiatorType,
	}

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitActivateService(c.Context(), req)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.ActivateService(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) SuspendService(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	var body SubscriberBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req := services.SuspendServiceRequest{
		TenantID:      tenant,
		SubscriberID:  body.SubscriberID,
		Reason:        body.Reason,
		InitiatorID:   body.InitiatorID,
		InitiatorType: body.InitiatorType,
	}

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitSuspendService(c.Context(), req)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.SuspendService(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) ChangeServicePlan(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	var body ChangePlanBody
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req := services.ChangeServicePlanRequest{
		TenantID:      tenant,
		SubscriberID:  body.SubscriberID,
		NewPlan:       body.NewPlan,
		InitiatorID:   body.InitiatorID,
		InitiatorType: body.InitiatorType,
	}

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitChangeServicePlan(c.Context(), req)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.ChangeServicePlan(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

// StartWorkflow is the generic entry point for workflow types without a
// dedicated endpoint (update_network_config, migrate_subscriber).
func (h *APIHandlers) StartWorkflow(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	var body StartWorkflowRequest
	if err := c.Bind().JSON(&body); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	workflowType := models.WorkflowType(body.WorkflowType)

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitWorkflow(c.Context(), tenant, workflowType, body.InputData, body.InitiatorID, body.InitiatorType)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.StartWorkflow(c.Context(), tenant, workflowType, body.InputData, body.InitiatorID, body.InitiatorType)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}

func (h *APIHandlers) RetryWorkflow(c fiber.Ctx) error {
	tenant := tenantID(c)
	if tenant == "" {
		return badRequest(c, "Tenant header is required")
	}

	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if isAsync(c) {
		submitted, err := h.orchestration.SubmitRetryWorkflow(c.Context(), tenant, id)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(submitted)
	}

	resp, err := h.orchestration.RetryWorkflow(c.Context(), tenant, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resp)
}
