package handlers

import (
	"strconv"

	"github.com/Soumit27/eazzgrievnce/internal/middleware"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/services"
	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type WorkerHandler struct {
	service   services.WorkerService
	validator *validator.Validate
}

func NewWorkerHandler(service services.WorkerService) *WorkerHandler {
	return &WorkerHandler{
		service:   service,
		validator: validator.New(),
	}
}

func (h *WorkerHandler) CreateWorker(c *fiber.Ctx) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateWorkerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	worker, err := h.service.CreateWorker(c.Context(), actor, &req)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusCreated, "Worker created", worker)
}

func (h *WorkerHandler) CreateContractor(c *fiber.Ctx) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateWorkerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	contractor, err := h.service.CreateContractor(c.Context(), actor, &req)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusCreated, "Contractor created", contractor)
}

// ListWorkers returns registry entries with their live workload.
func (h *WorkerHandler) ListWorkers(c *fiber.Ctx) error {
	filter := &models.WorkerFilter{}

	if group := c.Query("group"); group != "" {
		g := models.AssignmentGroup(group)
		filter.Group = &g
	}
	if available := c.Query("available"); available != "" {
		if b, err := strconv.ParseBool(available); err == nil {
			filter.Available = &b
		}
	}
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil {
			filter.Page = p
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	workloads, err := h.service.ListWorkers(c.Context(), filter)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Workers retrieved", workloads)
}

func (h *WorkerHandler) ListMyContractors(c *fiber.Ctx) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not authenticated")
	}

	workloads, err := h.service.ListMyContractors(c.Context(), actor)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Contractors retrieved", workloads)
}

func (h *WorkerHandler) Reconcile(c *fiber.Ctx) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not authenticated")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid worker ID")
	}

	workload, err := h.service.Reconcile(c.Context(), actor, id)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Availability reconciled", workload)
}
