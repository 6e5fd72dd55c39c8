package handlers

import (
	"context"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/middleware"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/services"
	"github.com/Soumit27/eazzgrievnce/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxProofFiles = 10

// ProofStore keeps proof uploads in object storage.
type ProofStore interface {
	UploadProof(ctx context.Context, complaintID uuid.UUID, header *multipart.FileHeader) (*models.ProofFile, error)
	DeleteFile(ctx context.Context, objectName string) error
	GetFileURL(ctx context.Context, objectName string) (string, error)
}

type ComplaintHandler struct {
	service   services.ComplaintService
	proofs    ProofStore
	validator *validator.Validate
}

func NewComplaintHandler(service services.ComplaintService, proofs ProofStore) *ComplaintHandler {
	return &ComplaintHandler{
		service:   service,
		proofs:    proofs,
		validator: validator.New(),
	}
}

// CreateComplaint is the public intake endpoint.
func (h *ComplaintHandler) CreateComplaint(c *fiber.Ctx) error {
	var req models.CreateComplaintRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	complaint, err := h.service.CreateComplaint(c.Context(), &req)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusCreated, "Complaint registered", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) GetComplaint(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid complaint ID")
	}

	complaint, err := h.service.GetComplaint(c.Context(), id)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}
	h.signProofs(c.Context(), complaint)

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint retrieved", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) ListComplaints(c *fiber.Ctx) error {
	filter := &models.ComplaintFilter{}

	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil {
			filter.Page = p
		}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	filter.Search = c.Query("search")
	filter.Category = c.Query("category")

	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, models.ComplaintStatus(strings.TrimSpace(s)))
		}
	}
	if statuses := c.Query("assignment_status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.CurrentAssignmentStatuses = append(filter.CurrentAssignmentStatuses, models.AssignmentStatus(strings.TrimSpace(s)))
		}
	}
	if assigneeID := c.Query("assignee_id"); assigneeID != "" {
		if id, err := uuid.Parse(assigneeID); err == nil {
			filter.AssigneeID = &id
		}
	}
	if before := c.Query("deadline_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			filter.DeadlineBefore = &t
		}
	}

	complaints, total, err := h.service.ListComplaints(c.Context(), filter)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	responses := make([]models.ComplaintResponse, len(complaints))
	for i := range complaints {
		responses[i] = models.ToComplaintResponse(&complaints[i])
	}

	return utils.PaginatedSuccessResponse(c, responses, filter.Page, filter.Limit, total)
}

func (h *ComplaintHandler) Assign(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req models.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	params := services.AssignParams{
		Group:      models.AssignmentGroup(req.Group),
		SLAMinutes: req.SLAMinutes,
	}
	if req.WorkerUserID != nil && *req.WorkerUserID != "" {
		workerID, err := uuid.Parse(*req.WorkerUserID)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid worker ID")
		}
		params.AssigneeID = &workerID
	}

	complaint, err := h.service.Assign(c.Context(), actor, id, params)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint assigned", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) ForwardToJE(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req models.ForwardToJERequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}
	jeID, _ := uuid.Parse(req.JEID)

	complaint, err := h.service.ForwardToJE(c.Context(), actor, id, jeID)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint forwarded to JE", models.ToComplaintResponse(complaint))
}

// SubmitProof uploads the multipart "files" and attaches them to the current
// assignment. Uploads are removed again when the transition is refused.
func (h *ComplaintHandler) SubmitProof(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid multipart form")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "At least one proof file is required")
	}
	if len(headers) > maxProofFiles {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Too many proof files")
	}

	files := make([]models.ProofFile, 0, len(headers))
	for _, header := range headers {
		file, err := h.proofs.UploadProof(c.Context(), id, header)
		if err != nil {
			h.discard(id, files)
			return utils.AppErrorResponse(c, err)
		}
		files = append(files, *file)
	}

	complaint, err := h.service.SubmitProof(c.Context(), actor, id, files)
	if err != nil {
		h.discard(id, files)
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Proof submitted", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) VerifyProof(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req models.VerifyActionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	complaint, err := h.service.VerifyProof(c.Context(), actor, id, req.Action, req.Note)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Proof verified", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) ManagerApprove(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req models.ManagerApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	complaint, err := h.service.ManagerClose(c.Context(), actor, id, req.Note)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint closed", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) Escalate(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req models.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	complaint, err := h.service.Escalate(c.Context(), actor, id, req.Reason)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint escalated", models.ToComplaintResponse(complaint))
}

func (h *ComplaintHandler) Reject(c *fiber.Ctx) error {
	actor, id, err := h.target(c)
	if err != nil {
		return err
	}

	var req models.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	complaint, err := h.service.Reject(c.Context(), actor, id, req.Reason)
	if err != nil {
		return utils.AppErrorResponse(c, err)
	}

	return utils.SuccessResponse(c, fiber.StatusOK, "Complaint rejected", models.ToComplaintResponse(complaint))
}

// target resolves the caller and the :id path parameter. Failures are
// returned as *fiber.Error for the app error handler to render.
func (h *ComplaintHandler) target(c *fiber.Ctx) (models.Actor, uuid.UUID, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return models.Actor{}, uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "User not authenticated")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return models.Actor{}, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid complaint ID")
	}
	return actor, id, nil
}

func (h *ComplaintHandler) discard(complaintID uuid.UUID, files []models.ProofFile) {
	if len(files) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, f := range files {
		if err := h.proofs.DeleteFile(ctx, f.ObjectKey); err != nil {
			logger.WithComplaint(complaintID.String(), "submit_proof").
				WithError(err).
				WithField("object_key", f.ObjectKey).
				Warn("Failed to remove orphaned proof upload")
		}
	}
}

// signProofs fills in short-lived download links for every proof file.
func (h *ComplaintHandler) signProofs(ctx context.Context, complaint *models.Complaint) {
	for i := range complaint.Assignments {
		files := complaint.Assignments[i].ProofFiles
		for j := range files {
			url, err := h.proofs.GetFileURL(ctx, files[j].ObjectKey)
			if err != nil {
				logger.WithComplaint(complaint.ID.String(), "get").
					WithError(err).
					WithField("object_key", files[j].ObjectKey).
					Warn("Failed to sign proof URL")
				continue
			}
			files[j].FileURL = url
		}
	}
}
