package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/lifecycle"
	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/repository"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ComplaintService interface {
	CreateComplaint(ctx context.Context, req *models.CreateComplaintRequest) (*models.Complaint, error)
	GetComplaint(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	ListComplaints(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error)

	// Transitions
	Assign(ctx context.Context, actor models.Actor, id uuid.UUID, params AssignParams) (*models.Complaint, error)
	ForwardToJE(ctx context.Context, actor models.Actor, id, jeID uuid.UUID) (*models.Complaint, error)
	SubmitProof(ctx context.Context, actor models.Actor, id uuid.UUID, files []models.ProofFile) (*models.Complaint, error)
	VerifyProof(ctx context.Context, actor models.Actor, id uuid.UUID, action string, note *string) (*models.Complaint, error)
	ManagerClose(ctx context.Context, actor models.Actor, id uuid.UUID, note *string) (*models.Complaint, error)
	Escalate(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Complaint, error)
	Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Complaint, error)

	// EscalateBreached escalates the complaint if it is still past its
	// deadline at now. It reports whether anything was written.
	EscalateBreached(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type AssignParams struct {
	Group      models.AssignmentGroup
	AssigneeID *uuid.UUID
	SLAMinutes int
}

type ServiceOptions struct {
	StoreTimeout      time.Duration
	DefaultSLAMinutes int
	Clock             func() time.Time
}

type complaintService struct {
	complaints repository.ComplaintRepository
	workers    repository.WorkerRepository
	tracker    AvailabilityTracker
	opts       ServiceOptions
}

func NewComplaintService(
	complaints repository.ComplaintRepository,
	workers repository.WorkerRepository,
	tracker AvailabilityTracker,
	opts ServiceOptions,
) ComplaintService {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultSLAMinutes <= 0 {
		opts.DefaultSLAMinutes = 24 * 60
	}
	return &complaintService{
		complaints: complaints,
		workers:    workers,
		tracker:    tracker,
		opts:       opts,
	}
}

func (s *complaintService) CreateComplaint(ctx context.Context, req *models.CreateComplaintRequest) (*models.Complaint, error) {
	ctx, cancel := storeContext(ctx, s.opts.StoreTimeout)
	defer cancel()

	number, err := s.complaints.NextComplaintNumber(ctx)
	if err != nil {
		return nil, apperror.FromStore(err, "generate complaint number")
	}

	now := s.opts.Clock()
	complaint := &models.Complaint{
		ComplaintNumber:     number,
		FullName:            strings.TrimSpace(req.FullName),
		MobileNumber:        strings.TrimSpace(req.MobileNumber),
		Email:               req.Email,
		Category:            req.Category,
		Subject:             req.Subject,
		DetailedDescription: req.DetailedDescription,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		CompleteAddress:     req.CompleteAddress,
		Status:              models.ComplaintPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, f := range req.EvidenceFiles {
		complaint.EvidenceFiles = append(complaint.EvidenceFiles, models.ProofFile{
			FileName:   f.FileName,
			FileURL:    f.FileURL,
			FileType:   f.FileType,
			UploadedAt: now,
		})
	}

	if err := s.complaints.Create(ctx, complaint); err != nil {
		return nil, apperror.FromStore(err, "create complaint")
	}

	logger.WithComplaint(complaint.ID.String(), "create").
		WithField("complaint_number", complaint.ComplaintNumber).
		Info("Complaint registered")
	return complaint, nil
}

func (s *complaintService) GetComplaint(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	ctx, cancel := storeContext(ctx, s.opts.StoreTimeout)
	defer cancel()

	complaint, err := s.complaints.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStore(err, "load complaint")
	}
	return complaint, nil
}

func (s *complaintService) ListComplaints(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error) {
	ctx, cancel := storeContext(ctx, s.opts.StoreTimeout)
	defer cancel()

	complaints, total, err := s.complaints.Find(ctx, filter)
	if err != nil {
		return nil, 0, apperror.FromStore(err, "list complaints")
	}
	return complaints, total, nil
}

func (s *complaintService) Assign(ctx context.Context, actor models.Actor, id uuid.UUID, params AssignParams) (*models.Complaint, error) {
	if params.SLAMinutes == 0 {
		params.SLAMinutes = s.opts.DefaultSLAMinutes
	}

	assignee, err := s.resolveAssignee(ctx, actor, params)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, id, "assign", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.CreateAssignment(c, actor, lifecycle.AssignInput{
			Group:      params.Group,
			Assignee:   assignee,
			SLAMinutes: params.SLAMinutes,
		}, now)
	})
}

// resolveAssignee loads the requested assignee, or picks the least busy one
// when none was named. A nil worker with a nil error means nobody is free.
func (s *complaintService) resolveAssignee(ctx context.Context, actor models.Actor, params AssignParams) (*models.Worker, error) {
	if params.AssigneeID != nil {
		sctx, cancel := storeContext(ctx, s.opts.StoreTimeout)
		defer cancel()
		worker, err := s.workers.FindByID(sctx, *params.AssigneeID)
		if err != nil {
			return nil, apperror.FromStore(err, "load assignee")
		}
		return worker, nil
	}

	var owner *uuid.UUID
	if params.Group == models.GroupContractor {
		owner = &actor.ID
	}
	worker, err := s.tracker.PickLeastBusy(ctx, params.Group, owner)
	if err != nil {
		if errors.Is(err, ErrNoAvailableWorker) {
			logger.Log.WithField("group", params.Group).Warn("No free assignee, assigning without one")
			return nil, nil
		}
		return nil, err
	}
	return worker, nil
}

func (s *complaintService) ForwardToJE(ctx context.Context, actor models.Actor, id, jeID uuid.UUID) (*models.Complaint, error) {
	return s.transition(ctx, id, "forward_to_je", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.ForwardToJE(c, actor, jeID, now)
	})
}

func (s *complaintService) SubmitProof(ctx context.Context, actor models.Actor, id uuid.UUID, files []models.ProofFile) (*models.Complaint, error) {
	return s.transition(ctx, id, "submit_proof", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.SubmitProof(c, actor, files, now)
	})
}

func (s *complaintService) VerifyProof(ctx context.Context, actor models.Actor, id uuid.UUID, action string, note *string) (*models.Complaint, error) {
	return s.transition(ctx, id, "verify", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.VerifyProof(c, actor, action, note, now)
	})
}

func (s *complaintService) ManagerClose(ctx context.Context, actor models.Actor, id uuid.UUID, note *string) (*models.Complaint, error) {
	return s.transition(ctx, id, "manager_close", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.ManagerClose(c, actor, note, now)
	})
}

func (s *complaintService) Escalate(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Complaint, error) {
	return s.transition(ctx, id, "escalate", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.Escalate(c, actor, reason, now)
	})
}

func (s *complaintService) Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Complaint, error) {
	return s.transition(ctx, id, "reject", func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		return lifecycle.Reject(c, actor, reason, now)
	})
}

func (s *complaintService) EscalateBreached(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	changed := false
	_, err := s.transitionAt(ctx, id, "sla_escalate", now, func(c *models.Complaint, now time.Time) (*lifecycle.Result, error) {
		if !lifecycle.IsSLABreached(c, now) {
			return &lifecycle.Result{Complaint: c}, nil
		}
		res, err := lifecycle.Escalate(c, models.SystemActor(), lifecycle.SLABreachReason, now)
		if err == nil {
			changed = res.Changed
		}
		return res, err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

type transitionFunc func(c *models.Complaint, now time.Time) (*lifecycle.Result, error)

func (s *complaintService) transition(ctx context.Context, id uuid.UUID, op string, fn transitionFunc) (*models.Complaint, error) {
	return s.transitionAt(ctx, id, op, time.Time{}, fn)
}

// transitionAt loads the aggregate, runs fn and commits the result with the
// version it was loaded at. A zero at means the service clock.
func (s *complaintService) transitionAt(ctx context.Context, id uuid.UUID, op string, at time.Time, fn transitionFunc) (*models.Complaint, error) {
	log := logger.WithComplaint(id.String(), op)

	loadCtx, cancelLoad := storeContext(ctx, s.opts.StoreTimeout)
	current, err := s.complaints.FindByID(loadCtx, id)
	cancelLoad()
	if err != nil {
		return nil, apperror.FromStore(err, "load complaint")
	}

	if at.IsZero() {
		at = s.opts.Clock()
	}
	res, err := fn(current, at)
	if err != nil {
		log.WithField("code", apperror.CodeOf(err)).Debug("Transition refused: ", err)
		return nil, err
	}
	if !res.Changed {
		return res.Complaint, nil
	}
	if err := lifecycle.CheckInvariant(res.Complaint); err != nil {
		log.WithError(err).Error("Transition produced an inconsistent complaint")
		return nil, err
	}

	saveCtx, cancelSave := storeContext(ctx, s.opts.StoreTimeout)
	defer cancelSave()
	if err := s.complaints.Save(saveCtx, res.Complaint, current.Version, res.Effects); err != nil {
		err = apperror.FromStore(err, "save complaint")
		log.WithError(err).Warn("Transition not saved")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"from":    current.Status,
		"to":      res.Complaint.Status,
		"effects": len(res.Effects),
		"version": res.Complaint.Version,
	}).Info("Complaint transitioned")
	return res.Complaint, nil
}
