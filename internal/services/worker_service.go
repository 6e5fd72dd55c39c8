package services

import (
	"context"
	"strings"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/repository"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WorkerService manages the pool of field workers and contractors.
type WorkerService interface {
	CreateWorker(ctx context.Context, actor models.Actor, req *models.CreateWorkerRequest) (*models.Worker, error)
	CreateContractor(ctx context.Context, actor models.Actor, req *models.CreateWorkerRequest) (*models.Worker, error)
	ListWorkers(ctx context.Context, filter *models.WorkerFilter) ([]models.WorkerWorkload, error)
	ListMyContractors(ctx context.Context, actor models.Actor) ([]models.WorkerWorkload, error)
	Reconcile(ctx context.Context, actor models.Actor, workerID uuid.UUID) (*models.WorkerWorkload, error)
}

type workerService struct {
	workers repository.WorkerRepository
	tracker AvailabilityTracker
	timeout time.Duration
}

func NewWorkerService(workers repository.WorkerRepository, tracker AvailabilityTracker, storeTimeout time.Duration) WorkerService {
	return &workerService{
		workers: workers,
		tracker: tracker,
		timeout: storeTimeout,
	}
}

func (s *workerService) CreateWorker(ctx context.Context, actor models.Actor, req *models.CreateWorkerRequest) (*models.Worker, error) {
	if !actor.HasRole(models.RoleCM, models.RoleAM) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "only CM or AM can register workers")
	}
	return s.create(ctx, actor, req, models.GroupWorker, models.RoleWorker, nil)
}

func (s *workerService) CreateContractor(ctx context.Context, actor models.Actor, req *models.CreateWorkerRequest) (*models.Worker, error) {
	if !actor.HasRole(models.RoleJE) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "only a JE can register contractors")
	}
	owner := actor.ID
	return s.create(ctx, actor, req, models.GroupContractor, models.RoleContractor, &owner)
}

func (s *workerService) create(ctx context.Context, actor models.Actor, req *models.CreateWorkerRequest, group models.AssignmentGroup, role models.Role, owner *uuid.UUID) (*models.Worker, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "full_name is required")
	}
	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = models.DefaultMaxConcurrent
	}

	worker := &models.Worker{
		FullName:      name,
		MobileNumber:  req.MobileNumber,
		Role:          role,
		Group:         group,
		Available:     true,
		CreatedBy:     owner,
		MaxConcurrent: maxConcurrent,
		IsActive:      true,
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()
	if err := s.workers.Create(ctx, worker); err != nil {
		return nil, apperror.FromStore(err, "create worker")
	}

	logger.Log.WithFields(logrus.Fields{
		"worker_id":  worker.ID,
		"group":      group,
		"created_by": actor.ID,
	}).Info("Worker registered")
	return worker, nil
}

func (s *workerService) ListWorkers(ctx context.Context, filter *models.WorkerFilter) ([]models.WorkerWorkload, error) {
	return s.tracker.Workload(ctx, filter)
}

func (s *workerService) ListMyContractors(ctx context.Context, actor models.Actor) ([]models.WorkerWorkload, error) {
	if !actor.HasRole(models.RoleJE) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "only a JE has contractors")
	}
	group := models.GroupContractor
	owner := actor.ID
	return s.tracker.Workload(ctx, &models.WorkerFilter{Group: &group, CreatedBy: &owner})
}

func (s *workerService) Reconcile(ctx context.Context, actor models.Actor, workerID uuid.UUID) (*models.WorkerWorkload, error) {
	if !actor.HasRole(models.RoleCM, models.RoleAM, models.RoleJE, models.RoleSDO) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "role may not reconcile availability")
	}
	return s.tracker.Reconcile(ctx, workerID)
}
