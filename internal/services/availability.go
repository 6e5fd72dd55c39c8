package services

import (
	"context"
	"sort"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/internal/repository"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNoAvailableWorker = apperror.New(apperror.ErrCodeNotFound, "no available worker")

// AvailabilityTracker answers workload questions. Busy/free flags are only
// written as effects of transitions, except by Reconcile.
type AvailabilityTracker interface {
	ActiveAssignmentCount(ctx context.Context, workerID uuid.UUID) (int64, error)
	PickLeastBusy(ctx context.Context, group models.AssignmentGroup, ownerJE *uuid.UUID) (*models.Worker, error)
	Reconcile(ctx context.Context, workerID uuid.UUID) (*models.WorkerWorkload, error)
	Workload(ctx context.Context, filter *models.WorkerFilter) ([]models.WorkerWorkload, error)
}

type availabilityTracker struct {
	complaints repository.ComplaintRepository
	workers    repository.WorkerRepository
	timeout    time.Duration
	clock      func() time.Time
}

func NewAvailabilityTracker(complaints repository.ComplaintRepository, workers repository.WorkerRepository, storeTimeout time.Duration) AvailabilityTracker {
	return &availabilityTracker{
		complaints: complaints,
		workers:    workers,
		timeout:    storeTimeout,
		clock:      time.Now,
	}
}

func (t *availabilityTracker) ActiveAssignmentCount(ctx context.Context, workerID uuid.UUID) (int64, error) {
	ctx, cancel := storeContext(ctx, t.timeout)
	defer cancel()

	n, err := t.complaints.CountActiveForAssignee(ctx, workerID)
	if err != nil {
		return 0, apperror.FromStore(err, "count active assignments")
	}
	return n, nil
}

// PickLeastBusy returns the available entity of the group with the fewest
// active complaints that is still under its concurrency limit. Ties go to the
// lowest id. ownerJE restricts contractors to those the JE created.
func (t *availabilityTracker) PickLeastBusy(ctx context.Context, group models.AssignmentGroup, ownerJE *uuid.UUID) (*models.Worker, error) {
	available := true
	loads, err := t.Workload(ctx, &models.WorkerFilter{
		Group:     &group,
		Available: &available,
		CreatedBy: ownerJE,
	})
	if err != nil {
		return nil, err
	}

	candidates := loads[:0]
	for _, l := range loads {
		if l.ActiveCount < int64(l.Worker.Capacity()) {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoAvailableWorker
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ActiveCount != candidates[j].ActiveCount {
			return candidates[i].ActiveCount < candidates[j].ActiveCount
		}
		return candidates[i].Worker.ID.String() < candidates[j].Worker.ID.String()
	})
	picked := candidates[0].Worker
	return &picked, nil
}

// Reconcile recomputes the flag from the live count.
func (t *availabilityTracker) Reconcile(ctx context.Context, workerID uuid.UUID) (*models.WorkerWorkload, error) {
	sctx, cancel := storeContext(ctx, t.timeout)
	defer cancel()

	worker, err := t.workers.FindByID(sctx, workerID)
	if err != nil {
		return nil, apperror.FromStore(err, "load worker")
	}
	count, err := t.complaints.CountActiveForAssignee(sctx, workerID)
	if err != nil {
		return nil, apperror.FromStore(err, "count active assignments")
	}

	free := count < int64(worker.Capacity())
	if free != worker.Available {
		err = t.workers.SetAvailability(sctx, models.AvailabilityChange{
			WorkerID:  workerID,
			Available: free,
			At:        t.clock(),
		})
		if err != nil {
			return nil, apperror.FromStore(err, "update availability")
		}
		logger.Log.WithFields(logrus.Fields{
			"worker_id":    workerID,
			"active_count": count,
			"available":    free,
		}).Info("Worker availability reconciled")
		worker.Available = free
	}

	return &models.WorkerWorkload{Worker: *worker, ActiveCount: count, Free: free}, nil
}

func (t *availabilityTracker) Workload(ctx context.Context, filter *models.WorkerFilter) ([]models.WorkerWorkload, error) {
	ctx, cancel := storeContext(ctx, t.timeout)
	defer cancel()

	workers, _, err := t.workers.List(ctx, filter)
	if err != nil {
		return nil, apperror.FromStore(err, "list workers")
	}
	ids := make([]uuid.UUID, len(workers))
	for i := range workers {
		ids[i] = workers[i].ID
	}
	counts, err := t.complaints.CountActiveByAssignees(ctx, ids)
	if err != nil {
		return nil, apperror.FromStore(err, "count active assignments")
	}

	out := make([]models.WorkerWorkload, 0, len(workers))
	for _, w := range workers {
		n := counts[w.ID]
		out = append(out, models.WorkerWorkload{
			Worker:      w,
			ActiveCount: n,
			Free:        w.Available && n < int64(w.Capacity()),
		})
	}
	return out, nil
}

func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
