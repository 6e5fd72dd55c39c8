package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
)

type memWorkerRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.Worker
}

func newMemWorkerRepo() *memWorkerRepo {
	return &memWorkerRepo{items: map[uuid.UUID]*models.Worker{}}
}

func (r *memWorkerRepo) Create(ctx context.Context, worker *models.Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if worker.ID == uuid.Nil {
		worker.ID = uuid.New()
	}
	w := *worker
	r.items[w.ID] = &w
	return nil
}

func (r *memWorkerRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.items[id]
	if !ok {
		return nil, apperror.ErrWorkerNotFound
	}
	out := *w
	return &out, nil
}

func (r *memWorkerRepo) List(ctx context.Context, filter *models.WorkerFilter) ([]models.Worker, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Worker
	for _, w := range r.items {
		if filter.Group != nil && w.Group != *filter.Group {
			continue
		}
		if filter.Available != nil && w.Available != *filter.Available {
			continue
		}
		if filter.CreatedBy != nil && (w.CreatedBy == nil || *w.CreatedBy != *filter.CreatedBy) {
			continue
		}
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, int64(len(out)), nil
}

func (r *memWorkerRepo) SetAvailability(ctx context.Context, change models.AvailabilityChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apply(change)
}

func (r *memWorkerRepo) apply(change models.AvailabilityChange) error {
	w, ok := r.items[change.WorkerID]
	if !ok {
		return apperror.ErrWorkerNotFound
	}
	w.Available = change.Available
	if !change.Available {
		at := change.At
		w.LastAssignedAt = &at
	}
	return nil
}

func (r *memWorkerRepo) get(id uuid.UUID) models.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.items[id]
}

// memComplaintRepo mirrors the transactional behaviour of the GORM
// repository: the version check, the assignment write and the availability
// effects succeed or fail together.
type memComplaintRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*models.Complaint
	workers *memWorkerRepo
	seq     int

	// beforeSave runs outside the lock right before a save is attempted.
	beforeSave func(id uuid.UUID)
	// findDelay makes FindByID wait, honouring ctx.
	findDelay time.Duration
}

func newMemComplaintRepo(workers *memWorkerRepo) *memComplaintRepo {
	return &memComplaintRepo{items: map[uuid.UUID]*models.Complaint{}, workers: workers}
}

func (r *memComplaintRepo) Create(ctx context.Context, complaint *models.Complaint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if complaint.ID == uuid.Nil {
		complaint.ID = uuid.New()
	}
	r.items[complaint.ID] = complaint.Clone()
	return nil
}

func (r *memComplaintRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	if r.findDelay > 0 {
		select {
		case <-time.After(r.findDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("query complaint: %w", ctx.Err())
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, apperror.ErrComplaintNotFound
	}
	return c.Clone(), nil
}

func (r *memComplaintRepo) Find(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Complaint
	for _, c := range r.items {
		if !matches(c, filter) {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func matches(c *models.Complaint, f *models.ComplaintFilter) bool {
	cur := c.Current()
	if len(f.CurrentAssignmentStatuses) > 0 || f.DeadlineBefore != nil {
		if cur == nil {
			return false
		}
		if len(f.CurrentAssignmentStatuses) > 0 && !containsAssignmentStatus(f.CurrentAssignmentStatuses, cur.Status) {
			return false
		}
		if f.DeadlineBefore != nil && (cur.SLADeadline == nil || !cur.SLADeadline.Before(*f.DeadlineBefore)) {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			found = found || s == c.Status
		}
		if !found {
			return false
		}
	}
	if f.AssigneeID != nil && !referencesAssignee(c, *f.AssigneeID) {
		return false
	}
	return true
}

func containsAssignmentStatus(list []models.AssignmentStatus, s models.AssignmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func referencesAssignee(c *models.Complaint, id uuid.UUID) bool {
	for _, a := range c.Assignments {
		if a.AssigneeID != nil && *a.AssigneeID == id {
			return true
		}
	}
	return false
}

func (r *memComplaintRepo) Save(ctx context.Context, complaint *models.Complaint, expectedVersion int, effects []models.AvailabilityChange) error {
	if r.beforeSave != nil {
		r.beforeSave(complaint.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[complaint.ID]
	if !ok || stored.Version != expectedVersion {
		return apperror.ErrStaleComplaint
	}

	r.workers.mu.Lock()
	defer r.workers.mu.Unlock()
	for _, ch := range effects {
		if _, ok := r.workers.items[ch.WorkerID]; !ok {
			return apperror.ErrWorkerNotFound
		}
	}
	for _, ch := range effects {
		_ = r.workers.apply(ch)
	}

	complaint.Version = expectedVersion + 1
	r.items[complaint.ID] = complaint.Clone()
	return nil
}

func (r *memComplaintRepo) CountActiveForAssignee(ctx context.Context, assigneeID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.items {
		if active(c) && referencesAssignee(c, assigneeID) {
			n++
		}
	}
	return n, nil
}

func (r *memComplaintRepo) CountActiveByAssignees(ctx context.Context, assigneeIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(assigneeIDs))
	for _, id := range assigneeIDs {
		n, _ := r.CountActiveForAssignee(ctx, id)
		if n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (r *memComplaintRepo) NextComplaintNumber(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("GRV-2025-%06d", r.seq), nil
}

// bumpVersion simulates a write from another request.
func (r *memComplaintRepo) bumpVersion(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id].Version++
}

func active(c *models.Complaint) bool {
	switch c.Status {
	case models.ComplaintClosed, models.ComplaintEscalated, models.ComplaintRejected:
		return false
	}
	return true
}
