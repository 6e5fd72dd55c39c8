package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// inactiveStatuses are excluded when counting a worker's workload.
var inactiveStatuses = []models.ComplaintStatus{
	models.ComplaintClosed,
	models.ComplaintEscalated,
	models.ComplaintRejected,
}

type ComplaintRepository interface {
	Create(ctx context.Context, complaint *models.Complaint) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error)
	Find(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error)

	// Save persists the aggregate and applies the availability effects in
	// one transaction. It fails with a CONFLICT error when the stored
	// version differs from expectedVersion.
	Save(ctx context.Context, complaint *models.Complaint, expectedVersion int, effects []models.AvailabilityChange) error

	// Workload
	CountActiveForAssignee(ctx context.Context, assigneeID uuid.UUID) (int64, error)
	CountActiveByAssignees(ctx context.Context, assigneeIDs []uuid.UUID) (map[uuid.UUID]int64, error)

	NextComplaintNumber(ctx context.Context) (string, error)
}

type complaintRepository struct {
	db *gorm.DB
}

func NewComplaintRepository(db *gorm.DB) ComplaintRepository {
	return &complaintRepository{db: db}
}

func (r *complaintRepository) Create(ctx context.Context, complaint *models.Complaint) error {
	if complaint.Version == 0 {
		complaint.Version = 1
	}
	return r.db.WithContext(ctx).Create(complaint).Error
}

func (r *complaintRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Complaint, error) {
	var complaint models.Complaint
	err := r.db.WithContext(ctx).
		Preload("Assignments", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		First(&complaint, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrComplaintNotFound
		}
		return nil, err
	}
	return &complaint, nil
}

func (r *complaintRepository) Find(ctx context.Context, filter *models.ComplaintFilter) ([]models.Complaint, int64, error) {
	var complaints []models.Complaint
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Complaint{})

	// Conditions on the current assignment go through a join on its seq.
	if len(filter.CurrentAssignmentStatuses) > 0 || filter.DeadlineBefore != nil {
		query = query.Joins("JOIN complaint_assignments ca ON ca.complaint_id = complaints.id AND ca.seq = complaints.current_assignment_index")
		if len(filter.CurrentAssignmentStatuses) > 0 {
			query = query.Where("ca.status IN ?", filter.CurrentAssignmentStatuses)
		}
		if filter.DeadlineBefore != nil {
			query = query.Where("ca.sla_deadline IS NOT NULL AND ca.sla_deadline < ?", *filter.DeadlineBefore)
		}
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("complaints.status IN ?", filter.Statuses)
	}
	if filter.AssigneeID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM complaint_assignments h WHERE h.complaint_id = complaints.id AND h.assignee_id = ?)", *filter.AssigneeID)
	}
	if filter.Category != "" {
		query = query.Where("complaints.category = ?", filter.Category)
	}
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("complaints.complaint_number ILIKE ? OR complaints.subject ILIKE ? OR complaints.full_name ILIKE ? OR complaints.mobile_number ILIKE ?",
			searchPattern, searchPattern, searchPattern, searchPattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Select("complaints.*").
		Preload("Assignments", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Order("complaints.created_at DESC")

	if !filter.Unpaged {
		if filter.Page < 1 {
			filter.Page = 1
		}
		if filter.Limit < 1 || filter.Limit > 100 {
			filter.Limit = 20
		}
		query = query.Offset((filter.Page - 1) * filter.Limit).Limit(filter.Limit)
	}

	if err := query.Find(&complaints).Error; err != nil {
		return nil, 0, err
	}
	return complaints, total, nil
}

func (r *complaintRepository) Save(ctx context.Context, complaint *models.Complaint, expectedVersion int, effects []models.AvailabilityChange) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Complaint{}).
			Where("id = ? AND version = ?", complaint.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":                   complaint.Status,
				"current_assignment_index": complaint.CurrentAssignmentIndex,
				"version":                  gorm.Expr("version + 1"),
				"updated_at":               complaint.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperror.ErrStaleComplaint
		}

		for i := range complaint.Assignments {
			a := &complaint.Assignments[i]
			a.ComplaintID = complaint.ID
			if err := tx.Save(a).Error; err != nil {
				return fmt.Errorf("save assignment %d: %w", a.Seq, err)
			}
		}

		for _, change := range effects {
			if err := applyAvailability(tx, change); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	complaint.Version = expectedVersion + 1
	return nil
}

func applyAvailability(tx *gorm.DB, change models.AvailabilityChange) error {
	updates := map[string]interface{}{
		"available":  change.Available,
		"updated_at": change.At,
	}
	if !change.Available {
		updates["last_assigned_at"] = change.At
	}
	result := tx.Model(&models.Worker{}).Where("id = ?", change.WorkerID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update availability of %s: %w", change.WorkerID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.ErrWorkerNotFound
	}
	return nil
}

func (r *complaintRepository) CountActiveForAssignee(ctx context.Context, assigneeID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Complaint{}).
		Where("status NOT IN ?", inactiveStatuses).
		Where("EXISTS (SELECT 1 FROM complaint_assignments ca WHERE ca.complaint_id = complaints.id AND ca.assignee_id = ?)", assigneeID).
		Count(&count).Error
	return count, err
}

func (r *complaintRepository) CountActiveByAssignees(ctx context.Context, assigneeIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(assigneeIDs))
	if len(assigneeIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		AssigneeID uuid.UUID
		Total      int64
	}
	err := r.db.WithContext(ctx).
		Table("complaint_assignments ca").
		Select("ca.assignee_id, COUNT(DISTINCT ca.complaint_id) AS total").
		Joins("JOIN complaints c ON c.id = ca.complaint_id").
		Where("ca.assignee_id IN ?", assigneeIDs).
		Where("c.status NOT IN ?", inactiveStatuses).
		Group("ca.assignee_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.AssigneeID] = row.Total
	}
	return counts, nil
}

func (r *complaintRepository) NextComplaintNumber(ctx context.Context) (string, error) {
	year := time.Now().Year()
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Complaint{}).
		Where("EXTRACT(YEAR FROM created_at) = ?", year).
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("GRV-%d-%06d", year, count+1), nil
}
