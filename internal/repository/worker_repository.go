package repository

import (
	"context"
	"errors"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkerRepository interface {
	Create(ctx context.Context, worker *models.Worker) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Worker, error)
	List(ctx context.Context, filter *models.WorkerFilter) ([]models.Worker, int64, error)
	SetAvailability(ctx context.Context, change models.AvailabilityChange) error
}

type workerRepository struct {
	db *gorm.DB
}

func NewWorkerRepository(db *gorm.DB) WorkerRepository {
	return &workerRepository{db: db}
}

func (r *workerRepository) Create(ctx context.Context, worker *models.Worker) error {
	return r.db.WithContext(ctx).Create(worker).Error
}

func (r *workerRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Worker, error) {
	var worker models.Worker
	err := r.db.WithContext(ctx).First(&worker, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrWorkerNotFound
		}
		return nil, err
	}
	return &worker, nil
}

func (r *workerRepository) List(ctx context.Context, filter *models.WorkerFilter) ([]models.Worker, int64, error) {
	var workers []models.Worker
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Worker{})
	if !filter.IncludeFrozen {
		query = query.Where("is_active = ?", true)
	}
	if filter.Group != nil {
		query = query.Where("group_name = ?", *filter.Group)
	}
	if filter.Available != nil {
		query = query.Where("available = ?", *filter.Available)
	}
	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		if filter.Page < 1 {
			filter.Page = 1
		}
		query = query.Offset((filter.Page - 1) * filter.Limit).Limit(filter.Limit)
	}

	err := query.Order("full_name ASC").Find(&workers).Error
	if err != nil {
		return nil, 0, err
	}
	return workers, total, nil
}

func (r *workerRepository) SetAvailability(ctx context.Context, change models.AvailabilityChange) error {
	return applyAvailability(r.db.WithContext(ctx), change)
}
