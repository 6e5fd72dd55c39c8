package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultMaxConcurrent = 3

// Worker is a field worker or contractor that can hold assignments.
type Worker struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	FullName       string          `gorm:"size:200;not null" json:"full_name"`
	MobileNumber   string          `gorm:"size:20" json:"mobile_number"`
	Role           Role            `gorm:"size:20;not null;index" json:"role"`
	Group          AssignmentGroup `gorm:"column:group_name;size:20;not null;index" json:"group"`
	Available      bool            `gorm:"not null;default:true;index" json:"available"`
	LastAssignedAt *time.Time      `json:"last_assigned_at"`
	CreatedBy      *uuid.UUID      `gorm:"type:uuid;index" json:"created_by"`
	MaxConcurrent  int             `gorm:"not null;default:3" json:"max_concurrent"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (w *Worker) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.MaxConcurrent <= 0 {
		w.MaxConcurrent = DefaultMaxConcurrent
	}
	return nil
}

// Capacity returns the configured concurrency limit, falling back to the default.
func (w *Worker) Capacity() int {
	if w.MaxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	return w.MaxConcurrent
}

// AvailabilityChange is a single flag write requested by the lifecycle engine.
type AvailabilityChange struct {
	WorkerID  uuid.UUID
	Available bool
	At        time.Time
}

type WorkerFilter struct {
	Group         *AssignmentGroup `json:"group"`
	Available     *bool            `json:"available"`
	CreatedBy     *uuid.UUID       `json:"created_by"`
	IncludeFrozen bool             `json:"include_frozen"`
	Page          int              `json:"page"`
	Limit         int              `json:"limit"`
}

type CreateWorkerRequest struct {
	FullName      string `json:"full_name" validate:"required,min=1,max=200"`
	MobileNumber  string `json:"mobile_number" validate:"omitempty,min=10,max=15"`
	MaxConcurrent int    `json:"max_concurrent" validate:"omitempty,min=1,max=50"`
}

type WorkerWorkload struct {
	Worker      Worker `json:"worker"`
	ActiveCount int64  `json:"active_count"`
	Free        bool   `json:"free"`
}
