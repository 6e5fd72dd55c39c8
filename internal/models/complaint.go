package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ComplaintStatus is the coarse status of a complaint. It is a projection of
// the current assignment's status and is only ever set by the lifecycle engine.
type ComplaintStatus string

const (
	ComplaintPending               ComplaintStatus = "pending"
	ComplaintAssigned              ComplaintStatus = "assigned"
	ComplaintForwardedToJE         ComplaintStatus = "forwarded_to_je"
	ComplaintSubmittedByCM         ComplaintStatus = "submitted_by_cm"
	ComplaintSubmittedByJE         ComplaintStatus = "submitted_by_je"
	ComplaintSubmittedByContractor ComplaintStatus = "submitted_by_contractor"
	ComplaintVerifiedByJE          ComplaintStatus = "verified_by_je"
	ComplaintEscalated             ComplaintStatus = "escalated"
	ComplaintClosed                ComplaintStatus = "closed"
	ComplaintRejected              ComplaintStatus = "rejected"
)

// IsTerminal reports whether no further transition is accepted.
func (s ComplaintStatus) IsTerminal() bool {
	return s == ComplaintClosed || s == ComplaintRejected
}

// AssignmentStatus is the state of a single work item.
type AssignmentStatus string

const (
	AssignmentAssigned              AssignmentStatus = "assigned"
	AssignmentAssignedToContractor  AssignmentStatus = "assigned_to_contractor"
	AssignmentSubmittedByCM         AssignmentStatus = "submitted_by_cm"
	AssignmentSubmittedByJE         AssignmentStatus = "submitted_by_je"
	AssignmentSubmittedByContractor AssignmentStatus = "submitted_by_contractor"
	AssignmentVerifiedByJE          AssignmentStatus = "verified_by_je"
	AssignmentVerifiedByGM          AssignmentStatus = "verified_by_gm"
	AssignmentEscalated             AssignmentStatus = "escalated"
	AssignmentCancelled             AssignmentStatus = "cancelled"
)

// IsTerminal reports whether the record is frozen.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentVerifiedByGM || s == AssignmentCancelled
}

// IsOpen reports whether the assignment is still waiting for proof, which is
// the only window in which an SLA deadline applies.
func (s AssignmentStatus) IsOpen() bool {
	return s == AssignmentAssigned || s == AssignmentAssignedToContractor
}

// IsSubmitted reports whether proof is waiting for verification.
func (s AssignmentStatus) IsSubmitted() bool {
	switch s {
	case AssignmentSubmittedByCM, AssignmentSubmittedByJE, AssignmentSubmittedByContractor:
		return true
	}
	return false
}

// OpenAssignmentStatuses are the statuses the SLA monitor looks at.
var OpenAssignmentStatuses = []AssignmentStatus{AssignmentAssigned, AssignmentAssignedToContractor}

// AssignmentGroup is the actor class a piece of work is delegated to.
type AssignmentGroup string

const (
	GroupWorker     AssignmentGroup = "Worker"
	GroupContractor AssignmentGroup = "Contractor"
	GroupJE         AssignmentGroup = "JE"
)

// TracksAvailability reports whether assignees of this group carry a
// busy/free flag.
func (g AssignmentGroup) TracksAvailability() bool {
	return g == GroupWorker || g == GroupContractor
}

// ProofFile references a file stored for a complaint, either uploaded to
// object storage (ObjectKey) or supplied as an external link (FileURL).
type ProofFile struct {
	FileName   string    `json:"file_name"`
	ObjectKey  string    `json:"object_key,omitempty"`
	FileURL    string    `json:"file_url,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	Size       int64     `json:"size,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Complaint is the aggregate root for one citizen grievance.
type Complaint struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ComplaintNumber string    `gorm:"size:50;uniqueIndex;not null" json:"complaint_number"`

	// Intake
	FullName            string      `gorm:"size:200;not null" json:"full_name"`
	MobileNumber        string      `gorm:"size:20;not null;index" json:"mobile_number"`
	Email               string      `gorm:"size:100" json:"email"`
	Category            string      `gorm:"size:100;not null;index" json:"complaint_category"`
	Subject             string      `gorm:"size:200;not null" json:"complaint_subject"`
	DetailedDescription string      `gorm:"type:text" json:"detailed_description"`
	Latitude            *float64    `gorm:"type:decimal(10,8)" json:"latitude"`
	Longitude           *float64    `gorm:"type:decimal(11,8)" json:"longitude"`
	CompleteAddress     string      `gorm:"type:text" json:"complete_address"`
	EvidenceFiles       []ProofFile `gorm:"serializer:json;type:text" json:"evidence_files"`

	Status                 ComplaintStatus `gorm:"size:40;index;not null;default:'pending'" json:"status"`
	Assignments            []Assignment    `gorm:"foreignKey:ComplaintID" json:"assignments"`
	CurrentAssignmentIndex *int            `json:"current_assignment_index"`

	// Version guards every read-modify-write of the aggregate.
	Version int `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Complaint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Current returns the active assignment or nil.
func (c *Complaint) Current() *Assignment {
	if c.CurrentAssignmentIndex == nil {
		return nil
	}
	idx := *c.CurrentAssignmentIndex
	if idx < 0 || idx >= len(c.Assignments) {
		return nil
	}
	return &c.Assignments[idx]
}

// Clone returns a copy that shares no mutable state with c.
func (c *Complaint) Clone() *Complaint {
	out := *c
	if c.EvidenceFiles != nil {
		out.EvidenceFiles = append([]ProofFile(nil), c.EvidenceFiles...)
	}
	if c.Assignments != nil {
		out.Assignments = make([]Assignment, len(c.Assignments))
		for i := range c.Assignments {
			out.Assignments[i] = c.Assignments[i].clone()
		}
	}
	if c.CurrentAssignmentIndex != nil {
		idx := *c.CurrentAssignmentIndex
		out.CurrentAssignmentIndex = &idx
	}
	return &out
}

// Assignment is one delegation of work for a complaint.
type Assignment struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	ComplaintID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_complaint_assignment_seq" json:"complaint_id"`
	Seq            int              `gorm:"not null;uniqueIndex:idx_complaint_assignment_seq" json:"seq"`
	Group          AssignmentGroup  `gorm:"column:group_name;size:20;not null" json:"group"`
	AssigneeID     *uuid.UUID       `gorm:"type:uuid;index" json:"assignee_id"`
	AssignedBy     uuid.UUID        `gorm:"type:uuid;not null" json:"assigned_by"`
	AssignedAt     time.Time        `json:"assigned_at"`
	SLADeadline    *time.Time       `gorm:"index" json:"sla_deadline"`
	Status         AssignmentStatus `gorm:"size:40;not null;index" json:"status"`
	ProofFiles     []ProofFile      `gorm:"serializer:json;type:text" json:"proof_files"`
	SubmittedAt    *time.Time       `json:"submitted_at"`
	VerifiedBy     *uuid.UUID       `gorm:"type:uuid" json:"verified_by"`
	VerifiedAt     *time.Time       `json:"verified_at"`
	EscalateReason string           `gorm:"type:text" json:"escalate_reason"`
	Retries        int              `gorm:"default:0" json:"retries"`
	FinalNote      string           `gorm:"type:text" json:"final_note"`
}

func (Assignment) TableName() string {
	return "complaint_assignments"
}

func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a Assignment) clone() Assignment {
	if a.ProofFiles != nil {
		a.ProofFiles = append([]ProofFile(nil), a.ProofFiles...)
	}
	return a
}

// ComplaintFilter selects complaints. Assignment conditions apply to the
// current assignment only.
type ComplaintFilter struct {
	Search                    string             `json:"search"`
	Statuses                  []ComplaintStatus  `json:"statuses"`
	CurrentAssignmentStatuses []AssignmentStatus `json:"current_assignment_statuses"`
	DeadlineBefore            *time.Time         `json:"deadline_before"`
	AssigneeID                *uuid.UUID         `json:"assignee_id"` // any assignment in history
	Category                  string             `json:"category"`
	Page                      int                `json:"page"`
	Limit                     int                `json:"limit"`
	// Unpaged returns every match; used by background scans.
	Unpaged bool `json:"-"`
}

// Request types

type CreateComplaintRequest struct {
	FullName            string             `json:"full_name" validate:"required,min=1,max=200"`
	MobileNumber        string             `json:"mobile_number" validate:"required,min=10,max=15"`
	Email               string             `json:"email" validate:"omitempty,email"`
	Category            string             `json:"complaint_category" validate:"required,max=100"`
	Subject             string             `json:"complaint_subject" validate:"required,max=200"`
	DetailedDescription string             `json:"detailed_description" validate:"required"`
	Latitude            *float64           `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude           *float64           `json:"longitude" validate:"omitempty,min=-180,max=180"`
	CompleteAddress     string             `json:"complete_address" validate:"required"`
	EvidenceFiles       []EvidenceFileLink `json:"evidence_files" validate:"omitempty,dive"`
}

type EvidenceFileLink struct {
	FileName string `json:"file_name" validate:"required"`
	FileURL  string `json:"file_url" validate:"omitempty,url"`
	FileType string `json:"file_type"`
}

type AssignRequest struct {
	Group        string  `json:"group" validate:"required,oneof=Worker Contractor"`
	WorkerUserID *string `json:"worker_user_id" validate:"omitempty,uuid"`
	SLAMinutes   int     `json:"sla_minutes" validate:"omitempty,min=1"`
	Remarks      string  `json:"remarks"`
}

type ForwardToJERequest struct {
	JEID string `json:"je_id" validate:"required,uuid"`
}

type VerifyActionRequest struct {
	Action string  `json:"action" validate:"required"`
	Note   *string `json:"note"`
}

type ManagerApproveRequest struct {
	Note *string `json:"note"`
}

type EscalateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Response types

type AssignmentResponse struct {
	Seq            int              `json:"seq"`
	Group          AssignmentGroup  `json:"group"`
	AssigneeID     *uuid.UUID       `json:"assignee_id"`
	AssignedBy     uuid.UUID        `json:"assigned_by"`
	AssignedAt     time.Time        `json:"assigned_at"`
	SLADeadline    *time.Time       `json:"sla_deadline"`
	Status         AssignmentStatus `json:"status"`
	ProofFiles     []ProofFile      `json:"proof_files"`
	SubmittedAt    *time.Time       `json:"submitted_at"`
	VerifiedBy     *uuid.UUID       `json:"verified_by"`
	VerifiedAt     *time.Time       `json:"verified_at"`
	EscalateReason string           `json:"escalate_reason,omitempty"`
	Retries        int              `json:"retries"`
	FinalNote      string           `json:"final_note,omitempty"`
}

type ComplaintResponse struct {
	ID                  uuid.UUID            `json:"id"`
	ComplaintNumber     string               `json:"complaint_number"`
	FullName            string               `json:"full_name"`
	MobileNumber        string               `json:"mobile_number"`
	Email               string               `json:"email,omitempty"`
	Category            string               `json:"complaint_category"`
	Subject             string               `json:"complaint_subject"`
	DetailedDescription string               `json:"detailed_description"`
	Latitude            *float64             `json:"latitude,omitempty"`
	Longitude           *float64             `json:"longitude,omitempty"`
	CompleteAddress     string               `json:"complete_address"`
	EvidenceFiles       []ProofFile          `json:"evidence_files"`
	Status              ComplaintStatus      `json:"status"`
	Assignments         []AssignmentResponse `json:"assignments"`
	CurrentAssignment   *AssignmentResponse  `json:"current_assignment"`
	UserID              *uuid.UUID           `json:"user_id"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

func ToAssignmentResponse(a *Assignment) AssignmentResponse {
	return AssignmentResponse{
		Seq:            a.Seq,
		Group:          a.Group,
		AssigneeID:     a.AssigneeID,
		AssignedBy:     a.AssignedBy,
		AssignedAt:     a.AssignedAt,
		SLADeadline:    a.SLADeadline,
		Status:         a.Status,
		ProofFiles:     a.ProofFiles,
		SubmittedAt:    a.SubmittedAt,
		VerifiedBy:     a.VerifiedBy,
		VerifiedAt:     a.VerifiedAt,
		EscalateReason: a.EscalateReason,
		Retries:        a.Retries,
		FinalNote:      a.FinalNote,
	}
}

func ToComplaintResponse(c *Complaint) ComplaintResponse {
	resp := ComplaintResponse{
		ID:                  c.ID,
		ComplaintNumber:     c.ComplaintNumber,
		FullName:            c.FullName,
		MobileNumber:        c.MobileNumber,
		Email:               c.Email,
		Category:            c.Category,
		Subject:             c.Subject,
		DetailedDescription: c.DetailedDescription,
		Latitude:            c.Latitude,
		Longitude:           c.Longitude,
		CompleteAddress:     c.CompleteAddress,
		EvidenceFiles:       c.EvidenceFiles,
		Status:              c.Status,
		Assignments:         make([]AssignmentResponse, 0, len(c.Assignments)),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
	for i := range c.Assignments {
		resp.Assignments = append(resp.Assignments, ToAssignmentResponse(&c.Assignments[i]))
	}
	if cur := c.Current(); cur != nil {
		ar := ToAssignmentResponse(cur)
		resp.CurrentAssignment = &ar
		resp.UserID = cur.AssigneeID
	}
	return resp
}
