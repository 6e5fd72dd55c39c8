// Package lifecycle holds the complaint state machine. Every function takes the
// current aggregate and returns a new one; the input is never modified, so a
// failed call leaves the caller's copy exactly as it was.
package lifecycle

import (
	"strings"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"

	DefaultRejectReason = "Rejected by JE"
	SLABreachReason     = "SLA breached"
)

var (
	ErrNoActiveAssignment  = apperror.New(apperror.ErrCodeInvalidState, "no active assignment")
	ErrComplaintTerminal   = apperror.New(apperror.ErrCodeInvalidState, "complaint is closed or rejected")
	ErrAssigneeUnavailable = apperror.New(apperror.ErrCodeInvalidState, "assignee not available")
)

// Result is the outcome of a transition. Effects must be committed together
// with Complaint. Changed is false when the call was a no-op.
type Result struct {
	Complaint *models.Complaint
	Effects   []models.AvailabilityChange
	Changed   bool
}

type AssignInput struct {
	Group      models.AssignmentGroup
	Assignee   *models.Worker
	SLAMinutes int
}

// CreateAssignment delegates the complaint to a worker or contractor. An open
// current assignment is superseded and cancelled.
func CreateAssignment(c *models.Complaint, actor models.Actor, in AssignInput, now time.Time) (*Result, error) {
	if c.Status.IsTerminal() {
		return nil, ErrComplaintTerminal
	}

	switch in.Group {
	case models.GroupWorker:
		if !actor.HasRole(models.RoleCM, models.RoleAM) {
			return nil, denied(actor, "assign to a worker")
		}
	case models.GroupContractor:
		if !actor.HasRole(models.RoleJE) {
			return nil, denied(actor, "assign to a contractor")
		}
		if in.Assignee != nil && (in.Assignee.CreatedBy == nil || *in.Assignee.CreatedBy != actor.ID) {
			return nil, apperror.New(apperror.ErrCodeUnauthorized, "contractor is not managed by this JE")
		}
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "cannot assign to group %q", in.Group)
	}

	if in.SLAMinutes <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "sla_minutes must be positive")
	}
	if in.Assignee != nil {
		if in.Assignee.Group != in.Group {
			return nil, apperror.Newf(apperror.ErrCodeValidation, "assignee belongs to group %s, not %s", in.Assignee.Group, in.Group)
		}
		if !in.Assignee.Available {
			return nil, ErrAssigneeUnavailable
		}
	}

	next := c.Clone()
	var effects []models.AvailabilityChange
	retries := 0
	if prev := next.Current(); prev != nil {
		switch {
		case prev.Status == models.AssignmentEscalated || prev.Status == models.AssignmentCancelled:
			retries = prev.Retries + 1
		case !prev.Status.IsTerminal():
			effects = append(effects, release(prev, now)...)
			prev.Status = models.AssignmentCancelled
		}
	}

	deadline := now.Add(time.Duration(in.SLAMinutes) * time.Minute)
	a := models.Assignment{
		Group:       in.Group,
		AssignedBy:  actor.ID,
		AssignedAt:  now,
		SLADeadline: &deadline,
		Status:      models.AssignmentAssigned,
		Retries:     retries,
	}
	if in.Group == models.GroupContractor {
		a.Status = models.AssignmentAssignedToContractor
	}
	if in.Assignee != nil {
		id := in.Assignee.ID
		a.AssigneeID = &id
		effects = append(effects, MarkBusy(id, now))
	}
	appendAssignment(next, a, now)

	return &Result{Complaint: next, Effects: effects, Changed: true}, nil
}

// ForwardToJE hands a worker assignment over to a junior engineer.
func ForwardToJE(c *models.Complaint, actor models.Actor, jeID uuid.UUID, now time.Time) (*Result, error) {
	if !actor.HasRole(models.RoleCM) {
		return nil, denied(actor, "forward to JE")
	}
	cur := c.Current()
	if c.Status != models.ComplaintAssigned || cur == nil || cur.Group != models.GroupWorker {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "cannot forward a complaint in status %s", c.Status)
	}
	if jeID == uuid.Nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "je_id is required")
	}

	next := c.Clone()
	prev := next.Current()
	effects := release(prev, now)
	prev.Status = models.AssignmentCancelled

	je := jeID
	appendAssignment(next, models.Assignment{
		Group:      models.GroupJE,
		AssigneeID: &je,
		AssignedBy: actor.ID,
		AssignedAt: now,
		Status:     models.AssignmentAssigned,
	}, now)

	return &Result{Complaint: next, Effects: effects, Changed: true}, nil
}

// SubmitProof records proof of work on the current assignment.
func SubmitProof(c *models.Complaint, actor models.Actor, files []models.ProofFile, now time.Time) (*Result, error) {
	cur := c.Current()
	if cur == nil {
		return nil, ErrNoActiveAssignment
	}

	var (
		want   models.AssignmentStatus
		target models.AssignmentStatus
	)
	switch cur.Group {
	case models.GroupWorker:
		if !actor.HasRole(models.RoleCM) {
			return nil, denied(actor, "submit proof for a worker assignment")
		}
		want, target = models.AssignmentAssigned, models.AssignmentSubmittedByCM
	case models.GroupContractor:
		switch actor.Role {
		case models.RoleJE:
			if cur.AssignedBy != actor.ID {
				return nil, apperror.New(apperror.ErrCodeUnauthorized, "only the assigning JE may submit for this contractor")
			}
			target = models.AssignmentSubmittedByJE
		case models.RoleContractor:
			if cur.AssigneeID == nil || *cur.AssigneeID != actor.ID {
				return nil, apperror.New(apperror.ErrCodeUnauthorized, "complaint is not assigned to this contractor")
			}
			target = models.AssignmentSubmittedByContractor
		default:
			return nil, denied(actor, "submit proof for a contractor assignment")
		}
		want = models.AssignmentAssignedToContractor
	default:
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "no proof is accepted for a %s assignment", cur.Group)
	}

	if cur.Status != want {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "cannot submit proof while assignment is %s", cur.Status)
	}
	if len(files) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "at least one proof file is required")
	}

	next := c.Clone()
	a := next.Current()
	a.Status = target
	a.ProofFiles = append([]models.ProofFile(nil), files...)
	a.SubmittedAt = timePtr(now)
	settle(next, now)

	return &Result{Complaint: next, Changed: true}, nil
}

// VerifyProof approves or rejects submitted proof. Either way the assignee is
// released.
func VerifyProof(c *models.Complaint, actor models.Actor, action string, note *string, now time.Time) (*Result, error) {
	if !actor.HasRole(models.RoleJE, models.RoleSDO) {
		return nil, denied(actor, "verify proof")
	}
	action = strings.ToLower(strings.TrimSpace(action))
	if action != ActionApprove && action != ActionReject {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "unknown action %q", action)
	}
	cur := c.Current()
	if cur == nil {
		return nil, ErrNoActiveAssignment
	}
	if !cur.Status.IsSubmitted() {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "no submitted proof to verify, assignment is %s", cur.Status)
	}

	next := c.Clone()
	a := next.Current()
	effects := release(a, now)
	if action == ActionApprove {
		a.Status = models.AssignmentVerifiedByJE
		verifier := actor.ID
		a.VerifiedBy = &verifier
		a.VerifiedAt = timePtr(now)
	} else {
		a.Status = models.AssignmentEscalated
		a.EscalateReason = DefaultRejectReason
		if note != nil && strings.TrimSpace(*note) != "" {
			a.EscalateReason = *note
		}
	}
	settle(next, now)

	return &Result{Complaint: next, Effects: effects, Changed: true}, nil
}

// ManagerClose gives final approval and closes the complaint.
func ManagerClose(c *models.Complaint, actor models.Actor, finalNote *string, now time.Time) (*Result, error) {
	if !actor.HasRole(models.RoleGM, models.RoleManager, models.RoleSDO) {
		return nil, denied(actor, "close a complaint")
	}
	if c.Status != models.ComplaintVerifiedByJE || c.Current() == nil {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "complaint must be verified by JE, is %s", c.Status)
	}

	next := c.Clone()
	a := next.Current()
	a.Status = models.AssignmentVerifiedByGM
	verifier := actor.ID
	a.VerifiedBy = &verifier
	a.VerifiedAt = timePtr(now)
	if finalNote != nil {
		a.FinalNote = *finalNote
	}
	settle(next, now)

	return &Result{Complaint: next, Changed: true}, nil
}

// Escalate marks the current work as escalated. Calling it on a closed or
// rejected complaint does nothing; calling it again only replaces the reason.
func Escalate(c *models.Complaint, actor models.Actor, reason string, now time.Time) (*Result, error) {
	if !actor.HasRole(models.RoleAM, models.RoleCM, models.RoleSDO, models.RoleSystem) {
		return nil, denied(actor, "escalate")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "reason is required")
	}
	if c.Status.IsTerminal() {
		return &Result{Complaint: c.Clone()}, nil
	}

	next := c.Clone()
	a := next.Current()

	if c.Status == models.ComplaintEscalated {
		if a == nil || a.EscalateReason == reason {
			return &Result{Complaint: next}, nil
		}
		a.EscalateReason = reason
		next.UpdatedAt = now
		return &Result{Complaint: next, Changed: true}, nil
	}

	var effects []models.AvailabilityChange
	if a == nil {
		next.Status = models.ComplaintEscalated
		next.UpdatedAt = now
	} else {
		effects = release(a, now)
		a.Status = models.AssignmentEscalated
		a.EscalateReason = reason
		settle(next, now)
	}

	return &Result{Complaint: next, Effects: effects, Changed: true}, nil
}

// Reject ends a complaint without resolution.
func Reject(c *models.Complaint, actor models.Actor, reason string, now time.Time) (*Result, error) {
	if !actor.HasRole(models.RoleCM, models.RoleGM) {
		return nil, denied(actor, "reject")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "reason is required")
	}
	if c.Status != models.ComplaintPending && c.Status != models.ComplaintEscalated {
		return nil, apperror.Newf(apperror.ErrCodeInvalidState, "cannot reject a complaint in status %s", c.Status)
	}

	next := c.Clone()
	a := next.Current()
	if a == nil {
		next.Status = models.ComplaintRejected
		next.UpdatedAt = now
		return &Result{Complaint: next, Changed: true}, nil
	}

	effects := release(a, now)
	a.Status = models.AssignmentCancelled
	a.FinalNote = reason
	settle(next, now)

	return &Result{Complaint: next, Effects: effects, Changed: true}, nil
}

func appendAssignment(c *models.Complaint, a models.Assignment, now time.Time) {
	a.ComplaintID = c.ID
	a.Seq = len(c.Assignments)
	c.Assignments = append(c.Assignments, a)
	idx := a.Seq
	c.CurrentAssignmentIndex = &idx
	settle(c, now)
}

// settle re-derives the complaint status from its current assignment.
func settle(c *models.Complaint, now time.Time) {
	if cur := c.Current(); cur != nil {
		c.Status = Project(cur)
	}
	c.UpdatedAt = now
}

func denied(actor models.Actor, what string) error {
	return apperror.Newf(apperror.ErrCodeUnauthorized, "role %q may not %s", actor.Role, what)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
