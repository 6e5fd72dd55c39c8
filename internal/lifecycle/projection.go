package lifecycle

import (
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
)

// Project maps an assignment to the complaint status it implies.
func Project(a *models.Assignment) models.ComplaintStatus {
	switch a.Status {
	case models.AssignmentAssigned:
		if a.Group == models.GroupJE {
			return models.ComplaintForwardedToJE
		}
		return models.ComplaintAssigned
	case models.AssignmentAssignedToContractor:
		return models.ComplaintAssigned
	case models.AssignmentSubmittedByCM:
		return models.ComplaintSubmittedByCM
	case models.AssignmentSubmittedByJE:
		return models.ComplaintSubmittedByJE
	case models.AssignmentSubmittedByContractor:
		return models.ComplaintSubmittedByContractor
	case models.AssignmentVerifiedByJE:
		return models.ComplaintVerifiedByJE
	case models.AssignmentVerifiedByGM:
		return models.ComplaintClosed
	case models.AssignmentEscalated:
		return models.ComplaintEscalated
	case models.AssignmentCancelled:
		return models.ComplaintRejected
	}
	return models.ComplaintPending
}

// CheckInvariant verifies the structural rules every stored complaint obeys:
// the current index points at the last assignment, sequence numbers match
// positions, earlier assignments are settled, and the status is the
// projection of the current assignment.
func CheckInvariant(c *models.Complaint) error {
	n := len(c.Assignments)
	if c.CurrentAssignmentIndex == nil {
		if n != 0 {
			return invariantf("complaint %s has %d assignments but no current index", c.ID, n)
		}
		switch c.Status {
		case models.ComplaintPending, models.ComplaintEscalated, models.ComplaintRejected:
			return nil
		}
		return invariantf("complaint %s has status %s without an assignment", c.ID, c.Status)
	}

	idx := *c.CurrentAssignmentIndex
	if idx != n-1 {
		return invariantf("complaint %s current index %d is not the last of %d", c.ID, idx, n)
	}
	for i := range c.Assignments {
		a := &c.Assignments[i]
		if a.Seq != i {
			return invariantf("complaint %s assignment at %d has seq %d", c.ID, i, a.Seq)
		}
		if i < idx && a.Status != models.AssignmentCancelled && a.Status != models.AssignmentEscalated {
			return invariantf("complaint %s superseded assignment %d is still %s", c.ID, i, a.Status)
		}
	}
	if want := Project(&c.Assignments[idx]); c.Status != want {
		return invariantf("complaint %s status %s, projection gives %s", c.ID, c.Status, want)
	}
	return nil
}

// IsSLABreached reports whether the current assignment is still waiting for
// proof past its deadline.
func IsSLABreached(c *models.Complaint, now time.Time) bool {
	cur := c.Current()
	if cur == nil || !cur.Status.IsOpen() || cur.SLADeadline == nil {
		return false
	}
	return cur.SLADeadline.Before(now)
}

func invariantf(format string, args ...interface{}) error {
	return apperror.Newf(apperror.ErrCodeInternal, "invariant violated: "+format, args...)
}
