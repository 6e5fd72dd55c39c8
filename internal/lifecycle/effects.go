package lifecycle

import (
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/google/uuid"
)

// MarkBusy flags the worker as holding work. Applying it twice is harmless.
func MarkBusy(workerID uuid.UUID, at time.Time) models.AvailabilityChange {
	return models.AvailabilityChange{WorkerID: workerID, Available: false, At: at}
}

// MarkFree releases the worker.
func MarkFree(workerID uuid.UUID, at time.Time) models.AvailabilityChange {
	return models.AvailabilityChange{WorkerID: workerID, Available: true, At: at}
}

// holdsAssignee reports whether an assignment in this status keeps its
// assignee busy.
func holdsAssignee(s models.AssignmentStatus) bool {
	return s.IsOpen() || s.IsSubmitted()
}

// release returns the effect that frees a's assignee, if it has one to free.
func release(a *models.Assignment, now time.Time) []models.AvailabilityChange {
	if a == nil || a.AssigneeID == nil || !a.Group.TracksAvailability() || !holdsAssignee(a.Status) {
		return nil
	}
	return []models.AvailabilityChange{MarkFree(*a.AssigneeID, now)}
}
