package lifecycle

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newComplaint() *models.Complaint {
	return &models.Complaint{
		ID:              uuid.New(),
		ComplaintNumber: "GRV-2025-000001",
		FullName:        "Asha Rao",
		MobileNumber:    "9876543210",
		Category:        "Water Supply",
		Subject:         "No water since Monday",
		Status:          models.ComplaintPending,
		Version:         1,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
}

func newWorker(group models.AssignmentGroup, owner *uuid.UUID) *models.Worker {
	return &models.Worker{
		ID:            uuid.New(),
		FullName:      "Ravi",
		Role:          models.RoleWorker,
		Group:         group,
		Available:     true,
		CreatedBy:     owner,
		MaxConcurrent: 3,
	}
}

func actor(role models.Role) models.Actor {
	return models.Actor{ID: uuid.New(), Role: role}
}

func proof() []models.ProofFile {
	return []models.ProofFile{{FileName: "after.jpg", ObjectKey: "proofs/after.jpg", FileType: "image/jpeg", UploadedAt: t0}}
}

// step fails the test on error and checks the structural invariant.
func step(t *testing.T, res *Result, err error) *models.Complaint {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NoError(t, CheckInvariant(res.Complaint))
	return res.Complaint
}

func TestProject(t *testing.T) {
	cases := []struct {
		group  models.AssignmentGroup
		status models.AssignmentStatus
		want   models.ComplaintStatus
	}{
		{models.GroupWorker, models.AssignmentAssigned, models.ComplaintAssigned},
		{models.GroupJE, models.AssignmentAssigned, models.ComplaintForwardedToJE},
		{models.GroupContractor, models.AssignmentAssignedToContractor, models.ComplaintAssigned},
		{models.GroupWorker, models.AssignmentSubmittedByCM, models.ComplaintSubmittedByCM},
		{models.GroupContractor, models.AssignmentSubmittedByJE, models.ComplaintSubmittedByJE},
		{models.GroupContractor, models.AssignmentSubmittedByContractor, models.ComplaintSubmittedByContractor},
		{models.GroupWorker, models.AssignmentVerifiedByJE, models.ComplaintVerifiedByJE},
		{models.GroupWorker, models.AssignmentVerifiedByGM, models.ComplaintClosed},
		{models.GroupWorker, models.AssignmentEscalated, models.ComplaintEscalated},
		{models.GroupWorker, models.AssignmentCancelled, models.ComplaintRejected},
	}
	for _, tc := range cases {
		a := &models.Assignment{Group: tc.group, Status: tc.status}
		assert.Equal(t, tc.want, Project(a), "%s/%s", tc.group, tc.status)
	}
}

func TestCreateAssignment_WorkerPath(t *testing.T) {
	c := newComplaint()
	cm := actor(models.RoleCM)
	w := newWorker(models.GroupWorker, nil)

	res, err := CreateAssignment(c, cm, AssignInput{Group: models.GroupWorker, Assignee: w, SLAMinutes: 60}, t0)
	next := step(t, res, err)

	assert.True(t, res.Changed)
	assert.Equal(t, models.ComplaintAssigned, next.Status)
	require.Len(t, next.Assignments, 1)
	a := next.Assignments[0]
	assert.Equal(t, 0, a.Seq)
	assert.Equal(t, c.ID, a.ComplaintID)
	assert.Equal(t, w.ID, *a.AssigneeID)
	assert.Equal(t, cm.ID, a.AssignedBy)
	assert.Equal(t, t0.Add(time.Hour), *a.SLADeadline)
	assert.Equal(t, []models.AvailabilityChange{MarkBusy(w.ID, t0)}, res.Effects)

	// input untouched
	assert.Equal(t, models.ComplaintPending, c.Status)
	assert.Empty(t, c.Assignments)
	assert.Nil(t, c.CurrentAssignmentIndex)
}

func TestCreateAssignment_Rejections(t *testing.T) {
	cm := actor(models.RoleCM)
	je := actor(models.RoleJE)

	closed := newComplaint()
	closed.Status = models.ComplaintClosed
	_, err := CreateAssignment(closed, cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 30}, t0)
	assert.True(t, apperror.IsInvalidState(err))
	assert.Equal(t, models.ComplaintClosed, closed.Status)
	assert.Empty(t, closed.Assignments)

	_, err = CreateAssignment(newComplaint(), je, AssignInput{Group: models.GroupWorker, SLAMinutes: 30}, t0)
	assert.True(t, apperror.IsUnauthorized(err))

	_, err = CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupContractor, SLAMinutes: 30}, t0)
	assert.True(t, apperror.IsUnauthorized(err))

	otherJE := uuid.New()
	foreign := newWorker(models.GroupContractor, &otherJE)
	_, err = CreateAssignment(newComplaint(), je, AssignInput{Group: models.GroupContractor, Assignee: foreign, SLAMinutes: 30}, t0)
	assert.True(t, apperror.IsUnauthorized(err))

	_, err = CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 0}, t0)
	assert.True(t, apperror.IsValidation(err))

	contractor := newWorker(models.GroupContractor, &cm.ID)
	_, err = CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: contractor, SLAMinutes: 30}, t0)
	assert.True(t, apperror.IsValidation(err))

	busy := newWorker(models.GroupWorker, nil)
	busy.Available = false
	_, err = CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: busy, SLAMinutes: 30}, t0)
	assert.ErrorIs(t, err, ErrAssigneeUnavailable)
}

func TestCreateAssignment_SupersedesOpenAssignment(t *testing.T) {
	cm := actor(models.RoleCM)
	first := newWorker(models.GroupWorker, nil)
	second := newWorker(models.GroupWorker, nil)

	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: first, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	res, err = CreateAssignment(c, cm, AssignInput{Group: models.GroupWorker, Assignee: second, SLAMinutes: 60}, t0.Add(time.Minute))
	c = step(t, res, err)

	require.Len(t, c.Assignments, 2)
	assert.Equal(t, models.AssignmentCancelled, c.Assignments[0].Status)
	assert.Equal(t, 1, *c.CurrentAssignmentIndex)
	assert.Equal(t, 0, c.Assignments[1].Retries)
	assert.ElementsMatch(t, []models.AvailabilityChange{
		MarkFree(first.ID, t0.Add(time.Minute)),
		MarkBusy(second.ID, t0.Add(time.Minute)),
	}, res.Effects)
}

func TestSubmitThenApprove(t *testing.T) {
	cm := actor(models.RoleCM)
	je := actor(models.RoleJE)
	w := newWorker(models.GroupWorker, nil)

	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: w, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	res, err = SubmitProof(c, cm, proof(), t0.Add(10*time.Minute))
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintSubmittedByCM, c.Status)
	assert.Empty(t, res.Effects)
	assert.Len(t, c.Current().ProofFiles, 1)

	res, err = VerifyProof(c, je, "approve", nil, t0.Add(20*time.Minute))
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintVerifiedByJE, c.Status)
	assert.Equal(t, je.ID, *c.Current().VerifiedBy)
	assert.Equal(t, []models.AvailabilityChange{MarkFree(w.ID, t0.Add(20*time.Minute))}, res.Effects)
}

func TestSubmitThenReject(t *testing.T) {
	cm := actor(models.RoleCM)
	je := actor(models.RoleJE)
	w := newWorker(models.GroupWorker, nil)

	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: w, SLAMinutes: 60}, t0)
	c := step(t, res, err)
	res, err = SubmitProof(c, cm, proof(), t0)
	c = step(t, res, err)

	res, err = VerifyProof(c, je, "reject", nil, t0)
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintEscalated, c.Status)
	assert.Equal(t, DefaultRejectReason, c.Current().EscalateReason)
	assert.Equal(t, []models.AvailabilityChange{MarkFree(w.ID, t0)}, res.Effects)

	note := "photo is blurry"
	res, err = SubmitProof(c, cm, proof(), t0)
	assert.True(t, apperror.IsInvalidState(err))
	assert.Nil(t, res)

	// a retry after rejection counts up
	res, err = CreateAssignment(c, cm, AssignInput{Group: models.GroupWorker, Assignee: w, SLAMinutes: 60}, t0)
	c = step(t, res, err)
	assert.Equal(t, 1, c.Current().Retries)
	assert.Equal(t, models.AssignmentEscalated, c.Assignments[0].Status)

	res, err = SubmitProof(c, cm, proof(), t0)
	c = step(t, res, err)
	res, err = VerifyProof(c, je, "reject", &note, t0)
	c = step(t, res, err)
	assert.Equal(t, note, c.Current().EscalateReason)
}

func TestVerifyProof_Validation(t *testing.T) {
	cm := actor(models.RoleCM)
	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	_, err = VerifyProof(c, actor(models.RoleJE), "maybe", nil, t0)
	assert.True(t, apperror.IsValidation(err))

	_, err = VerifyProof(c, cm, "approve", nil, t0)
	assert.True(t, apperror.IsUnauthorized(err))

	_, err = VerifyProof(c, actor(models.RoleSDO), "approve", nil, t0)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestSubmitProof_Guards(t *testing.T) {
	_, err := SubmitProof(newComplaint(), actor(models.RoleCM), proof(), t0)
	assert.ErrorIs(t, err, ErrNoActiveAssignment)

	cm := actor(models.RoleCM)
	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	_, err = SubmitProof(c, actor(models.RoleJE), proof(), t0)
	assert.True(t, apperror.IsUnauthorized(err))

	_, err = SubmitProof(c, cm, nil, t0)
	assert.True(t, apperror.IsValidation(err))
}

func TestContractorPath(t *testing.T) {
	cm := actor(models.RoleCM)
	je := actor(models.RoleJE)
	gm := actor(models.RoleGM)
	w := newWorker(models.GroupWorker, nil)
	contractor := newWorker(models.GroupContractor, &je.ID)

	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: w, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	res, err = ForwardToJE(c, cm, je.ID, t0)
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintForwardedToJE, c.Status)
	assert.Nil(t, c.Current().SLADeadline)
	assert.Equal(t, []models.AvailabilityChange{MarkFree(w.ID, t0)}, res.Effects)

	res, err = CreateAssignment(c, je, AssignInput{Group: models.GroupContractor, Assignee: contractor, SLAMinutes: 120}, t0)
	c = step(t, res, err)
	assert.Equal(t, models.AssignmentAssignedToContractor, c.Current().Status)
	assert.Equal(t, models.ComplaintAssigned, c.Status)
	require.Len(t, c.Assignments, 3)

	contractorActor := models.Actor{ID: contractor.ID, Role: models.RoleContractor}
	res, err = SubmitProof(c, contractorActor, proof(), t0)
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintSubmittedByContractor, c.Status)

	res, err = VerifyProof(c, je, "approve", nil, t0)
	c = step(t, res, err)
	assert.Equal(t, []models.AvailabilityChange{MarkFree(contractor.ID, t0)}, res.Effects)

	note := "work done, road restored"
	res, err = ManagerClose(c, gm, &note, t0)
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintClosed, c.Status)
	assert.Equal(t, note, c.Current().FinalNote)
}

func TestContractorSubmission_Unauthorized(t *testing.T) {
	je := actor(models.RoleJE)
	contractor := newWorker(models.GroupContractor, &je.ID)

	res, err := CreateAssignment(newComplaint(), je, AssignInput{Group: models.GroupContractor, Assignee: contractor, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	stranger := models.Actor{ID: uuid.New(), Role: models.RoleContractor}
	_, err = SubmitProof(c, stranger, proof(), t0)
	assert.True(t, apperror.IsUnauthorized(err))

	otherJE := actor(models.RoleJE)
	_, err = SubmitProof(c, otherJE, proof(), t0)
	assert.True(t, apperror.IsUnauthorized(err))

	res, err = SubmitProof(c, je, proof(), t0)
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintSubmittedByJE, c.Status)
}

func TestManagerClose_RequiresVerification(t *testing.T) {
	cm := actor(models.RoleCM)
	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 60}, t0)
	c := step(t, res, err)
	res, err = SubmitProof(c, cm, proof(), t0)
	c = step(t, res, err)

	_, err = ManagerClose(c, actor(models.RoleManager), nil, t0)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = ManagerClose(c, cm, nil, t0)
	assert.True(t, apperror.IsUnauthorized(err))
}

func TestEscalate_Idempotent(t *testing.T) {
	cm := actor(models.RoleCM)
	w := newWorker(models.GroupWorker, nil)
	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: w, SLAMinutes: 60}, t0)
	c := step(t, res, err)

	res, err = Escalate(c, models.SystemActor(), SLABreachReason, t0)
	c = step(t, res, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.ComplaintEscalated, c.Status)
	assert.Len(t, res.Effects, 1)

	res, err = Escalate(c, models.SystemActor(), SLABreachReason, t0)
	again := step(t, res, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Effects)
	assert.Equal(t, c.Assignments, again.Assignments)

	res, err = Escalate(c, actor(models.RoleAM), "citizen called twice", t0)
	again = step(t, res, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.Effects)
	assert.Equal(t, "citizen called twice", again.Current().EscalateReason)
	assert.Equal(t, models.ComplaintEscalated, again.Status)
}

func TestEscalate_TerminalIsNoop(t *testing.T) {
	c := newComplaint()
	c.Status = models.ComplaintRejected

	res, err := Escalate(c, models.SystemActor(), SLABreachReason, t0)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, models.ComplaintRejected, res.Complaint.Status)

	_, err = Escalate(newComplaint(), actor(models.RoleJE), "x", t0)
	assert.True(t, apperror.IsUnauthorized(err))

	_, err = Escalate(newComplaint(), actor(models.RoleCM), "  ", t0)
	assert.True(t, apperror.IsValidation(err))
}

func TestReject(t *testing.T) {
	gm := actor(models.RoleGM)

	res, err := Reject(newComplaint(), gm, "duplicate of GRV-2025-000002", t0)
	c := step(t, res, err)
	assert.Equal(t, models.ComplaintRejected, c.Status)

	cm := actor(models.RoleCM)
	res, err = CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 60}, t0)
	c = step(t, res, err)
	_, err = Reject(c, cm, "not ours", t0)
	assert.True(t, apperror.IsInvalidState(err))

	res, err = Escalate(c, cm, "stuck", t0)
	c = step(t, res, err)
	res, err = Reject(c, cm, "not ours", t0)
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintRejected, c.Status)
	assert.Equal(t, models.AssignmentCancelled, c.Current().Status)

	_, err = CreateAssignment(c, cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 60}, t0)
	assert.ErrorIs(t, err, ErrComplaintTerminal)
}

func TestIsSLABreached(t *testing.T) {
	cm := actor(models.RoleCM)
	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 1}, t0)
	c := step(t, res, err)

	assert.False(t, IsSLABreached(c, t0.Add(30*time.Second)))
	assert.False(t, IsSLABreached(c, t0.Add(time.Minute)))
	assert.True(t, IsSLABreached(c, t0.Add(61*time.Second)))

	res, err = SubmitProof(c, cm, proof(), t0)
	c = step(t, res, err)
	assert.False(t, IsSLABreached(c, t0.Add(time.Hour)))
	assert.False(t, IsSLABreached(newComplaint(), t0.Add(time.Hour)))
}

// Scenario: assign, breach, escalate, reassign, submit, approve, close.
func TestScenario_BreachThenResolve(t *testing.T) {
	am := actor(models.RoleAM)
	cm := actor(models.RoleCM)
	sdo := actor(models.RoleSDO)
	w1 := newWorker(models.GroupWorker, nil)
	w2 := newWorker(models.GroupWorker, nil)

	res, err := CreateAssignment(newComplaint(), am, AssignInput{Group: models.GroupWorker, Assignee: w1, SLAMinutes: 30}, t0)
	c := step(t, res, err)

	now := t0.Add(31 * time.Minute)
	require.True(t, IsSLABreached(c, now))
	res, err = Escalate(c, models.SystemActor(), SLABreachReason, now)
	c = step(t, res, err)
	assert.Equal(t, SLABreachReason, c.Current().EscalateReason)
	assert.False(t, IsSLABreached(c, now))

	res, err = CreateAssignment(c, cm, AssignInput{Group: models.GroupWorker, Assignee: w2, SLAMinutes: 30}, now)
	c = step(t, res, err)
	assert.Equal(t, 1, c.Current().Retries)

	res, err = SubmitProof(c, cm, proof(), now.Add(5*time.Minute))
	c = step(t, res, err)
	res, err = VerifyProof(c, sdo, "approve", nil, now.Add(10*time.Minute))
	c = step(t, res, err)
	res, err = ManagerClose(c, sdo, nil, now.Add(15*time.Minute))
	c = step(t, res, err)

	assert.Equal(t, models.ComplaintClosed, c.Status)
	assert.Equal(t, models.AssignmentEscalated, c.Assignments[0].Status)
	assert.Equal(t, models.AssignmentVerifiedByGM, c.Assignments[1].Status)
}

func TestCheckInvariant_Detects(t *testing.T) {
	c := newComplaint()
	c.Status = models.ComplaintAssigned
	assert.Error(t, CheckInvariant(c))

	cm := actor(models.RoleCM)
	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, SLAMinutes: 60}, t0)
	c = step(t, res, err)
	c.Status = models.ComplaintClosed
	assert.Error(t, CheckInvariant(c))
}

// Scenario: assign W1 for 240 minutes, submit, approve, close, then escalate.
func TestScenario_CloseThenEscalateIsNoop(t *testing.T) {
	cm := actor(models.RoleCM)
	je := actor(models.RoleJE)
	gm := actor(models.RoleGM)
	w1 := newWorker(models.GroupWorker, nil)

	res, err := CreateAssignment(newComplaint(), cm, AssignInput{Group: models.GroupWorker, Assignee: w1, SLAMinutes: 240}, t0)
	c := step(t, res, err)
	assert.Equal(t, models.ComplaintAssigned, c.Status)
	assert.Equal(t, t0.Add(240*time.Minute), *c.Current().SLADeadline)
	assert.Equal(t, []models.AvailabilityChange{MarkBusy(w1.ID, t0)}, res.Effects)

	res, err = SubmitProof(c, cm, proof(), t0.Add(time.Hour))
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintSubmittedByCM, c.Status)

	res, err = VerifyProof(c, je, ActionApprove, nil, t0.Add(2*time.Hour))
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintVerifiedByJE, c.Status)
	assert.Equal(t, []models.AvailabilityChange{MarkFree(w1.ID, t0.Add(2*time.Hour))}, res.Effects)

	res, err = ManagerClose(c, gm, nil, t0.Add(3*time.Hour))
	c = step(t, res, err)
	assert.Equal(t, models.ComplaintClosed, c.Status)

	res, err = Escalate(c, actor(models.RoleAM), "late complaint", t0.Add(4*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Effects)
	assert.Equal(t, models.ComplaintClosed, res.Complaint.Status)
	assert.Equal(t, models.AssignmentVerifiedByGM, res.Complaint.Current().Status)
}
