package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soumit27/eazzgrievnce/internal/models"
)

func TestPickLeastBusy_LowestCountThenLowestID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cm := models.Actor{ID: uuid.New(), Role: models.RoleCM}

	w1 := env.addWorker(t, "00000000-0000-0000-0000-000000000001", models.GroupWorker, nil)
	w2 := env.addWorker(t, "00000000-0000-0000-0000-000000000002", models.GroupWorker, nil)
	w3 := env.addWorker(t, "00000000-0000-0000-0000-000000000003", models.GroupWorker, nil)

	// w1 carries one complaint but stays flagged available
	_, err := env.service.Assign(ctx, cm, env.newComplaint(t).ID, AssignParams{Group: models.GroupWorker, AssigneeID: &w1.ID})
	require.NoError(t, err)
	require.NoError(t, env.workers.SetAvailability(ctx, models.AvailabilityChange{WorkerID: w1.ID, Available: true}))

	picked, err := env.tracker.PickLeastBusy(ctx, models.GroupWorker, nil)
	require.NoError(t, err)
	assert.Equal(t, w2.ID, picked.ID)

	require.NoError(t, env.workers.SetAvailability(ctx, models.AvailabilityChange{WorkerID: w2.ID, Available: false}))
	picked, err = env.tracker.PickLeastBusy(ctx, models.GroupWorker, nil)
	require.NoError(t, err)
	assert.Equal(t, w3.ID, picked.ID)
}

func TestPickLeastBusy_RespectsCapacityAndOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	je := models.Actor{ID: uuid.New(), Role: models.RoleJE}
	otherJE := uuid.New()

	mine := env.addWorker(t, "00000000-0000-0000-0000-000000000010", models.GroupContractor, &je.ID)
	env.addWorker(t, "00000000-0000-0000-0000-000000000001", models.GroupContractor, &otherJE)

	// fill the contractor up to its limit of one
	env.workers.items[mine.ID].MaxConcurrent = 1
	_, err := env.service.Assign(ctx, je, env.newComplaint(t).ID, AssignParams{Group: models.GroupContractor, AssigneeID: &mine.ID})
	require.NoError(t, err)
	require.NoError(t, env.workers.SetAvailability(ctx, models.AvailabilityChange{WorkerID: mine.ID, Available: true}))

	_, err = env.tracker.PickLeastBusy(ctx, models.GroupContractor, &je.ID)
	assert.ErrorIs(t, err, ErrNoAvailableWorker)
}

func TestReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cm := models.Actor{ID: uuid.New(), Role: models.RoleCM}
	w := env.addWorker(t, "00000000-0000-0000-0000-000000000001", models.GroupWorker, nil)

	_, err := env.service.Assign(ctx, cm, env.newComplaint(t).ID, AssignParams{Group: models.GroupWorker, AssigneeID: &w.ID})
	require.NoError(t, err)
	require.False(t, env.workers.get(w.ID).Available)

	// one complaint is below the limit of three, so the flag flips back
	load, err := env.tracker.Reconcile(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), load.ActiveCount)
	assert.True(t, load.Free)
	assert.True(t, env.workers.get(w.ID).Available)
}

func TestWorkerService_Registry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewWorkerService(env.workers, env.tracker, 0)
	je := models.Actor{ID: uuid.New(), Role: models.RoleJE}
	cm := models.Actor{ID: uuid.New(), Role: models.RoleCM}

	_, err := svc.CreateContractor(ctx, cm, &models.CreateWorkerRequest{FullName: "Acme Roads"})
	assert.Error(t, err)

	ct, err := svc.CreateContractor(ctx, je, &models.CreateWorkerRequest{FullName: "Acme Roads"})
	require.NoError(t, err)
	assert.Equal(t, models.GroupContractor, ct.Group)
	assert.Equal(t, models.DefaultMaxConcurrent, ct.MaxConcurrent)
	assert.Equal(t, je.ID, *ct.CreatedBy)

	_, err = svc.CreateWorker(ctx, cm, &models.CreateWorkerRequest{FullName: "Plumber Raju", MaxConcurrent: 5})
	require.NoError(t, err)

	mine, err := svc.ListMyContractors(ctx, je)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ct.ID, mine[0].Worker.ID)

	all, err := svc.ListWorkers(ctx, &models.WorkerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
