package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vpo/internal/model"
	"vpo/internal/storage"
)

func openTestQueue(t *testing.T) (*Queue, *storage.Engine) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "library.db")
	e, err := storage.Open(dbPath, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return New(e), e
}

func insertAt(t *testing.T, ctx context.Context, e *storage.Engine, priority int, createdAt time.Time) string {
	t.Helper()
	j := &model.Job{
		ID: uuid.NewString(), FilePath: "/media/x.mkv", Type: model.JobProcess,
		Status: model.JobQueued, Priority: priority, CreatedAt: createdAt,
	}
	require.NoError(t, e.Jobs().Insert(ctx, j))
	return j.ID
}

// TestPriorityClaimOrder is spec scenario S1: A(priority=10,T), B(priority=100,T+1s),
// C(priority=10,T+2s). Claims must return A, then C, then B.
func TestPriorityClaimOrder(t *testing.T) {
	q, e := openTestQueue(t)
	ctx := context.Background()
	base := time.Now().UTC()

	idA := insertAt(t, ctx, e, 10, base)
	idB := insertAt(t, ctx, e, 100, base.Add(1*time.Second))
	idC := insertAt(t, ctx, e, 10, base.Add(2*time.Second))

	first, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, idA, first.ID)

	second, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, idC, second.ID)

	third, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, idB, third.ID)
}

// TestStaleJobRecovery is spec scenario S2.
func TestStaleJobRecovery(t *testing.T) {
	q, e := openTestQueue(t)
	ctx := context.Background()

	id := insertAt(t, ctx, e, 10, time.Now().UTC())
	claimed, err := q.ClaimNext(ctx, 1234)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	_, err = e.ExecuteWrite(ctx, `UPDATE jobs SET worker_heartbeat = ? WHERE id = ?`,
		time.Now().UTC().Add(-600*time.Second), id)
	require.NoError(t, err)

	n, err := q.RecoverStale(ctx, 300*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	j, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.JobQueued, j.Status)
	require.Equal(t, 0, j.WorkerPID)
	require.Nil(t, j.StartedAt)
}

func TestCancelAndRequeueRoundTrip(t *testing.T) {
	q, e := openTestQueue(t)
	ctx := context.Background()
	id := insertAt(t, ctx, e, 10, time.Now().UTC())

	ok, err := q.Cancel(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok2, err := q.Requeue(ctx, id)
	require.NoError(t, err)
	require.True(t, ok2)

	j, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.JobQueued, j.Status)
}

func TestStatsReflectsCounts(t *testing.T) {
	q, e := openTestQueue(t)
	ctx := context.Background()
	insertAt(t, ctx, e, 1, time.Now().UTC())
	insertAt(t, ctx, e, 2, time.Now().UTC())

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Queued)
	require.Equal(t, 2, stats.Total)
}
