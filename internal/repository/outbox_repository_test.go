package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tutorlink/internal/model"
)

func TestOutboxRepository_Lifecycle(t *testing.T) {
	repo := NewOutboxRepository(setupTestDB(t))
	ctx := context.Background()

	c := newConn("s1", "t1", time.Now().UTC())
	require.NoError(t, repo.Enqueue(ctx, c, model.IndexOpCreate, errors.New("boom")))
	require.NoError(t, repo.Enqueue(ctx, c, model.IndexOpUpdate, nil))

	pending, err := repo.ListPending(ctx, 10, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, c.ID, pending[0].ConnectionID)
	assert.Equal(t, "boom", pending[0].LastError)

	ok, err := repo.Claim(ctx, pending[0].ID, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Claim(ctx, pending[0].ID, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "already claimed")

	require.NoError(t, repo.MarkDone(ctx, pending[0].ID))
	require.NoError(t, repo.MarkRetry(ctx, pending[1].ID, 5, "still failing", true))

	done, err := repo.CountByStatus(ctx, model.OutboxStatusDone)
	require.NoError(t, err)
	assert.Equal(t, int64(1), done)
	failed, err := repo.CountByStatus(ctx, model.OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	pending, err = repo.ListPending(ctx, 10, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRepository_ReclaimsExpiredProcessing(t *testing.T) {
	repo := NewOutboxRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, newConn("s1", "t1", time.Now().UTC()), model.IndexOpCreate, nil))
	fresh := time.Now().UTC().Add(-time.Minute)
	pending, err := repo.ListPending(ctx, 10, fresh)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	ok, err := repo.Claim(ctx, id, fresh)
	require.NoError(t, err)
	require.True(t, ok)

	// 租约内不可见，也不能被再次认领
	pending, err = repo.ListPending(ctx, 10, fresh)
	require.NoError(t, err)
	assert.Empty(t, pending)

	time.Sleep(10 * time.Millisecond)
	expired := time.Now().UTC()
	pending, err = repo.ListPending(ctx, 10, expired)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.OutboxStatusProcessing, pending[0].Status)
	require.NotNil(t, pending[0].ClaimedAt)

	ok, err = repo.Claim(ctx, id, expired)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim can be taken over")
	ok, err = repo.Claim(ctx, id, expired)
	require.NoError(t, err)
	assert.False(t, ok, "the takeover refreshed the lease")
}
