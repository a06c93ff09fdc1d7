package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
)

func TestIndexReplicator_EventuallyWritesMirrors(t *testing.T) {
	db := setupTestDB(t)
	conns := repository.NewConnectionRepository(db)
	index := repository.NewUserConnectionRepository(db)
	outbox := repository.NewOutboxRepository(db)

	rep := NewIndexReplicator(index, outbox, 2, 64, time.Second)
	stop := rep.Start()

	svc := NewConnectionService(conns, rep, NewQueryResolver(conns, index, 10), NewProfileEnricher(nil, 10))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, CreateInput{StudentID: fmt.Sprintf("s%d", i), TeacherID: "t1"})
		require.NoError(t, err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, stop(stopCtx))

	mirrors, err := index.ListByOwner(ctx, "t1", repository.IndexFilter{Role: model.RoleTeacher})
	require.NoError(t, err)
	assert.Len(t, mirrors, 5)
	for i := 0; i < 5; i++ {
		own, err := index.ListByOwner(ctx, fmt.Sprintf("s%d", i), repository.IndexFilter{})
		require.NoError(t, err)
		assert.Len(t, own, 1)
	}

	pending, err := outbox.CountByStatus(ctx, model.OutboxStatusPending)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestIndexReplicator_FullQueueRecordsOutbox(t *testing.T) {
	db := setupTestDB(t)
	index := repository.NewUserConnectionRepository(db)
	outbox := repository.NewOutboxRepository(db)

	// 不启动 worker，队列容量 1
	rep := NewIndexReplicator(index, outbox, 1, 1, time.Second)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rep.ConnectionCreated(ctx, &model.Connection{ID: fmt.Sprintf("c%d", i), StudentID: "s1", TeacherID: fmt.Sprintf("t%d", i)})
	}

	assert.Equal(t, 1, rep.QueueLen())
	pending, err := outbox.CountByStatus(ctx, model.OutboxStatusPending)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)
}

func TestIndexReplicator_FailedWriteRecordsOutbox(t *testing.T) {
	db := setupTestDB(t)
	flaky := &flakyIndex{UserConnectionRepository: repository.NewUserConnectionRepository(db)}
	flaky.failWrites.Store(true)
	outbox := repository.NewOutboxRepository(db)

	rep := NewIndexReplicator(flaky, outbox, 1, 8, time.Second)
	stop := rep.Start()
	ctx := context.Background()
	rep.ConnectionDeleted(ctx, &model.Connection{ID: "c1", StudentID: "s1", TeacherID: "t1"})
	require.NoError(t, stop(ctx))

	pending, err := outbox.CountByStatus(ctx, model.OutboxStatusPending)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	select {
	case d := <-rep.Metrics():
		assert.GreaterOrEqual(t, d, time.Duration(0))
	default:
		t.Fatal("expected a latency sample")
	}
}

// slowUpsertIndex 延迟镜像 upsert，放大任务乱序的窗口
type slowUpsertIndex struct {
	repository.UserConnectionRepository
	delay time.Duration
}

func (s *slowUpsertIndex) Upsert(ctx context.Context, entries []model.UserConnection) error {
	time.Sleep(s.delay)
	return s.UserConnectionRepository.Upsert(ctx, entries)
}

func TestIndexReplicator_DeleteAfterSlowCreateLeavesNoMirrors(t *testing.T) {
	db := setupTestDB(t)
	conns := repository.NewConnectionRepository(db)
	index := repository.NewUserConnectionRepository(db)
	outbox := repository.NewOutboxRepository(db)

	rep := NewIndexReplicator(&slowUpsertIndex{UserConnectionRepository: index, delay: 100 * time.Millisecond}, outbox, 4, 64, time.Second)
	stop := rep.Start()

	svc := NewConnectionService(conns, rep, NewQueryResolver(conns, index, 10), NewProfileEnricher(nil, 10))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 8; i++ {
		c, err := svc.Create(ctx, CreateInput{StudentID: fmt.Sprintf("s%d", i), TeacherID: "t1"})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	for _, id := range ids {
		require.NoError(t, svc.Delete(ctx, id))
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, stop(stopCtx))

	for i := 0; i < 8; i++ {
		owner := fmt.Sprintf("s%d", i)
		mirrors, err := index.ListByOwner(ctx, owner, repository.IndexFilter{})
		require.NoError(t, err)
		assert.Empty(t, mirrors, owner)

		views, err := svc.List(ctx, ListQuery{UserID: owner})
		require.NoError(t, err)
		assert.Empty(t, views, owner)
	}
	mirrors, err := index.ListByOwner(ctx, "t1", repository.IndexFilter{Role: model.RoleTeacher})
	require.NoError(t, err)
	assert.Empty(t, mirrors)
}
