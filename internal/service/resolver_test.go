package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
)

// seedConnections 为 t1 创建 n 个学生的连接，返回按创建顺序排列的记录
func seedConnections(t *testing.T, env *testEnv, teacher string, n int) []*model.Connection {
	t.Helper()
	ctx := context.Background()
	out := make([]*model.Connection, 0, n)
	for i := 0; i < n; i++ {
		c, err := env.svc.Create(ctx, CreateInput{StudentID: studentName(i), TeacherID: teacher})
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func studentName(i int) string { return "s" + string(rune('a'+i)) }

func TestQueryResolver_IndexFirstOrdersNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	created := seedConnections(t, env, "t1", 12)

	got := env.resolver.ListForUser(context.Background(), ListQuery{UserID: "t1", Role: model.RoleTeacher})
	require.Len(t, got, 12)
	for i := range got {
		assert.Equal(t, created[len(created)-1-i].ID, got[i].ID)
	}
}

func TestQueryResolver_IndexFirstBatchesPrimaryLookups(t *testing.T) {
	env := newTestEnv(t, nil)
	seedConnections(t, env, "t1", 25)

	conns := &flakyConns{ConnectionRepository: env.conns}
	r := NewQueryResolver(conns, env.index, 10)
	got := r.ListForUser(context.Background(), ListQuery{UserID: "t1"})
	assert.Len(t, got, 25)
	assert.EqualValues(t, 3, conns.batchCalls.Load())
}

func TestQueryResolver_FiltersByStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	created := seedConnections(t, env, "t1", 3)
	_, err := env.svc.UpdateStatus(ctx, created[1].ID, model.ConnectionStatusAccepted)
	require.NoError(t, err)

	got := env.resolver.ListForUser(ctx, ListQuery{UserID: "t1", Status: model.ConnectionStatusAccepted})
	require.Len(t, got, 1)
	assert.Equal(t, created[1].ID, got[0].ID)

	got = env.resolver.ListForUser(ctx, ListQuery{UserID: "t1", Status: model.ConnectionStatusRejected})
	assert.Empty(t, got)
}

func TestQueryResolver_MissingPrimaryFallsBackToSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	created := seedConnections(t, env, "t1", 2)

	// 主记录被直接删掉，镜像残留
	_, err := env.conns.Delete(ctx, created[0].ID)
	require.NoError(t, err)

	got := env.resolver.ListForUser(ctx, ListQuery{UserID: "t1"})
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{created[0].ID, created[1].ID}, ids(got))
	for _, c := range got {
		if c.ID == created[0].ID {
			assert.Equal(t, created[0].StudentID, c.StudentID)
			assert.Equal(t, model.ConnectionStatusPending, c.Status)
		}
	}
}

func TestQueryResolver_FailedBatchUsesSnapshots(t *testing.T) {
	env := newTestEnv(t, nil)
	created := seedConnections(t, env, "t1", 3)

	conns := &flakyConns{ConnectionRepository: env.conns}
	conns.failBatch.Store(true)
	r := NewQueryResolver(conns, env.index, 10)

	got := r.ListForUser(context.Background(), ListQuery{UserID: "t1"})
	assert.ElementsMatch(t, ids(derefAll(created)), ids(got))
}

func TestQueryResolver_OrderedIndexFailureFallsBackToPrimary(t *testing.T) {
	env := newTestEnv(t, nil)
	created := seedConnections(t, env, "t1", 4)

	index := &flakyIndex{UserConnectionRepository: env.index}
	index.failOrdered.Store(true)
	r := NewQueryResolver(env.conns, index, 10)

	got := r.ListForUser(context.Background(), ListQuery{UserID: "t1", Role: model.RoleTeacher})
	require.Len(t, got, 4)
	// 主表路径同样按 created_at 倒序
	assert.Equal(t, created[3].ID, got[0].ID)
	assert.ElementsMatch(t, ids(derefAll(created)), ids(got))
}

func TestQueryResolver_DegradedPathWhenPrimaryFails(t *testing.T) {
	env := newTestEnv(t, nil)
	created := seedConnections(t, env, "t1", 4)

	index := &flakyIndex{UserConnectionRepository: env.index}
	index.failOrdered.Store(true)
	conns := &flakyConns{ConnectionRepository: env.conns}
	conns.failList.Store(true)
	r := NewQueryResolver(conns, index, 10)

	got := r.ListForUser(context.Background(), ListQuery{UserID: "t1"})
	assert.ElementsMatch(t, ids(derefAll(created)), ids(got))
}

func TestQueryResolver_AllTiersFailingYieldsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	seedConnections(t, env, "t1", 2)

	index := &flakyIndex{UserConnectionRepository: env.index}
	index.failAll.Store(true)
	conns := &flakyConns{ConnectionRepository: env.conns}
	conns.failList.Store(true)
	r := NewQueryResolver(conns, index, 10)

	got := r.ListForUser(context.Background(), ListQuery{UserID: "t1"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryResolver_PrimaryTierDefaultsToStudentRole(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	// 没有镜像的历史数据
	legacy := &model.Connection{ID: "legacy-1", StudentID: "s1", TeacherID: "t9", RequestedBy: "s1",
		Status: model.ConnectionStatusAccepted, CreatedAt: now, UpdatedAt: now}
	ok, err := env.conns.Create(ctx, legacy)
	require.NoError(t, err)
	require.True(t, ok)

	got := env.resolver.ListForUser(ctx, ListQuery{UserID: "s1"})
	require.Len(t, got, 1)
	assert.Equal(t, "legacy-1", got[0].ID)

	got = env.resolver.ListForUser(ctx, ListQuery{UserID: "t9"})
	assert.Empty(t, got, "role defaults to student on the primary table")

	got = env.resolver.ListForUser(ctx, ListQuery{UserID: "t9", Role: model.RoleTeacher})
	assert.Len(t, got, 1)
}

func TestQueryResolver_MergeAppendsMirrorOnlyEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	legacy := &model.Connection{ID: "legacy-1", StudentID: "s1", TeacherID: "t1", RequestedBy: "s1",
		Status: model.ConnectionStatusPending, CreatedAt: now, UpdatedAt: now}
	ok, err := env.conns.Create(ctx, legacy)
	require.NoError(t, err)
	require.True(t, ok)

	// 只在镜像中可见的连接
	orphan := model.Connection{ID: "mirror-only", StudentID: "s1", TeacherID: "t2", RequestedBy: "t2",
		Status: model.ConnectionStatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, env.index.Upsert(ctx, orphan.Mirrors()))

	index := &flakyIndex{UserConnectionRepository: env.index}
	index.failOrdered.Store(true)
	r := NewQueryResolver(env.conns, index, 10)

	got := r.ListForUser(ctx, ListQuery{UserID: "s1", Role: model.RoleStudent})
	assert.Equal(t, []string{"legacy-1", "mirror-only"}, ids(got))
}

func TestQueryResolver_MergeDeduplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	seedConnections(t, env, "t1", 3)

	got := env.resolver.ListForUser(context.Background(), ListQuery{UserID: "t1"})
	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.ID], "duplicate %s", c.ID)
		seen[c.ID] = true
	}
	assert.Len(t, got, 3)
}

func TestQueryResolver_MergeReadFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	created := seedConnections(t, env, "t1", 2)

	index := &flakyIndex{UserConnectionRepository: env.index}
	index.failAll.Store(true)
	r := NewQueryResolver(env.conns, index, 10)

	got := r.merge(context.Background(), ListQuery{UserID: "t1"}, derefAll(created))
	assert.Equal(t, ids(derefAll(created)), ids(got))
}

func derefAll(in []*model.Connection) []model.Connection {
	out := make([]model.Connection, 0, len(in))
	for _, c := range in {
		out = append(out, *c)
	}
	return out
}

var _ repository.UserConnectionRepository = (*flakyIndex)(nil)
