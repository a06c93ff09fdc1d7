package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/pkg/database"
)

var errInjected = errors.New("injected store failure")

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

type testEnv struct {
	db       *gorm.DB
	conns    repository.ConnectionRepository
	index    repository.UserConnectionRepository
	outbox   repository.OutboxRepository
	users    repository.UserRepository
	resolver *QueryResolver
	enricher *ProfileEnricher
	svc      *connectionService
	clock    *fakeClock
}

// newTestEnv 用 sqlite 搭建完整的服务；index 为 nil 时使用真实的用户索引仓储
func newTestEnv(t testing.TB, index repository.UserConnectionRepository) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	env := &testEnv{
		db:     db,
		conns:  repository.NewConnectionRepository(db),
		index:  repository.NewUserConnectionRepository(db),
		outbox: repository.NewOutboxRepository(db),
		users:  repository.NewUserRepository(db),
		clock:  &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	writeIndex := env.index
	if index != nil {
		writeIndex = index
	}
	env.resolver = NewQueryResolver(env.conns, env.index, DefaultBatchSize)
	env.enricher = NewProfileEnricher(env.users, DefaultBatchSize)
	writer := NewSyncIndexWriter(writeIndex, env.outbox, time.Second)
	env.svc = NewConnectionService(env.conns, writer, env.resolver, env.enricher).(*connectionService)
	env.svc.now = env.clock.Now
	return env
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now 每次调用前进一秒，保证 created_at 严格递增
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// flakyIndex 包装真实索引仓储，按开关注入失败
type flakyIndex struct {
	repository.UserConnectionRepository
	failWrites  atomic.Bool
	failOrdered atomic.Bool
	failAll     atomic.Bool
}

func (f *flakyIndex) Upsert(ctx context.Context, entries []model.UserConnection) error {
	if f.failWrites.Load() {
		return errInjected
	}
	return f.UserConnectionRepository.Upsert(ctx, entries)
}

func (f *flakyIndex) DeleteByConnection(ctx context.Context, connectionID string, owners ...string) error {
	if f.failWrites.Load() {
		return errInjected
	}
	return f.UserConnectionRepository.DeleteByConnection(ctx, connectionID, owners...)
}

func (f *flakyIndex) ListByOwner(ctx context.Context, ownerID string, filter repository.IndexFilter) ([]*model.UserConnection, error) {
	if f.failAll.Load() || (filter.Ordered && f.failOrdered.Load()) {
		return nil, errInjected
	}
	return f.UserConnectionRepository.ListByOwner(ctx, ownerID, filter)
}

// flakyConns 包装真实主表仓储
type flakyConns struct {
	repository.ConnectionRepository
	failList   atomic.Bool
	failBatch  atomic.Bool
	batchCalls atomic.Int32
}

func (f *flakyConns) ListByParty(ctx context.Context, role model.Role, userID string, status model.ConnectionStatus) ([]*model.Connection, error) {
	if f.failList.Load() {
		return nil, errInjected
	}
	return f.ConnectionRepository.ListByParty(ctx, role, userID, status)
}

func (f *flakyConns) GetByIDs(ctx context.Context, ids []string) ([]*model.Connection, error) {
	f.batchCalls.Add(1)
	if f.failBatch.Load() {
		return nil, errInjected
	}
	return f.ConnectionRepository.GetByIDs(ctx, ids)
}

// countingSource 记录每次批量资料查询的 id 数
type countingSource struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	calls    [][]string
	fail     bool
}

func (s *countingSource) FetchProfiles(_ context.Context, ids []string) (map[string]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, append([]string(nil), ids...))
	if s.fail {
		return nil, errInjected
	}
	out := make(map[string]model.Profile)
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *countingSource) callSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, 0, len(s.calls))
	for _, c := range s.calls {
		sizes = append(sizes, len(c))
	}
	return sizes
}

func ids(conns []model.Connection) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID)
	}
	return out
}
