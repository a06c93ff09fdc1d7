package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/tutorlink/config"
	"github.com/d60-Lab/tutorlink/internal/cache"
	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/internal/service"
	"github.com/d60-Lab/tutorlink/pkg/database"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

// countingSource counts batched lookups that reach the profile store.
type countingSource struct {
	inner   service.ProfileSource
	batches atomic.Int64
}

func (s *countingSource) FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	s.batches.Add(1)
	return s.inner.FetchProfiles(ctx, ids)
}

type scenarioResult struct {
	durations   []time.Duration
	batches     int64
	counters    cache.Counters
	cacheKeys   int
	memoryBytes int64
}

// 压测：同一批老师的连接列表反复补全资料，对比直接查库与 Redis 缓存
func main() {
	cfg := must(config.Load())
	_ = logger.Init("error", "console")
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	const (
		teacherCount = 3
		studentCount = 600
		perTeacher   = 300
	)
	requests := envInt("REQUESTS", 3000)

	fmt.Println("Setting up test data...")
	runID := uuid.NewString()[:8]
	userRepo := repository.NewUserRepository(db)
	users := make([]*model.User, 0, teacherCount+studentCount)
	for i := 0; i < teacherCount; i++ {
		users = append(users, &model.User{ID: fmt.Sprintf("pb-t-%s-%d", runID, i), DisplayName: fmt.Sprintf("Teacher %d", i), Role: "teacher"})
	}
	for i := 0; i < studentCount; i++ {
		users = append(users, &model.User{
			ID:          fmt.Sprintf("pb-s-%s-%d", runID, i),
			DisplayName: fmt.Sprintf("Student %d", i),
			Email:       fmt.Sprintf("student_%d@example.com", i),
			Role:        "student",
		})
	}
	for start := 0; start < len(users); start += 500 {
		mustDo(userRepo.Save(ctx, users[start:min(start+500, len(users))]...))
	}

	// teacher i teaches students [i*150, i*150+300), so neighbours overlap by half
	lists := make([][]model.Connection, teacherCount)
	for t := 0; t < teacherCount; t++ {
		teacherID := users[t].ID
		for j := 0; j < perTeacher; j++ {
			studentID := users[teacherCount+(t*perTeacher/2+j)%studentCount].ID
			lists[t] = append(lists[t], model.Connection{ID: uuid.NewString(), StudentID: studentID, TeacherID: teacherID})
		}
	}

	client, closeRedis := redisClient(ctx, cfg)
	defer closeRedis()

	rnd := rand.New(rand.NewSource(42))
	reqs := make([]int, requests)
	for i := range reqs {
		reqs[i] = rnd.Intn(teacherCount)
	}

	direct := &countingSource{inner: userRepo}
	noCache := run(ctx, client, reqs, lists, direct, nil, cfg.Profile.BatchSize, false)

	cached := &countingSource{inner: userRepo}
	pc := cache.NewProfileCache(cached, client, 10*time.Minute)
	cold := run(ctx, client, reqs, lists, cached, pc, cfg.Profile.BatchSize, false)
	warm := run(ctx, client, reqs, lists, cached, pc, cfg.Profile.BatchSize, true)

	fmt.Printf("\nProfile enrichment latency (%d lists x %d connections, %d requests)\n", teacherCount, perTeacher, requests)
	for _, r := range []struct {
		name string
		res  scenarioResult
	}{{"No cache", noCache}, {"Cache (cold)", cold}, {"Cache (warm)", warm}} {
		fmt.Printf("%-14s avg=%v p95=%v p99=%v store_batches=%d hits=%d misses=%d cache_keys=%d mem=%s\n",
			r.name, avg(r.res.durations), pct(r.res.durations, 0.95), pct(r.res.durations, 0.99),
			r.res.batches, r.res.counters.Hits, r.res.counters.Misses, r.res.cacheKeys, formatBytes(r.res.memoryBytes))
	}
}

func run(ctx context.Context, client *redis.Client, reqs []int, lists [][]model.Connection, src *countingSource, pc *cache.ProfileCache, batchSize int, warm bool) scenarioResult {
	var source service.ProfileSource = src
	if pc != nil {
		source = pc
	}
	enricher := service.NewProfileEnricher(source, batchSize)

	if !warm {
		client.FlushAll(ctx)
	}
	if pc != nil {
		pc.ResetCounters()
	}
	src.batches.Store(0)

	out := make([]time.Duration, 0, len(reqs))
	for _, t := range reqs {
		start := time.Now()
		enricher.Enrich(ctx, lists[t])
		out = append(out, time.Since(start))
	}

	res := scenarioResult{durations: out, batches: src.batches.Load()}
	if pc != nil {
		res.counters = pc.Counters()
	}
	keys, _ := client.Keys(ctx, "profile:*").Result()
	res.cacheKeys = len(keys)
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		res.memoryBytes = parseRedisMemory(info)
	}
	return res
}

// redisClient uses redis.addr, falling back to an in-process miniredis.
func redisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func()) {
	if cfg.Redis.Addr != "" {
		client := must(database.InitRedis(ctx, cfg))
		return client, func() { _ = client.Close() }
	}
	fmt.Println("redis.addr not set, using in-process miniredis")
	mr := must(miniredis.Run())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
