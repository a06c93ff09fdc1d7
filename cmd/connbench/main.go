package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/tutorlink/config"
	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/internal/service"
	"github.com/d60-Lab/tutorlink/pkg/database"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// 压测：N 个学生并发向同一位老师发起连接请求，对比 sync / async 两种索引写入方式，
// 并测量各查询层的延迟。
func main() {
	cfg := must(config.Load())
	_ = logger.Init("error", "console")
	db := must(database.InitDB(cfg))

	conns := repository.NewConnectionRepository(db)
	index := repository.NewUserConnectionRepository(db)
	outbox := repository.NewOutboxRepository(db)
	users := repository.NewUserRepository(db)

	ctx := context.Background()
	N := envInt("N", 5000)
	CONC := envInt("CONC", 8)
	runID := strconv.FormatInt(time.Now().UnixNano(), 36)

	// seed profiles so enrichment hits real rows
	teacher := "bench-t-" + runID
	seed := make([]*model.User, 0, 2*N+1)
	seed = append(seed, &model.User{ID: teacher, DisplayName: "Bench Teacher", Role: string(model.RoleTeacher)})
	for i := 0; i < 2*N; i++ {
		id := fmt.Sprintf("bench-s-%s-%d", runID, i)
		seed = append(seed, &model.User{ID: id, DisplayName: id, Role: string(model.RoleStudent)})
	}
	for start := 0; start < len(seed); start += 500 {
		end := min(start+500, len(seed))
		must(0, users.Save(ctx, seed[start:end]...))
	}

	resolver := service.NewQueryResolver(conns, index, cfg.Profile.BatchSize)
	enricher := service.NewProfileEnricher(users, cfg.Profile.BatchSize)

	// sync: mirrors written inline
	syncSvc := service.NewConnectionService(conns, service.NewSyncIndexWriter(index, outbox, 0), resolver, enricher)
	syncDur, syncRecs := runCreates(ctx, syncSvc, teacher, runID, 0, N, CONC)

	// async: mirrors written by the replicator
	rep := service.NewIndexReplicator(index, outbox, cfg.Index.Workers, cfg.Index.QueueSize, cfg.Index.JobTimeout)
	stop := rep.Start()
	asyncSvc := service.NewConnectionService(conns, rep, resolver, enricher)

	repRecs := make([]time.Duration, 0, N)
	doneRep := make(chan struct{})
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for {
			select {
			case d := <-rep.Metrics():
				repRecs = append(repRecs, d)
			case <-doneRep:
				return
			}
		}
	}()

	maxQ := 0
	quitSample := make(chan struct{})
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if q := rep.QueueLen(); q > maxQ {
					maxQ = q
				}
			case <-quitSample:
				return
			}
		}
	}()

	asyncDur, asyncRecs := runCreates(ctx, asyncSvc, teacher, runID, N, N, CONC)
	close(quitSample)

	drainStart := time.Now()
	stopCtx, cancel := context.WithTimeout(ctx, time.Minute)
	if err := stop(stopCtx); err != nil {
		fmt.Printf("replicator did not drain: %v\n", err)
	}
	cancel()
	drainDur := time.Since(drainStart)
	close(doneRep)
	<-collected

	// queries per tier
	q := service.ListQuery{UserID: teacher, Role: model.RoleTeacher}
	t0 := time.Now()
	listed := resolver.ListForUser(ctx, q)
	resolveDur := time.Since(t0)

	t1 := time.Now()
	primary := must(conns.ListByParty(ctx, model.RoleTeacher, teacher, ""))
	primaryDur := time.Since(t1)

	t2 := time.Now()
	mirrors := must(index.ListByOwner(ctx, teacher, repository.IndexFilter{Role: model.RoleTeacher}))
	degradedDur := time.Since(t2)

	t3 := time.Now()
	views := enricher.Enrich(ctx, listed)
	enrichDur := time.Since(t3)

	pending := must(outbox.CountByStatus(ctx, model.OutboxStatusPending))

	fmt.Printf("N=%d, CONC=%d, teacher=%s\n", N, CONC, teacher)
	fmt.Printf("Sync create  total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		syncDur, syncDur/time.Duration(N), pct(syncRecs, 0.50), pct(syncRecs, 0.95), pct(syncRecs, 0.99))
	fmt.Printf("Async create total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		asyncDur, asyncDur/time.Duration(N), pct(asyncRecs, 0.50), pct(asyncRecs, 0.95), pct(asyncRecs, 0.99))
	if len(repRecs) > 0 {
		fmt.Printf("Replication landing: samples=%d, p50=%v, p95=%v, p99=%v, maxQueue=%d, drain=%v\n",
			len(repRecs), pct(repRecs, 0.50), pct(repRecs, 0.95), pct(repRecs, 0.99), maxQ, drainDur)
	}
	fmt.Printf("Resolver (index first) %d rows: %v\n", len(listed), resolveDur)
	fmt.Printf("Primary table          %d rows: %v\n", len(primary), primaryDur)
	fmt.Printf("Degraded index         %d rows: %v\n", len(mirrors), degradedDur)
	fmt.Printf("Enrich                 %d rows: %v\n", len(views), enrichDur)
	fmt.Printf("Outbox pending: %d\n", pending)
}

func runCreates(ctx context.Context, svc service.ConnectionService, teacher, runID string, offset, n, conc int) (time.Duration, []time.Duration) {
	workers := min(conc, n)
	feed := make(chan int, n)
	for i := 0; i < n; i++ {
		feed <- offset + i
	}
	close(feed)

	recCh := make(chan time.Duration, n)
	done := make(chan struct{}, workers)
	start := time.Now()
	for w := 0; w < workers; w++ {
		go func() {
			for i := range feed {
				st := time.Now()
				_, err := svc.Create(ctx, service.CreateInput{
					StudentID: fmt.Sprintf("bench-s-%s-%d", runID, i),
					TeacherID: teacher,
				})
				var dup *service.DuplicateConnectionError
				if err != nil && !errors.As(err, &dup) {
					fmt.Printf("create failed: %v\n", err)
				}
				recCh <- time.Since(st)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	total := time.Since(start)
	close(recCh)

	recs := make([]time.Duration, 0, n)
	for d := range recCh {
		recs = append(recs, d)
	}
	return total, recs
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}
