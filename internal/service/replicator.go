package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

type indexJob struct {
	op    model.IndexOp
	conn  model.Connection
	enqAt time.Time
}

// IndexReplicator 本地异步冗余执行器：主表写完即返回，镜像由 worker 落地。
// 同一 connection 的任务按 id 哈希固定到一个 worker，保证按提交顺序落地。
// 队列满或落地失败时写入 outbox，由 IndexRepairWorker 兜底。
type IndexReplicator struct {
	applier    indexApplier
	outbox     repository.OutboxRepository
	shards     []chan indexJob
	metricsCh  chan time.Duration
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

// NewIndexReplicator queueSize 为所有 worker 队列容量之和
func NewIndexReplicator(index repository.UserConnectionRepository, outbox repository.OutboxRepository, workers, queueSize int, jobTimeout time.Duration) *IndexReplicator {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 10000
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Second
	}
	perShard := queueSize / workers
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]chan indexJob, workers)
	for i := range shards {
		shards[i] = make(chan indexJob, perShard)
	}
	return &IndexReplicator{
		applier:    indexApplier{index: index},
		outbox:     outbox,
		shards:     shards,
		metricsCh:  make(chan time.Duration, 65536),
		jobTimeout: jobTimeout,
	}
}

// Start 每个队列启动一个消费者，返回停止函数；停止时先排空队列中已有的任务
func (r *IndexReplicator) Start() func(context.Context) error {
	stopCh := make(chan struct{})
	for _, ch := range r.shards {
		r.wg.Add(1)
		go func(ch chan indexJob) {
			defer r.wg.Done()
			for {
				select {
				case job := <-ch:
					r.process(job)
				case <-stopCh:
					for {
						select {
						case job := <-ch:
							r.process(job)
						default:
							return
						}
					}
				}
			}
		}(ch)
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stopCh) })
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *IndexReplicator) shardFor(connectionID string) chan indexJob {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connectionID))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

func (r *IndexReplicator) process(job indexJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	if err := r.applier.apply(ctx, job.op, &job.conn); err != nil {
		logger.Warn("async user index write failed",
			zap.String("op", string(job.op)), zap.String("connection", job.conn.ID), zap.Error(err))
		recordOutbox(ctx, r.outbox, &job.conn, job.op, err)
	}
	if !job.enqAt.IsZero() {
		select {
		case r.metricsCh <- time.Since(job.enqAt):
		default:
		}
	}
}

func (r *IndexReplicator) ConnectionCreated(ctx context.Context, c *model.Connection) {
	r.enqueue(ctx, model.IndexOpCreate, c)
}

func (r *IndexReplicator) ConnectionUpdated(ctx context.Context, c *model.Connection) {
	r.enqueue(ctx, model.IndexOpUpdate, c)
}

func (r *IndexReplicator) ConnectionDeleted(ctx context.Context, c *model.Connection) {
	r.enqueue(ctx, model.IndexOpDelete, c)
}

func (r *IndexReplicator) enqueue(ctx context.Context, op model.IndexOp, c *model.Connection) {
	select {
	case r.shardFor(c.ID) <- indexJob{op: op, conn: *c, enqAt: time.Now()}:
	default:
		logger.Warn("index replicator queue full, recording to outbox",
			zap.String("op", string(op)), zap.String("connection", c.ID))
		recordOutbox(context.WithoutCancel(ctx), r.outbox, c, op, nil)
	}
}

// Metrics 返回镜像落地耗时的只读通道（每处理一条发送一次 duration）。
func (r *IndexReplicator) Metrics() <-chan time.Duration { return r.metricsCh }

// QueueLen 返回所有队列的当前长度之和（采样值）。
func (r *IndexReplicator) QueueLen() int {
	n := 0
	for _, ch := range r.shards {
		n += len(ch)
	}
	return n
}
