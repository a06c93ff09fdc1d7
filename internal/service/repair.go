package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

// IndexRepairWorker 从 index_outbox 拉取失败的镜像变更并重放。
// 重放不信任 outbox 中的操作类型，而是以主表当前状态为准：
// 主记录存在则覆盖两条镜像，不存在则删除两条镜像。
type IndexRepairWorker struct {
	outbox       repository.OutboxRepository
	conns        repository.ConnectionRepository
	applier      indexApplier
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	// lease 认领后超过该时长仍处于 processing 的记录视为中断，可被重新认领
	lease   time.Duration
	workers int
	wg      sync.WaitGroup
}

const defaultClaimLease = time.Minute

func NewIndexRepairWorker(outbox repository.OutboxRepository, conns repository.ConnectionRepository, index repository.UserConnectionRepository, workers, batchSize, maxAttempts int, pollInterval time.Duration) *IndexRepairWorker {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &IndexRepairWorker{
		outbox:       outbox,
		conns:        conns,
		applier:      indexApplier{index: index},
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		lease:        defaultClaimLease,
		workers:      workers,
	}
}

// Start 启动若干 worker 轮询 outbox；返回停止函数，停止时等待进行中的一轮结束。
func (w *IndexRepairWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(stop)
	}
	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		done := make(chan struct{})
		go func() {
			w.wg.Wait()
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

func (w *IndexRepairWorker) loop(stop <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(context.Background()); err != nil {
				logger.Warn("index repair pass failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce 认领一批 pending（含租约过期的 processing）记录并重放，返回成功修复的条数。
// 状态回写失败的记录留在 processing，租约过期后由后续轮次重新认领。
func (w *IndexRepairWorker) ProcessOnce(ctx context.Context) (int, error) {
	staleBefore := time.Now().UTC().Add(-w.lease)
	batch, err := w.outbox.ListPending(ctx, w.batchSize, staleBefore)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, item := range batch {
		claimed, err := w.outbox.Claim(ctx, item.ID, staleBefore)
		if err != nil {
			return repaired, err
		}
		if !claimed {
			continue
		}
		if err := w.repair(ctx, item); err != nil {
			attempts := item.Attempts + 1
			failed := attempts >= w.maxAttempts
			logger.Warn("index repair failed",
				zap.String("connection", item.ConnectionID), zap.Int("attempts", attempts),
				zap.Bool("gave_up", failed), zap.Error(err))
			if mErr := w.outbox.MarkRetry(ctx, item.ID, attempts, err.Error(), failed); mErr != nil {
				logger.Warn("index outbox mark retry failed", zap.String("id", item.ID), zap.Error(mErr))
			}
			continue
		}
		if err := w.outbox.MarkDone(ctx, item.ID); err != nil {
			logger.Warn("index outbox mark done failed", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		repaired++
	}
	return repaired, nil
}

func (w *IndexRepairWorker) repair(ctx context.Context, item *model.IndexOutbox) error {
	c, err := w.conns.GetByID(ctx, item.ConnectionID)
	if errors.Is(err, repository.ErrNotFound) {
		gone := &model.Connection{ID: item.ConnectionID, StudentID: item.StudentID, TeacherID: item.TeacherID}
		return w.applier.apply(ctx, model.IndexOpDelete, gone)
	}
	if err != nil {
		return err
	}
	return w.applier.apply(ctx, model.IndexOpUpdate, c)
}
