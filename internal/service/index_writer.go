package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

// IndexWriter 维护用户索引（user_connections），每种主表变更对应一个方法。
//
// 写入是 best-effort 的：失败只记录日志（并尽量写入 outbox 等待修复），
// 永远不会阻塞调用方或让已经成功的主表写入失败。
type IndexWriter interface {
	ConnectionCreated(ctx context.Context, c *model.Connection)
	ConnectionUpdated(ctx context.Context, c *model.Connection)
	ConnectionDeleted(ctx context.Context, c *model.Connection)
}

// indexApplier 把一次主表变更落到两条镜像上
type indexApplier struct {
	index repository.UserConnectionRepository
}

func (a indexApplier) apply(ctx context.Context, op model.IndexOp, c *model.Connection) error {
	switch op {
	case model.IndexOpCreate, model.IndexOpUpdate:
		return a.index.Upsert(ctx, c.Mirrors())
	case model.IndexOpDelete:
		return a.index.DeleteByConnection(ctx, c.ID, c.StudentID, c.TeacherID)
	default:
		return fmt.Errorf("unknown index op %q", op)
	}
}

func recordOutbox(ctx context.Context, outbox repository.OutboxRepository, c *model.Connection, op model.IndexOp, cause error) {
	if outbox == nil {
		return
	}
	if err := outbox.Enqueue(ctx, c, op, cause); err != nil {
		logger.Error("index outbox enqueue failed",
			zap.String("op", string(op)), zap.String("connection", c.ID), zap.Error(err))
	}
}

// SyncIndexWriter 在请求内同步写镜像
type SyncIndexWriter struct {
	applier indexApplier
	outbox  repository.OutboxRepository
	timeout time.Duration
}

// NewSyncIndexWriter outbox 可以为 nil（失败只记日志）
func NewSyncIndexWriter(index repository.UserConnectionRepository, outbox repository.OutboxRepository, timeout time.Duration) *SyncIndexWriter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SyncIndexWriter{applier: indexApplier{index: index}, outbox: outbox, timeout: timeout}
}

func (w *SyncIndexWriter) ConnectionCreated(ctx context.Context, c *model.Connection) {
	w.write(ctx, model.IndexOpCreate, c)
}

func (w *SyncIndexWriter) ConnectionUpdated(ctx context.Context, c *model.Connection) {
	w.write(ctx, model.IndexOpUpdate, c)
}

func (w *SyncIndexWriter) ConnectionDeleted(ctx context.Context, c *model.Connection) {
	w.write(ctx, model.IndexOpDelete, c)
}

func (w *SyncIndexWriter) write(ctx context.Context, op model.IndexOp, c *model.Connection) {
	// 主表已提交，客户端断开也要把镜像写完
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	if err := w.applier.apply(ctx, op, c); err != nil {
		logger.Warn("user index write failed",
			zap.String("op", string(op)), zap.String("connection", c.ID), zap.Error(err))
		recordOutbox(ctx, w.outbox, c, op, err)
	}
}
