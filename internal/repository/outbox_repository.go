package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/tutorlink/internal/model"
)

// OutboxRepository 索引变更 outbox
type OutboxRepository interface {
	Enqueue(ctx context.Context, c *model.Connection, op model.IndexOp, cause error) error
	// ListPending 返回 pending 记录，以及 claimed_at 早于 staleBefore 的 processing 记录（租约已过期）
	ListPending(ctx context.Context, limit int, staleBefore time.Time) ([]*model.IndexOutbox, error)
	// Claim pending（或租约过期的 processing）-> processing 并刷新 claimed_at，被其他 worker 抢先时返回 false
	Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, attempts int, lastErr string, failed bool) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type outboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Enqueue(ctx context.Context, c *model.Connection, op model.IndexOp, cause error) error {
	item := &model.IndexOutbox{
		ID:           uuid.New().String(),
		ConnectionID: c.ID,
		StudentID:    c.StudentID,
		TeacherID:    c.TeacherID,
		Op:           op,
		Status:       model.OutboxStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if cause != nil {
		item.LastError = cause.Error()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// claimable 可认领条件：pending，或 processing 但租约已过期
func (r *outboxRepository) claimable(db *gorm.DB, staleBefore time.Time) *gorm.DB {
	return db.Where(
		r.db.Where("status = ?", model.OutboxStatusPending).
			Or("status = ? AND (claimed_at IS NULL OR claimed_at < ?)", model.OutboxStatusProcessing, staleBefore),
	)
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int, staleBefore time.Time) ([]*model.IndexOutbox, error) {
	var res []*model.IndexOutbox
	err := r.claimable(r.db.WithContext(ctx), staleBefore).
		Order("created_at").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *outboxRepository) Claim(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res := r.claimable(r.db.WithContext(ctx).Model(&model.IndexOutbox{}).Where("id = ?", id), staleBefore).
		Updates(map[string]any{"status": model.OutboxStatusProcessing, "claimed_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&model.IndexOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxStatusDone, "processed_at": now}).Error
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id string, attempts int, lastErr string, failed bool) error {
	status := model.OutboxStatusPending
	if failed {
		status = model.OutboxStatusFailed
	}
	return r.db.WithContext(ctx).
		Model(&model.IndexOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "attempts": attempts, "last_error": lastErr}).Error
}

func (r *outboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.IndexOutbox{}).Where("status = ?", status).Count(&cnt).Error
	return cnt, err
}
