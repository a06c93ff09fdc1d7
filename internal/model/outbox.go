package model

import "time"

// IndexOp 用户索引变更类型
type IndexOp string

const (
	IndexOpCreate IndexOp = "create"
	IndexOpUpdate IndexOp = "update"
	IndexOpDelete IndexOp = "delete"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusDone       = "done"
	OutboxStatusFailed     = "failed"
)

// IndexOutbox 写入失败或被丢弃的索引变更，由 IndexRepairWorker 重放
type IndexOutbox struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	ConnectionID string    `gorm:"type:varchar(36);index"`
	StudentID    string    `gorm:"type:varchar(128)"`
	TeacherID    string    `gorm:"type:varchar(128)"`
	Op           IndexOp   `gorm:"type:varchar(16)"`
	Status       string    `gorm:"type:varchar(16);index:idx_outbox_status_created"` // pending, processing, done, failed
	Attempts     int       `gorm:"not null;default:0"`
	LastError    string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index:idx_outbox_status_created"`
	ClaimedAt    *time.Time // 最近一次认领时间，超过租约仍在 processing 的记录可被重新认领
	ProcessedAt  *time.Time
}

func (IndexOutbox) TableName() string { return "index_outbox" }
