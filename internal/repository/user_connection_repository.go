package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tutorlink/internal/model"
)

// IndexFilter 用户索引查询条件
type IndexFilter struct {
	Role   model.Role
	Status model.ConnectionStatus
	// Ordered 为 true 时按 created_at 倒序（依赖 idx_uc_owner_created）
	Ordered bool
}

// UserConnectionRepository 按用户冗余的连接索引
type UserConnectionRepository interface {
	// Upsert 写入镜像；已存储的 updated_at 更新时忽略较旧的快照
	Upsert(ctx context.Context, entries []model.UserConnection) error
	DeleteByConnection(ctx context.Context, connectionID string, owners ...string) error
	ListByOwner(ctx context.Context, ownerID string, f IndexFilter) ([]*model.UserConnection, error)
}

type userConnectionRepository struct{ db *gorm.DB }

func NewUserConnectionRepository(db *gorm.DB) UserConnectionRepository {
	return &userConnectionRepository{db: db}
}

func (r *userConnectionRepository) Upsert(ctx context.Context, entries []model.UserConnection) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_user_id"}, {Name: "connection_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"student_id", "teacher_id", "role", "requested_by", "message", "status", "created_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "user_connections.updated_at <= excluded.updated_at"},
		}},
	}).Create(&entries).Error
}

func (r *userConnectionRepository) DeleteByConnection(ctx context.Context, connectionID string, owners ...string) error {
	q := r.db.WithContext(ctx).Where("connection_id = ?", connectionID)
	if len(owners) > 0 {
		q = q.Where("owner_user_id IN ?", owners)
	}
	return q.Delete(&model.UserConnection{}).Error
}

func (r *userConnectionRepository) ListByOwner(ctx context.Context, ownerID string, f IndexFilter) ([]*model.UserConnection, error) {
	q := r.db.WithContext(ctx).Where("owner_user_id = ?", ownerID)
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Ordered {
		q = q.Order("created_at DESC")
	}
	var res []*model.UserConnection
	err := q.Find(&res).Error
	return res, err
}
