package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tutorlink/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// ConnectionRepository 连接主表（权威记录）
type ConnectionRepository interface {
	// Create 条件插入；同一对已有活跃记录时返回 false 且不写入
	Create(ctx context.Context, c *model.Connection) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Connection, error)
	// GetByIDs 一次 IN 查询批量取主记录，不存在的 id 直接缺席
	GetByIDs(ctx context.Context, ids []string) ([]*model.Connection, error)
	FindActiveByPair(ctx context.Context, studentID, teacherID string) (*model.Connection, error)
	// ListByParty 按 student_id 或 teacher_id 查询，created_at 倒序
	ListByParty(ctx context.Context, role model.Role, userID string, status model.ConnectionStatus) ([]*model.Connection, error)
	// UpdateStatus 以 c.Status 为期望旧值做 CAS 更新，旧值已变化时返回 false
	UpdateStatus(ctx context.Context, c *model.Connection, to model.ConnectionStatus, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type connectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository { return &connectionRepository{db: db} }

func (r *connectionRepository) Create(ctx context.Context, c *model.Connection) (bool, error) {
	c.ActivePair = model.ActivePairKey(c.StudentID, c.TeacherID, c.Status)
	// ux_conn_active_pair 冲突时不写入，由调用方读回已有记录
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *connectionRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Connection, error) {
	if len(ids) == 0 {
		return []*model.Connection{}, nil
	}
	var res []*model.Connection
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

func (r *connectionRepository) FindActiveByPair(ctx context.Context, studentID, teacherID string) (*model.Connection, error) {
	var c model.Connection
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND teacher_id = ?", studentID, teacherID).
		Where("status IN ?", []model.ConnectionStatus{model.ConnectionStatusPending, model.ConnectionStatusAccepted}).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *connectionRepository) ListByParty(ctx context.Context, role model.Role, userID string, status model.ConnectionStatus) ([]*model.Connection, error) {
	column := "student_id"
	if role == model.RoleTeacher {
		column = "teacher_id"
	}
	q := r.db.WithContext(ctx).Where(column+" = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var res []*model.Connection
	err := q.Order("created_at DESC").Find(&res).Error
	return res, err
}

func (r *connectionRepository) UpdateStatus(ctx context.Context, c *model.Connection, to model.ConnectionStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Connection{}).
		Where("id = ? AND status = ?", c.ID, c.Status).
		Updates(map[string]any{
			"status":      to,
			"updated_at":  at,
			"active_pair": model.ActivePairKey(c.StudentID, c.TeacherID, to),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *connectionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Connection{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
