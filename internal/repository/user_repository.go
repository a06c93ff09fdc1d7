package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/tutorlink/internal/model"
)

// UserRepository 用户资料（关系库实现）
type UserRepository interface {
	Save(ctx context.Context, users ...*model.User) error
	GetByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Save(ctx context.Context, users ...*model.User) error {
	if len(users) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&users).Error
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}
	var users []*model.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepository) FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	users, err := r.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Profile, len(users))
	for _, u := range users {
		out[u.ID] = u.Profile()
	}
	return out, nil
}
