package repository

import (
    "context"
    "errors"

    "gorm.io/gorm"

    "github.com/d60-Lab/timeline-fanout/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
    Get(ctx context.Context, id string) (*model.User, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
    var u model.User
    err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return nil, ErrUserNotFound
    }
    if err != nil {
        return nil, err
    }
    return &u, nil
}
