package repository

import (
    "context"

    "github.com/google/uuid"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/d60-Lab/timeline-fanout/internal/model"
)

type FollowRepository interface {
    Create(ctx context.Context, followerID, followeeID string) error
    ListFolloweeIDs(ctx context.Context, followerID string) ([]string, error)
    ListFollowerIDs(ctx context.Context, followeeID string) ([]string, error)
    ListFollowers(ctx context.Context, followeeID, afterID string, limit int) ([]*model.Follow, error)
}

type followRepository struct {
    db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) Create(ctx context.Context, followerID, followeeID string) error {
    f := &model.Follow{ID: uuid.New().String(), FollowerID: followerID, FolloweeID: followeeID}
    // 幂等：重复关注不报错
    return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
}

// ListFolloweeIDs 我关注的人
func (r *followRepository) ListFolloweeIDs(ctx context.Context, followerID string) ([]string, error) {
    var ids []string
    err := r.db.WithContext(ctx).Model(&model.Follow{}).
        Where("follower_id = ?", followerID).
        Pluck("followee_id", &ids).Error
    return ids, err
}

// ListFollowerIDs 关注我的人
func (r *followRepository) ListFollowerIDs(ctx context.Context, followeeID string) ([]string, error) {
    var ids []string
    err := r.db.WithContext(ctx).Model(&model.Follow{}).
        Where("followee_id = ?", followeeID).
        Pluck("follower_id", &ids).Error
    return ids, err
}

// ListFollowers 按 id 游标分页取粉丝（fan-out 用）；afterID 为空从头开始
func (r *followRepository) ListFollowers(ctx context.Context, followeeID, afterID string, limit int) ([]*model.Follow, error) {
    q := r.db.WithContext(ctx).Where("followee_id = ?", followeeID)
    if afterID != "" {
        q = q.Where("id > ?", afterID)
    }
    var res []*model.Follow
    err := q.Order("id").Limit(limit).Find(&res).Error
    return res, err
}
