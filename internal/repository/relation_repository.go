package repository

import (
    "context"

    "gorm.io/gorm"

    "github.com/d60-Lab/timeline-fanout/internal/model"
)

// RelationRepository 屏蔽 / 拉黑关系（只读；写路径不在本服务）
type RelationRepository interface {
    ListMutedIDs(ctx context.Context, muterID string) ([]string, error)
    ListRenoteMutedIDs(ctx context.Context, muterID string) ([]string, error)
    // ListBlockRelatedIDs 我拉黑的人 ∪ 拉黑我的人
    ListBlockRelatedIDs(ctx context.Context, userID string) ([]string, error)
}

type relationRepository struct{ db *gorm.DB }

func NewRelationRepository(db *gorm.DB) RelationRepository { return &relationRepository{db: db} }

func (r *relationRepository) ListMutedIDs(ctx context.Context, muterID string) ([]string, error) {
    var ids []string
    err := r.db.WithContext(ctx).Model(&model.Muting{}).Where("muter_id = ?", muterID).Pluck("mutee_id", &ids).Error
    return ids, err
}

func (r *relationRepository) ListRenoteMutedIDs(ctx context.Context, muterID string) ([]string, error) {
    var ids []string
    err := r.db.WithContext(ctx).Model(&model.RenoteMuting{}).Where("muter_id = ?", muterID).Pluck("mutee_id", &ids).Error
    return ids, err
}

func (r *relationRepository) ListBlockRelatedIDs(ctx context.Context, userID string) ([]string, error) {
    var blocking, blockedBy []string
    if err := r.db.WithContext(ctx).Model(&model.Blocking{}).Where("blocker_id = ?", userID).Pluck("blockee_id", &blocking).Error; err != nil {
        return nil, err
    }
    if err := r.db.WithContext(ctx).Model(&model.Blocking{}).Where("blockee_id = ?", userID).Pluck("blocker_id", &blockedBy).Error; err != nil {
        return nil, err
    }
    return append(blocking, blockedBy...), nil
}
