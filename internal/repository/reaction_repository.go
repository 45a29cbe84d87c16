package repository

import (
    "context"

    "github.com/google/uuid"
    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "github.com/d60-Lab/timeline-fanout/internal/model"
)

type ReactionRepository interface {
    // FindReaction 返回用户对帖子的回应，没有时为空串
    FindReaction(ctx context.Context, userID, postID string) (string, error)
    // Add 记录回应并累加帖子的 reaction_count；重复回应不计数
    Add(ctx context.Context, userID, postID, reaction string) error
}

type reactionRepository struct{ db *gorm.DB }

func NewReactionRepository(db *gorm.DB) ReactionRepository { return &reactionRepository{db: db} }

func (r *reactionRepository) FindReaction(ctx context.Context, userID, postID string) (string, error) {
    var rows []model.Reaction
    err := r.db.WithContext(ctx).
        Where("user_id = ? AND post_id = ?", userID, postID).
        Limit(1).
        Find(&rows).Error
    if err != nil || len(rows) == 0 {
        return "", err
    }
    return rows[0].Reaction, nil
}

func (r *reactionRepository) Add(ctx context.Context, userID, postID, reaction string) error {
    return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        row := &model.Reaction{ID: uuid.New().String(), UserID: userID, PostID: postID, Reaction: reaction}
        res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
        if res.Error != nil || res.RowsAffected == 0 {
            return res.Error
        }
        return tx.Model(&model.Post{}).Where("id = ?", postID).
            UpdateColumn("reaction_count", gorm.Expr("reaction_count + ?", 1)).Error
    })
}
