package repository

import (
    "context"
    "time"

    "gorm.io/gorm"

    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/visibility"
)

// RangeQuery 一次存储回源的区间查询
type RangeQuery struct {
    Viewer  *visibility.Viewer
    Rules   visibility.Set
    SinceID string
    UntilID string
    Limit   int
}

// Ascending 只有 sinceID 时取紧挨着游标的最旧 N 条，保证向前翻页不漏
func (q RangeQuery) Ascending() bool { return q.SinceID != "" && q.UntilID == "" }

type PostRepository interface {
    Create(ctx context.Context, post *model.Post) error
    // FindByIDs 按 id 批量取并装配关联；不存在的 id 直接跳过
    FindByIDs(ctx context.Context, ids []string) ([]*model.Post, error)
    // RangeFetch 返回满足规则的帖子，新到旧
    RangeFetch(ctx context.Context, q RangeQuery) ([]*model.Post, error)
    DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type postRepository struct {
    db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

// hydrate 预加载过滤与响应需要的关联
func hydrate(db *gorm.DB) *gorm.DB {
    return db.
        Preload("User").
        Preload("ReplyUser").
        Preload("RenoteUser").
        Preload("Reply").
        Preload("Reply.User").
        Preload("Renote").
        Preload("Renote.User")
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
    return r.db.WithContext(ctx).Omit("User", "ReplyUser", "RenoteUser", "Reply", "Renote").Create(post).Error
}

func (r *postRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Post, error) {
    if len(ids) == 0 {
        return nil, nil
    }
    var posts []*model.Post
    err := r.db.WithContext(ctx).
        Scopes(hydrate).
        Where("posts.id IN ?", ids).
        Order("posts.id DESC").
        Find(&posts).Error
    return posts, err
}

func (r *postRepository) RangeFetch(ctx context.Context, q RangeQuery) ([]*model.Post, error) {
    tx := r.db.WithContext(ctx).Model(&model.Post{}).Scopes(hydrate, q.Rules.Scope(q.Viewer))
    if q.SinceID != "" {
        tx = tx.Where("posts.id > ?", q.SinceID)
    }
    if q.UntilID != "" {
        tx = tx.Where("posts.id < ?", q.UntilID)
    }
    if q.Ascending() {
        tx = tx.Order("posts.id ASC")
    } else {
        tx = tx.Order("posts.id DESC")
    }
    if q.Limit > 0 {
        tx = tx.Limit(q.Limit)
    }

    var posts []*model.Post
    if err := tx.Find(&posts).Error; err != nil {
        return nil, err
    }
    if q.Ascending() {
        for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
            posts[i], posts[j] = posts[j], posts[i]
        }
    }
    return posts, nil
}

// DeleteExpired 删除已过期的帖子（一条语句，批量）
func (r *postRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
    res := r.db.WithContext(ctx).
        Where("expires_at IS NOT NULL AND expires_at <= ?", now).
        Delete(&model.Post{})
    return res.RowsAffected, res.Error
}
