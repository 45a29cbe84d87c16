package model

import "time"

const (
    OutboxPending    = "pending"
    OutboxProcessing = "processing"
    OutboxDone       = "done"
)

// Outbox 帖子创建事件外发盒，由 FanoutWorker 消费写入 fan-out 缓存
type Outbox struct {
    ID          string    `gorm:"primaryKey;type:varchar(36)"`
    PostID      string    `gorm:"type:varchar(16);uniqueIndex"`
    AuthorID    string    `gorm:"type:varchar(36);index:idx_outbox_author"`
    CreatedAt   time.Time `gorm:"index"`
    Status      string    `gorm:"type:varchar(16);index"` // pending, processing, done
    // ClaimedAt processing 状态的租约起点，超时后重新排队
    ClaimedAt   *time.Time
    ProcessedAt *time.Time
    FanoutCount int64
}

func (Outbox) TableName() string { return "outbox" }

// All 需要迁移的全部模型
func All() []any {
    return []any{&User{}, &Post{}, &Follow{}, &Muting{}, &RenoteMuting{}, &Blocking{}, &Reaction{}, &Outbox{}}
}
