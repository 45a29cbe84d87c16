package model

import "time"

// Muting A 屏蔽 B 的帖子
type Muting struct {
    ID        string `gorm:"primaryKey;type:varchar(36)"`
    MuterID   string `gorm:"type:varchar(36);index:idx_muting_pair,unique;not null"`
    MuteeID   string `gorm:"type:varchar(36);index:idx_muting_pair,unique;not null"`
    CreatedAt time.Time
}

func (Muting) TableName() string { return "mutings" }

// RenoteMuting A 只屏蔽 B 的纯转发
type RenoteMuting struct {
    ID        string `gorm:"primaryKey;type:varchar(36)"`
    MuterID   string `gorm:"type:varchar(36);index:idx_renote_muting_pair,unique;not null"`
    MuteeID   string `gorm:"type:varchar(36);index:idx_renote_muting_pair,unique;not null"`
    CreatedAt time.Time
}

func (RenoteMuting) TableName() string { return "renote_mutings" }

// Blocking A 拉黑 B；双方互相不可见
type Blocking struct {
    ID        string `gorm:"primaryKey;type:varchar(36)"`
    BlockerID string `gorm:"type:varchar(36);index:idx_blocking_pair,unique;not null"`
    BlockeeID string `gorm:"type:varchar(36);index:idx_blocking_pair,unique;index;not null"`
    CreatedAt time.Time
}

func (Blocking) TableName() string { return "blockings" }

// Reaction 用户对帖子的回应
type Reaction struct {
    ID        string `gorm:"primaryKey;type:varchar(36)"`
    UserID    string `gorm:"type:varchar(36);index:idx_reaction_pair,unique;not null"`
    PostID    string `gorm:"type:varchar(16);index:idx_reaction_pair,unique;not null"`
    Reaction  string `gorm:"type:varchar(128);not null"`
    CreatedAt time.Time
}

func (Reaction) TableName() string { return "reactions" }
