package model

import "time"

// User 用户（仅时间线过滤所需字段）
type User struct {
    ID       string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
    Username string  `gorm:"type:varchar(64);index" json:"username"`
    Host     *string `gorm:"type:varchar(128)" json:"host"`
    // Role 决定策略，见 config.PoliciesConfig
    Role                        string `gorm:"type:varchar(32)" json:"-"`
    RequireSigninToViewContents bool   `gorm:"not null;default:false" json:"requireSigninToViewContents"`
    // 屏蔽词：每组内关键字须同时出现
    MutedWords     [][]string `gorm:"serializer:json;type:text" json:"-"`
    MutedInstances []string   `gorm:"serializer:json;type:text" json:"-"`
    CreatedAt      time.Time  `json:"-"`
    UpdatedAt      time.Time  `json:"-"`
}

func (User) TableName() string { return "users" }
