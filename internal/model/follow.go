package model

import "time"

// Follow FollowerID 关注了 FolloweeID。
// 双向各一行即互关；fan-out 按 followee_id 分页取粉丝。
type Follow struct {
    ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
    FollowerID string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_follow_pair,priority:1" json:"followerId"`
    FolloweeID string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_follow_pair,priority:2;index:idx_follow_followee,priority:1" json:"followeeId"`
    CreatedAt  time.Time `json:"createdAt"`
}

func (Follow) TableName() string { return "follows" }
