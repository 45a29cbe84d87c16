package model

import (
    "strings"
    "time"
)

// Visibility 帖子可见范围
type Visibility string

const (
    VisibilityPublic    Visibility = "public"
    VisibilityHome      Visibility = "home"
    VisibilityFollowers Visibility = "followers"
    VisibilitySpecified Visibility = "specified"
)

// Post 帖子；回复/转发对象的作者 id、host 冗余在本表，便于时间线过滤
type Post struct {
    ID             string     `gorm:"primaryKey;type:varchar(16)" json:"id"`
    UserID         string     `gorm:"type:varchar(36);index:idx_post_user;not null" json:"userId"`
    UserHost       *string    `gorm:"type:varchar(128)" json:"userHost"`
    Visibility     Visibility `gorm:"type:varchar(16);not null" json:"visibility"`
    VisibleUserIDs IDList     `gorm:"type:text;not null;default:''" json:"visibleUserIds"`
    ChannelID      *string    `gorm:"type:varchar(36);index" json:"channelId"`
    ReplyID        *string    `gorm:"type:varchar(16)" json:"replyId"`
    ReplyUserID    *string    `gorm:"type:varchar(36)" json:"replyUserId"`
    RenoteID       *string    `gorm:"type:varchar(16)" json:"renoteId"`
    RenoteUserID   *string    `gorm:"type:varchar(36)" json:"renoteUserId"`
    RenoteUserHost *string    `gorm:"type:varchar(128)" json:"renoteUserHost"`
    Text           *string    `gorm:"type:text" json:"text"`
    // SearchText 小写化的 text，屏蔽词匹配在内存与 SQL 两侧都用它
    SearchText string     `gorm:"type:text;not null;default:''" json:"-"`
    FileIDs    IDList     `gorm:"type:text;not null;default:''" json:"fileIds"`
    HasPoll    bool       `gorm:"not null;default:false" json:"hasPoll"`
    ExpiresAt  *time.Time `gorm:"index" json:"expiresAt"`
    CreatedAt  time.Time  `json:"createdAt"`

    // ReactionCount 由 ReactionRepository.Add 维护
    ReactionCount int64 `gorm:"not null;default:0" json:"reactionCount"`

    User       *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
    ReplyUser  *User `gorm:"foreignKey:ReplyUserID" json:"-"`
    RenoteUser *User `gorm:"foreignKey:RenoteUserID" json:"-"`
    Reply      *Post `gorm:"foreignKey:ReplyID" json:"reply,omitempty"`
    Renote     *Post `gorm:"foreignKey:RenoteID" json:"renote,omitempty"`

    // MyReaction 仅推送/响应时填充
    MyReaction string `gorm:"-" json:"myReaction,omitempty"`
}

func (Post) TableName() string { return "posts" }

// IsPureRenote 无正文、无附件、无投票的转发
func (p *Post) IsPureRenote() bool {
    return p.RenoteID != nil && p.Text == nil && len(p.FileIDs) == 0 && !p.HasPoll
}

// IsQuote 带内容的转发
func (p *Post) IsQuote() bool {
    return p.RenoteID != nil && !p.IsPureRenote()
}

// HasFiles 是否带附件
func (p *Post) HasFiles() bool { return len(p.FileIDs) > 0 }

// SearchTextOf 屏蔽词匹配用的小写正文
func SearchTextOf(text *string) string {
    if text == nil {
        return ""
    }
    return strings.ToLower(*text)
}
