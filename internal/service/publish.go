package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-fanout/internal/idgen"
	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

var ErrReferenceNotFound = errors.New("replied or renoted post not found")

// Broadcaster 帖子创建事件的广播
type Broadcaster interface {
	Publish(ctx context.Context, post *model.Post) error
}

// NewPost 发帖输入
type NewPost struct {
	AuthorID       string
	Text           *string
	Visibility     model.Visibility
	VisibleUserIDs []string
	ChannelID      *string
	ReplyID        *string
	RenoteID       *string
	FileIDs        []string
	HasPoll        bool
	ExpiresAt      *time.Time
}

// Publisher 负责事务内写 posts + outbox，提交后广播
type Publisher struct {
	db          *gorm.DB
	ids         *idgen.Generator
	posts       repository.PostRepository
	broadcaster Broadcaster
}

func NewPublisher(db *gorm.DB, ids *idgen.Generator, posts repository.PostRepository, broadcaster Broadcaster) *Publisher {
	return &Publisher{db: db, ids: ids, posts: posts, broadcaster: broadcaster}
}

// Publish 在一个事务内落地 Post 与 Outbox 事件
func (p *Publisher) Publish(ctx context.Context, in NewPost) (*model.Post, error) {
	now := time.Now().UTC()
	post := &model.Post{
		ID:             p.ids.Generate(now),
		UserID:         in.AuthorID,
		Visibility:     in.Visibility,
		VisibleUserIDs: in.VisibleUserIDs,
		ChannelID:      in.ChannelID,
		ReplyID:        in.ReplyID,
		RenoteID:       in.RenoteID,
		Text:           in.Text,
		FileIDs:        in.FileIDs,
		HasPoll:        in.HasPoll,
		ExpiresAt:      in.ExpiresAt,
		CreatedAt:      now,
	}
	if post.Visibility == "" {
		post.Visibility = model.VisibilityPublic
	}
	if in.ExpiresAt != nil {
		at := in.ExpiresAt.UTC()
		post.ExpiresAt = &at
	}
	post.SearchText = model.SearchTextOf(in.Text)

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var author model.User
		if err := tx.Where("id = ?", in.AuthorID).First(&author).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrUserNotFound
			}
			return err
		}
		post.UserHost = author.Host

		if in.ReplyID != nil {
			var reply model.Post
			if err := tx.Select("id", "user_id").Where("id = ?", *in.ReplyID).First(&reply).Error; err != nil {
				return referenceErr(err)
			}
			post.ReplyUserID = &reply.UserID
		}
		if in.RenoteID != nil {
			var renote model.Post
			if err := tx.Select("id", "user_id", "user_host").Where("id = ?", *in.RenoteID).First(&renote).Error; err != nil {
				return referenceErr(err)
			}
			post.RenoteUserID = &renote.UserID
			post.RenoteUserHost = renote.UserHost
		}

		if err := repository.NewPostRepository(tx).Create(ctx, post); err != nil {
			return err
		}
		out := &model.Outbox{ID: uuid.New().String(), PostID: post.ID, AuthorID: post.UserID, CreatedAt: now, Status: model.OutboxPending}
		return tx.Create(out).Error
	})
	if err != nil {
		return nil, err
	}

	hydrated, err := p.posts.FindByIDs(ctx, []string{post.ID})
	if err != nil || len(hydrated) == 0 {
		logger.Warn("reload published post failed", zap.String("post", post.ID), zap.Error(err))
		return post, nil
	}
	if p.broadcaster != nil {
		if err := p.broadcaster.Publish(ctx, hydrated[0]); err != nil {
			logger.Warn("broadcast post failed", zap.String("post", post.ID), zap.Error(err))
		}
	}
	return hydrated[0], nil
}

func referenceErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrReferenceNotFound
	}
	return fmt.Errorf("load reference: %w", err)
}
