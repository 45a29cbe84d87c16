package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/internal/service"
	"github.com/d60-Lab/timeline-fanout/internal/visibility"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

const MutualTimelineChannelName = "mutualTimeline"

var ErrChannelState = errors.New("channel already initialized or disposed")

const (
	stateUninitialized int32 = iota
	stateActive
	stateDisposed
)

// Sender 把一条事件写给客户端
type Sender func(eventType string, body any)

// ChannelDeps 频道依赖
type ChannelDeps struct {
	Hub       *Hub
	Viewers   *service.ViewerService
	Policies  *service.PolicyResolver
	Reactions repository.ReactionRepository
}

// ChannelParams 客户端参数，缺省值同读接口
type ChannelParams struct {
	WithFiles   *bool `json:"withFiles"`
	WithReplies *bool `json:"withReplies"`
	WithRenotes *bool `json:"withRenotes"`
}

func (p ChannelParams) options() service.FilterOptions {
	opts := service.DefaultFilterOptions()
	if p.WithFiles != nil {
		opts.WithFiles = *p.WithFiles
	}
	if p.WithReplies != nil {
		opts.WithReplies = *p.WithReplies
	}
	if p.WithRenotes != nil {
		opts.WithRenotes = *p.WithRenotes
	}
	return opts
}

// MutualTimelineChannel 互关时间线的实时推送。
// 关系快照在 Init 时取一次，之后的关注/屏蔽变化要等重连才生效。
type MutualTimelineChannel struct {
	id     string
	userID string
	deps   ChannelDeps
	send   Sender

	state  atomic.Int32
	viewer *visibility.Viewer
	rules  visibility.Set
	token  Token
}

func NewMutualTimelineChannel(id, userID string, deps ChannelDeps, send Sender) *MutualTimelineChannel {
	return &MutualTimelineChannel{id: id, userID: userID, deps: deps, send: send}
}

func (c *MutualTimelineChannel) ID() string { return c.id }

// Init 校验策略、取快照并订阅
func (c *MutualTimelineChannel) Init(ctx context.Context, params ChannelParams) error {
	if c.state.Load() != stateUninitialized {
		return ErrChannelState
	}
	user, viewer, err := c.deps.Viewers.Load(ctx, c.userID)
	if err != nil {
		return err
	}
	if err := c.deps.Policies.MutualTimeline(user); err != nil {
		return err
	}
	c.viewer = viewer
	c.rules = service.MutualRules(viewer, params.options())

	token, err := c.deps.Hub.Subscribe(c.onPost)
	if err != nil {
		return err
	}
	c.token = token
	if !c.state.CompareAndSwap(stateUninitialized, stateActive) {
		c.deps.Hub.Unsubscribe(token)
		return ErrChannelState
	}
	return nil
}

func (c *MutualTimelineChannel) onPost(post *model.Post) {
	if c.state.Load() != stateActive {
		return
	}
	if kind, rejected := c.rules.Rejects(c.viewer, post); rejected {
		logger.Debug("live post filtered", zap.String("post", post.ID), zap.Stringer("rule", kind))
		return
	}

	out := visibility.Redact(c.viewer, post)
	// 被转发帖子没有任何回应时不必查库
	if out.IsPureRenote() && out.Renote != nil && out.Renote.ReactionCount > 0 {
		enriched, err := c.withMyReaction(out)
		if err != nil {
			logger.Warn("enrich live post failed, skipped", zap.String("post", post.ID), zap.Error(err))
			return
		}
		out = enriched
	}
	c.send("note", out)
}

// withMyReaction 复制后填充自己对被转发帖子的回应，不修改共享事件
func (c *MutualTimelineChannel) withMyReaction(post *model.Post) (*model.Post, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reaction, err := c.deps.Reactions.FindReaction(ctx, c.viewer.ID, post.Renote.ID)
	if err != nil {
		return nil, err
	}
	renote := *post.Renote
	renote.MyReaction = reaction
	cp := *post
	cp.Renote = &renote
	return &cp, nil
}

// Dispose 取消订阅；可重复调用
func (c *MutualTimelineChannel) Dispose() {
	if c.state.Swap(stateDisposed) == stateActive {
		c.deps.Hub.Unsubscribe(c.token)
	}
}
