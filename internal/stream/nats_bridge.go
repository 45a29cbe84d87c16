package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

type envelope struct {
	Origin string      `json:"origin"`
	Post   *model.Post `json:"post"`
}

// NATSBridge 多实例部署时经 NATS 互相转发新帖；本地发布直接进本地 Hub，
// 收到的远端消息按 origin 过滤掉自己发出的那份。
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	origin  string
	hub     *Hub
	sub     *nats.Subscription
}

func NewNATSBridge(nc *nats.Conn, subject string, hub *Hub) *NATSBridge {
	return &NATSBridge{nc: nc, subject: subject, origin: uuid.New().String(), hub: hub}
}

// Start 订阅远端消息
func (b *NATSBridge) Start() error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) { b.handle(msg.Data) })
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}
	b.sub = sub
	return nil
}

// Publish 实现 service.Broadcaster
func (b *NATSBridge) Publish(ctx context.Context, post *model.Post) error {
	if err := b.hub.Publish(ctx, post); err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Origin: b.origin, Post: post})
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATSBridge) handle(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn("decode stream envelope failed", zap.Error(err))
		return
	}
	if env.Origin == b.origin || env.Post == nil {
		return
	}
	restoreRefs(env.Post)
	if err := b.hub.Publish(context.Background(), env.Post); err != nil {
		logger.Warn("relay remote post failed", zap.String("post", env.Post.ID), zap.Error(err))
	}
}

// restoreRefs 恢复不参与序列化的字段：回复/转发对象作者取自嵌套帖子，search_text 由正文重算
func restoreRefs(p *model.Post) {
	if p.SearchText == "" {
		p.SearchText = model.SearchTextOf(p.Text)
	}
	if p.ReplyUser == nil && p.Reply != nil {
		p.ReplyUser = p.Reply.User
	}
	if p.RenoteUser == nil && p.Renote != nil {
		p.RenoteUser = p.Renote.User
	}
}

func (b *NATSBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}
