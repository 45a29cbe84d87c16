// Package stream delivers newly created posts to live subscribers.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

var ErrHubClosed = errors.New("hub closed")

// Handler receives posts in publication order. The post is shared between
// subscribers and must not be mutated.
type Handler func(post *model.Post)

// Token identifies a subscription.
type Token string

type subscriber struct {
	ch      chan *model.Post
	done    chan struct{}
	handler Handler
	once    sync.Once
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case p := <-s.ch:
			s.handler(p)
		}
	}
}

// Hub 进程内的帖子创建广播。每个订阅者一个有界队列和一个 goroutine，
// 慢订阅者只会丢自己的消息，不影响分发和其他订阅者。
type Hub struct {
	mu        sync.RWMutex
	subs      map[Token]*subscriber
	queueSize int
	closed    bool
}

func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{subs: make(map[Token]*subscriber), queueSize: queueSize}
}

// Publish 非阻塞分发
func (h *Hub) Publish(_ context.Context, post *model.Post) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	for token, s := range h.subs {
		select {
		case s.ch <- post:
		default:
			logger.Warn("subscriber queue full, drop post", zap.String("token", string(token)), zap.String("post", post.ID))
		}
	}
	return nil
}

func (h *Hub) Subscribe(handler Handler) (Token, error) {
	s := &subscriber{ch: make(chan *model.Post, h.queueSize), done: make(chan struct{}), handler: handler}
	token := Token(uuid.New().String())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	h.subs[token] = s
	h.mu.Unlock()

	go s.run()
	return token, nil
}

// Unsubscribe 可重复调用
func (h *Hub) Unsubscribe(token Token) {
	h.mu.Lock()
	s, ok := h.subs[token]
	delete(h.subs, token)
	h.mu.Unlock()
	if ok {
		s.stop()
	}
}

// Len 当前订阅数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Token]*subscriber)
	h.closed = true
	h.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}
