package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

// ExpirySweeper 定期删除过期帖子；缓存里残留的 id 在读路径装配时被跳过
type ExpirySweeper struct {
	posts    repository.PostRepository
	interval time.Duration
	now      func() time.Time
}

func NewExpirySweeper(posts repository.PostRepository, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{posts: posts, interval: interval, now: time.Now}
}

// Sweep 执行一次，返回删除条数
func (s *ExpirySweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.posts.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("deleted expired posts", zap.Int64("count", n))
	} else {
		logger.Debug("no expired posts found")
	}
	return n, nil
}

// Start 启动后台循环；单次失败只记录日志，下个周期重试
func (s *ExpirySweeper) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					logger.Error("expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()
	return func(stopCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}
