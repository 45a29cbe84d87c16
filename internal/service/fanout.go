package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/timeline-fanout/internal/cache"
	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

// FanoutWorker 从 outbox 拉取事件，把帖子 id 写入作者及其粉丝的首页时间线缓存
type FanoutWorker struct {
	db           *gorm.DB
	follows      repository.FollowRepository
	cache        *cache.FanoutCache
	batchSize    int
	claimLimit   int
	pollInterval time.Duration
	lease        time.Duration
	workers      int
	now          func() time.Time
	metricsCh    chan time.Duration // outbox->processed latency
}

func NewFanoutWorker(db *gorm.DB, follows repository.FollowRepository, c *cache.FanoutCache, workers, batchSize, claimLimit int, pollInterval time.Duration) *FanoutWorker {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if claimLimit <= 0 {
		claimLimit = 128
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &FanoutWorker{
		db: db, follows: follows, cache: c,
		workers: workers, batchSize: batchSize, claimLimit: claimLimit, pollInterval: pollInterval,
		lease: 2 * time.Minute, now: time.Now,
		metricsCh: make(chan time.Duration, 65536),
	}
}

// WithLease 设置 processing 租约；应明显长于一批扇出的耗时
func (w *FanoutWorker) WithLease(d time.Duration) *FanoutWorker {
	if d > 0 {
		w.lease = d
	}
	return w
}

func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动若干 worker 轮询处理 outbox；返回停止函数。
// 停止时正在扇出的帖子会做完，批次里剩下的退回 pending。停止函数可重复调用。
func (w *FanoutWorker) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var once sync.Once
	return func(stopCtx context.Context) error {
		once.Do(cancel)
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (w *FanoutWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("fanout poll failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce 先回收租约过期的 processing 行，再 claim 一批 pending outbox 并扇出，返回处理条数。
// ctx 取消后不再开始新的帖子，未处理的行退回 pending。
func (w *FanoutWorker) ProcessOnce(ctx context.Context) (int, error) {
	if err := w.requeueExpired(ctx); err != nil {
		return 0, err
	}

	var batch []model.Outbox
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ?", model.OutboxPending).Order("created_at, post_id").Limit(w.claimLimit)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.Outbox{}).Where("id IN ?", ids).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": w.now().UTC()}).Error
	})
	if err != nil || len(batch) == 0 {
		return 0, err
	}

	// 单条帖子的扇出不受 ctx 取消影响，避免只写了一部分粉丝
	work := context.WithoutCancel(ctx)
	for i, b := range batch {
		if ctx.Err() != nil {
			w.release(work, batch[i:])
			return i, nil
		}
		written := w.fanout(work, b)
		now := w.now().UTC()
		if err := w.db.WithContext(work).Model(&model.Outbox{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{"status": model.OutboxDone, "processed_at": now, "fanout_count": written}).Error; err != nil {
			logger.Warn("mark outbox done failed", zap.String("outbox", b.ID), zap.Error(err))
		}
		if !b.CreatedAt.IsZero() {
			select {
			case w.metricsCh <- time.Since(b.CreatedAt):
			default:
			}
		}
	}
	return len(batch), nil
}

// requeueExpired 把租约过期（或没有租约）的 processing 行退回 pending。
// 重复扇出是幂等的，漏扇出会让缓存在 floor 以上留下空洞。
func (w *FanoutWorker) requeueExpired(ctx context.Context) error {
	cutoff := w.now().UTC().Add(-w.lease)
	res := w.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("status = ? AND (claimed_at IS NULL OR claimed_at < ?)", model.OutboxProcessing, cutoff).
		Updates(map[string]any{"status": model.OutboxPending, "claimed_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		logger.Warn("requeued stale outbox claims", zap.Int64("count", res.RowsAffected), zap.Duration("lease", w.lease))
	}
	return nil
}

// release 停止时把尚未处理的行退回 pending
func (w *FanoutWorker) release(ctx context.Context, rest []model.Outbox) {
	ids := make([]string, len(rest))
	for i, b := range rest {
		ids[i] = b.ID
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id IN ? AND status = ?", ids, model.OutboxProcessing).
		Updates(map[string]any{"status": model.OutboxPending, "claimed_at": nil}).Error; err != nil {
		// 租约过期后仍会被回收
		logger.Warn("release outbox claims failed", zap.Int("count", len(ids)), zap.Error(err))
	}
}

// fanout 写作者本人及全部粉丝；频道帖子不进首页时间线
func (w *FanoutWorker) fanout(ctx context.Context, b model.Outbox) int64 {
	var post model.Post
	if err := w.db.WithContext(ctx).Select("id", "user_id", "channel_id", "file_ids").Where("id = ?", b.PostID).First(&post).Error; err != nil {
		// 帖子已被删除（过期等），无需扇出
		logger.Debug("fanout post missing", zap.String("post", b.PostID), zap.Error(err))
		return 0
	}
	if post.ChannelID != nil {
		return 0
	}

	written := int64(0)
	if w.push(ctx, post.UserID, &post) {
		written++
	}
	after := ""
	for {
		fans, err := w.follows.ListFollowers(ctx, post.UserID, after, w.batchSize)
		if err != nil {
			logger.Warn("list followers failed", zap.String("user", post.UserID), zap.Error(err))
			break
		}
		for _, f := range fans {
			if w.push(ctx, f.FollowerID, &post) {
				written++
			}
		}
		if len(fans) < w.batchSize {
			break
		}
		after = fans[len(fans)-1].ID
	}
	return written
}

// push 写失败时删除该用户的缓存，避免留下空洞却被当作完整
func (w *FanoutWorker) push(ctx context.Context, userID string, post *model.Post) bool {
	keys := []string{cache.HomeTimelineKey(userID)}
	if post.HasFiles() {
		keys = append(keys, cache.HomeTimelineWithFilesKey(userID))
	}
	for _, key := range keys {
		if err := w.cache.Push(ctx, key, post.ID); err != nil {
			logger.Warn("fanout push failed, invalidating", zap.String("key", key), zap.Error(err))
			_ = w.cache.Invalidate(ctx, keys...)
			return false
		}
	}
	return true
}
