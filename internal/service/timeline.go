package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/internal/cache"
	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/internal/visibility"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

var ErrStorageUnavailable = errors.New("storage unavailable")

var tracer = otel.Tracer("github.com/d60-Lab/timeline-fanout/internal/service")

// TimelineQuery 一次时间线读取
type TimelineQuery struct {
	Viewer *visibility.Viewer
	// Rules 同时用于缓存结果过滤和回源 SQL
	Rules        visibility.Set
	CacheKeys    []string
	SinceID      string
	UntilID      string
	Limit        int
	AllowPartial bool
}

func (q TimelineQuery) ascending() bool { return q.SinceID != "" && q.UntilID == "" }

// TimelineResult Posts 严格按 id 降序、无重复
type TimelineResult struct {
	Posts   []*model.Post
	Partial bool
}

// FanoutTimelineService 先读 fan-out 缓存，不够再回源数据库
type FanoutTimelineService struct {
	cache           *cache.FanoutCache
	posts           repository.PostRepository
	dbFallback      bool
	fallbackTimeout time.Duration
}

func NewFanoutTimelineService(c *cache.FanoutCache, posts repository.PostRepository, dbFallback bool, fallbackTimeout time.Duration) *FanoutTimelineService {
	if fallbackTimeout <= 0 {
		fallbackTimeout = 3 * time.Second
	}
	return &FanoutTimelineService{cache: c, posts: posts, dbFallback: dbFallback, fallbackTimeout: fallbackTimeout}
}

func (s *FanoutTimelineService) Timeline(ctx context.Context, q TimelineQuery) (TimelineResult, error) {
	ctx, span := tracer.Start(ctx, "FanoutTimelineService.Timeline")
	defer span.End()
	span.SetAttributes(attribute.Int("timeline.limit", q.Limit), attribute.StringSlice("timeline.keys", q.CacheKeys))

	if q.Limit <= 0 {
		return TimelineResult{Posts: []*model.Post{}}, nil
	}

	cached, floor := s.fromCache(ctx, q)
	span.SetAttributes(attribute.Int("timeline.cached", len(cached)), attribute.Bool("timeline.floor_known", floor != ""))

	if complete(q, cached, floor) {
		span.SetAttributes(attribute.String("timeline.source", "cache"))
		return TimelineResult{Posts: pick(cached, q.Limit, q.ascending())}, nil
	}
	if q.AllowPartial && len(cached) >= q.Limit {
		span.SetAttributes(attribute.String("timeline.source", "cache_partial"))
		return TimelineResult{Posts: pick(cached, q.Limit, q.ascending()), Partial: true}, nil
	}
	if !s.dbFallback {
		return TimelineResult{Posts: pick(cached, q.Limit, q.ascending()), Partial: true}, nil
	}

	fetched, err := s.fallback(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback failed")
		if q.AllowPartial && len(cached) > 0 {
			logger.Warn("timeline fallback failed, serving cache", zap.Error(err), zap.Int("cached", len(cached)))
			return TimelineResult{Posts: pick(cached, q.Limit, q.ascending()), Partial: true}, nil
		}
		return TimelineResult{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	span.SetAttributes(attribute.String("timeline.source", "db"), attribute.Int("timeline.fetched", len(fetched)))

	merged := filter(q, merge(cached, fetched))
	return TimelineResult{Posts: pick(merged, q.Limit, q.ascending())}, nil
}

// fromCache 读缓存、装配、过滤；缓存不可用时视为空且完整性未知
func (s *FanoutTimelineService) fromCache(ctx context.Context, q TimelineQuery) ([]*model.Post, string) {
	if s.cache == nil || len(q.CacheKeys) == 0 {
		return nil, ""
	}
	ctx, span := tracer.Start(ctx, "FanoutCache.FetchMerged")
	defer span.End()

	r, err := s.cache.FetchMerged(ctx, q.CacheKeys, q.SinceID, q.UntilID, s.cache.MaxLen())
	if err != nil {
		span.RecordError(err)
		logger.Warn("fanout cache read failed", zap.Error(err), zap.Strings("keys", q.CacheKeys))
		return nil, ""
	}
	if len(r.IDs) == 0 {
		return nil, r.Floor
	}

	posts, err := s.posts.FindByIDs(ctx, r.IDs)
	if err != nil {
		// 装配失败与缓存失效同等对待，交给回源
		logger.Warn("hydrate cached ids failed", zap.Error(err))
		return nil, ""
	}
	return filter(q, posts), r.Floor
}

func (s *FanoutTimelineService) fallback(ctx context.Context, q TimelineQuery) ([]*model.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fallbackTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "PostRepository.RangeFetch")
	defer span.End()

	return s.posts.RangeFetch(ctx, repository.RangeQuery{
		Viewer:  q.Viewer,
		Rules:   q.Rules,
		SinceID: q.SinceID,
		UntilID: q.UntilID,
		Limit:   q.Limit,
	})
}

// complete 缓存结果是否已经是最终答案。floor 以上（含）的 id 在缓存中是完整的：
// 降序读取时第 limit 条不低于 floor 即可；或者整个窗口（sinceID 之后）都在 floor 以上。
func complete(q TimelineQuery, cached []*model.Post, floor string) bool {
	if floor == "" {
		return false
	}
	if q.SinceID != "" && q.SinceID >= floor {
		return true
	}
	return !q.ascending() && len(cached) >= q.Limit && cached[q.Limit-1].ID >= floor
}

// filter 过滤帖子，并去掉看不到的回复/转发对象
func filter(q TimelineQuery, posts []*model.Post) []*model.Post {
	out := make([]*model.Post, 0, len(posts))
	for _, p := range posts {
		if q.SinceID != "" && p.ID <= q.SinceID {
			continue
		}
		if q.UntilID != "" && p.ID >= q.UntilID {
			continue
		}
		if q.Rules.Allow(q.Viewer, p) {
			out = append(out, visibility.Redact(q.Viewer, p))
		}
	}
	return out
}

// merge 去重后按 id 降序
func merge(lists ...[]*model.Post) []*model.Post {
	seen := make(map[string]struct{})
	var out []*model.Post
	for _, list := range lists {
		for _, p := range list {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// pick 从降序列表里取 limit 条；只给 sinceID 时取最靠近游标的（最旧的）那些
func pick(desc []*model.Post, limit int, ascending bool) []*model.Post {
	if len(desc) <= limit {
		return append([]*model.Post{}, desc...)
	}
	if ascending {
		return append([]*model.Post{}, desc[len(desc)-limit:]...)
	}
	return append([]*model.Post{}, desc[:limit]...)
}
