package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-fanout/internal/cache"
	"github.com/d60-Lab/timeline-fanout/internal/idgen"
	"github.com/d60-Lab/timeline-fanout/internal/visibility"
	"github.com/d60-Lab/timeline-fanout/pkg/logger"
)

var (
	ErrInvalidParameters           = errors.New("invalid parameters")
	ErrBothWithRepliesAndWithFiles = fmt.Errorf("%w: specifying both withReplies and withFiles is not supported", ErrInvalidParameters)
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// FilterOptions 互关时间线的开关；读接口与实时频道共用
type FilterOptions struct {
	WithFiles             bool
	WithReplies           bool
	WithRenotes           bool
	IncludeMyRenotes      bool
	IncludeRenotedMyNotes bool
	IncludeLocalRenotes   bool
}

// DefaultFilterOptions 与接口参数默认值一致
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		WithRenotes:           true,
		IncludeMyRenotes:      true,
		IncludeRenotedMyNotes: true,
		IncludeLocalRenotes:   true,
	}
}

// MutualRules 互关时间线的规则集：基础可见性 + 非频道帖 + 作者限于自己和互关 + 各开关
func MutualRules(v *visibility.Viewer, opts FilterOptions) visibility.Set {
	var mutual visibility.IDSet
	if v != nil {
		mutual = v.Mutual
	}
	rules := []visibility.Rule{visibility.Of(visibility.NoChannel), visibility.Authors(mutual)}
	if opts.WithFiles {
		rules = append(rules, visibility.Of(visibility.WithFiles))
	}
	if !opts.WithReplies {
		rules = append(rules, visibility.Of(visibility.HideReplies))
	}
	if !opts.WithRenotes {
		rules = append(rules, visibility.Of(visibility.HideRenotes))
	}
	if !opts.IncludeMyRenotes {
		rules = append(rules, visibility.Of(visibility.HideMyRenotes))
	}
	if !opts.IncludeRenotedMyNotes {
		rules = append(rules, visibility.Of(visibility.HideRenotesOfMine))
	}
	if !opts.IncludeLocalRenotes {
		rules = append(rules, visibility.Of(visibility.HideLocalRenotes))
	}
	return visibility.Base().With(rules...)
}

// MutualCacheKeys 按 withFiles 选择缓存
func MutualCacheKeys(viewerID string, withFiles bool) []string {
	if withFiles {
		return []string{cache.HomeTimelineWithFilesKey(viewerID)}
	}
	return []string{cache.HomeTimelineKey(viewerID)}
}

// MutualTimelineParams 请求参数；指针字段区分“未传”与 false
type MutualTimelineParams struct {
	Limit                 *int   `json:"limit" binding:"omitempty,min=1,max=100" example:"10"`
	SinceID               string `json:"sinceId" binding:"omitempty,cursorid"`
	UntilID               string `json:"untilId" binding:"omitempty,cursorid"`
	SinceDate             *int64 `json:"sinceDate"`
	UntilDate             *int64 `json:"untilDate"`
	WithFiles             bool   `json:"withFiles"`
	WithReplies           *bool  `json:"withReplies"`
	WithRenotes           *bool  `json:"withRenotes"`
	IncludeMyRenotes      *bool  `json:"includeMyRenotes"`
	IncludeRenotedMyNotes *bool  `json:"includeRenotedMyNotes"`
	IncludeLocalRenotes   *bool  `json:"includeLocalRenotes"`
	AllowPartial          bool   `json:"allowPartial"`
}

// Options 把参数展开为过滤开关。withFiles 与显式给出的 withReplies 互斥。
func (p MutualTimelineParams) Options() (FilterOptions, error) {
	if p.WithFiles && p.WithReplies != nil {
		return FilterOptions{}, ErrBothWithRepliesAndWithFiles
	}
	opts := DefaultFilterOptions()
	opts.WithFiles = p.WithFiles
	setBool(&opts.WithReplies, p.WithReplies)
	setBool(&opts.WithRenotes, p.WithRenotes)
	setBool(&opts.IncludeMyRenotes, p.IncludeMyRenotes)
	setBool(&opts.IncludeRenotedMyNotes, p.IncludeRenotedMyNotes)
	setBool(&opts.IncludeLocalRenotes, p.IncludeLocalRenotes)
	return opts, nil
}

// Cursors 返回 (sinceID, untilID)；id 形式优先于日期形式
func (p MutualTimelineParams) Cursors() (string, string, error) {
	since, until := p.SinceID, p.UntilID
	for _, id := range []string{since, until} {
		if id != "" && !idgen.Valid(id) {
			return "", "", idgen.ErrMalformedIdentifier
		}
	}
	if since == "" && p.SinceDate != nil {
		since = idgen.FromUnixMilli(*p.SinceDate, idgen.Max)
	}
	if until == "" && p.UntilDate != nil {
		until = idgen.FromUnixMilli(*p.UntilDate, idgen.Min)
	}
	return since, until, nil
}

func (p MutualTimelineParams) limit() (int, error) {
	if p.Limit == nil {
		return DefaultLimit, nil
	}
	if *p.Limit < 1 || *p.Limit > MaxLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidParameters, MaxLimit)
	}
	return *p.Limit, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// MutualTimelineService 互关时间线：自己与互相关注用户的帖子
type MutualTimelineService struct {
	viewers  *ViewerService
	policies *PolicyResolver
	timeline *FanoutTimelineService
}

func NewMutualTimelineService(viewers *ViewerService, policies *PolicyResolver, timeline *FanoutTimelineService) *MutualTimelineService {
	return &MutualTimelineService{viewers: viewers, policies: policies, timeline: timeline}
}

func (s *MutualTimelineService) Timeline(ctx context.Context, viewerID string, p MutualTimelineParams) (TimelineResult, error) {
	opts, err := p.Options()
	if err != nil {
		return TimelineResult{}, err
	}
	limit, err := p.limit()
	if err != nil {
		return TimelineResult{}, err
	}
	since, until, err := p.Cursors()
	if err != nil {
		return TimelineResult{}, err
	}

	user, viewer, err := s.viewers.Load(ctx, viewerID)
	if err != nil {
		return TimelineResult{}, err
	}
	if err := s.policies.MutualTimeline(user); err != nil {
		return TimelineResult{}, err
	}

	res, err := s.timeline.Timeline(ctx, TimelineQuery{
		Viewer:       viewer,
		Rules:        MutualRules(viewer, opts),
		CacheKeys:    MutualCacheKeys(viewer.ID, opts.WithFiles),
		SinceID:      since,
		UntilID:      until,
		Limit:        limit,
		AllowPartial: p.AllowPartial,
	})
	if err != nil {
		logger.Error("mutual timeline failed", zap.String("viewer", viewerID), zap.Error(err))
		return TimelineResult{}, err
	}
	return res, nil
}
