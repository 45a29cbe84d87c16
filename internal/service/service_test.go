package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/timeline-fanout/config"
	"github.com/d60-Lab/timeline-fanout/internal/cache"
	"github.com/d60-Lab/timeline-fanout/internal/idgen"
	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/internal/testutil"
)

// countingPosts 统计回源次数，可注入回源错误
type countingPosts struct {
	repository.PostRepository
	rangeCalls int
	failRange  error
}

func (c *countingPosts) RangeFetch(ctx context.Context, q repository.RangeQuery) ([]*model.Post, error) {
	c.rangeCalls++
	if c.failRange != nil {
		return nil, c.failRange
	}
	return c.PostRepository.RangeFetch(ctx, q)
}

type env struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	mr        *miniredis.Miniredis
	cache     *cache.FanoutCache
	posts     *countingPosts
	follows   repository.FollowRepository
	publisher *Publisher
	worker    *FanoutWorker
	timeline  *FanoutTimelineService
	mutual    *MutualTimelineService
	viewers   *ViewerService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	mr, rdb := testutil.NewRedis(t)

	posts := &countingPosts{PostRepository: repository.NewPostRepository(db)}
	follows := repository.NewFollowRepository(db)
	fc := cache.NewFanoutCache(rdb, 300)
	viewers := NewViewerService(repository.NewUserRepository(db), follows, repository.NewRelationRepository(db))
	policies := NewPolicyResolver(config.PoliciesConfig{
		Default: config.Policy{MutualTimeline: true},
		Roles:   map[string]config.Policy{"restricted": {MutualTimeline: false}},
	})
	tl := NewFanoutTimelineService(fc, posts, true, time.Second)

	return &env{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		mr:        mr,
		cache:     fc,
		posts:     posts,
		follows:   follows,
		publisher: NewPublisher(db, idgen.New(), posts, nil),
		worker:    NewFanoutWorker(db, follows, fc, 1, 100, 1000, time.Second),
		timeline:  tl,
		mutual:    NewMutualTimelineService(viewers, policies, tl),
		viewers:   viewers,
	}
}

func (e *env) users(ids ...string) {
	e.t.Helper()
	for _, id := range ids {
		require.NoError(e.t, e.db.Create(&model.User{ID: id, Username: id}).Error)
	}
}

func (e *env) follow(from, to string) {
	e.t.Helper()
	require.NoError(e.t, e.follows.Create(e.ctx, from, to))
}

func (e *env) publish(in NewPost) *model.Post {
	e.t.Helper()
	p, err := e.publisher.Publish(e.ctx, in)
	require.NoError(e.t, err)
	return p
}

// drain 处理完全部 outbox
func (e *env) drain() {
	e.t.Helper()
	for {
		n, err := e.worker.ProcessOnce(e.ctx)
		require.NoError(e.t, err)
		if n == 0 {
			return
		}
	}
}

func ids(posts []*model.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func requireStrictlyDesc(t *testing.T, posts []*model.Post) {
	t.Helper()
	for i := 1; i < len(posts); i++ {
		require.Greater(t, posts[i-1].ID, posts[i].ID, "results must be strictly descending without duplicates")
	}
}

func str(s string) *string { return &s }

func boolp(b bool) *bool { return &b }

func intp(n int) *int { return &n }
