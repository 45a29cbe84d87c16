package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/timeline-fanout/internal/cache"
	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
)

func TestFanoutPushesToAuthorAndFollowers(t *testing.T) {
	e := newEnv(t)
	e.users("a", "b", "c")
	e.follow("b", "a")

	plain := e.publish(NewPost{AuthorID: "a", Text: str("hi")})
	files := e.publish(NewPost{AuthorID: "a", FileIDs: []string{"f"}})
	channel := e.publish(NewPost{AuthorID: "a", Text: str("ch"), ChannelID: str("ch1")})
	e.drain()

	for _, user := range []string{"a", "b"} {
		r, err := e.cache.FetchRange(e.ctx, cache.HomeTimelineKey(user), "", "", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{files.ID, plain.ID}, r.IDs, user)
		assert.Equal(t, plain.ID, r.Floor)

		r, err = e.cache.FetchRange(e.ctx, cache.HomeTimelineWithFilesKey(user), "", "", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{files.ID}, r.IDs)
	}
	r, err := e.cache.FetchRange(e.ctx, cache.HomeTimelineKey("c"), "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, r.IDs, "c does not follow a")
	assert.NotContains(t, r.IDs, channel.ID)

	var done int64
	require.NoError(t, e.db.Model(&model.Outbox{}).Where("status = ?", model.OutboxDone).Count(&done).Error)
	assert.EqualValues(t, 3, done)

	select {
	case d := <-e.worker.Metrics():
		assert.GreaterOrEqual(t, d, time.Duration(0))
	default:
		t.Fatal("expected a latency sample")
	}
}

func TestFanoutSkipsDeletedPost(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	p := e.publish(NewPost{AuthorID: "a", Text: str("gone soon")})
	require.NoError(t, e.db.Where("id = ?", p.ID).Delete(&model.Post{}).Error)
	e.drain()

	r, err := e.cache.FetchRange(e.ctx, cache.HomeTimelineKey("a"), "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, r.IDs)
}

func TestPublishDenormalizesReferences(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	require.NoError(t, e.db.Create(&model.User{ID: "r", Host: str("remote.example")}).Error)

	orig := e.publish(NewPost{AuthorID: "r", Text: str("Hello World")})
	assert.Equal(t, "hello world", orig.SearchText)
	require.NotNil(t, orig.UserHost)

	renote := e.publish(NewPost{AuthorID: "a", RenoteID: &orig.ID})
	require.NotNil(t, renote.RenoteUserID)
	assert.Equal(t, "r", *renote.RenoteUserID)
	assert.Equal(t, "remote.example", *renote.RenoteUserHost)
	require.NotNil(t, renote.Renote)
	require.NotNil(t, renote.Renote.User)
	assert.True(t, renote.IsPureRenote())

	_, err := e.publisher.Publish(e.ctx, NewPost{AuthorID: "a", ReplyID: str("0000000000000000")})
	require.ErrorIs(t, err, ErrReferenceNotFound)
	_, err = e.publisher.Publish(e.ctx, NewPost{AuthorID: "ghost"})
	require.ErrorIs(t, err, repository.ErrUserNotFound)
}

type recordingBroadcaster struct{ posts []*model.Post }

func (r *recordingBroadcaster) Publish(_ context.Context, p *model.Post) error {
	r.posts = append(r.posts, p)
	return nil
}

func TestPublishBroadcastsAfterCommit(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	rec := &recordingBroadcaster{}
	e.publisher.broadcaster = rec

	p := e.publish(NewPost{AuthorID: "a", Text: str("live")})
	require.Len(t, rec.posts, 1)
	assert.Equal(t, p.ID, rec.posts[0].ID)
	require.NotNil(t, rec.posts[0].User)
}

type failingExpiry struct {
	repository.PostRepository
	calls int
}

func (f *failingExpiry) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	if f.calls == 1 {
		return 0, errors.New("database is locked")
	}
	return f.PostRepository.DeleteExpired(ctx, now)
}

func TestExpirySweep(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	expired := e.publish(NewPost{AuthorID: "a", Text: str("old"), ExpiresAt: &past})
	kept := e.publish(NewPost{AuthorID: "a", Text: str("new"), ExpiresAt: &future})
	e.drain()

	s := NewExpirySweeper(e.posts, time.Hour)
	n, err := s.Sweep(e.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// 缓存里残留的 id 被跳过
	res, err := e.timeline.Timeline(e.ctx, plainQuery(10))
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids(res.Posts))
	assert.NotContains(t, ids(res.Posts), expired.ID)
}

func TestExpirySweeperRecoversFromFailure(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	past := time.Now().Add(-time.Hour)
	e.publish(NewPost{AuthorID: "a", ExpiresAt: &past})

	repo := &failingExpiry{PostRepository: repository.NewPostRepository(e.db)}
	s := NewExpirySweeper(repo, 10*time.Millisecond)
	stop := s.Start()

	require.Eventually(t, func() bool {
		var n int64
		e.db.Model(&model.Post{}).Count(&n)
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop(context.Background()))
	assert.GreaterOrEqual(t, repo.calls, 2)
}

func outboxStatus(t *testing.T, e *env, postID string) string {
	t.Helper()
	var row model.Outbox
	require.NoError(t, e.db.Where("post_id = ?", postID).First(&row).Error)
	return row.Status
}

func markClaimed(t *testing.T, e *env, postID string, at *time.Time) {
	t.Helper()
	require.NoError(t, e.db.Model(&model.Outbox{}).Where("post_id = ?", postID).
		Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": at}).Error)
}

// worker 中途退出留下的 processing 行在租约过期后重新扇出，缓存不会在 floor 以上缺帖
func TestFanoutRequeuesStaleClaim(t *testing.T) {
	for _, name := range []string{"expired lease", "no lease"} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			e.users("a")
			e.publish(NewPost{AuthorID: "a", Text: str("p0")})
			e.drain()

			stuck := e.publish(NewPost{AuthorID: "a", Text: str("p1")})
			var at *time.Time
			if name == "expired lease" {
				old := time.Now().UTC().Add(-time.Hour)
				at = &old
			}
			markClaimed(t, e, stuck.ID, at)
			for i := 0; i < 5; i++ {
				e.publish(NewPost{AuthorID: "a", Text: str("later")})
			}
			e.drain()
			assert.Equal(t, model.OutboxDone, outboxStatus(t, e, stuck.ID))

			warm, err := e.timeline.Timeline(e.ctx, plainQuery(6))
			require.NoError(t, err)
			e.mr.FlushAll()
			cold, err := e.timeline.Timeline(e.ctx, plainQuery(6))
			require.NoError(t, err)

			assert.Equal(t, ids(cold.Posts), ids(warm.Posts))
			assert.Contains(t, ids(warm.Posts), stuck.ID)
			assert.False(t, warm.Partial)
		})
	}
}

func TestFanoutKeepsLiveClaim(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	p := e.publish(NewPost{AuthorID: "a", Text: str("in flight")})
	now := time.Now().UTC()
	markClaimed(t, e, p.ID, &now)

	n, err := e.worker.ProcessOnce(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, model.OutboxProcessing, outboxStatus(t, e, p.ID), "another worker still holds the lease")

	e.worker.WithLease(time.Minute)
	e.worker.now = func() time.Time { return now.Add(2 * time.Minute) }
	n, err = e.worker.ProcessOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OutboxDone, outboxStatus(t, e, p.ID))
}

// cancelOnList 在第一次列粉丝时取消 worker 的 ctx
type cancelOnList struct {
	repository.FollowRepository
	cancel context.CancelFunc
}

func (c *cancelOnList) ListFollowers(ctx context.Context, followeeID, afterID string, limit int) ([]*model.Follow, error) {
	c.cancel()
	return c.FollowRepository.ListFollowers(ctx, followeeID, afterID, limit)
}

func TestFanoutFinishesCurrentPostAndReleasesRestOnCancel(t *testing.T) {
	e := newEnv(t)
	e.users("a", "b")
	e.follow("b", "a")
	first := e.publish(NewPost{AuthorID: "a", Text: str("first")})
	second := e.publish(NewPost{AuthorID: "a", Text: str("second")})

	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	w := NewFanoutWorker(e.db, &cancelOnList{FollowRepository: e.follows, cancel: cancel}, e.cache, 1, 100, 1000, time.Second)

	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OutboxDone, outboxStatus(t, e, first.ID))
	assert.Equal(t, model.OutboxPending, outboxStatus(t, e, second.ID))

	r, err := e.cache.FetchRange(e.ctx, cache.HomeTimelineKey("b"), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, r.IDs, "the interrupted post still reaches every follower")

	e.drain()
	assert.Equal(t, model.OutboxDone, outboxStatus(t, e, second.ID))
}

func TestFanoutWorkerStop(t *testing.T) {
	e := newEnv(t)
	e.users("a")
	w := NewFanoutWorker(e.db, e.follows, e.cache, 2, 100, 1000, 5*time.Millisecond)
	stop := w.Start()

	p := e.publish(NewPost{AuthorID: "a", Text: str("async")})
	require.Eventually(t, func() bool {
		var done int64
		e.db.Model(&model.Outbox{}).Where("post_id = ? AND status = ?", p.ID, model.OutboxDone).Count(&done)
		return done == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stop(context.Background()))
	require.NoError(t, stop(context.Background()), "stopping twice is harmless")

	after := e.publish(NewPost{AuthorID: "a", Text: str("after stop")})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, model.OutboxPending, outboxStatus(t, e, after.ID))
}
