package repository

import (
    "context"
    "fmt"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/testutil"
    "github.com/d60-Lab/timeline-fanout/internal/visibility"
)

func str(s string) *string { return &s }

func pid(n int) string { return fmt.Sprintf("%016d", n) }

func TestRangeFetch(t *testing.T) {
    db := testutil.NewDB(t)
    ctx := context.Background()
    repo := NewPostRepository(db)

    require.NoError(t, db.Create(&[]model.User{{ID: "a"}, {ID: "b"}}).Error)
    for i := 1; i <= 9; i++ {
        author := "a"
        if i%3 == 0 {
            author = "b"
        }
        require.NoError(t, repo.Create(ctx, &model.Post{ID: pid(i), UserID: author, Visibility: model.VisibilityPublic}))
    }

    ids := func(posts []*model.Post) []string {
        out := make([]string, len(posts))
        for i, p := range posts {
            out[i] = p.ID
        }
        return out
    }

    rules := visibility.Base()
    got, err := repo.RangeFetch(ctx, RangeQuery{Rules: rules, Limit: 3})
    require.NoError(t, err)
    assert.Equal(t, []string{pid(9), pid(8), pid(7)}, ids(got))
    require.NotNil(t, got[0].User, "author is hydrated")

    got, err = repo.RangeFetch(ctx, RangeQuery{Rules: rules, UntilID: pid(7), Limit: 2})
    require.NoError(t, err)
    assert.Equal(t, []string{pid(6), pid(5)}, ids(got))

    got, err = repo.RangeFetch(ctx, RangeQuery{Rules: rules, SinceID: pid(2), Limit: 3})
    require.NoError(t, err)
    assert.Equal(t, []string{pid(5), pid(4), pid(3)}, ids(got), "since-only takes the posts right after the cursor")

    got, err = repo.RangeFetch(ctx, RangeQuery{Rules: rules, SinceID: pid(2), UntilID: pid(8), Limit: 10})
    require.NoError(t, err)
    assert.Equal(t, []string{pid(7), pid(6), pid(5), pid(4), pid(3)}, ids(got))

    v := &visibility.Viewer{ID: "x", Blocked: visibility.NewIDSet("b")}
    got, err = repo.RangeFetch(ctx, RangeQuery{Viewer: v, Rules: rules, Limit: 3})
    require.NoError(t, err)
    assert.Equal(t, []string{pid(8), pid(7), pid(5)}, ids(got))
}

func TestFindByIDsSkipsMissing(t *testing.T) {
    db := testutil.NewDB(t)
    ctx := context.Background()
    repo := NewPostRepository(db)

    require.NoError(t, db.Create(&model.User{ID: "a"}).Error)
    require.NoError(t, repo.Create(ctx, &model.Post{ID: pid(1), UserID: "a", Visibility: model.VisibilityPublic}))
    require.NoError(t, repo.Create(ctx, &model.Post{ID: pid(2), UserID: "a", Visibility: model.VisibilityPublic, RenoteID: str(pid(1)), RenoteUserID: str("a")}))

    got, err := repo.FindByIDs(ctx, []string{pid(2), "gone", pid(1)})
    require.NoError(t, err)
    require.Len(t, got, 2)
    assert.Equal(t, pid(2), got[0].ID)
    require.NotNil(t, got[0].Renote)
    assert.Equal(t, pid(1), got[0].Renote.ID)

    got, err = repo.FindByIDs(ctx, nil)
    require.NoError(t, err)
    assert.Empty(t, got)
}

func TestDeleteExpired(t *testing.T) {
    db := testutil.NewDB(t)
    ctx := context.Background()
    repo := NewPostRepository(db)

    now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
    past, future := now.Add(-time.Minute), now.Add(time.Hour)
    require.NoError(t, repo.Create(ctx, &model.Post{ID: pid(1), UserID: "a", Visibility: model.VisibilityPublic, ExpiresAt: &past}))
    require.NoError(t, repo.Create(ctx, &model.Post{ID: pid(2), UserID: "a", Visibility: model.VisibilityPublic, ExpiresAt: &future}))
    require.NoError(t, repo.Create(ctx, &model.Post{ID: pid(3), UserID: "a", Visibility: model.VisibilityPublic}))

    n, err := repo.DeleteExpired(ctx, now)
    require.NoError(t, err)
    assert.EqualValues(t, 1, n)

    n, err = repo.DeleteExpired(ctx, now)
    require.NoError(t, err)
    assert.EqualValues(t, 0, n)

    var left int64
    require.NoError(t, db.Model(&model.Post{}).Count(&left).Error)
    assert.EqualValues(t, 2, left)
}

func TestRelationsAndFollows(t *testing.T) {
    db := testutil.NewDB(t)
    ctx := context.Background()
    follows := NewFollowRepository(db)
    relations := NewRelationRepository(db)

    require.NoError(t, follows.Create(ctx, "a", "b"))
    require.NoError(t, follows.Create(ctx, "a", "b"), "follow is idempotent")
    require.NoError(t, follows.Create(ctx, "a", "c"))
    require.NoError(t, follows.Create(ctx, "b", "a"))

    ids, err := follows.ListFolloweeIDs(ctx, "a")
    require.NoError(t, err)
    assert.ElementsMatch(t, []string{"b", "c"}, ids)

    ids, err = follows.ListFollowerIDs(ctx, "a")
    require.NoError(t, err)
    assert.Equal(t, []string{"b"}, ids)

    page, err := follows.ListFollowers(ctx, "b", "", 10)
    require.NoError(t, err)
    require.Len(t, page, 1)
    assert.Equal(t, "a", page[0].FollowerID)

    // 游标分页：逐页取完且不重复
    for _, u := range []string{"p1", "p2", "p3", "p4", "p5"} {
        require.NoError(t, follows.Create(ctx, u, "c"))
    }
    require.NoError(t, follows.Create(ctx, "p1", "c"), "duplicate follow is a no-op")
    var seen []string
    after := ""
    for {
        page, err := follows.ListFollowers(ctx, "c", after, 2)
        require.NoError(t, err)
        for _, f := range page {
            seen = append(seen, f.FollowerID)
        }
        if len(page) < 2 {
            break
        }
        after = page[len(page)-1].ID
    }
    assert.ElementsMatch(t, []string{"a", "p1", "p2", "p3", "p4", "p5"}, seen)

    require.NoError(t, db.Create(&model.Muting{ID: "m1", MuterID: "a", MuteeID: "x"}).Error)
    require.NoError(t, db.Create(&model.RenoteMuting{ID: "r1", MuterID: "a", MuteeID: "y"}).Error)
    require.NoError(t, db.Create(&[]model.Blocking{{ID: "b1", BlockerID: "a", BlockeeID: "z"}, {ID: "b2", BlockerID: "w", BlockeeID: "a"}}).Error)

    ids, err = relations.ListMutedIDs(ctx, "a")
    require.NoError(t, err)
    assert.Equal(t, []string{"x"}, ids)
    ids, err = relations.ListRenoteMutedIDs(ctx, "a")
    require.NoError(t, err)
    assert.Equal(t, []string{"y"}, ids)
    ids, err = relations.ListBlockRelatedIDs(ctx, "a")
    require.NoError(t, err)
    assert.ElementsMatch(t, []string{"z", "w"}, ids)
}

func TestUserAndReaction(t *testing.T) {
    db := testutil.NewDB(t)
    ctx := context.Background()
    users := NewUserRepository(db)
    reactions := NewReactionRepository(db)

    require.NoError(t, db.Create(&model.User{ID: "a", MutedWords: [][]string{{"cat"}}}).Error)
    u, err := users.Get(ctx, "a")
    require.NoError(t, err)
    assert.Equal(t, [][]string{{"cat"}}, u.MutedWords)

    _, err = users.Get(ctx, "nobody")
    assert.ErrorIs(t, err, ErrUserNotFound)

    posts := NewPostRepository(db)
    require.NoError(t, posts.Create(ctx, &model.Post{ID: pid(1), UserID: "a", Visibility: model.VisibilityPublic}))

    got, err := reactions.FindReaction(ctx, "a", pid(1))
    require.NoError(t, err)
    assert.Empty(t, got)

    require.NoError(t, reactions.Add(ctx, "a", pid(1), ":star:"))
    require.NoError(t, reactions.Add(ctx, "a", pid(1), ":heart:"))
    got, err = reactions.FindReaction(ctx, "a", pid(1))
    require.NoError(t, err)
    assert.Equal(t, ":star:", got)

    // 重复回应不重复计数
    loaded, err := posts.FindByIDs(ctx, []string{pid(1)})
    require.NoError(t, err)
    require.Len(t, loaded, 1)
    assert.EqualValues(t, 1, loaded[0].ReactionCount)
}
