package repository

import (
    "context"
    "fmt"
    "math/rand"
    "testing"
    "time"

    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/testutil"
    "github.com/d60-Lab/timeline-fanout/internal/visibility"
)

// BenchmarkRangeFetch 回源查询：1000 作者、2 万帖子，带完整可见性规则
func BenchmarkRangeFetch(b *testing.B) {
    db := testutil.NewDB(b)
    repo := NewPostRepository(db)
    follows := NewFollowRepository(db)
    ctx := context.Background()

    users := make([]model.User, 1000)
    for i := range users {
        users[i] = model.User{ID: fmt.Sprintf("u%04d", i), Username: fmt.Sprintf("u%04d", i)}
    }
    if err := db.CreateInBatches(&users, 200).Error; err != nil {
        b.Fatalf("seed users: %v", err)
    }

    rng := rand.New(rand.NewSource(time.Now().UnixNano()))
    posts := make([]model.Post, 20000)
    for i := range posts {
        posts[i] = model.Post{ID: fmt.Sprintf("%016d", i), UserID: users[rng.Intn(len(users))].ID, Visibility: model.VisibilityPublic}
    }
    if err := db.CreateInBatches(&posts, 500).Error; err != nil {
        b.Fatalf("seed posts: %v", err)
    }

    // u0000 关注前 200 人
    following := make([]string, 0, 200)
    for i := 1; i <= 200; i++ {
        _ = follows.Create(ctx, "u0000", users[i].ID)
        following = append(following, users[i].ID)
    }
    v := &visibility.Viewer{ID: "u0000", Following: visibility.NewIDSet(following...), Mutual: visibility.NewIDSet(following[:50]...)}
    rules := visibility.Base().With(visibility.Authors(v.Mutual), visibility.Of(visibility.NoChannel))

    b.ResetTimer()
    b.Run("Latest", func(b *testing.B) {
        for i := 0; i < b.N; i++ {
            _, _ = repo.RangeFetch(ctx, RangeQuery{Viewer: v, Rules: rules, Limit: 20})
        }
    })
    b.Run("Until", func(b *testing.B) {
        for i := 0; i < b.N; i++ {
            _, _ = repo.RangeFetch(ctx, RangeQuery{Viewer: v, Rules: rules, UntilID: fmt.Sprintf("%016d", 10000), Limit: 20})
        }
    })
}
