package main

import (
    "context"
    "fmt"
    "math"
    "os"
    "sort"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"

    "github.com/d60-Lab/timeline-fanout/config"
    "github.com/d60-Lab/timeline-fanout/internal/cache"
    "github.com/d60-Lab/timeline-fanout/internal/idgen"
    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/repository"
    "github.com/d60-Lab/timeline-fanout/internal/service"
    "github.com/d60-Lab/timeline-fanout/pkg/database"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func pct(vs []time.Duration, p float64) time.Duration {
    if len(vs) == 0 { return 0 }
    xs := append([]time.Duration(nil), vs...)
    sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
    k := int(math.Ceil(p*float64(len(xs)))) - 1
    if k < 0 { k = 0 }
    if k >= len(xs) { k = len(xs)-1 }
    return xs[k]
}

func avg(vs []time.Duration) time.Duration {
    if len(vs) == 0 { return 0 }
    var sum time.Duration
    for _, d := range vs { sum += d }
    return sum / time.Duration(len(vs))
}

func envInt(name string, def int) int {
    if s := os.Getenv(name); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { return v } }
    return def
}

func main() {
    cfg := must(config.Load())
    db := must(database.InitDB(cfg))
    rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
    ctx := context.Background()

    // params
    FRIENDS := envInt("FRIENDS", 200)  // mutual follows of the viewer
    FANS := envInt("FANS", 2000)       // one-way followers of every friend
    POSTS := envInt("POSTS", 1000)     // posts, round-robin over friends
    WORKERS := envInt("WORKERS", 8)    // fanout workers
    BATCH := envInt("BATCH", 500)      // follower page size
    CLAIM := envInt("CLAIM", 64)       // outbox claim per tick
    READS := envInt("READS", 200)      // timeline reads per scenario
    LIMIT := envInt("LIMIT", 20)

    // clean tables for a reproducible run (ok for local bench)
    _ = db.Exec("TRUNCATE TABLE outbox, posts, follows, mutings, renote_mutings, blockings, reactions, users CASCADE").Error

    posts := repository.NewPostRepository(db)
    follows := repository.NewFollowRepository(db)
    fc := cache.NewFanoutCache(rdb, cfg.Cache.MaxLen)
    viewers := service.NewViewerService(repository.NewUserRepository(db), follows, repository.NewRelationRepository(db))
    mutual := service.NewMutualTimelineService(viewers, service.NewPolicyResolver(cfg.Policies),
        service.NewFanoutTimelineService(fc, posts, true, cfg.Timeline.FallbackTimeout))
    publisher := service.NewPublisher(db, idgen.New(), posts, nil)

    // seed viewer, FRIENDS mutuals and FANS one-way followers shared by every friend
    viewer := model.User{ID: "viewer0", Username: "viewer0"}
    _ = db.Create(&viewer).Error
    friends := make([]model.User, FRIENDS)
    for i := range friends {
        id := uuid.New().String()
        friends[i] = model.User{ID: id, Username: "f" + id[:8]}
    }
    fans := make([]model.User, FANS)
    for i := range fans {
        id := uuid.New().String()
        fans[i] = model.User{ID: id, Username: "u" + id[:8]}
    }
    _ = db.CreateInBatches(&friends, 1000).Error
    _ = db.CreateInBatches(&fans, 1000).Error
    for _, f := range friends {
        _ = follows.Create(ctx, viewer.ID, f.ID)
        _ = follows.Create(ctx, f.ID, viewer.ID)
        for _, u := range fans { _ = follows.Create(ctx, u.ID, f.ID) }
    }
    _ = fc.Invalidate(ctx, cache.HomeTimelineKey(viewer.ID), cache.HomeTimelineWithFilesKey(viewer.ID))

    worker := service.NewFanoutWorker(db, follows, fc, WORKERS, BATCH, CLAIM, 20*time.Millisecond)
    stop := worker.Start()
    defer stop(ctx)

    pubDurations := make([]time.Duration, 0, POSTS)
    for i := 0; i < POSTS; i++ {
        text := fmt.Sprintf("hello %d", i)
        st := time.Now()
        if _, err := publisher.Publish(ctx, service.NewPost{AuthorID: friends[i%FRIENDS].ID, Text: &text}); err != nil { panic(err) }
        pubDurations = append(pubDurations, time.Since(st))
    }

    // collect landing metrics
    land := make([]time.Duration, 0, POSTS)
    timeout := time.After(5 * time.Minute)
    for len(land) < POSTS {
        select {
        case d := <-worker.Metrics():
            land = append(land, d)
        case <-timeout:
            fmt.Printf("timeout while waiting for fanout metrics: got=%d want=%d\n", len(land), POSTS)
            goto READ
        }
    }

READ:
    read := func(flush bool) ([]time.Duration, int) {
        out := make([]time.Duration, 0, READS)
        got := 0
        limit := LIMIT
        for i := 0; i < READS; i++ {
            if flush {
                _ = fc.Invalidate(ctx, cache.HomeTimelineKey(viewer.ID))
            }
            st := time.Now()
            res, err := mutual.Timeline(ctx, viewer.ID, service.MutualTimelineParams{Limit: &limit})
            if err != nil { panic(err) }
            out = append(out, time.Since(st))
            got = len(res.Posts)
        }
        return out, got
    }
    warm, warmN := read(false)
    cold, coldN := read(true)

    fmt.Printf("FRIENDS=%d FANS=%d POSTS=%d WORKERS=%d BATCH=%d CLAIM=%d LIMIT=%d\n", FRIENDS, FANS, POSTS, WORKERS, BATCH, CLAIM, LIMIT)
    fmt.Printf("Publish tx latency: avg=%v p95=%v p99=%v\n", avg(pubDurations), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
    fmt.Printf("Fanout landing (outbox->done): samples=%d avg=%v p95=%v p99=%v\n", len(land), avg(land), pct(land, 0.95), pct(land, 0.99))
    fmt.Printf("Timeline warm cache:  reads=%d posts=%d avg=%v p95=%v p99=%v\n", len(warm), warmN, avg(warm), pct(warm, 0.95), pct(warm, 0.99))
    fmt.Printf("Timeline db fallback: reads=%d posts=%d avg=%v p95=%v p99=%v\n", len(cold), coldN, avg(cold), pct(cold, 0.95), pct(cold, 0.99))
}
