package main

import (
    "context"
    "fmt"
    "math"
    "os"
    "sort"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    "github.com/d60-Lab/timeline-fanout/internal/idgen"
    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/service"
    "github.com/d60-Lab/timeline-fanout/internal/stream"
    "github.com/d60-Lab/timeline-fanout/internal/visibility"
)

// 进程内实时推送压测：SUBS 个互关时间线订阅者，每个帖子经 Hub 分发后各自跑一遍可见性规则。
// 不依赖数据库与 Redis。
func main() {
    SUBS := 2000      // live subscribers
    AUTHORS := 100    // each subscriber is mutual with every author
    POSTS := 2000     // posts to publish
    QUEUE := 256      // per-subscriber queue
    RATE := 0         // posts per second, 0 = as fast as possible
    if s := os.Getenv("SUBS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { SUBS = v } }
    if s := os.Getenv("AUTHORS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { AUTHORS = v } }
    if s := os.Getenv("POSTS"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { POSTS = v } }
    if s := os.Getenv("QUEUE"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { QUEUE = v } }
    if s := os.Getenv("RATE"); s != "" { if v, e := strconv.Atoi(s); e == nil && v > 0 { RATE = v } }

    authors := make([]string, AUTHORS)
    for i := range authors { authors[i] = fmt.Sprintf("author%04d", i) }

    hub := stream.NewHub(QUEUE)
    defer hub.Close()

    var (
        mu        sync.Mutex
        latencies = make([]time.Duration, 0, SUBS*4)
        delivered atomic.Int64
        filtered  atomic.Int64
    )
    opts := service.DefaultFilterOptions()
    for i := 0; i < SUBS; i++ {
        id := fmt.Sprintf("viewer%05d", i)
        set := visibility.NewIDSet(authors...)
        v := &visibility.Viewer{ID: id, Following: set, Mutual: set, MutedWords: [][]string{{"spoiler"}}}
        rules := service.MutualRules(v, opts)
        sample := i%100 == 0
        _, err := hub.Subscribe(func(p *model.Post) {
            if _, rejected := rules.Rejects(v, p); rejected {
                filtered.Add(1)
                return
            }
            delivered.Add(1)
            if sample {
                d := time.Since(p.CreatedAt)
                mu.Lock()
                latencies = append(latencies, d)
                mu.Unlock()
            }
        })
        if err != nil { panic(err) }
    }

    ids := idgen.New()
    ctx := context.Background()
    var interval time.Duration
    if RATE > 0 { interval = time.Second / time.Duration(RATE) }

    st := time.Now()
    for i := 0; i < POSTS; i++ {
        text := fmt.Sprintf("hello %d", i)
        if i%10 == 0 { text = "big spoiler" }
        now := time.Now()
        p := &model.Post{
            ID: ids.Generate(now), UserID: authors[i%AUTHORS], Visibility: model.VisibilityPublic,
            Text: &text, SearchText: model.SearchTextOf(&text), CreatedAt: now,
        }
        if err := hub.Publish(ctx, p); err != nil { panic(err) }
        if interval > 0 { time.Sleep(interval) }
    }
    publish := time.Since(st)

    // 等待队列排空
    want := int64(SUBS) * int64(POSTS)
    deadline := time.Now().Add(time.Minute)
    for delivered.Load()+filtered.Load() < want && time.Now().Before(deadline) {
        time.Sleep(10 * time.Millisecond)
    }

    pct := func(vs []time.Duration, p float64) time.Duration {
        if len(vs) == 0 { return 0 }
        xs := append([]time.Duration(nil), vs...)
        sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
        k := int(math.Ceil(p*float64(len(xs)))) - 1
        if k < 0 { k = 0 }
        if k >= len(xs) { k = len(xs)-1 }
        return xs[k]
    }

    mu.Lock()
    defer mu.Unlock()
    var sum time.Duration
    for _, d := range latencies { sum += d }
    var mean time.Duration
    if len(latencies) > 0 { mean = sum / time.Duration(len(latencies)) }
    handled := delivered.Load() + filtered.Load()
    fmt.Printf("SUBS=%d AUTHORS=%d POSTS=%d QUEUE=%d RATE=%d\n", SUBS, AUTHORS, POSTS, QUEUE, RATE)
    fmt.Printf("Publish loop: %v (%.0f posts/s)\n", publish, float64(POSTS)/publish.Seconds())
    fmt.Printf("Handled=%d delivered=%d filtered=%d dropped=%d\n", handled, delivered.Load(), filtered.Load(), want-handled)
    fmt.Printf("Delivery latency (sampled): samples=%d avg=%v p95=%v p99=%v\n", len(latencies), mean, pct(latencies, 0.95), pct(latencies, 0.99))
}
