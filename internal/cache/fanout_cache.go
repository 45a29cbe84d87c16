package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps every Redis failure. Callers treat it as an empty cache.
var ErrCacheUnavailable = errors.New("fanout cache unavailable")

// HomeTimelineKey 关注者首页时间线
func HomeTimelineKey(userID string) string { return "homeTimeline:" + userID }

// HomeTimelineWithFilesKey 仅含附件帖子的首页时间线
func HomeTimelineWithFilesKey(userID string) string { return "homeTimelineWithFiles:" + userID }

func floorKey(key string) string { return key + ":floor" }

// pushScript 追加 id 并裁剪到 max_len，同时维护 floor：
// floor 以上（含）的 id 保证完整；首次写入时设置，裁剪后上移到保留的最小 id。
var pushScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], 0, ARGV[1])
redis.call('SET', KEYS[2], ARGV[1], 'NX')
local max = tonumber(ARGV[2])
local n = redis.call('ZCARD', KEYS[1])
if n > max then
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, n - max - 1)
  local low = redis.call('ZRANGE', KEYS[1], 0, 0)[1]
  local floor = redis.call('GET', KEYS[2])
  if floor and floor < low then
    redis.call('SET', KEYS[2], low)
  end
end
return n
`)

// Range 一次区间读取的结果
type Range struct {
	// IDs 新到旧
	IDs []string
	// Floor 为空表示该 key 的完整性未知
	Floor string
}

// FanoutCache 每条时间线一个 sorted set（score 恒为 0，按字典序即按时间排序）
type FanoutCache struct {
	rdb    redis.UniversalClient
	maxLen int
}

func NewFanoutCache(rdb redis.UniversalClient, maxLen int) *FanoutCache {
	if maxLen <= 0 {
		maxLen = 300
	}
	return &FanoutCache{rdb: rdb, maxLen: maxLen}
}

// MaxLen 每个 key 保留的上限
func (c *FanoutCache) MaxLen() int { return c.maxLen }

// Push 追加一个 id 并裁剪
func (c *FanoutCache) Push(ctx context.Context, key, id string) error {
	if err := pushScript.Run(ctx, c.rdb, []string{key, floorKey(key)}, id, c.maxLen).Err(); err != nil {
		return fmt.Errorf("%w: push %s: %v", ErrCacheUnavailable, key, err)
	}
	return nil
}

// Trim 裁剪到 maxLen，并上移 floor
func (c *FanoutCache) Trim(ctx context.Context, key string, maxLen int) error {
	n, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: trim %s: %v", ErrCacheUnavailable, key, err)
	}
	if n <= int64(maxLen) {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByRank(ctx, key, 0, n-int64(maxLen)-1)
	low := pipe.ZRange(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: trim %s: %v", ErrCacheUnavailable, key, err)
	}
	if ids := low.Val(); len(ids) > 0 {
		floor, err := c.rdb.Get(ctx, floorKey(key)).Result()
		if errors.Is(err, redis.Nil) {
			return nil // 完整性未知时不凭空声明
		}
		if err != nil {
			return fmt.Errorf("%w: trim %s: %v", ErrCacheUnavailable, key, err)
		}
		if floor < ids[0] {
			if err := c.rdb.Set(ctx, floorKey(key), ids[0], 0).Err(); err != nil {
				return fmt.Errorf("%w: trim %s: %v", ErrCacheUnavailable, key, err)
			}
		}
	}
	return nil
}

// Invalidate 删除时间线及其 floor；写入失败或关注关系变化后调用
func (c *FanoutCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	all := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		all = append(all, k, floorKey(k))
	}
	if err := c.rdb.Del(ctx, all...).Err(); err != nil {
		return fmt.Errorf("%w: invalidate: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// FetchRange 读取 (sinceID, untilID) 开区间内最多 count 个 id，新到旧
func (c *FanoutCache) FetchRange(ctx context.Context, key, sinceID, untilID string, count int) (Range, error) {
	max, min := "+", "-"
	if untilID != "" {
		max = "(" + untilID
	}
	if sinceID != "" {
		min = "(" + sinceID
	}
	if count <= 0 {
		count = c.maxLen
	}

	pipe := c.rdb.Pipeline()
	idsCmd := pipe.ZRevRangeByLex(ctx, key, &redis.ZRangeBy{Max: max, Min: min, Count: int64(count)})
	floorCmd := pipe.Get(ctx, floorKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Range{}, fmt.Errorf("%w: fetch %s: %v", ErrCacheUnavailable, key, err)
	}
	ids, err := idsCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Range{}, fmt.Errorf("%w: fetch %s: %v", ErrCacheUnavailable, key, err)
	}
	floor, _ := floorCmd.Result()
	return Range{IDs: ids, Floor: floor}, nil
}

// FetchMerged 多个 key 取并集；只有所有 key 的 floor 都已知时才返回 floor（取最大者）
func (c *FanoutCache) FetchMerged(ctx context.Context, keys []string, sinceID, untilID string, count int) (Range, error) {
	seen := make(map[string]struct{})
	var out Range
	unknown := len(keys) == 0
	for _, key := range keys {
		r, err := c.FetchRange(ctx, key, sinceID, untilID, count)
		if err != nil {
			return Range{}, err
		}
		for _, id := range r.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out.IDs = append(out.IDs, id)
		}
		if r.Floor == "" {
			unknown = true
		} else if r.Floor > out.Floor {
			out.Floor = r.Floor
		}
	}
	if unknown {
		out.Floor = ""
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out.IDs)))
	return out, nil
}
