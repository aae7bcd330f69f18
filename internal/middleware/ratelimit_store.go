package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LimiterStore はキーごとのリクエスト数を管理するストア。
// limitはwindowあたりの許容リクエスト数。拒否時は再試行までの待ち時間を返す。
type LimiterStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiterStore はプロセス内のトークンバケットでレート制限を行う。
// 単一インスタンス構成で使用する。
type MemoryLimiterStore struct {
	mu              sync.Mutex
	limiters        map[string]*keyLimiter
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryLimiterStore はMemoryLimiterStoreを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryLimiterStore(cleanupInterval time.Duration) *MemoryLimiterStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	s := &MemoryLimiterStore{
		limiters:        make(map[string]*keyLimiter),
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Allow はトークンバケットから1リクエスト分を消費できるかを返す。
func (s *MemoryLimiterStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	r := rate.Limit(float64(limit) / window.Seconds())

	s.mu.Lock()
	kl, exists := s.limiters[key]
	if !exists {
		kl = &keyLimiter{limiter: rate.NewLimiter(r, limit)}
		s.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	s.mu.Unlock()

	if kl.limiter.Allow() {
		return true, 0, nil
	}

	// 1トークンが補充されるまでの秒数
	retryAfter := time.Duration(math.Ceil(1.0/float64(r))) * time.Second
	return false, retryAfter, nil
}

// Len は現在管理されているエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryLimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryLimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (s *MemoryLimiterStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がクリーンアップ間隔の2倍を超えたエントリを削除する。
func (s *MemoryLimiterStore) cleanup(now time.Time) {
	ttl := s.cleanupInterval * 2

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// fixedWindowScript はウィンドウ内のカウンタを加算し、初回のみ有効期限を設定する。
// KEYS[1] = key
// ARGV[1] = ウィンドウ長（ミリ秒）
// 戻り値は {加算後のカウント, 残りTTL（ミリ秒）}。
var fixedWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {current, ttl}
`)

// RedisLimiterStore はRedisの固定ウィンドウカウンタでレート制限を行う。
// 複数インスタンスで制限を共有する場合に使用する。
type RedisLimiterStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiterStore はRedisLimiterStoreを生成する。
func NewRedisLimiterStore(client redis.UniversalClient, prefix string) *RedisLimiterStore {
	if prefix == "" {
		prefix = "tinytasks:ratelimit:"
	}
	return &RedisLimiterStore{client: client, prefix: prefix}
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Allow はウィンドウ内のカウントがlimit以下であれば許可する。
func (s *RedisLimiterStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	res, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	if res[0] <= int64(limit) {
		return true, 0, nil
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = window
	}
	return false, retryAfter, nil
}

// compile-time interface checks
var (
	_ LimiterStore = (*MemoryLimiterStore)(nil)
	_ LimiterStore = (*RedisLimiterStore)(nil)
)
