// Package ratelimit implements per-client token-bucket rate limiting for the
// query gateway. Each client gets an independent bucket refilled continuously
// at the configured rate, with burst capacity above the steady-state rate.
package ratelimit

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/cyphergate/cyphergate/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultRequestsPerWindow = 100
	defaultWindowSeconds     = 60
	defaultIdleEviction      = 10 * time.Minute

	// shardCount must be a power of two.
	shardCount = 32
)

// Config holds rate limiter settings.
type Config struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window" json:"requests_per_window"`
	WindowSeconds     int           `yaml:"window_seconds" json:"window_seconds"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	IdleEvictionAfter time.Duration `yaml:"idle_eviction_after" json:"idle_eviction_after"`
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerWindow: defaultRequestsPerWindow,
		WindowSeconds:     defaultWindowSeconds,
		BurstSize:         defaultRequestsPerWindow,
		IdleEvictionAfter: defaultIdleEviction,
	}
}

// bucket is the token state for one client. Each bucket carries its own
// mutex so refill and consume form one critical section per client without
// serializing unrelated clients.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// shard owns one slice of the client space. Its mutex guards only map
// membership; token arithmetic happens under the bucket's own lock.
type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter is a token-bucket rate limiter keyed by client identifier. Buckets
// refill continuously rather than on window boundaries, so a client that
// drains its burst recovers gradually. Clients hash onto shards and every
// bucket is locked individually, so independent clients proceed in parallel.
// Safe for concurrent use.
type Limiter struct {
	cfg        Config
	refillRate float64 // tokens per second
	capacity   float64

	shards [shardCount]shard

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// NewLimiter creates a limiter and starts its idle-bucket eviction loop.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = defaultRequestsPerWindow
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = defaultWindowSeconds
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerWindow
	}
	if cfg.IdleEvictionAfter <= 0 {
		cfg.IdleEvictionAfter = defaultIdleEviction
	}

	l := &Limiter{
		cfg:        cfg,
		refillRate: float64(cfg.RequestsPerWindow) / float64(cfg.WindowSeconds),
		capacity:   float64(cfg.BurstSize),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	go l.evictLoop()
	return l
}

// CheckAndConsume attempts to spend cost tokens from the client's bucket.
// When the bucket holds too few tokens the request is rejected and RetryAfter
// reports how long until enough tokens accrue. A cost of zero or less counts
// as one token.
func (l *Limiter) CheckAndConsume(clientID string, cost float64) models.RateDecision {
	if !l.cfg.Enabled {
		return models.RateDecision{Allowed: true, Remaining: l.cfg.BurstSize}
	}
	if cost <= 0 {
		cost = 1
	}

	now := l.now()
	b := l.bucketFor(clientID, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	l.refill(b, now)

	if b.tokens >= cost {
		b.tokens -= cost
		return models.RateDecision{
			Allowed:   true,
			Remaining: int(b.tokens),
			ResetAt:   l.resetAt(b, now),
		}
	}

	retryAfter := (cost - b.tokens) / l.refillRate
	return models.RateDecision{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    l.resetAt(b, now),
		RetryAfter: retryAfter,
	}
}

// Status reports the client's bucket without consuming tokens.
func (l *Limiter) Status(clientID string) models.RateDecision {
	if !l.cfg.Enabled {
		return models.RateDecision{Allowed: true, Remaining: l.cfg.BurstSize}
	}

	now := l.now()
	s := l.shardFor(clientID)
	s.mu.Lock()
	b := s.buckets[clientID]
	s.mu.Unlock()
	if b == nil {
		return models.RateDecision{Allowed: true, Remaining: l.cfg.BurstSize, ResetAt: now}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	l.refill(b, now)
	return models.RateDecision{
		Allowed:   b.tokens >= 1,
		Remaining: int(b.tokens),
		ResetAt:   l.resetAt(b, now),
	}
}

// Reset restores the client's bucket to full capacity.
func (l *Limiter) Reset(clientID string) {
	s := l.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, clientID)
}

// ResetAll clears every bucket.
func (l *Limiter) ResetAll() {
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		s.buckets = make(map[string]*bucket)
		s.mu.Unlock()
	}
}

// Close stops the eviction loop. Safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

// shardFor maps a client identifier onto its shard.
func (l *Limiter) shardFor(clientID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(clientID))
	return &l.shards[h.Sum32()&(shardCount-1)]
}

// bucketFor resolves the client's bucket, creating a full one on first
// sight. The shard lock covers only the map lookup.
func (l *Limiter) bucketFor(clientID string, now time.Time) *bucket {
	s := l.shardFor(clientID)
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[clientID]
	if b == nil {
		b = &bucket{tokens: l.capacity, lastSeen: now}
		s.buckets[clientID] = b
	}
	return b
}

// refill credits tokens accrued since the bucket was last touched, capped at
// burst capacity, and marks the bucket as seen. Caller holds b.mu.
func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastSeen).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.refillRate)
	}
	b.lastSeen = now
}

// resetAt is the instant the bucket returns to full capacity.
func (l *Limiter) resetAt(b *bucket, now time.Time) time.Time {
	deficit := l.capacity - b.tokens
	if deficit <= 0 {
		return now
	}
	return now.Add(time.Duration(deficit / l.refillRate * float64(time.Second)))
}

func (l *Limiter) evictLoop() {
	interval := l.cfg.IdleEvictionAfter
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// evictIdle drops buckets untouched for the configured idle window. An
// evicted client starts over with a full bucket, which only ever works in
// the client's favor. Shard locks are held one at a time.
func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.cfg.IdleEvictionAfter)
	evicted := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, b := range s.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(s.buckets, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("Evicted idle rate limit buckets")
	}
}
