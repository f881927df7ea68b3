package payment

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// snapshotKey is the shared hash Refresh persists to, so that a snapshot
// computed in one process (typically the worker) is readable from any other.
const snapshotKey = "rel:snapshot"

// Reliability tracks rolling per-provider health. Outcomes are counted in Redis
// with a windowed expiry; the selection engine only ever reads an in-process
// snapshot, so scoring stays cheap and deterministic between refreshes. Refresh
// recomputes the snapshot from the counters and persists it to a shared hash;
// Load adopts the last persisted snapshot without recomputing.
type Reliability struct {
	R       *redis.Client
	Window  time.Duration
	Default float64

	// SnapshotTTL bounds how long a persisted snapshot stays adoptable. Keep it
	// a small multiple of the refresh cadence so a process falls back to
	// recomputing once the writer stops.
	SnapshotTTL time.Duration

	snapshot atomic.Pointer[map[string]float64]
}

// NewReliability constructs a tracker with an optimistic default for providers
// that have no recorded history yet.
func NewReliability(r *redis.Client, window time.Duration) *Reliability {
	t := &Reliability{R: r, Window: window, Default: 0.9}
	empty := map[string]float64{}
	t.snapshot.Store(&empty)
	return t
}

func (t *Reliability) key(provider, outcome string) string {
	return fmt.Sprintf("rel:%s:%s", provider, outcome)
}

// RecordOutcome increments the windowed success or failure counter.
func (t *Reliability) RecordOutcome(ctx context.Context, provider string, success bool) {
	if t == nil || t.R == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "fail"
	}
	key := t.key(provider, outcome)
	pipe := t.R.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window())
	_, _ = pipe.Exec(ctx)
}

// Refresh recomputes the snapshot from the Redis counters for the given
// providers, persists it to the shared hash and adopts it locally.
func (t *Reliability) Refresh(ctx context.Context, providers []string) error {
	if t == nil || t.R == nil {
		return nil
	}
	next := make(map[string]float64, len(providers))
	for _, provider := range providers {
		ok, err := t.R.Get(ctx, t.key(provider, "ok")).Int64()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("reliability: read counters for %s: %w", provider, err)
		}
		fail, err := t.R.Get(ctx, t.key(provider, "fail")).Int64()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("reliability: read counters for %s: %w", provider, err)
		}
		total := ok + fail
		if total == 0 {
			next[provider] = t.defaultScore()
			continue
		}
		next[provider] = float64(ok) / float64(total)
	}
	if len(next) > 0 {
		fields := make(map[string]string, len(next))
		for provider, score := range next {
			fields[provider] = strconv.FormatFloat(score, 'f', -1, 64)
		}
		pipe := t.R.Pipeline()
		pipe.HSet(ctx, snapshotKey, fields)
		pipe.Expire(ctx, snapshotKey, t.snapshotTTL())
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("reliability: persist snapshot: %w", err)
		}
	}
	t.snapshot.Store(&next)
	return nil
}

// Load adopts the snapshot last persisted by Refresh in any process. It reports
// whether a persisted snapshot was found; callers without one should Refresh.
func (t *Reliability) Load(ctx context.Context) (bool, error) {
	if t == nil || t.R == nil {
		return false, nil
	}
	fields, err := t.R.HGetAll(ctx, snapshotKey).Result()
	if err != nil {
		return false, fmt.Errorf("reliability: load snapshot: %w", err)
	}
	if len(fields) == 0 {
		return false, nil
	}
	next := make(map[string]float64, len(fields))
	for provider, raw := range fields {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		next[provider] = score
	}
	t.snapshot.Store(&next)
	return true, nil
}

// Score returns the last refreshed score for the provider in [0, 1].
func (t *Reliability) Score(provider string) float64 {
	if t == nil {
		return 0
	}
	if snap := t.snapshot.Load(); snap != nil {
		if score, ok := (*snap)[provider]; ok {
			return score
		}
	}
	return t.defaultScore()
}

func (t *Reliability) window() time.Duration {
	if t.Window <= 0 {
		return time.Hour
	}
	return t.Window
}

func (t *Reliability) snapshotTTL() time.Duration {
	if t.SnapshotTTL <= 0 {
		return 5 * time.Minute
	}
	return t.SnapshotTTL
}

func (t *Reliability) defaultScore() float64 {
	if t.Default <= 0 {
		return 0.9
	}
	return t.Default
}
