package detect

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Deaeath/colossus-guard/internal/moderation"
)

const rateShards = 64

// fnv32a over the key, for shard selection.
func shardFor(key string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return h % rateShards
}

type rateShard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// RateWindow tracks per-(tenant, actor) event timestamps over a trailing
// window and raises a rate_anomaly incident when the count inside the window
// reaches the tenant's threshold. The map is sharded so unrelated keys never
// contend on one lock; same-key updates are linearized by the shard lock.
//
// Triggering clears the key. An actor can in principle trigger once and then
// stay just under threshold with a fresh window; the reset keeps a single
// burst from producing an alert storm.
type RateWindow struct {
	shards [rateShards]*rateShard
}

// NewRateWindow initializes an empty detector.
func NewRateWindow() *RateWindow {
	rw := &RateWindow{}
	for i := range rw.shards {
		rw.shards[i] = &rateShard{windows: make(map[string][]time.Time)}
	}
	return rw
}

// Record observes one event for (tenantID, actorID) at now. It prunes
// timestamps older than now-window (boundary inclusive: t == now-window
// stays), then triggers at count >= threshold, clearing the key. Returns the
// incident on trigger, nil otherwise.
func (rw *RateWindow) Record(tenantID, actorID string, now time.Time, threshold int, window time.Duration) *moderation.Incident {
	key := tenantID + "/" + actorID
	sh := rw.shards[shardFor(key)]

	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-window)
	kept := sh.windows[key][:0]
	for _, t := range sh.windows[key] {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)

	if len(kept) >= threshold {
		delete(sh.windows, key)
		return &moderation.Incident{
			ID:            ulid.Make().String(),
			TenantID:      tenantID,
			SourceActorID: actorID,
			Kind:          moderation.KindRateAnomaly,
			CreatedAt:     now,
		}
	}

	sh.windows[key] = kept
	return nil
}

// Len reports the number of tracked keys, for metrics.
func (rw *RateWindow) Len() int {
	var n int
	for _, sh := range rw.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}
