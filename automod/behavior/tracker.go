// Per-author behavioral state for spam detection.
//
// The Tracker keeps a short history of recent messages for every (group, author) pair and answers "how many messages, and how many identical ones, inside the window". State for authors who go quiet is evicted after IdleTTL.
package behavior

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/helpers"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	DetailRate      = "rate"
	DetailDuplicate = "duplicate"

	DefaultIdleTTL = 10 * time.Minute
)

type sample struct {
	hash string
	ts   time.Time
}

type state struct {
	mu              sync.Mutex
	samples         []sample
	lastViolationAt time.Time
	lastSeen        time.Time
	// set once the sweeper has dropped this state from the map; holders must re-fetch
	evicted bool
}

// Result of observing a message: sizes of the pruned window, including the message itself.
type Observation struct {
	Count           int
	Duplicates      int
	LastViolationAt time.Time
}

type Tracker struct {
	IdleTTL time.Duration
	Logger  *slog.Logger

	states *xsync.Map[string, *state]
}

func NewTracker(idleTTL time.Duration, logger *slog.Logger) *Tracker {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		IdleTTL: idleTTL,
		Logger:  logger.With("component", "behavior-tracker"),
		states:  xsync.NewMap[string, *state](),
	}
}

func stateKey(groupID, authorID string) string {
	return groupID + "/" + authorID
}

// locks and returns the live state for a key, creating it if needed
func (t *Tracker) acquire(key string) *state {
	for {
		st, _ := t.states.LoadOrCompute(key, func() (*state, bool) {
			return &state{}, false
		})
		st.mu.Lock()
		if !st.evicted {
			return st
		}
		st.mu.Unlock()
	}
}

// Records a message and returns the resulting window sizes.
//
// Entries with ts - entry >= window are pruned before the message is appended, so both the rate and the duplicate checks read the same window.
func (t *Tracker) Observe(groupID, authorID, content string, ts time.Time, window time.Duration) Observation {
	st := t.acquire(stateKey(groupID, authorID))
	defer st.mu.Unlock()

	kept := st.samples[:0]
	for _, s := range st.samples {
		if ts.Sub(s.ts) < window {
			kept = append(kept, s)
		}
	}
	h := helpers.HashOfString(content)
	kept = append(kept, sample{hash: h, ts: ts})
	st.samples = kept
	if ts.After(st.lastSeen) {
		st.lastSeen = ts
	}

	obs := Observation{
		Count:           len(kept),
		LastViolationAt: st.lastViolationAt,
	}
	for _, s := range kept {
		if s.hash == h {
			obs.Duplicates++
		}
	}
	return obs
}

// Stamps the time of the author's latest violation.
func (t *Tracker) MarkViolation(groupID, authorID string, at time.Time) {
	st := t.acquire(stateKey(groupID, authorID))
	defer st.mu.Unlock()
	st.lastViolationAt = at
	if at.After(st.lastSeen) {
		st.lastSeen = at
	}
}

// Checks an observation against the spam limits. Returns the violation detail ("rate" or "duplicate"), or an empty string.
func Check(obs Observation, cfg config.SpamConfig) string {
	if obs.Count > cfg.MaxMessages {
		return DetailRate
	}
	if obs.Duplicates > cfg.MaxDuplicates {
		return DetailDuplicate
	}
	return ""
}

// Number of tracked (group, author) pairs.
func (t *Tracker) Size() int {
	return t.states.Size()
}

// Evicts state for authors not seen for IdleTTL. Returns the number of evicted entries.
func (t *Tracker) Sweep(now time.Time) int {
	evicted := 0
	t.states.Range(func(key string, st *state) bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.evicted || now.Sub(st.lastSeen) < t.IdleTTL {
			return true
		}
		st.evicted = true
		t.states.Delete(key)
		evicted++
		return true
	})
	if evicted > 0 {
		t.Logger.Debug("evicted idle behavior state", "count", evicted, "remaining", t.states.Size())
	}
	return evicted
}

// Sweeps periodically until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}
