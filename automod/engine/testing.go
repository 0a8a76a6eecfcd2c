package engine

import (
	"log/slog"
	"time"

	"github.com/aegis-bot/warden/automod/behavior"
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/automod/filter"
	"github.com/aegis-bot/warden/automod/ledger"
	"github.com/aegis-bot/warden/automod/sanctionstore"
)

// In-memory engine and the stores behind it. Intentionally exported, for use in other packages.
type TestFixture struct {
	Engine    *Engine
	Configs   *config.MemStore
	Ledger    *ledger.MemStore
	Sanctions *sanctionstore.MemStore
	Sink      *effects.RecordingSink
}

// Group "g1" has moderation enabled with default settings; every other group is disabled.
func EngineTestFixture() *TestFixture {
	logger := slog.Default()
	configs := config.NewMemStore()
	enabled := config.Default()
	enabled.Enabled = true
	configs.Put("g1", enabled)

	store := ledger.NewMemStore()
	sanctions := sanctionstore.NewMemStore(1000, 24*time.Hour)
	sink := effects.NewRecordingSink()
	ex := effects.NewExecutor(sink, store, sanctions, logger)
	ex.LedgerBackoff = time.Millisecond

	eng := NewEngine(configs, filter.DefaultSet(), behavior.NewTracker(behavior.DefaultIdleTTL, logger), ex, logger)
	return &TestFixture{
		Engine:    eng,
		Configs:   configs,
		Ledger:    store,
		Sanctions: sanctions,
		Sink:      sink,
	}
}

// Builds a message from "u1" in group "g1", channel "c1".
func NewTestMessage(id, content string, ts time.Time) *MessageEvent {
	return &MessageEvent{
		ID:        id,
		GroupID:   "g1",
		AuthorID:  "u1",
		ChannelID: "c1",
		Content:   content,
		Timestamp: ts,
	}
}
