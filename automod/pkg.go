package automod

import (
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/engine"
	"github.com/aegis-bot/warden/automod/filter"
)

type Engine = engine.Engine
type MessageEvent = engine.MessageEvent
type Outcome = engine.Outcome
type State = engine.State

type GuildConfig = config.GuildConfig
type FilterKind = config.FilterKind

type Verdict = filter.Verdict
type FilterFunc = filter.Func

var (
	NewEngine      = engine.NewEngine
	DefaultConfig  = config.Default
	DefaultFilters = filter.DefaultSet

	StateReceived   = engine.StateReceived
	StateDisabled   = engine.StateDisabled
	StateExempt     = engine.StateExempt
	StateEvaluating = engine.StateEvaluating
	StateClean      = engine.StateClean
	StateViolating  = engine.StateViolating
	StateRecorded   = engine.StateRecorded
	StateEscalated  = engine.StateEscalated
	StateActioned   = engine.StateActioned
)
