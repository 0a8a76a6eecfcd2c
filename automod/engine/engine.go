package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-bot/warden/automod/behavior"
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/automod/filter"
	"github.com/aegis-bot/warden/automod/ledger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("automod")

// namespace for record ids derived from message ids, so a redelivered message maps onto the same ledger record
var recordNamespace = uuid.MustParse("5f1d7a3e-8c2b-4e0f-9a6d-3b7c1e2f4a58")

const DefaultSweepInterval = time.Minute

// Coordinates the moderation pipeline for inbound messages: config lookup, exemptions, behavior tracking, filter evaluation and action execution.
//
// Fields must be non-nil; use NewEngine.
type Engine struct {
	Logger   *slog.Logger
	Configs  config.Provider
	Filters  *filter.Set
	Tracker  *behavior.Tracker
	Executor *effects.Executor

	SweepInterval time.Duration

	queue *keyedQueue
	locks *keyedLocks
	now   func() time.Time
}

func NewEngine(configs config.Provider, filters *filter.Set, tracker *behavior.Tracker, executor *effects.Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if filters == nil {
		filters = filter.DefaultSet()
	}
	if tracker == nil {
		tracker = behavior.NewTracker(behavior.DefaultIdleTTL, logger)
	}
	eng := &Engine{
		Logger:        logger.With("component", "automod"),
		Configs:       configs,
		Filters:       filters,
		Tracker:       tracker,
		Executor:      executor,
		SweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	eng.queue = newKeyedQueue(eng.handleQueued)
	eng.locks = newKeyedLocks()
	return eng
}

// Runs the full pipeline for one message, synchronously. Calls for the same author in the same group are serialized, whether they come through the queue or not.
//
// The returned error is non-nil only for invalid events and for violations which could not be written to the ledger (wrapping ledger.ErrLedgerWriteFailed). Failed side effects are reported through the Outcome, not the error.
func (eng *Engine) ProcessMessage(ctx context.Context, evt *MessageEvent) (out *Outcome, err error) {
	if err := evt.Validate(); err != nil {
		messageErrorCount.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// tracker state, ledger counts and the sanction decision must see one message at a time per author
	unlock := eng.locks.Lock(evt.key())
	defer unlock()

	ctx, span := tracer.Start(ctx, "ProcessMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("group", evt.GroupID),
		attribute.String("author", evt.AuthorID),
		attribute.String("message", evt.ID),
	)

	start := time.Now()
	logger := eng.Logger.With("group", evt.GroupID, "author", evt.AuthorID, "channel", evt.ChannelID, "message", evt.ID)
	out = &Outcome{
		MessageID: evt.ID,
		GroupID:   evt.GroupID,
		AuthorID:  evt.AuthorID,
	}
	out.to(StateReceived)

	// similar to an HTTP server, we want to recover any panics from the pipeline
	defer func() {
		if r := recover(); r != nil {
			logger.Error("automod message processing exception", "err", r)
			messageErrorCount.WithLabelValues("panic").Inc()
			err = fmt.Errorf("automod pipeline panic: %v", r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("state", string(out.State)))
		messageProcessCount.WithLabelValues(string(out.State)).Inc()
		messageProcessDuration.Observe(time.Since(start).Seconds())
	}()

	cfg, cerr := eng.Configs.GetConfig(ctx, evt.GroupID)
	if cerr != nil || cfg == nil {
		if cerr == nil {
			cerr = fmt.Errorf("%w: group %s: no config returned", config.ErrConfigUnavailable, evt.GroupID)
		}
		logger.Warn("failed to load moderation config, using defaults", "err", cerr)
		messageErrorCount.WithLabelValues("config").Inc()
		out.ConfigErr = cerr
		cfg = config.Default()
	}

	if !cfg.Enabled {
		out.to(StateDisabled)
		return out, nil
	}

	if exempt, reasons := IsExempt(evt, cfg); exempt {
		out.ExemptReasons = reasons
		out.to(StateExempt)
		out.CanonicalLogLine(logger)
		return out, nil
	}

	out.to(StateEvaluating)
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = eng.now()
	}
	msg := &filter.Message{
		Content:        evt.Content,
		MentionedUsers: evt.MentionedUsers,
		MentionedRoles: evt.MentionedRoles,
	}
	if cfg.Filters.Spam.Enabled {
		window := time.Duration(cfg.Filters.Spam.TimeWindowSeconds) * time.Second
		obs := eng.Tracker.Observe(evt.GroupID, evt.AuthorID, evt.Content, ts, window)
		msg.Behavior = &obs
	}

	res := eng.Filters.Evaluate(ctx, msg, cfg)
	out.FilterErrors = res.Errors
	if len(res.Errors) > 0 {
		filterErrorCount.Add(float64(len(res.Errors)))
		for _, ferr := range res.Errors {
			logger.Warn("filter evaluation failed", "err", ferr)
		}
	}

	out.Violations = res.Triggered()
	if len(out.Violations) == 0 {
		out.to(StateClean)
		return out, nil
	}
	out.to(StateViolating)
	for _, v := range out.Violations {
		violationCount.WithLabelValues(string(v.Kind)).Inc()
	}
	eng.Tracker.MarkViolation(evt.GroupID, evt.AuthorID, ts)

	plan := &effects.Plan{
		GroupID:   evt.GroupID,
		ChannelID: evt.ChannelID,
		MessageID: evt.ID,
		AuthorID:  evt.AuthorID,
		Content:   evt.Content,
		Verdicts:  out.Violations,
		Config:    cfg,
		RecordID:  RecordIDFor(evt),
		At:        ts,
	}
	rep := eng.Executor.Execute(ctx, plan)
	out.Report = rep

	if rep.Recorded {
		out.to(StateRecorded)
	}
	// the executor always reaches a decision, falling back to this violation alone if counts are unavailable
	out.to(StateEscalated)
	out.to(StateActioned)
	out.CanonicalLogLine(logger)

	if !rep.Recorded {
		messageErrorCount.WithLabelValues("ledger").Inc()
		if rec := rep.Result(effects.StepRecord); rec != nil && rec.Err != nil {
			return out, rec.Err
		}
		return out, ledger.ErrLedgerWriteFailed
	}
	return out, nil
}

// Ledger record id for a message. Stable across redeliveries of the same message.
func RecordIDFor(evt *MessageEvent) string {
	return uuid.NewSHA1(recordNamespace, []byte(evt.GroupID+"/"+evt.ID)).String()
}

// Queues a message for processing. Messages from the same author in the same group are processed in arrival order; everything else runs concurrently. Returns false if the engine is shutting down.
func (eng *Engine) OnMessage(evt *MessageEvent) bool {
	if err := evt.Validate(); err != nil {
		eng.Logger.Warn("dropping invalid message event", "err", err)
		messageErrorCount.WithLabelValues("invalid").Inc()
		return true
	}
	return eng.queue.Enqueue(evt.key(), evt)
}

func (eng *Engine) handleQueued(evt *MessageEvent) {
	// queued messages are detached from whatever context delivered them
	ctx := context.Background()
	if _, err := eng.ProcessMessage(ctx, evt); err != nil {
		eng.Logger.Error("automod message processing failed", "group", evt.GroupID, "message", evt.ID, "err", err)
	}
}

type invalidator interface {
	Invalidate(ctx context.Context, groupID string) error
}

// Called after a group's configuration changed, so that cached copies are dropped. Messages already being evaluated keep the config they started with.
func (eng *Engine) OnConfigChanged(ctx context.Context, groupID string) error {
	inv, ok := eng.Configs.(invalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, groupID); err != nil {
		return fmt.Errorf("invalidating config cache for group %s: %w", groupID, err)
	}
	eng.Logger.Info("moderation config changed", "group", groupID)
	return nil
}

// Runs background maintenance (behavior tracker sweeps) until the context is cancelled.
func (eng *Engine) Run(ctx context.Context) error {
	interval := eng.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			n := eng.Tracker.Sweep(eng.now())
			size := eng.Tracker.Size()
			trackerSize.Set(float64(size))
			if n > 0 {
				eng.Logger.Debug("swept idle behavior state", "removed", n, "remaining", size)
			}
		}
	}
}

// Stops accepting queued messages, and waits for everything already queued to finish.
func (eng *Engine) Close() {
	eng.queue.Close()
}
