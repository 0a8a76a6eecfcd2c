// Carries out moderation actions for a violating message.
//
// Execution is an ordered list of steps. Each step runs with its own timeout and its own error capture, so a failing step never prevents the following ones from running.
package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-bot/warden/automod/escalation"
	"github.com/aegis-bot/warden/automod/ledger"
	"github.com/aegis-bot/warden/automod/sanctionstore"

	"github.com/RussellLuo/slidingwindow"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	DefaultStepTimeout = 5 * time.Second
	// max automated mutes+bans per group per hour before the circuit breaker trips
	DefaultSanctionQuotaHour = 30
)

type Step string

const (
	StepDelete   Step = "delete"
	StepRecord   Step = "record"
	StepEscalate Step = "escalate"
	StepLog      Step = "log"
	StepDM       Step = "dm"
	StepWarn     Step = "warn"
	StepSanction Step = "sanction"
)

type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type StepResult struct {
	Step    Step
	Outcome Outcome
	// why a step was skipped, or what it did
	Detail string
	Err    error
}

type Report struct {
	Steps    []StepResult
	RecordID string
	// false if the ledger write failed; the escalation counts then include the unrecorded violation
	Recorded bool
	Decision escalation.Decision
	// predicted harshest action, as stored on the ledger record
	ActionTaken ledger.ActionTaken
}

func (r *Report) Result(s Step) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Step == s {
			return &r.Steps[i]
		}
	}
	return nil
}

// All step errors, joined. nil if every step succeeded or was skipped.
func (r *Report) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

type skipError struct {
	reason string
}

func (e *skipError) Error() string {
	return "skipped: " + e.reason
}

func skip(reason string) error {
	return &skipError{reason: reason}
}

type step struct {
	name Step
	run  func(ctx context.Context, p *Plan, rep *Report) (string, error)
}

type Executor struct {
	Sink      ActionSink
	Ledger    ledger.Store
	Sanctions sanctionstore.Store
	// optional
	Notifier Notifier
	Logger   *slog.Logger

	StepTimeout       time.Duration
	LedgerAttempts    int
	LedgerBackoff     time.Duration
	SanctionQuotaHour int64

	breakers *xsync.Map[string, *slidingwindow.Limiter]
	now      func() time.Time
}

func NewExecutor(sink ActionSink, store ledger.Store, sanctions sanctionstore.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		Sink:              sink,
		Ledger:            store,
		Sanctions:         sanctions,
		Logger:            logger.With("component", "executor"),
		StepTimeout:       DefaultStepTimeout,
		LedgerAttempts:    3,
		LedgerBackoff:     100 * time.Millisecond,
		SanctionQuotaHour: DefaultSanctionQuotaHour,
		breakers:          xsync.NewMap[string, *slidingwindow.Limiter](),
		now:               time.Now,
	}
}

func (ex *Executor) steps() []step {
	return []step{
		{StepDelete, ex.deleteMessage},
		{StepRecord, ex.recordViolation},
		{StepEscalate, ex.escalate},
		{StepLog, ex.sendLog},
		{StepDM, ex.sendDM},
		{StepWarn, ex.warn},
		{StepSanction, ex.sanction},
	}
}

// Runs every step in order. Never returns early: failures are captured per step in the report.
func (ex *Executor) Execute(ctx context.Context, p *Plan) *Report {
	if p.RecordID == "" {
		p.RecordID = ledger.NewRecordID()
	}
	if p.At.IsZero() {
		p.At = ex.now()
	}
	rep := &Report{RecordID: p.RecordID}
	logger := ex.Logger.With("group", p.GroupID, "author", p.AuthorID, "message", p.MessageID)
	for _, s := range ex.steps() {
		res := ex.runStep(ctx, s, p, rep)
		actionResults.WithLabelValues(string(res.Step), string(res.Outcome)).Inc()
		switch res.Outcome {
		case OutcomeFailed:
			logger.Warn("automod action failed", "step", res.Step, "err", res.Err)
		case OutcomeSkipped:
			logger.Debug("automod action skipped", "step", res.Step, "reason", res.Detail)
		}
		rep.Steps = append(rep.Steps, res)
	}
	return rep
}

func (ex *Executor) runStep(ctx context.Context, s step, p *Plan, rep *Report) (res StepResult) {
	res.Step = s.name
	timeout := ex.StepTimeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	if s.name == StepRecord {
		// room for the retries
		timeout *= time.Duration(max(ex.LedgerAttempts, 1))
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// similar to the engine: a panicking step must not take the others down
	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("%w: %s: panic: %v", ErrActionFailed, s.name, r)
		}
	}()

	detail, err := s.run(sctx, p, rep)
	res.Detail = detail
	var se *skipError
	switch {
	case err == nil:
		res.Outcome = OutcomeOK
	case errors.As(err, &se):
		res.Outcome = OutcomeSkipped
		res.Detail = se.reason
	case errors.Is(err, ledger.ErrLedgerWriteFailed):
		res.Outcome = OutcomeFailed
		res.Err = err
	default:
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%w: %s: %w", ErrActionFailed, s.name, err)
	}
	return res
}

func (ex *Executor) deleteMessage(ctx context.Context, p *Plan, rep *Report) (string, error) {
	if !p.Config.Actions.Delete {
		return "", skip("disabled")
	}
	err := ex.Sink.DeleteMessage(ctx, p.GroupID, p.ChannelID, p.MessageID)
	if errors.Is(err, ErrNotFound) {
		return "already gone", nil
	}
	return "", err
}

func (ex *Executor) counts(ctx context.Context, p *Plan) (int, int, error) {
	esc := p.Config.Escalation
	mute, ban := 0, 0
	var err error
	if w := escalation.MuteWindow(esc); w > 0 {
		if mute, err = ex.Ledger.CountSince(ctx, p.GroupID, p.AuthorID, p.At.Add(-w)); err != nil {
			return 0, 0, err
		}
	}
	if w := escalation.BanWindow(esc); w > 0 {
		if ban, err = ex.Ledger.CountSince(ctx, p.GroupID, p.AuthorID, p.At.Add(-w)); err != nil {
			return 0, 0, err
		}
	}
	return mute, ban, nil
}

func (ex *Executor) recordViolation(ctx context.Context, p *Plan, rep *Report) (string, error) {
	// the author's messages are serialized, so the count before the write plus one is what escalation will see after it
	predicted := escalation.Decision{}
	if mute, ban, err := ex.counts(ctx, p); err == nil {
		predicted = escalation.Decide(mute+1, ban+1, p.Config.Escalation)
	}
	rep.ActionTaken = plannedAction(p.Config.Actions, predicted)

	id, err := ledger.AppendWithRetry(ctx, ex.Ledger, p.record(rep.ActionTaken), ex.LedgerAttempts, ex.LedgerBackoff)
	if err != nil {
		ledgerFailures.Inc()
		return "", err
	}
	rep.Recorded = true
	rep.RecordID = id
	return id, nil
}

func (ex *Executor) escalate(ctx context.Context, p *Plan, rep *Report) (string, error) {
	mute, ban, err := ex.counts(ctx, p)
	switch {
	case err != nil:
		// best effort: this violation alone
		mute, ban = 1, 1
	case !rep.Recorded:
		mute++
		ban++
	}
	rep.Decision = escalation.Decide(mute, ban, p.Config.Escalation)
	if rep.Decision.Tier == escalation.TierNone && (p.Config.Actions.Warn || p.Config.Actions.Delete) {
		rep.Decision.Tier = escalation.TierWarn
	}
	if err != nil {
		return "", fmt.Errorf("counting violations: %w", err)
	}
	return fmt.Sprintf("%s (mute window %d, ban window %d)", rep.Decision.Tier, mute, ban), nil
}

func (ex *Executor) sendLog(ctx context.Context, p *Plan, rep *Report) (string, error) {
	if !p.Config.Actions.Log {
		return "", skip("disabled")
	}
	var errs []error
	if ex.Notifier != nil {
		if err := ex.Notifier.NotifyViolation(ctx, p, rep); err != nil {
			ex.Logger.Error("sending violation notification", "err", err)
			errs = append(errs, err)
		}
	}
	if p.Config.LogChannel == "" {
		if len(errs) > 0 {
			return "", errors.Join(errs...)
		}
		return "", skip("no log channel configured")
	}
	if err := ex.Sink.SendChannelMessage(ctx, p.GroupID, p.Config.LogChannel, LogMessage(p, rep.Decision)); err != nil {
		errs = append(errs, err)
	}
	return p.Config.LogChannel, errors.Join(errs...)
}

func (ex *Executor) sendDM(ctx context.Context, p *Plan, rep *Report) (string, error) {
	if !p.Config.Actions.DM {
		return "", skip("disabled")
	}
	if err := ex.Sink.SendDirectMessage(ctx, p.AuthorID, DirectMessage(p)); err != nil {
		// authors blocking DMs is normal
		return "", skip("not delivered: " + err.Error())
	}
	return "", nil
}

func (ex *Executor) warn(ctx context.Context, p *Plan, rep *Report) (string, error) {
	if !p.Config.Actions.Warn {
		return "", skip("disabled")
	}
	if rep.Decision.Tier > escalation.TierWarn {
		return "", skip("superseded by " + rep.Decision.Tier.String())
	}
	return p.ChannelID, ex.Sink.SendChannelMessage(ctx, p.GroupID, p.ChannelID, WarnMessage(p))
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// per-group limit on automated sanctions, in case a misconfiguration or a bug starts muting everybody
func (ex *Executor) allowSanction(groupID string) bool {
	if ex.SanctionQuotaHour <= 0 {
		return true
	}
	lim, _ := ex.breakers.LoadOrCompute(groupID, func() (*slidingwindow.Limiter, bool) {
		l, _ := slidingwindow.NewLimiter(time.Hour, ex.SanctionQuotaHour, windowFunc)
		return l, false
	})
	return lim.Allow()
}

func (ex *Executor) sanction(ctx context.Context, p *Plan, rep *Report) (string, error) {
	d := rep.Decision
	var kind sanctionstore.Kind
	switch d.Tier {
	case escalation.TierMute:
		kind = sanctionstore.KindMute
	case escalation.TierBan:
		kind = sanctionstore.KindBan
	default:
		return "", skip("below thresholds")
	}

	fresh, err := ex.Sanctions.Claim(ctx, p.GroupID, p.AuthorID, kind, d.Duration)
	if err != nil {
		return "", fmt.Errorf("checking sanction state: %w", err)
	}
	if !fresh {
		return "", skip("already sanctioned")
	}
	if !ex.allowSanction(p.GroupID) {
		ex.Logger.Warn("CIRCUIT BREAKER: automod sanctions", "group", p.GroupID, "author", p.AuthorID, "tier", d.Tier)
		circuitBreaks.WithLabelValues(string(kind)).Inc()
		if err := ex.Sanctions.Release(ctx, p.GroupID, p.AuthorID, kind); err != nil {
			ex.Logger.Error("releasing sanction claim", "err", err)
		}
		return "", skip("circuit breaker")
	}

	switch kind {
	case sanctionstore.KindMute:
		err = ex.Sink.MuteUser(ctx, p.GroupID, p.AuthorID, d.Duration, d.Reason)
	case sanctionstore.KindBan:
		err = ex.Sink.BanUser(ctx, p.GroupID, p.AuthorID, d.Reason)
	}
	if errors.Is(err, ErrAlreadySanctioned) {
		return "", skip("already sanctioned on platform")
	}
	if err != nil {
		// not applied, so the next violation over the threshold gets another attempt
		if rerr := ex.Sanctions.Release(context.WithoutCancel(ctx), p.GroupID, p.AuthorID, kind); rerr != nil {
			ex.Logger.Error("releasing sanction claim", "err", rerr)
		}
		return "", err
	}
	sanctionsApplied.WithLabelValues(string(kind)).Inc()
	ex.Logger.Info("applied automod sanction", "group", p.GroupID, "author", p.AuthorID, "tier", d.Tier, "duration", d.Duration, "reason", d.Reason)
	return d.Tier.String(), nil
}
