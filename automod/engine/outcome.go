package engine

import (
	"log/slog"

	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/automod/filter"
)

type State string

const (
	StateReceived   State = "received"
	StateDisabled   State = "disabled"
	StateExempt     State = "exempt"
	StateEvaluating State = "evaluating"
	StateClean      State = "clean"
	StateViolating  State = "violating"
	StateRecorded   State = "recorded"
	StateEscalated  State = "escalated"
	StateActioned   State = "actioned"
)

// What happened to a single message.
type Outcome struct {
	MessageID string
	GroupID   string
	AuthorID  string
	// terminal state
	State State
	// every state passed through, in order
	Trail []State

	ExemptReasons []string
	// triggered verdicts, in evaluation order
	Violations   []filter.Verdict
	FilterErrors []error
	// set when the group config could not be loaded and defaults were used
	ConfigErr error
	Report    *effects.Report
}

func (o *Outcome) to(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

func (o *Outcome) Kinds() []filter.Kind {
	out := make([]filter.Kind, len(o.Violations))
	for i, v := range o.Violations {
		out[i] = v.Kind
	}
	return out
}

func (o *Outcome) CanonicalLogLine(logger *slog.Logger) {
	attrs := []any{
		"state", o.State,
		"violations", o.Kinds(),
		"filterErrors", len(o.FilterErrors),
	}
	if len(o.ExemptReasons) > 0 {
		attrs = append(attrs, "exempt", o.ExemptReasons)
	}
	if o.ConfigErr != nil {
		attrs = append(attrs, "configErr", o.ConfigErr)
	}
	if o.Report != nil {
		attrs = append(attrs,
			"recorded", o.Report.Recorded,
			"record", o.Report.RecordID,
			"sanction", o.Report.Decision.Tier.String(),
			"actionErr", o.Report.Err(),
		)
	}
	logger.Info("canonical-event-line", attrs...)
}
