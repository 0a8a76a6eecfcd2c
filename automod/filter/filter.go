// Content filters: pure classifiers from (message, group config) to a verdict.
//
// Each kind of filter is a plain Func. A Set holds the funcs and evaluates the enabled ones for a message, always reporting verdicts in the fixed order profanity, spam, links, caps, mentions, zalgo.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegis-bot/warden/automod/behavior"
	"github.com/aegis-bot/warden/automod/config"

	"golang.org/x/sync/errgroup"
)

type Kind = config.FilterKind

const (
	KindProfanity = config.KindProfanity
	KindSpam      = config.KindSpam
	KindLinks     = config.KindLinks
	KindCaps      = config.KindCaps
	KindMentions  = config.KindMentions
	KindZalgo     = config.KindZalgo
)

// A filter failed (error or panic). The filter is treated as not triggered.
var ErrFilterEvaluation = errors.New("filter evaluation failed")

// What a filter gets to look at.
type Message struct {
	Content string
	// resolved by the platform; when empty, mentions are parsed out of Content
	MentionedUsers []string
	MentionedRoles []string
	// sliding-window observation from the behavior tracker. nil means no observation was made, and the spam filter won't trigger
	Behavior *behavior.Observation
}

type Verdict struct {
	Kind      Kind
	Triggered bool
	// short machine-readable reason, eg "rate" or "invite"
	Detail string
}

// Filters must be pure: no I/O, no shared mutable state.
type Func func(msg *Message, cfg *config.GuildConfig) (Verdict, error)

type Set struct {
	funcs map[Kind]Func
}

func NewSet(funcs map[Kind]Func) *Set {
	return &Set{funcs: funcs}
}

// The standard set of filters, one per kind.
func DefaultSet() *Set {
	return NewSet(map[Kind]Func{
		KindProfanity: CheckProfanity,
		KindSpam:      CheckSpam,
		KindLinks:     CheckLinks,
		KindCaps:      CheckCaps,
		KindMentions:  CheckMentions,
		KindZalgo:     CheckZalgo,
	})
}

type Result struct {
	// one verdict per evaluated filter, in the fixed order
	Verdicts []Verdict
	Errors   []error
}

// Triggered verdicts, in the fixed order.
func (r *Result) Triggered() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Triggered {
			out = append(out, v)
		}
	}
	return out
}

func (r *Result) Kinds() []Kind {
	var out []Kind
	for _, v := range r.Triggered() {
		out = append(out, v.Kind)
	}
	return out
}

// First triggered kind, or empty string if nothing triggered.
func (r *Result) Primary() Kind {
	for _, v := range r.Verdicts {
		if v.Triggered {
			return v.Kind
		}
	}
	return ""
}

func runOne(kind Kind, fn Func, msg *Message, cfg *config.GuildConfig) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{Kind: kind}
			err = fmt.Errorf("%w: %s: panic: %v", ErrFilterEvaluation, kind, r)
		}
	}()
	v, err = fn(msg, cfg)
	v.Kind = kind
	if err != nil {
		return Verdict{Kind: kind}, fmt.Errorf("%w: %s: %w", ErrFilterEvaluation, kind, err)
	}
	return v, nil
}

// Runs every enabled filter concurrently. A failing filter is reported in Result.Errors and does not affect the others.
func (s *Set) Evaluate(ctx context.Context, msg *Message, cfg *config.GuildConfig) *Result {
	var kinds []Kind
	for _, k := range config.FilterOrder {
		if _, ok := s.funcs[k]; ok && cfg.Filters.Enabled(k) {
			kinds = append(kinds, k)
		}
	}

	verdicts := make([]Verdict, len(kinds))
	errs := make([]error, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range kinds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				verdicts[i] = Verdict{Kind: k}
				errs[i] = fmt.Errorf("%w: %s: %w", ErrFilterEvaluation, k, err)
				return nil
			}
			verdicts[i], errs[i] = runOne(k, s.funcs[k], msg, cfg)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Verdicts: verdicts}
	for _, err := range errs {
		if err != nil {
			res.Errors = append(res.Errors, err)
		}
	}
	return res
}
