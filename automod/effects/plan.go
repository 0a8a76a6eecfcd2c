package effects

import (
	"fmt"
	"strings"
	"time"

	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/escalation"
	"github.com/aegis-bot/warden/automod/filter"
	"github.com/aegis-bot/warden/automod/ledger"
)

// max content included in log channel messages
const logContentRunes = 1000

// Everything the executor needs to act on one violating message.
type Plan struct {
	GroupID   string
	ChannelID string
	MessageID string
	AuthorID  string
	Content   string
	// triggered verdicts, in evaluation order
	Verdicts []filter.Verdict
	Config   *config.GuildConfig
	// assigned once per message, so retried ledger writes stay idempotent
	RecordID string
	At       time.Time
}

func (p *Plan) Kinds() []config.FilterKind {
	out := make([]config.FilterKind, len(p.Verdicts))
	for i, v := range p.Verdicts {
		out[i] = v.Kind
	}
	return out
}

func (p *Plan) kindNames() string {
	names := make([]string, len(p.Verdicts))
	for i, v := range p.Verdicts {
		names[i] = string(v.Kind)
		if v.Detail != "" && v.Detail != string(v.Kind) {
			names[i] += ":" + v.Detail
		}
	}
	return strings.Join(names, ", ")
}

func (p *Plan) record(action ledger.ActionTaken) *ledger.ViolationRecord {
	meta := make(map[string]string, len(p.Verdicts))
	for _, v := range p.Verdicts {
		meta[string(v.Kind)] = v.Detail
	}
	return &ledger.ViolationRecord{
		ID:              p.RecordID,
		GroupID:         p.GroupID,
		AuthorID:        p.AuthorID,
		ChannelID:       p.ChannelID,
		MessageID:       p.MessageID,
		Kinds:           p.Kinds(),
		Metadata:        meta,
		ContentSnapshot: p.Content,
		ActionTaken:     action,
		CreatedAt:       p.At,
	}
}

// Harshest action the plan leads to, for the ledger record.
func plannedAction(actions config.Actions, d escalation.Decision) ledger.ActionTaken {
	switch {
	case d.Tier == escalation.TierBan:
		return ledger.ActionBan
	case d.Tier == escalation.TierMute:
		return ledger.ActionTimeout
	case actions.Delete:
		return ledger.ActionDelete
	case actions.Warn:
		return ledger.ActionWarn
	}
	return ledger.ActionNone
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Text posted to the group's moderation log channel.
func LogMessage(p *Plan, d escalation.Decision) string {
	var sb strings.Builder
	sb.WriteString("🛡️ Automod violation\n")
	fmt.Fprintf(&sb, "User: <@%s> (%s)\n", p.AuthorID, p.AuthorID)
	fmt.Fprintf(&sb, "Channel: <#%s>\n", p.ChannelID)
	fmt.Fprintf(&sb, "Violations: %s\n", p.kindNames())
	if d.Tier > escalation.TierWarn {
		fmt.Fprintf(&sb, "Sanction: %s (%s)\n", d.Tier, d.Reason)
	}
	fmt.Fprintf(&sb, "Content: ```%s```", truncateRunes(p.Content, logContentRunes))
	return sb.String()
}

func DirectMessage(p *Plan) string {
	return fmt.Sprintf("Your message in server %s was flagged by automod for: %s. Please review the server rules.", p.GroupID, p.kindNames())
}

func WarnMessage(p *Plan) string {
	return fmt.Sprintf("<@%s>, please follow the server rules. Your message was flagged for: %s.", p.AuthorID, p.kindNames())
}
