// Per-group moderation configuration: the data model, its documented defaults, and the providers the engine reads it from.
//
// The pipeline treats configuration as read-only. Changes go through the configuration API on GormStore (used by the command surface), which fires a change hook so cached copies can be invalidated.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Wrapped by every validation failure, so API callers can tell bad input from storage errors.
var ErrInvalidConfig = errors.New("invalid moderation config")

// Longest escalation window a group may configure. Ledger backends with retention keep at least this much history.
const MaxEscalationWindow = 7 * 24 * time.Hour

type FilterKind string

const (
	KindProfanity FilterKind = "profanity"
	KindSpam      FilterKind = "spam"
	KindLinks     FilterKind = "links"
	KindCaps      FilterKind = "caps"
	KindMentions  FilterKind = "mentions"
	KindZalgo     FilterKind = "zalgo"
)

// Fixed evaluation order of filters. The first triggered kind in this order is the "primary" violation of a message.
var FilterOrder = []FilterKind{
	KindProfanity,
	KindSpam,
	KindLinks,
	KindCaps,
	KindMentions,
	KindZalgo,
}

func ParseFilterKind(s string) (FilterKind, error) {
	for _, k := range FilterOrder {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown filter kind: %q", s)
}

type ProfanityConfig struct {
	Enabled bool `json:"enabled"`
	// low|medium|high. Informational only; the word list is the same for all levels.
	Severity    string   `json:"severity"`
	CustomWords []string `json:"customWords"`
}

type SpamConfig struct {
	Enabled           bool `json:"enabled"`
	MaxMessages       int  `json:"maxMessages"`
	TimeWindowSeconds int  `json:"timeWindow"`
	MaxDuplicates     int  `json:"maxDuplicates"`
}

type LinksConfig struct {
	Enabled      bool     `json:"enabled"`
	Whitelist    []string `json:"whitelist"`
	BlockInvites bool     `json:"blockInvites"`
}

type CapsConfig struct {
	Enabled bool `json:"enabled"`
	// percentage, 0-100
	MaxPercentage float64 `json:"maxPercentage"`
	MinLength     int     `json:"minLength"`
}

type MentionsConfig struct {
	Enabled         bool `json:"enabled"`
	MaxMentions     int  `json:"maxMentions"`
	MaxRoleMentions int  `json:"maxRoleMentions"`
}

type ZalgoConfig struct {
	Enabled bool `json:"enabled"`
	// fraction, 0-1
	Threshold float64 `json:"threshold"`
}

type Filters struct {
	Profanity ProfanityConfig `json:"profanity"`
	Spam      SpamConfig      `json:"spam"`
	Links     LinksConfig     `json:"links"`
	Caps      CapsConfig      `json:"caps"`
	Mentions  MentionsConfig  `json:"mentions"`
	Zalgo     ZalgoConfig     `json:"zalgo"`
}

func (f *Filters) Enabled(kind FilterKind) bool {
	switch kind {
	case KindProfanity:
		return f.Profanity.Enabled
	case KindSpam:
		return f.Spam.Enabled
	case KindLinks:
		return f.Links.Enabled
	case KindCaps:
		return f.Caps.Enabled
	case KindMentions:
		return f.Mentions.Enabled
	case KindZalgo:
		return f.Zalgo.Enabled
	}
	return false
}

func (f *Filters) SetEnabled(kind FilterKind, enabled bool) error {
	switch kind {
	case KindProfanity:
		f.Profanity.Enabled = enabled
	case KindSpam:
		f.Spam.Enabled = enabled
	case KindLinks:
		f.Links.Enabled = enabled
	case KindCaps:
		f.Caps.Enabled = enabled
	case KindMentions:
		f.Mentions.Enabled = enabled
	case KindZalgo:
		f.Zalgo.Enabled = enabled
	default:
		return fmt.Errorf("unknown filter kind: %q", kind)
	}
	return nil
}

type Exemptions struct {
	Roles    []string `json:"roles"`
	Channels []string `json:"channels"`
	Users    []string `json:"users"`
}

type ExemptionType string

const (
	ExemptRole    ExemptionType = "roles"
	ExemptChannel ExemptionType = "channels"
	ExemptUser    ExemptionType = "users"
)

func (e *Exemptions) list(t ExemptionType) (*[]string, error) {
	switch t {
	case ExemptRole:
		return &e.Roles, nil
	case ExemptChannel:
		return &e.Channels, nil
	case ExemptUser:
		return &e.Users, nil
	}
	return nil, fmt.Errorf("unknown exemption type: %q", t)
}

// Adds or removes an id from one of the exemption lists. Adding an existing id, or removing a missing one, is a no-op.
func (e *Exemptions) Update(t ExemptionType, id string, add bool) error {
	l, err := e.list(t)
	if err != nil {
		return err
	}
	idx := -1
	for i, v := range *l {
		if v == id {
			idx = i
			break
		}
	}
	if add && idx < 0 {
		*l = append(*l, id)
	}
	if !add && idx >= 0 {
		*l = append((*l)[:idx], (*l)[idx+1:]...)
	}
	return nil
}

type MuteThreshold struct {
	Count           int `json:"count"`
	WindowSeconds   int `json:"windowSeconds"`
	DurationSeconds int `json:"durationSeconds"`
}

type BanThreshold struct {
	Count         int `json:"count"`
	WindowSeconds int `json:"windowSeconds"`
}

// A Count of zero disables that tier.
type Escalation struct {
	Mute MuteThreshold `json:"mute"`
	Ban  BanThreshold  `json:"ban"`
}

type Actions struct {
	Delete bool `json:"delete"`
	Warn   bool `json:"warn"`
	Log    bool `json:"log"`
	DM     bool `json:"dm"`
}

type GuildConfig struct {
	Enabled    bool       `json:"enabled"`
	Filters    Filters    `json:"filters"`
	Exemptions Exemptions `json:"exemptions"`
	Escalation Escalation `json:"escalation"`
	Actions    Actions    `json:"actions"`
	LogChannel string     `json:"logChannel,omitempty"`
}

// Documented default configuration, used for groups without a stored config and whenever configuration can not be loaded.
//
// Moderation is disabled by default; every other value is what Enable() will store.
func Default() *GuildConfig {
	return &GuildConfig{
		Enabled: false,
		Filters: Filters{
			Profanity: ProfanityConfig{Enabled: true, Severity: "medium", CustomWords: []string{}},
			Spam:      SpamConfig{Enabled: true, MaxMessages: 5, TimeWindowSeconds: 10, MaxDuplicates: 3},
			Links:     LinksConfig{Enabled: false, Whitelist: []string{}, BlockInvites: true},
			Caps:      CapsConfig{Enabled: true, MaxPercentage: 70, MinLength: 6},
			Mentions:  MentionsConfig{Enabled: true, MaxMentions: 5, MaxRoleMentions: 2},
			Zalgo:     ZalgoConfig{Enabled: true, Threshold: 0.5},
		},
		Exemptions: Exemptions{Roles: []string{}, Channels: []string{}, Users: []string{}},
		Escalation: Escalation{
			Mute: MuteThreshold{Count: 5, WindowSeconds: 300, DurationSeconds: 600},
			Ban:  BanThreshold{Count: 10, WindowSeconds: 300},
		},
		Actions: Actions{Delete: true, Warn: true, Log: true, DM: false},
	}
}

// Deep copy, so callers can mutate without affecting cached or stored copies.
func (c *GuildConfig) Clone() *GuildConfig {
	b, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("config not serializable: %v", err))
	}
	var out GuildConfig
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("config not serializable: %v", err))
	}
	return &out
}

func (c *GuildConfig) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *GuildConfig) validate() error {
	f := c.Filters
	if f.Spam.MaxMessages < 0 || f.Spam.MaxDuplicates < 0 || f.Spam.TimeWindowSeconds < 0 {
		return fmt.Errorf("spam filter values must not be negative")
	}
	if f.Spam.Enabled && f.Spam.TimeWindowSeconds == 0 {
		return fmt.Errorf("spam filter time window must be positive")
	}
	if f.Caps.MaxPercentage < 0 || f.Caps.MaxPercentage > 100 {
		return fmt.Errorf("caps max percentage out of range: %v", f.Caps.MaxPercentage)
	}
	if f.Caps.MinLength < 0 {
		return fmt.Errorf("caps min length must not be negative")
	}
	if f.Mentions.MaxMentions < 0 || f.Mentions.MaxRoleMentions < 0 {
		return fmt.Errorf("mention limits must not be negative")
	}
	if f.Zalgo.Threshold < 0 || f.Zalgo.Threshold > 1 {
		return fmt.Errorf("zalgo threshold out of range: %v", f.Zalgo.Threshold)
	}
	switch f.Profanity.Severity {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("unknown profanity severity: %q", f.Profanity.Severity)
	}
	e := c.Escalation
	if e.Mute.Count < 0 || e.Mute.WindowSeconds < 0 || e.Mute.DurationSeconds < 0 {
		return fmt.Errorf("mute threshold values must not be negative")
	}
	if e.Mute.Count > 0 && (e.Mute.WindowSeconds == 0 || e.Mute.DurationSeconds == 0) {
		return fmt.Errorf("mute threshold needs a window and a duration")
	}
	if e.Ban.Count < 0 || e.Ban.WindowSeconds < 0 {
		return fmt.Errorf("ban threshold values must not be negative")
	}
	if e.Ban.Count > 0 && e.Ban.WindowSeconds == 0 {
		return fmt.Errorf("ban threshold needs a window")
	}
	maxWindow := int(MaxEscalationWindow / time.Second)
	if e.Mute.WindowSeconds > maxWindow || e.Ban.WindowSeconds > maxWindow {
		return fmt.Errorf("escalation windows must not exceed %s", MaxEscalationWindow)
	}
	return nil
}
