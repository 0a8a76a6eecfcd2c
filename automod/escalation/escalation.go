// Graduated sanctions: maps rolling violation counts to the harshest tier they reach.
package escalation

import (
	"fmt"
	"time"

	"github.com/aegis-bot/warden/automod/config"
)

type Tier int

const (
	TierNone Tier = iota
	TierWarn
	TierMute
	TierBan
)

func (t Tier) String() string {
	switch t {
	case TierWarn:
		return "warn"
	case TierMute:
		return "mute"
	case TierBan:
		return "ban"
	}
	return "none"
}

type Decision struct {
	Tier Tier
	// only set for TierMute
	Duration time.Duration
	Reason   string
}

// Window for the mute tier count. Zero if the tier is disabled.
func MuteWindow(esc config.Escalation) time.Duration {
	if esc.Mute.Count <= 0 {
		return 0
	}
	return time.Duration(esc.Mute.WindowSeconds) * time.Second
}

// Window for the ban tier count. Zero if the tier is disabled.
func BanWindow(esc config.Escalation) time.Duration {
	if esc.Ban.Count <= 0 {
		return 0
	}
	return time.Duration(esc.Ban.WindowSeconds) * time.Second
}

// Picks the sanction for an author, given their violation counts over the mute and ban windows.
//
// Ban takes precedence over mute. A tier with a zero count threshold never fires. Increasing either count never yields a lighter tier.
func Decide(muteCount, banCount int, esc config.Escalation) Decision {
	if esc.Ban.Count > 0 && banCount >= esc.Ban.Count {
		return Decision{
			Tier:   TierBan,
			Reason: fmt.Sprintf("%d violations in %ds (ban threshold %d)", banCount, esc.Ban.WindowSeconds, esc.Ban.Count),
		}
	}
	if esc.Mute.Count > 0 && muteCount >= esc.Mute.Count {
		return Decision{
			Tier:     TierMute,
			Duration: time.Duration(esc.Mute.DurationSeconds) * time.Second,
			Reason:   fmt.Sprintf("%d violations in %ds (mute threshold %d)", muteCount, esc.Mute.WindowSeconds, esc.Mute.Count),
		}
	}
	return Decision{Tier: TierNone}
}
