package filter

import (
	"github.com/aegis-bot/warden/automod/behavior"
	"github.com/aegis-bot/warden/automod/config"
)

func CheckSpam(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
	if msg.Behavior == nil {
		return Verdict{}, nil
	}
	detail := behavior.Check(*msg.Behavior, cfg.Filters.Spam)
	return Verdict{Triggered: detail != "", Detail: detail}, nil
}
