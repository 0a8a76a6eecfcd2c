package engine

import (
	"slices"

	"github.com/aegis-bot/warden/automod/config"
)

// Checks whether a message is exempt from moderation. Every check is evaluated, and all matching reasons are returned.
func IsExempt(evt *MessageEvent, cfg *config.GuildConfig) (bool, []string) {
	var reasons []string
	if evt.AuthorIsModerator {
		reasons = append(reasons, "moderator")
	}
	if slices.Contains(cfg.Exemptions.Users, evt.AuthorID) {
		reasons = append(reasons, "user")
	}
	if slices.Contains(cfg.Exemptions.Channels, evt.ChannelID) {
		reasons = append(reasons, "channel")
	}
	for _, role := range evt.AuthorRoles {
		if slices.Contains(cfg.Exemptions.Roles, role) {
			reasons = append(reasons, "role:"+role)
		}
	}
	return len(reasons) > 0, reasons
}
