package filter

import (
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/helpers"
)

func CheckMentions(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
	users := msg.MentionedUsers
	if len(users) == 0 {
		users = helpers.ExtractUserMentions(msg.Content)
	}
	roles := msg.MentionedRoles
	if len(roles) == 0 {
		roles = helpers.ExtractRoleMentions(msg.Content)
	}
	mc := cfg.Filters.Mentions
	if len(helpers.DedupeStrings(users)) > mc.MaxMentions {
		return Verdict{Triggered: true, Detail: "users"}, nil
	}
	if len(helpers.DedupeStrings(roles)) > mc.MaxRoleMentions {
		return Verdict{Triggered: true, Detail: "roles"}, nil
	}
	return Verdict{}, nil
}
