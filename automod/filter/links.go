package filter

import (
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/helpers"
)

func CheckLinks(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
	lc := cfg.Filters.Links
	if lc.BlockInvites && len(helpers.ExtractInvites(msg.Content)) > 0 {
		return Verdict{Triggered: true, Detail: "invite"}, nil
	}
	for _, u := range helpers.ExtractTextURLs(msg.Content) {
		host := helpers.NormalizedHost(u)
		allowed := false
		for _, domain := range lc.Whitelist {
			if helpers.HostMatchesDomain(host, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Verdict{Triggered: true, Detail: "url"}, nil
		}
	}
	return Verdict{}, nil
}
