package filter

import (
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/keyword"
)

func CheckProfanity(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
	custom := make(map[string]bool, len(cfg.Filters.Profanity.CustomWords))
	for _, w := range cfg.Filters.Profanity.CustomWords {
		if clean := keyword.LettersOnly(w); clean != "" {
			custom[clean] = true
		}
	}

	for _, tok := range keyword.TokenizeWords(msg.Content) {
		clean, leet := keyword.MatchForms(tok)
		if keyword.IsBaseProfanity(clean) || keyword.TokenInSets(clean, custom) {
			return Verdict{Triggered: true, Detail: "word"}, nil
		}
		if keyword.IsBaseProfanity(leet) || keyword.TokenInSets(leet, custom) {
			return Verdict{Triggered: true, Detail: "leet"}, nil
		}
	}
	return Verdict{}, nil
}
