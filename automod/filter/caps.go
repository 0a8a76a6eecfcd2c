package filter

import (
	"unicode"
	"unicode/utf8"

	"github.com/aegis-bot/warden/automod/config"
)

// Percentage of upper-case letters in the text, out of all runes.
func CapsPercentage(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(total) * 100
}

func CheckCaps(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
	cc := cfg.Filters.Caps
	if utf8.RuneCountInString(msg.Content) < cc.MinLength {
		return Verdict{}, nil
	}
	if CapsPercentage(msg.Content) > cc.MaxPercentage {
		return Verdict{Triggered: true, Detail: "caps"}, nil
	}
	return Verdict{}, nil
}
