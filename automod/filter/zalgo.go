package filter

import (
	"unicode"
	"unicode/utf8"

	"github.com/aegis-bot/warden/automod/config"
)

// combining diacritical mark blocks abused for "zalgo" text
var zalgoRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0300, Hi: 0x036f, Stride: 1},
		{Lo: 0x1ab0, Hi: 0x1aff, Stride: 1},
		{Lo: 0x1dc0, Hi: 0x1dff, Stride: 1},
		{Lo: 0x20d0, Hi: 0x20ff, Stride: 1},
		{Lo: 0xfe20, Hi: 0xfe2f, Stride: 1},
	},
}

// Fraction of runes in the text which are combining diacritics.
func ZalgoRatio(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	marks := 0
	for _, r := range text {
		if unicode.Is(zalgoRanges, r) {
			marks++
		}
	}
	return float64(marks) / float64(total)
}

func CheckZalgo(msg *Message, cfg *config.GuildConfig) (Verdict, error) {
	if ZalgoRatio(msg.Content) > cfg.Filters.Zalgo.Threshold {
		return Verdict{Triggered: true, Detail: "zalgo"}, nil
	}
	return Verdict{}, nil
}
