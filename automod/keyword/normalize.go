package keyword

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// How Tokenize splits and cleans message text.
type Mode int

const (
	// Whitespace split only. Punctuation and digits stay on the token, so word filters can undo leet-speak before cleaning.
	ModeWords Mode = iota
	// Punctuation becomes a token boundary.
	ModeText
	// Like ModeText, but censor characters (#*_-) are dropped instead of splitting, so "f*ck" stays one token.
	ModeCensored
	// Splits on anything that is not a letter or digit, and drops single character pieces. For ids and domain names.
	ModeIdentifier
)

var (
	punctRegex     = regexp.MustCompile(`[^\pL\pN\s]+`)
	censorRegex    = regexp.MustCompile(`[#*_-]+`)
	nonAlnumRegex  = regexp.MustCompile(`[^\pL\pN]+`)
	nonLetterRegex = regexp.MustCompile(`[^\pL]+`)
)

// Strips combining marks (accents, and most zalgo noise) and lower-cases.
func FoldText(text string) string {
	// transformers carry state, so a fresh chain is needed per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		folded = text
	}
	return strings.ToLower(folded)
}

// Lower-cased letters and digits only.
func Slugify(s string) string {
	return strings.ToLower(nonAlnumRegex.ReplaceAllString(s, ""))
}

// Lower-cased letters only. This is the form word lists are matched in.
func LettersOnly(s string) string {
	return strings.ToLower(nonLetterRegex.ReplaceAllString(s, ""))
}

func Tokenize(text string, mode Mode) []string {
	folded := FoldText(text)
	switch mode {
	case ModeText:
		return strings.Fields(punctRegex.ReplaceAllString(folded, " "))
	case ModeCensored:
		return strings.Fields(punctRegex.ReplaceAllString(censorRegex.ReplaceAllString(folded, ""), " "))
	case ModeIdentifier:
		out := []string{}
		for _, tok := range strings.Fields(nonAlnumRegex.ReplaceAllString(folded, " ")) {
			if len([]rune(tok)) > 1 {
				out = append(out, tok)
			}
		}
		return out
	}
	return strings.Fields(folded)
}

func TokenizeWords(text string) []string {
	return Tokenize(text, ModeWords)
}

// The two forms a raw token is checked in: letters only, and letters only after undoing leet substitutions. leet is empty when it would equal clean.
func MatchForms(tok string) (clean, leet string) {
	clean = LettersOnly(tok)
	// digits have to be mapped back before they get stripped
	leet = LettersOnly(CanonicalizeLeet(tok))
	if leet == clean {
		leet = ""
	}
	return clean, leet
}
