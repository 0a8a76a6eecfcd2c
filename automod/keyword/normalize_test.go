package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text string
		mode Mode
		out  []string
	}{
		{text: "", mode: ModeText, out: []string{}},
		{text: "Hello, โลก!", mode: ModeText, out: []string{"hello", "โลก"}},
		{text: "Gdańsk", mode: ModeText, out: []string{"gdansk"}},
		{text: "1 'Two' three!", mode: ModeText, out: []string{"1", "two", "three"}},
		{text: "what the f*ck, h_e_c_k!", mode: ModeCensored, out: []string{"what", "the", "fck", "heck"}},
		{text: "what the f*ck", mode: ModeText, out: []string{"what", "the", "f", "ck"}},
		{text: "", mode: ModeWords, out: []string{}},
		{text: "  D4mn\tthat's  Ärger ", mode: ModeWords, out: []string{"d4mn", "that's", "arger"}},
		{text: "a-b c.d", mode: ModeWords, out: []string{"a-b", "c.d"}},
		{text: "spam-site.example.com", mode: ModeIdentifier, out: []string{"spam", "site", "example", "com"}},
		{text: "@a-b-c", mode: ModeIdentifier, out: []string{}},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, Tokenize(fix.text, fix.mode), fix.text)
	}
}

func TestCleanForms(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("dmn", LettersOnly("D4-m!n"))
	assert.Equal("", LettersOnly("123 !!"))
	assert.Equal("hello", Slugify("Hel-lo"))
	assert.Equal("h3llo", Slugify("H3l-lo"))
	assert.Equal("e", FoldText("É"))

	clean, leet := MatchForms("d4mn")
	assert.Equal("dmn", clean)
	assert.Equal("damn", leet)

	clean, leet = MatchForms("darn!")
	assert.Equal("darn", clean)
	assert.Empty(leet)
}
