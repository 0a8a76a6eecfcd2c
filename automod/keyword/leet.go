package keyword

import "strings"

// digit substitutions commonly used to dodge word filters
var leetReplacer = strings.NewReplacer(
	"0", "o",
	"1", "l",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
)

// Maps common leet-speak digits back to the letters they stand in for. Other characters are left untouched.
func CanonicalizeLeet(tok string) string {
	return leetReplacer.Replace(tok)
}
