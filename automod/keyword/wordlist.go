package keyword

// Baseline profanity list. Groups extend it with their own custom words.
var BaseProfanity = []string{
	"fuck",
	"shit",
	"damn",
	"bitch",
	"asshole",
	"bastard",
}

var baseProfanitySet = WordSet(BaseProfanity)

// Returns true if the (already cleaned) token is in the baseline profanity list.
func IsBaseProfanity(tok string) bool {
	return TokenInSets(tok, baseProfanitySet)
}
