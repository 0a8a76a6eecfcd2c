package keyword

// Checks a token against any number of word sets. Empty tokens never match.
func TokenInSets(tok string, sets ...map[string]bool) bool {
	if tok == "" {
		return false
	}
	for _, s := range sets {
		if s[tok] {
			return true
		}
	}
	return false
}

// Builds a lookup set from a word list, lower-casing every entry.
func WordSet(words []string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		w = Slugify(w)
		if w != "" {
			out[w] = true
		}
	}
	return out
}
