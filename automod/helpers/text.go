package helpers

import (
	"fmt"
	"regexp"

	"github.com/spaolacci/murmur3"
)

func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

var (
	urlRegex    = regexp.MustCompile(`(?i)https?://[^\s]+`)
	inviteRegex = regexp.MustCompile(`(?i)(?:discord\.gg/|discord\.com/invite/|discordapp\.com/invite/)[^\s]+`)
)

// Returns every http(s) URL in the text, in order of appearance.
func ExtractTextURLs(raw string) []string {
	return urlRegex.FindAllString(raw, -1)
}

// Returns platform invite links, with or without a scheme.
func ExtractInvites(raw string) []string {
	return inviteRegex.FindAllString(raw, -1)
}

var (
	userMentionRegex = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRegex = regexp.MustCompile(`<@&(\d+)>`)
)

// Parses user mention tokens (<@id> or <@!id>) and returns the distinct ids.
func ExtractUserMentions(raw string) []string {
	return extractIDs(userMentionRegex, raw)
}

// Parses role mention tokens (<@&id>) and returns the distinct ids.
func ExtractRoleMentions(raw string) []string {
	return extractIDs(roleMentionRegex, raw)
}

func extractIDs(re *regexp.Regexp, raw string) []string {
	var ids []string
	for _, m := range re.FindAllStringSubmatch(raw, -1) {
		ids = append(ids, m[1])
	}
	return DedupeStrings(ids)
}
