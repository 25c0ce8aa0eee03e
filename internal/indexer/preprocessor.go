package indexer

import "strings"

// NormalizeDescription is the text that gets embedded for a description:
// whitespace runs collapse to one space and the ends are trimmed.
// A blank description normalizes to "" and is never indexed.
func NormalizeDescription(description string) string {
	return strings.Join(strings.Fields(description), " ")
}
