package prompt

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how far a known key may be from the requested one
// before it stops being a useful suggestion.
const maxSuggestDistance = 3

// suggest returns the known key closest to key, or "" if none is close.
func suggest(key string, known []string) string {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)
	best, bestDist := "", maxSuggestDistance+1
	for _, k := range sorted {
		if d := levenshtein.ComputeDistance(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
