package catalog

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler similarity for a candidate to
// be offered as a "did you mean" suggestion. Below it, suggestions are more
// confusing than helpful.
const suggestThreshold = 0.7

// NearestName returns the candidate most similar to name by case-insensitive
// Jaro-Winkler score, provided the best score clears suggestThreshold.
// It is used to enrich unknown-function errors when a model mangles a name.
func NearestName(name string, candidates []string) (string, bool) {
	lower := strings.ToLower(name)

	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		if s := matchr.JaroWinkler(lower, strings.ToLower(c), false); s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}
