// Package resolver turns a free-text library name into ranked LibraryMatch
// candidates using the three-tier lookup built by internal/registry.
package resolver

import (
	"sort"
	"strings"

	"procontext/internal/registry"
)

// Tier names surfaced on LibraryMatch.MatchedVia.
const (
	ViaPackageName = "package_name"
	ViaLibraryID   = "library_id"
	ViaAlias       = "alias"
	ViaFuzzy       = "fuzzy"
)

const (
	maxMatches     = 10
	fuzzyThreshold = 0.6
	fuzzyWeight    = 0.9
)

// LibraryMatch is a single candidate returned by Resolve.
type LibraryMatch struct {
	LibraryID  string
	Name       string
	Languages  []string
	DocsURL    *string
	MatchedVia string
	Relevance  float64
}

// Resolve returns up to 10 matches for query, sorted by descending relevance
// with ties broken by ascending library id. query is assumed already
// validated (non-empty, <= 500 chars) by the caller.
func Resolve(query string, idx *registry.Indexes) []LibraryMatch {
	q := strings.ToLower(strings.TrimSpace(query))

	best := make(map[string]LibraryMatch)

	if libID, ok := idx.ByPackage[q]; ok {
		addBest(best, matchFor(libID, idx, ViaPackageName, 1.0))
	}

	if entry, ok := idx.ByID[q]; ok {
		addBest(best, matchFor(entry.ID, idx, ViaLibraryID, 1.0))
	} else {
		for _, entry := range idx.ByID {
			for _, alias := range entry.Aliases {
				if strings.ToLower(strings.TrimSpace(alias)) == q {
					addBest(best, matchFor(entry.ID, idx, ViaAlias, 0.95))
				}
			}
		}
	}

	fuzzyBest := make(map[string]float64)
	for _, term := range idx.FuzzyCorpus {
		score := similarity(q, term.Term)
		if score < fuzzyThreshold {
			continue
		}
		if score > fuzzyBest[term.LibraryID] {
			fuzzyBest[term.LibraryID] = score
		}
	}
	for libID, score := range fuzzyBest {
		addBest(best, matchFor(libID, idx, ViaFuzzy, score*fuzzyWeight))
	}

	out := make([]LibraryMatch, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].LibraryID < out[j].LibraryID
	})

	if len(out) > maxMatches {
		out = out[:maxMatches]
	}
	return out
}

// addBest keeps the higher-relevance match for a given library id.
func addBest(best map[string]LibraryMatch, m LibraryMatch) {
	if existing, ok := best[m.LibraryID]; !ok || m.Relevance > existing.Relevance {
		best[m.LibraryID] = m
	}
}

func matchFor(libID string, idx *registry.Indexes, via string, relevance float64) LibraryMatch {
	entry := idx.ByID[libID]
	return LibraryMatch{
		LibraryID:  libID,
		Name:       entry.Name,
		Languages:  entry.Languages,
		DocsURL:    entry.DocsURL,
		MatchedVia: via,
		Relevance:  relevance,
	}
}

// similarity returns a normalized edit-distance ratio in [0, 1]: 1 means
// identical strings, 0 means completely dissimilar.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := levenshtein(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// levenshtein computes the edit distance between a and b using the
// classic two-row dynamic-programming algorithm. No third-party
// fuzzy-matching library is used anywhere in the example pack, so this is
// a small hand-written implementation rather than an added dependency.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
