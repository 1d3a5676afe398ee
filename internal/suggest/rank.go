package suggest

import (
	"sort"
	"strings"
)

// rankLess orders entries for display: frequency desc, last_used desc,
// value asc.
func rankLess(a, b Entry) bool {
	if a.Frequency != b.Frequency {
		return a.Frequency > b.Frequency
	}
	if !a.LastUsed.Equal(b.LastUsed) {
		return a.LastUsed.After(b.LastUsed)
	}
	return a.Value < b.Value
}

// evictLess orders entries for eviction: frequency asc, last_used asc,
// created_at asc, value asc.
func evictLess(a, b Entry) bool {
	if a.Frequency != b.Frequency {
		return a.Frequency < b.Frequency
	}
	if !a.LastUsed.Equal(b.LastUsed) {
		return a.LastUsed.Before(b.LastUsed)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Value < b.Value
}

func sortByRank(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return rankLess(entries[i], entries[j]) })
}

// filterEntries keeps entries containing query (case-insensitive) with at
// least minFrequency uses.
func filterEntries(entries []Entry, query string, minFrequency int) []Entry {
	q := strings.ToLower(query)
	matches := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Frequency < minFrequency {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Value), q) {
			continue
		}
		matches = append(matches, e)
	}
	return matches
}
