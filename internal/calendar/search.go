package calendar

import (
	"strings"

	"github.com/hbollon/go-edlib"

	"calplan/internal/model"
)

const defaultFuzzyThreshold float32 = 0.85

// Filter narrows Search results. Zero fields match everything.
type Filter struct {
	// Query is matched case-insensitively against title and description.
	Query string
	// Colors limits results to the given palette tags. Empty color on an
	// event counts as model.ColorDefault.
	Colors []model.Color
	// Date restricts results to one day (yyyy-MM-dd).
	Date string
	// Fuzzy also accepts titles whose words are close to the query by
	// Jaro-Winkler similarity, which catches typos like "standpu".
	Fuzzy bool
}

// Search returns matching events in storage order.
func (b *Book) Search(f Filter) []model.Event {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	colors := make(map[model.Color]bool, len(f.Colors))
	for _, c := range f.Colors {
		colors[c.Normalized()] = true
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []model.Event{}
	for _, ev := range b.events {
		if f.Date != "" && ev.Date != f.Date {
			continue
		}
		if len(colors) > 0 && !colors[ev.Color.Normalized()] {
			continue
		}
		if query != "" && !b.matchesQuery(ev, query, f.Fuzzy) {
			continue
		}
		out = append(out, ev.Clone())
	}
	return out
}

func (b *Book) matchesQuery(ev model.Event, query string, fuzzy bool) bool {
	title := strings.ToLower(ev.Title)
	if strings.Contains(title, query) || strings.Contains(strings.ToLower(ev.Description), query) {
		return true
	}
	if !fuzzy {
		return false
	}

	candidates := append([]string{title}, strings.Fields(title)...)
	for _, c := range candidates {
		sim, err := edlib.StringsSimilarity(query, c, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if sim >= b.fuzzyThreshold {
			return true
		}
	}
	return false
}
