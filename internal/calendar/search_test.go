package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"calplan/internal/model"
)

func titles(events []model.Event) []string {
	out := []string{}
	for _, ev := range events {
		out = append(out, ev.Title)
	}
	return out
}

func TestSearch(t *testing.T) {
	b, _ := newTestBook(t,
		model.Event{ID: "1", Title: "Team standup", Date: "2025-06-02", Color: model.ColorBlue},
		model.Event{ID: "2", Title: "Lunch", Date: "2025-06-02", Description: "with the design team", Color: model.ColorGreen},
		model.Event{ID: "3", Title: "Dentist", Date: "2025-06-03"},
		model.Event{ID: "4", Title: "Quarterly review", Date: "2025-06-04", Color: model.ColorRed},
	)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter", Filter{}, []string{"Team standup", "Lunch", "Dentist", "Quarterly review"}},
		{"title substring", Filter{Query: "STAND"}, []string{"Team standup"}},
		{"description substring", Filter{Query: "design"}, []string{"Lunch"}},
		{"title or description", Filter{Query: "team"}, []string{"Team standup", "Lunch"}},
		{"color filter", Filter{Colors: []model.Color{model.ColorBlue, model.ColorRed}}, []string{"Team standup", "Quarterly review"}},
		{"empty color counts as default", Filter{Colors: []model.Color{model.ColorDefault}}, []string{"Dentist"}},
		{"date filter", Filter{Date: "2025-06-02"}, []string{"Team standup", "Lunch"}},
		{"query and color", Filter{Query: "team", Colors: []model.Color{model.ColorGreen}}, []string{"Lunch"}},
		{"typo without fuzzy", Filter{Query: "standpu"}, []string{}},
		{"typo with fuzzy", Filter{Query: "standpu", Fuzzy: true}, []string{"Team standup"}},
		{"fuzzy still rejects unrelated", Filter{Query: "zzzz", Fuzzy: true}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(b.Search(tt.filter)))
		})
	}
}
