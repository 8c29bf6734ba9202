package parser

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"macrolog"
)

// MockAdapter is a deterministic offline provider. It recognises a small food table and
// estimates everything else, which is enough to exercise the log end to end without a key.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

var mockFoods = []macrolog.ParsedItem{
	{Description: "Chicken", Calories: 300, ProteinG: 30, CarbsG: 0, FatG: 10},
	{Description: "Rice", Calories: 205, ProteinG: 4.3, CarbsG: 44.5, FatG: 0.4},
	{Description: "Egg", Calories: 78, ProteinG: 6.3, CarbsG: 0.6, FatG: 5.3},
	{Description: "Banana", Calories: 105, ProteinG: 1.3, CarbsG: 27, FatG: 0.4},
	{Description: "Apple", Calories: 95, ProteinG: 0.5, CarbsG: 25, FatG: 0.3},
	{Description: "Oats", Calories: 150, ProteinG: 5, CarbsG: 27, FatG: 2.5},
	{Description: "Coffee", Calories: 2, ProteinG: 0.3, CarbsG: 0, FatG: 0},
	{Description: "Toast", Calories: 80, ProteinG: 3, CarbsG: 15, FatG: 1},
}

var (
	mockSplit    = regexp.MustCompile(`(?i)\s*(?:,|\band\b|\bwith\b|\+)\s*`)
	mockQuantity = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s+(.+)$`)
	mockLabels   = []string{"breakfast", "brunch", "lunch", "dinner", "snack"}
)

// Refinement prompts repeat the original input after this marker.
const refinementMarker = "Original input:"

func (m *MockAdapter) Parse(_ context.Context, _ string, _ string, input string) (macrolog.ParseResult, error) {
	text := input
	if i := strings.Index(text, refinementMarker); i >= 0 {
		text = text[i+len(refinementMarker):]
		if j := strings.Index(text, "\n"); j >= 0 {
			text = text[:j]
		}
	}
	text = strings.TrimSpace(text)

	res := macrolog.ParseResult{MealLabel: mockLabel(text)}
	for _, part := range mockSplit.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		res.Items = append(res.Items, mockItem(part))
	}
	if len(res.Items) == 0 {
		res.Items = []macrolog.ParsedItem{{Description: "Not a food item", Warning: "Input did not describe any food."}}
	}

	slog.Info("PARSER: mock parse", "items", len(res.Items))
	return res, nil
}

func mockItem(part string) macrolog.ParsedItem {
	qty := 1.0
	name := strings.ToLower(part)
	if m := mockQuantity.FindStringSubmatch(name); m != nil {
		qty, _ = strconv.ParseFloat(m[1], 64)
		name = m[2]
	}

	for _, food := range mockFoods {
		if strings.Contains(name, strings.ToLower(food.Description)) {
			item := food
			if qty != 1 {
				item.Description = strings.TrimSpace(part)
				item.Calories *= qty
				item.ProteinG *= qty
				item.CarbsG *= qty
				item.FatG *= qty
			}
			return item
		}
	}

	return macrolog.ParsedItem{
		Description: strings.TrimSpace(part),
		Calories:    100 * qty,
		ProteinG:    5 * qty,
		CarbsG:      10 * qty,
		FatG:        4 * qty,
		Warning:     "Unknown food; estimated a typical serving.",
	}
}

func mockLabel(text string) string {
	lower := strings.ToLower(text)
	for _, l := range mockLabels {
		if strings.Contains(lower, l) {
			return strings.ToUpper(l[:1]) + l[1:]
		}
	}
	return macrolog.DefaultMealLabel
}
