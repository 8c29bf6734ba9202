package macrolog

import (
	"context"
	"math"
	"net/http"
	"strings"
)

// DefaultMealLabel is used whenever a parse result or stored row carries no label.
const DefaultMealLabel = "Meal"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Notifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// ParseResult is the structured meal returned by an AI provider.
type ParseResult struct {
	MealLabel string       `json:"meal_label"`
	Items     []ParsedItem `json:"items"`
}

// ParsedItem is a single food with its macronutrients.
type ParsedItem struct {
	Description string  `json:"description"`
	Calories    float64 `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
	Warning     string  `json:"warning,omitempty"`
}

// IsValid checks if the ParseResult meets basic validation requirements
func (r *ParseResult) IsValid() bool {
	if len(r.Items) == 0 {
		return false
	}
	for _, it := range r.Items {
		if strings.TrimSpace(it.Description) == "" {
			return false
		}
		for _, v := range []float64{it.Calories, it.ProteinG, it.CarbsG, it.FatG} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Normalize applies the rounding contract: whole calories, grams to one decimal, and a
// default meal label.
func (r ParseResult) Normalize() ParseResult {
	out := ParseResult{MealLabel: strings.TrimSpace(r.MealLabel)}
	if out.MealLabel == "" {
		out.MealLabel = DefaultMealLabel
	}
	out.Items = make([]ParsedItem, 0, len(r.Items))
	for _, it := range r.Items {
		out.Items = append(out.Items, ParsedItem{
			Description: strings.TrimSpace(it.Description),
			Calories:    math.Round(it.Calories),
			ProteinG:    math.Round(it.ProteinG*10) / 10,
			CarbsG:      math.Round(it.CarbsG*10) / 10,
			FatG:        math.Round(it.FatG*10) / 10,
			Warning:     strings.TrimSpace(it.Warning),
		})
	}
	return out
}
