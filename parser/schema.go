package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"macrolog"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

const (
	ToolName        = "parse_food_items"
	ToolDescription = "Parse food items from a natural language description into structured nutritional data"
)

// SystemPrompt instructs every provider how to estimate macros.
const SystemPrompt = `You are a nutrition data extraction assistant. Your job is to parse natural language food descriptions into structured macronutrient data.

Guidelines:
- Use USDA FoodData Central reference values for standard portions and common foods.
- When a quantity is specified (e.g., "2 eggs", "1 cup rice"), use that exact quantity.
- When quantity is ambiguous or omitted (e.g., "almonds", "some pasta"), estimate a typical single serving and include a warning field explaining the assumption.
- For composite or prepared foods (e.g., "Caesar salad"), estimate based on a typical restaurant or homemade serving.
- Round calories to the nearest whole number. Round grams to one decimal place.
- Give the meal a short 1-4 word label such as "Breakfast" or "Afternoon Snack".
- If the input does not describe food at all, return a single item with description "Not a food item", all macros set to 0, and a warning explaining why the input could not be parsed as food.`

// FoodItemsSchema is the input schema of the parse_food_items tool.
func FoodItemsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"meal_label": {
				Type:        "string",
				Description: "A short 1-4 word label describing this meal (e.g., 'Breakfast', 'Afternoon Snack')",
			},
			"items": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"description": {Type: "string"},
						"calories":    {Type: "number"},
						"protein_g":   {Type: "number"},
						"carbs_g":     {Type: "number"},
						"fat_g":       {Type: "number"},
						"warning":     {Type: "string"},
					},
					Required: []string{"description", "calories", "protein_g", "carbs_g", "fat_g"},
				},
			},
		},
		Required: []string{"meal_label", "items"},
	}
}

// schemaMap renders the tool schema as a plain map so every wire format embeds the same JSON.
func schemaMap() (map[string]any, error) {
	b, err := json.Marshal(FoodItemsSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool schema: %w", err)
	}
	return m, nil
}

// decodeToolInput reads the arguments a model passed to parse_food_items.
func decodeToolInput(provider Provider, raw []byte) (macrolog.ParseResult, error) {
	var out struct {
		MealLabel string                `json:"meal_label"`
		Items     []macrolog.ParsedItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return macrolog.ParseResult{}, fmt.Errorf("failed to parse %s tool arguments: %w", provider, err)
	}
	if out.Items == nil {
		return macrolog.ParseResult{}, fmt.Errorf("unexpected %s response structure: missing items array", provider)
	}
	label := strings.TrimSpace(out.MealLabel)
	if label == "" {
		label = macrolog.DefaultMealLabel
	}
	return macrolog.ParseResult{MealLabel: label, Items: out.Items}, nil
}
