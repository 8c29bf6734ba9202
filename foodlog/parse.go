package foodlog

import (
	"context"
	"fmt"
	"strings"

	"macrolog"
)

// Parse asks the active AI provider to structure input. The result is held as pending
// until Confirm; nothing is written to the sheet.
func (f *FoodLog) Parse(ctx context.Context, input string) (err error) {
	if err := f.begin(Parsing); err != nil {
		return err
	}
	defer f.end()

	ctx, op := f.startOperation(ctx, "Parse")
	defer func() { op.finish(ctx, err) }()

	f.update(func(s *State) {
		s.Error = ""
		s.WriteError = nil
		s.RefineError = ""
		s.Pending = nil
		s.Refinements = nil
		s.RawInput = input
	})

	res, err := f.parseWithActiveProvider(ctx, input)
	if err != nil {
		f.update(func(s *State) { s.Error = parseMessage(err) })
		return err
	}

	op.log.Rows = len(res.Items)
	op.log.Detail = map[string]any{"meal_label": res.MealLabel}
	f.update(func(s *State) { s.Pending = &res })
	return nil
}

// Refine re-parses the pending meal with an extra instruction. On failure the current
// pending result is kept.
func (f *FoodLog) Refine(ctx context.Context, instruction string) (err error) {
	if err := f.begin(Refining); err != nil {
		return err
	}
	defer f.end()

	ctx, op := f.startOperation(ctx, "Refine")
	defer func() { op.finish(ctx, err) }()

	instruction = strings.TrimSpace(instruction)
	var (
		pending  *macrolog.ParseResult
		rawInput string
		history  []string
	)
	f.update(func(s *State) {
		s.RefineError = ""
		pending, rawInput = s.Pending, s.RawInput
		history = append([]string(nil), s.Refinements...)
	})
	if pending == nil {
		return ErrNoPendingResult
	}
	if instruction == "" {
		return &macrolog.ValidationError{Field: "instruction", Message: "must not be empty"}
	}

	res, err := f.parseWithActiveProvider(ctx, refinePrompt(rawInput, *pending, history, instruction))
	if err != nil {
		f.update(func(s *State) { s.RefineError = parseMessage(err) })
		return err
	}

	op.log.Rows = len(res.Items)
	f.update(func(s *State) {
		s.Pending = &res
		s.Refinements = append(s.Refinements, instruction)
	})
	return nil
}

// Dismiss clears the pending meal after a write error the user gave up on.
func (f *FoodLog) Dismiss() {
	f.clearPending()
}

// Cancel clears the pending meal before any write was attempted.
func (f *FoodLog) Cancel() {
	f.clearPending()
}

func (f *FoodLog) clearPending() {
	f.update(func(s *State) {
		s.Pending = nil
		s.RawInput = ""
		s.WriteError = nil
		s.Refinements = nil
		s.Error = ""
		s.RefineError = ""
	})
}

func (f *FoodLog) parseWithActiveProvider(ctx context.Context, input string) (macrolog.ParseResult, error) {
	provider, apiKey := f.session.ActiveProvider()
	if provider == "" {
		return macrolog.ParseResult{}, &macrolog.ValidationError{Field: "provider", Message: "no AI provider configured"}
	}
	return f.parser.Parse(ctx, provider, apiKey, input)
}

// refinePrompt restates the meal for a follow-up parse. The "Original input:" line is
// always present so offline providers can recover the user's text.
func refinePrompt(rawInput string, pending macrolog.ParseResult, history []string, instruction string) string {
	var b strings.Builder
	b.WriteString("Refine the parsed meal below and return the complete corrected list of items.\n\n")
	fmt.Fprintf(&b, "Original input: %s\n", strings.ReplaceAll(rawInput, "\n", " "))
	fmt.Fprintf(&b, "Meal label: %s\n", pending.MealLabel)
	b.WriteString("Current items:\n")
	for _, it := range pending.Items {
		fmt.Fprintf(&b, "- %s: %g kcal, %gg protein, %gg carbs, %gg fat\n", it.Description, it.Calories, it.ProteinG, it.CarbsG, it.FatG)
	}
	if len(history) > 0 {
		b.WriteString("Previous refinements:\n")
		for i, h := range history {
			fmt.Fprintf(&b, "%d. %s\n", i+1, h)
		}
	}
	fmt.Fprintf(&b, "Instruction: %s", instruction)
	return b.String()
}

func parseMessage(err error) string {
	switch {
	case macrolog.IsAuthError(err):
		return "Invalid API key. Check the provider settings."
	case macrolog.IsRateLimited(err):
		return "Rate limited by the AI provider. Please wait and try again."
	}
	return err.Error()
}
