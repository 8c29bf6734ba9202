package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupEntries(t *testing.T) {
	t.Run("shared group id yields one group with field-wise totals", func(t *testing.T) {
		entries := []LogEntry{
			{Description: "Eggs", Calories: 140, ProteinG: 12, CarbsG: 1, FatG: 10, GroupID: "g1", MealLabel: "Breakfast", Time: "08:00", SheetRow: 3},
			{Description: "Toast", Calories: 80, ProteinG: 3, CarbsG: 15, FatG: 1, GroupID: "g1", MealLabel: "Brunch", Time: "08:30", SheetRow: 4},
			{Description: "Coffee", Calories: 5, ProteinG: 0.3, CarbsG: 0, FatG: 0, GroupID: "g1", SheetRow: 5},
		}

		groups := GroupEntries(entries)
		require.Len(t, groups, 1)

		g := groups[0]
		assert.Equal(t, "g1", g.GroupID)
		assert.Equal(t, "Breakfast", g.MealLabel)
		assert.Equal(t, "08:00", g.Time)
		assert.Len(t, g.Items, 3)
		assert.Equal(t, 225.0, g.Totals.Calories)
		assert.InDelta(t, 15.3, g.Totals.ProteinG, 1e-9)
		assert.Equal(t, 16.0, g.Totals.CarbsG)
		assert.Equal(t, 11.0, g.Totals.FatG)
		assert.Equal(t, []int{3, 4, 5}, g.Rows())
	})

	t.Run("empty group ids never merge", func(t *testing.T) {
		entries := []LogEntry{
			{Description: "Apple", Calories: 95},
			{Description: "Apple", Calories: 95},
			{Description: "Banana", Calories: 105},
		}

		groups := GroupEntries(entries)
		require.Len(t, groups, 3)
		assert.Equal(t, "ungrouped-0", groups[0].GroupID)
		assert.Equal(t, "ungrouped-1", groups[1].GroupID)
		assert.Equal(t, "ungrouped-2", groups[2].GroupID)
		for _, g := range groups {
			assert.Len(t, g.Items, 1)
			assert.Equal(t, "Meal", g.MealLabel)
		}
	})

	t.Run("ungrouped entries never merge with a lookalike group id", func(t *testing.T) {
		entries := []LogEntry{
			{Description: "Apple", Calories: 95},
			{Description: "Pear", Calories: 100, GroupID: "ungrouped-0"},
			{Description: "Plum", Calories: 30, GroupID: "ungrouped-0"},
		}

		groups := GroupEntries(entries)
		require.Len(t, groups, 2)
		assert.Len(t, groups[0].Items, 1)
		assert.Equal(t, 95.0, groups[0].Totals.Calories)
		assert.Len(t, groups[1].Items, 2)
		assert.Equal(t, 130.0, groups[1].Totals.Calories)
	})

	t.Run("first occurrence order is kept", func(t *testing.T) {
		entries := []LogEntry{
			{Description: "a", GroupID: "late", Time: "20:00"},
			{Description: "b", GroupID: "early", Time: "07:00"},
			{Description: "c", GroupID: "late", Time: "20:00"},
			{Description: "d"},
		}

		groups := GroupEntries(entries)
		require.Len(t, groups, 3)
		assert.Equal(t, "late", groups[0].GroupID)
		assert.Equal(t, "early", groups[1].GroupID)
		assert.Equal(t, "ungrouped-3", groups[2].GroupID)
		assert.Equal(t, []string{"a", "c"}, []string{groups[0].Items[0].Description, groups[0].Items[1].Description})
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, GroupEntries(nil))
	})

	t.Run("input is not modified", func(t *testing.T) {
		entries := []LogEntry{{Description: "x", GroupID: "g"}, {Description: "y", GroupID: "g"}}
		before := append([]LogEntry(nil), entries...)
		_ = GroupEntries(entries)
		assert.Equal(t, before, entries)
	})
}

func TestSummarize(t *testing.T) {
	entries := []LogEntry{
		{Calories: 300, ProteinG: 30, CarbsG: 0, FatG: 10},
		{Calories: 250, ProteinG: 5.5, CarbsG: 40.2, FatG: 7.1},
	}

	s := Summarize("2026-10-15", entries)
	assert.Equal(t, "2026-10-15", s.Date)
	assert.Equal(t, 550.0, s.TotalCalories)
	assert.InDelta(t, 35.5, s.TotalProtein, 1e-9)
	assert.InDelta(t, 40.2, s.TotalCarbs, 1e-9)
	assert.InDelta(t, 17.1, s.TotalFat, 1e-9)
	assert.Equal(t, 2, s.EntryCount)

	empty := Summarize("2026-10-15", nil)
	assert.Zero(t, empty.TotalCalories)
	assert.Zero(t, empty.EntryCount)
}
