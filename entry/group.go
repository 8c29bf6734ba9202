package entry

import (
	"fmt"

	"macrolog"
)

// MealGroup is a derived view over the entries written by one confirm. It is rebuilt from
// the entry list on every render and never updated in place.
type MealGroup struct {
	GroupID   string     `json:"group_id"`
	MealLabel string     `json:"meal_label"`
	Time      string     `json:"time"`
	Items     []LogEntry `json:"items"`
	Totals    Macros     `json:"totals"`
}

// GroupEntries partitions entries by group id, keeping first-occurrence order. Entries
// without a group id each form their own group keyed by their input position. Those
// singletons never absorb a later entry, even one whose group id matches the key.
func GroupEntries(entries []LogEntry) []MealGroup {
	groups := make([]MealGroup, 0)
	index := make(map[string]int)

	for i, e := range entries {
		key := e.GroupID
		if key == "" {
			key = fmt.Sprintf("ungrouped-%d", i)
		} else if at, ok := index[key]; ok {
			groups[at].Items = append(groups[at].Items, e)
			groups[at].Totals.add(e)
			continue
		}

		label := e.MealLabel
		if label == "" {
			label = macrolog.DefaultMealLabel
		}
		g := MealGroup{
			GroupID:   key,
			MealLabel: label,
			Time:      e.Time,
			Items:     []LogEntry{e},
		}
		g.Totals.add(e)
		if e.GroupID != "" {
			index[key] = len(groups)
		}
		groups = append(groups, g)
	}

	return groups
}

// Rows returns the sheet rows of every member of the group.
func (g MealGroup) Rows() []int {
	rows := make([]int, 0, len(g.Items))
	for _, it := range g.Items {
		rows = append(rows, it.SheetRow)
	}
	return rows
}
