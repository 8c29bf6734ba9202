package entry

// LogEntry is one row of the food log sheet.
//
// SheetRow is the 0-based position among data rows observed by the read that produced the
// entry. Any later write or delete invalidates it; it must only be used to target the
// delete that immediately follows that read.
type LogEntry struct {
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Description string  `json:"description"`
	Calories    float64 `json:"calories"`
	ProteinG    float64 `json:"protein_g"`
	CarbsG      float64 `json:"carbs_g"`
	FatG        float64 `json:"fat_g"`
	RawInput    string  `json:"raw_input"`
	GroupID     string  `json:"group_id"`
	MealLabel   string  `json:"meal_label"`
	UTCOffset   string  `json:"utc_offset"`
	SheetRow    int     `json:"-"`
}

// Macros holds the four tracked macronutrient totals.
type Macros struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

func (m *Macros) add(e LogEntry) {
	m.Calories += e.Calories
	m.ProteinG += e.ProteinG
	m.CarbsG += e.CarbsG
	m.FatG += e.FatG
}

// DailySummary is the macro total of one day's entries.
type DailySummary struct {
	Date          string  `json:"date"`
	TotalCalories float64 `json:"total_calories"`
	TotalProtein  float64 `json:"total_protein"`
	TotalCarbs    float64 `json:"total_carbs"`
	TotalFat      float64 `json:"total_fat"`
	EntryCount    int     `json:"entry_count"`
}

// Summarize totals exactly the given entries under the given date label.
func Summarize(date string, entries []LogEntry) DailySummary {
	var m Macros
	for _, e := range entries {
		m.add(e)
	}
	return DailySummary{
		Date:          date,
		TotalCalories: m.Calories,
		TotalProtein:  m.ProteinG,
		TotalCarbs:    m.CarbsG,
		TotalFat:      m.FatG,
		EntryCount:    len(entries),
	}
}
