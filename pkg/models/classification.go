package models

import "strings"

// Category is one of the fixed waste categories.
type Category string

const (
	CategoryBiodegradable Category = "Biodegradable"
	CategoryRecyclable    Category = "Recyclable"
	CategoryHazardous     Category = "Hazardous"
	CategoryBiomedical    Category = "Biomedical"
	CategoryEWaste        Category = "E-Waste"

	// CategoryUnclassified is used for display when the model answers outside the set.
	CategoryUnclassified Category = "General/Unclassified"
)

// Categories lists the closed set in prompt order.
var Categories = []Category{
	CategoryBiodegradable,
	CategoryRecyclable,
	CategoryHazardous,
	CategoryBiomedical,
	CategoryEWaste,
}

// Canonical maps a raw category onto the closed set by case-insensitive
// containment. ok is false when nothing matches.
func (c Category) Canonical() (Category, bool) {
	raw := strings.ToLower(string(c))
	for _, known := range Categories {
		if strings.Contains(raw, strings.ToLower(string(known))) {
			return known, true
		}
	}
	return CategoryUnclassified, false
}

// Classification is the structured answer for one waste item.
type Classification struct {
	ItemName         string   `json:"itemName"`
	Category         Category `json:"category"`
	DisposalGuidance string   `json:"disposalGuidance"`
	Risks            string   `json:"risks"`
}

// HasRisks reports whether Risks carries anything worth showing.
func (c Classification) HasRisks() bool {
	r := strings.TrimSpace(c.Risks)
	return r != "" && !strings.EqualFold(r, "none")
}
