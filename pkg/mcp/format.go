package mcp

import (
	"fmt"
	"strings"

	"github.com/vaigai-ai/vaigai/pkg/models"
)

// formatClassification renders a classification as a short text card.
func formatClassification(c models.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Item:     %s\n", c.ItemName)
	canonical, ok := c.Category.Canonical()
	if ok && canonical != c.Category {
		fmt.Fprintf(&b, "Category: %s (%s)\n", c.Category, canonical)
	} else {
		fmt.Fprintf(&b, "Category: %s\n", c.Category)
	}
	fmt.Fprintf(&b, "Disposal: %s\n", c.DisposalGuidance)
	if c.HasRisks() {
		fmt.Fprintf(&b, "Risks:    %s\n", c.Risks)
	}
	return b.String()
}

func formatCategories(categories []models.Category) string {
	var b strings.Builder
	for _, c := range categories {
		b.WriteString("- " + string(c) + "\n")
	}
	return b.String()
}

// formatCacheStats formats asset cache statistics.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	versions := "none"
	if len(stats.Versions) > 0 {
		versions = strings.Join(stats.Versions, ", ")
	}
	return fmt.Sprintf("Asset Cache\n"+
		"  Versions: %s\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		versions, stats.Entries, stats.Hits, stats.Misses, hitRate)
}
