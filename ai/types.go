package ai

import (
	"strings"

	"github.com/poiesic/mailsift/core"
)

// CategoryNames returns the valid category values as strings, in the
// order prompts present them.
func CategoryNames() []string {
	names := make([]string, len(core.Categories))
	for i, c := range core.Categories {
		names[i] = string(c)
	}
	return names
}

// ImportanceNames returns the valid importance values as strings, highest first.
func ImportanceNames() []string {
	names := make([]string, len(core.Importances))
	for i, imp := range core.Importances {
		names[i] = string(imp)
	}
	return names
}

// NormalizeClassification maps raw model output onto the closed category
// and importance sets. Unknown categories become core.CategoryOther and an
// importance that names no level becomes core.ImportanceMedium.
func NormalizeClassification(category, importance string) *Classification {
	imp, err := core.ParseImportance(importance)
	if err != nil {
		imp = core.ImportanceMedium
	}
	return &Classification{
		Category:   core.ParseCategory(strings.TrimSpace(category)),
		Importance: imp,
	}
}
