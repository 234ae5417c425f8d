package pipeline

import (
	"fmt"
	"go-reconcile-pipeline/internal/model"
	"strings"
)

// validateHeader applies per-source validation rules to an extract header.
func validateHeader(header []string, rules *model.ValidationRules) error {
	if rules == nil {
		// No validation rules defined → pass through
		return nil
	}

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range rules.RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
