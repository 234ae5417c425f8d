package pipeline

import (
	"go-reconcile-pipeline/internal/model"
	"strings"
)

const utf8BOM = "\ufeff"

// normalizeHeader cleans header names: trims whitespace, removes ALL
// quotes and a leading byte order mark.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		out[i] = strings.ReplaceAll(h, `"`, "")
	}
	return out
}

// applyTransformations applies the configured read-time transformations to a record
func applyTransformations(rec model.Record, opts ReadOptions) model.Record {
	if opts.TrimValues {
		rec = trimStrings(rec)
	}
	return rec
}

// trimStrings trims whitespace from all fields
func trimStrings(rec model.Record) model.Record {
	for key, val := range rec {
		rec[key] = strings.TrimSpace(val)
	}
	return rec
}
