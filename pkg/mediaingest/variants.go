package mediaingest

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// DefaultVariantSpecs is used whenever the configured list yields no valid entry.
var DefaultVariantSpecs = []VariantSpec{
	{Label: "xl", LongEdge: 1900},
	{Label: "lg", LongEdge: 1200},
	{Label: "md", LongEdge: 800},
}

// DefaultVariants returns a copy of DefaultVariantSpecs
func DefaultVariants() []VariantSpec {
	specs := make([]VariantSpec, len(DefaultVariantSpecs))
	copy(specs, DefaultVariantSpecs)
	return specs
}

// NormalizeVariantSpecs drops entries with an empty or reserved label, a label
// that is not a single key segment, a non-positive long edge, or a duplicate
// label. If nothing survives, the default set is returned.
func NormalizeVariantSpecs(specs []VariantSpec) []VariantSpec {
	seen := make(map[string]bool, len(specs))
	valid := make([]VariantSpec, 0, len(specs))
	for _, spec := range specs {
		label := strings.TrimSpace(spec.Label)
		if label == "" || label == OriginalLabel || strings.ContainsAny(label, "/\\") || label == "." || label == ".." {
			continue
		}
		if spec.LongEdge <= 0 || seen[label] {
			continue
		}
		seen[label] = true
		valid = append(valid, VariantSpec{Label: label, LongEdge: spec.LongEdge})
	}

	if len(valid) == 0 {
		return DefaultVariants()
	}
	return valid
}

// ParseVariantSpecsJSON parses a JSON list such as
// [{"label":"md","longEdge":800}]. Empty input or malformed JSON falls back to
// the default set; the pipeline never fails on variant configuration.
func ParseVariantSpecsJSON(raw string) []VariantSpec {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultVariants()
	}

	var specs []VariantSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		slog.Warn("Invalid variant specs, using defaults", "err", err)
		return DefaultVariants()
	}

	normalized := NormalizeVariantSpecs(specs)
	if len(normalized) != len(specs) {
		slog.Warn("Dropped invalid variant specs", "configured", len(specs), "active", len(normalized))
	}
	return normalized
}
