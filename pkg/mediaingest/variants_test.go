package mediaingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVariantSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []VariantSpec
		want  []VariantSpec
	}{
		{
			name:  "nil falls back to defaults",
			specs: nil,
			want:  DefaultVariantSpecs,
		},
		{
			name:  "all invalid falls back to defaults",
			specs: []VariantSpec{{Label: "", LongEdge: 100}, {Label: "sm", LongEdge: 0}, {Label: "xs", LongEdge: -5}},
			want:  DefaultVariantSpecs,
		},
		{
			name:  "filters invalid entries",
			specs: []VariantSpec{{Label: "sm", LongEdge: 400}, {Label: "", LongEdge: 200}, {Label: "md", LongEdge: 0}},
			want:  []VariantSpec{{Label: "sm", LongEdge: 400}},
		},
		{
			name:  "reserved and path labels dropped",
			specs: []VariantSpec{{Label: "original", LongEdge: 100}, {Label: "a/b", LongEdge: 100}, {Label: "..", LongEdge: 100}, {Label: "th", LongEdge: 150}},
			want:  []VariantSpec{{Label: "th", LongEdge: 150}},
		},
		{
			name:  "duplicates keep first",
			specs: []VariantSpec{{Label: "md", LongEdge: 800}, {Label: "md", LongEdge: 600}},
			want:  []VariantSpec{{Label: "md", LongEdge: 800}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVariantSpecs(tt.specs))
		})
	}
}

func TestParseVariantSpecsJSON(t *testing.T) {
	assert.Equal(t, DefaultVariantSpecs, ParseVariantSpecsJSON(""))
	assert.Equal(t, DefaultVariantSpecs, ParseVariantSpecsJSON("{not json"))
	assert.Equal(t, DefaultVariantSpecs, ParseVariantSpecsJSON(`[]`))
	assert.Equal(t, DefaultVariantSpecs, ParseVariantSpecsJSON(`[{"label":"","longEdge":10}]`))
	assert.Equal(t, []VariantSpec{{Label: "md", LongEdge: 800}}, ParseVariantSpecsJSON(`[{"label":"md","longEdge":800}]`))
}

func TestDefaultVariantsIsCopy(t *testing.T) {
	specs := DefaultVariants()
	specs[0].LongEdge = 1
	assert.Equal(t, 1900, DefaultVariantSpecs[0].LongEdge)
	assert.Len(t, DefaultVariants(), 3)
}
