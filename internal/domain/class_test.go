package domain

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = "classes.json"

// sixClasses mirrors the default AAI alert scale.
const sixClasses = `[
  {"label":"good","legend_label":null,"alert_label":"Bon","color":"#00E40080","bounds_min":"-inf","bounds_max":0.4},
  {"label":"feeble","legend_label":"Faible","alert_label":"Faible","color":"#FFFF0080","bounds_min":0.4,"bounds_max":0.6},
  {"label":"medium","alert_label":"Moyen","color":"#FF7E0080","bounds_min":0.6,"bounds_max":0.9},
  {"label":"high","alert_label":"Élevé","color":"#FF000080","bounds_min":0.9,"bounds_max":1.2},
  {"label":"vhigh","alert_label":"Très élevé","color":"#8F3F9780","bounds_min":1.2,"bounds_max":1.5},
  {"label":"critical","alert_label":"Critique","color":"#7E0023FF","bounds_min":1.5,"bounds_max":"inf"}
]`

func TestParseClassDefinitions(t *testing.T) {
	set, err := ParseClassDefinitions([]byte(sixClasses), testSource)
	require.NoError(t, err)
	require.Equal(t, 6, set.Len())

	first := set.At(0)
	assert.Equal(t, "good", first.Label)
	assert.Nil(t, first.LegendLabel)
	assert.Equal(t, "Bon", first.AlertLabel)
	assert.True(t, math.IsInf(first.BoundsMin, -1))
	assert.Equal(t, 0.4, first.BoundsMax)
	require.NotNil(t, first.RGBA)
	assert.Equal(t, color.NRGBA{R: 0x00, G: 0xE4, B: 0x00, A: 0x80}, *first.RGBA)

	second := set.At(1)
	require.NotNil(t, second.LegendLabel)
	assert.Equal(t, "Faible", *second.LegendLabel)

	last := set.At(5)
	assert.Equal(t, "critical", last.Label)
	assert.True(t, math.IsInf(last.BoundsMax, 1))
}

func TestParseClassDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		kind  error
		index int
	}{
		{"not JSON", `{nope`, ErrMalformedDefinitions, -1},
		{"object instead of array", `{"label":"good"}`, ErrMalformedDefinitions, -1},
		{"element not an object", `[42]`, ErrMalformedDefinitions, 0},
		{"missing label", `[{"alert_label":"a","color":"#00000000","bounds_min":0,"bounds_max":1}]`, ErrMalformedDefinitions, 0},
		{"missing alert_label", `[{"label":"a","color":"#00000000","bounds_min":0,"bounds_max":1}]`, ErrMalformedDefinitions, 0},
		{"null color", `[{"label":"a","alert_label":"a","color":null,"bounds_min":0,"bounds_max":1}]`, ErrMalformedDefinitions, 0},
		{"missing bounds_max", `[{"label":"a","alert_label":"a","color":"#00000000","bounds_min":0}]`, ErrMalformedDefinitions, 0},
		{"label not a string", `[{"label":1,"alert_label":"a","color":"#00000000","bounds_min":0,"bounds_max":1}]`, ErrMalformedDefinitions, 0},
		{"bad bound string", `[{"label":"a","alert_label":"a","color":"#00000000","bounds_min":"lots","bounds_max":1}]`, ErrMalformedDefinitions, 0},
		{"short color", `[{"label":"a","alert_label":"a","color":"#000000","bounds_min":0,"bounds_max":1}]`, ErrInvalidColor, 0},
		{"no hash", `[{"label":"a","alert_label":"a","color":"00000000","bounds_min":0,"bounds_max":1}]`, ErrInvalidColor, 0},
		{"non-hex color", `[{"label":"a","alert_label":"a","color":"#GG000000","bounds_min":0,"bounds_max":1}]`, ErrInvalidColor, 0},
		{"empty array", `[]`, ErrInvalidClassBounds, -1},
		{"overlap", `[
			{"label":"a","alert_label":"a","color":"#00000000","bounds_min":"-inf","bounds_max":0.6},
			{"label":"b","alert_label":"b","color":"#00000000","bounds_min":0.4,"bounds_max":"inf"}]`, ErrInvalidClassBounds, 1},
		{"gap", `[
			{"label":"a","alert_label":"a","color":"#00000000","bounds_min":"-inf","bounds_max":0.4},
			{"label":"b","alert_label":"b","color":"#00000000","bounds_min":0.6,"bounds_max":"inf"}]`, ErrInvalidClassBounds, 1},
		{"descending", `[
			{"label":"a","alert_label":"a","color":"#00000000","bounds_min":0.6,"bounds_max":0.4}]`, ErrInvalidClassBounds, 0},
		{"too many classes", contiguousClasses(MaxClasses + 1), ErrInvalidClassBounds, MaxClasses},
		{"bounds collapse at float32", `[
			{"label":"a","alert_label":"a","color":"#00000000","bounds_min":"-inf","bounds_max":0.1},
			{"label":"b","alert_label":"b","color":"#00000000","bounds_min":0.1,"bounds_max":0.1000000000001},
			{"label":"c","alert_label":"c","color":"#00000000","bounds_min":0.1000000000001,"bounds_max":"inf"}]`, ErrInvalidClassBounds, 1},
		{"bound beyond float32", `[
			{"label":"a","alert_label":"a","color":"#00000000","bounds_min":"-inf","bounds_max":1e39},
			{"label":"b","alert_label":"b","color":"#00000000","bounds_min":1e39,"bounds_max":"inf"}]`, ErrInvalidClassBounds, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClassDefinitions([]byte(tt.data), testSource)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var defErr *DefinitionError
			require.True(t, errors.As(err, &defErr))
			assert.Equal(t, testSource, defErr.Source)
			assert.Equal(t, tt.index, defErr.Index)
			assert.Contains(t, err.Error(), testSource)
		})
	}
}

// contiguousClasses returns a JSON array of n unit-wide classes starting at 0.
func contiguousClasses(n int) string {
	elems := make([]string, n)
	for i := range elems {
		elems[i] = fmt.Sprintf(`{"label":"c%d","alert_label":"c%d","color":"#00000000","bounds_min":%d,"bounds_max":%d}`, i, i, i, i+1)
	}
	return "[" + strings.Join(elems, ",") + "]"
}

func TestParseClassDefinitions_MaxClasses(t *testing.T) {
	set, err := ParseClassDefinitions([]byte(contiguousClasses(MaxClasses)), testSource)
	require.NoError(t, err)
	assert.Equal(t, MaxClasses, set.Len())

	var codes []int8
	for _, v := range []float32{0.5, 127.5, 200, 1000} {
		codes = append(codes, set.Code(v))
	}
	assert.Equal(t, []int8{0, 127, 127, 127}, codes)
	assert.NotContains(t, codes, NoDataCode)
}

func TestValidateBounds_InfinityOnlyAtEdges(t *testing.T) {
	defs := []ClassDefinition{
		{Label: "a", BoundsMin: math.Inf(-1), BoundsMax: 0.4},
		{Label: "b", BoundsMin: 0.4, BoundsMax: math.Inf(1)},
		{Label: "c", BoundsMin: math.Inf(1), BoundsMax: math.Inf(1)},
	}
	err := ValidateBounds(defs, "")
	assert.ErrorIs(t, err, ErrInvalidClassBounds)

	assert.NoError(t, ValidateBounds(defs[:2], ""))
}

func TestValidateBounds_NaN(t *testing.T) {
	err := ValidateBounds([]ClassDefinition{{BoundsMin: math.NaN(), BoundsMax: 1}}, "")
	assert.ErrorIs(t, err, ErrInvalidClassBounds)
}

func TestClassSet_Immutable(t *testing.T) {
	set, err := ParseClassDefinitions([]byte(sixClasses), testSource)
	require.NoError(t, err)

	c := set.At(1)
	*c.LegendLabel = "changed"
	c.RGBA.R = 1
	c.Label = "changed"

	again := set.At(1)
	assert.Equal(t, "Faible", *again.LegendLabel)
	assert.Equal(t, uint8(0xFF), again.RGBA.R)
	assert.Equal(t, "feeble", again.Label)

	all := set.All()
	all[0].Label = "changed"
	assert.Equal(t, "good", set.At(0).Label)
}

func TestDisplayLabel(t *testing.T) {
	legend := "Faible"
	tests := []struct {
		name string
		def  ClassDefinition
		want string
	}{
		{"legend label wins", ClassDefinition{LegendLabel: &legend, BoundsMin: 0.4, BoundsMax: 0.6}, "Faible"},
		{"finite bounds", ClassDefinition{BoundsMin: 0.6, BoundsMax: 0.9}, "0.6 - 0.9"},
		{"open lower bound", ClassDefinition{BoundsMin: math.Inf(-1), BoundsMax: 0.4}, "-inf - 0.4"},
		{"open upper bound", ClassDefinition{BoundsMin: 1.5, BoundsMax: math.Inf(1)}, "1.5 - inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayLabel(tt.def))
		})
	}
}

func TestDisplayLabel_DoesNotMutate(t *testing.T) {
	set, err := ParseClassDefinitions([]byte(sixClasses), testSource)
	require.NoError(t, err)

	_ = DisplayLabel(set.At(0))
	assert.Nil(t, set.At(0).LegendLabel)
}

func TestErrorKind(t *testing.T) {
	_, err := ParseClassDefinitions([]byte(`[]`), testSource)
	assert.Equal(t, "invalid_class_bounds", ErrorKind(err))
	assert.Equal(t, "other", ErrorKind(errors.New("boom")))
	assert.Equal(t, "", ErrorKind(nil))
}
