package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// ClassDefinition is one alert category: a value interval plus its styling.
type ClassDefinition struct {
	Label       string
	LegendLabel *string // nil when the legend should show the bounds instead
	AlertLabel  string
	Color       string       // "#RRGGBBAA" as written in the source
	RGBA        *color.NRGBA // decoded Color; nil until decoded by ParseClassDefinitions
	BoundsMin   float64
	BoundsMax   float64
}

func (c ClassDefinition) clone() ClassDefinition {
	if c.LegendLabel != nil {
		l := *c.LegendLabel
		c.LegendLabel = &l
	}
	if c.RGBA != nil {
		rgba := *c.RGBA
		c.RGBA = &rgba
	}
	return c
}

// DisplayLabel returns the legend text for c: the legend label when set,
// otherwise "{bounds_min} - {bounds_max}".
func DisplayLabel(c ClassDefinition) string {
	if c.LegendLabel != nil {
		return *c.LegendLabel
	}
	return FormatBound(c.BoundsMin) + " - " + FormatBound(c.BoundsMax)
}

// FormatBound renders a bound with the shortest exact representation,
// "-inf" and "inf" for infinities.
func FormatBound(v float64) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ClassSet is a validated, ordered sequence of class definitions. The zero
// value is empty and unusable; build one with ParseClassDefinitions or
// NewClassSet.
type ClassSet struct {
	classes []ClassDefinition
	upper   []float32
}

// NewClassSet validates the bounds of defs and returns an immutable set.
// Colors are taken as given: RGBA is not decoded here, which is how a set
// that skipped the loader is represented.
func NewClassSet(defs []ClassDefinition) (ClassSet, error) {
	if err := ValidateBounds(defs, ""); err != nil {
		return ClassSet{}, err
	}
	return newClassSet(defs), nil
}

func newClassSet(defs []ClassDefinition) ClassSet {
	s := ClassSet{
		classes: make([]ClassDefinition, len(defs)),
		upper:   make([]float32, len(defs)),
	}
	for i, d := range defs {
		s.classes[i] = d.clone()
		s.upper[i] = float32(d.BoundsMax)
	}
	return s
}

// Len returns the number of classes.
func (s ClassSet) Len() int { return len(s.classes) }

// At returns a copy of the class at index i.
func (s ClassSet) At(i int) ClassDefinition { return s.classes[i].clone() }

// All returns a copy of every class in order.
func (s ClassSet) All() []ClassDefinition {
	out := make([]ClassDefinition, len(s.classes))
	for i, c := range s.classes {
		out[i] = c.clone()
	}
	return out
}

// BoundsMax returns the upper bound of every class in order.
func (s ClassSet) BoundsMax() []float64 {
	out := make([]float64, len(s.classes))
	for i, c := range s.classes {
		out[i] = c.BoundsMax
	}
	return out
}

// MaxClasses is the largest class count whose codes fit an int8 without
// reaching NoDataCode.
const MaxClasses = math.MaxInt8 + 1

// ValidateBounds checks that defs form a non-empty, ascending, contiguous
// partition of at most MaxClasses classes whose upper bounds stay distinct
// at float32 precision. source is only used to annotate errors.
func ValidateBounds(defs []ClassDefinition, source string) error {
	if len(defs) == 0 {
		return definitionError(ErrInvalidClassBounds, source, -1, "no classes defined")
	}
	if len(defs) > MaxClasses {
		return definitionError(ErrInvalidClassBounds, source, MaxClasses,
			"%d classes exceed the %d a category code can address", len(defs), MaxClasses)
	}
	for i, d := range defs {
		if math.IsNaN(d.BoundsMin) || math.IsNaN(d.BoundsMax) {
			return definitionError(ErrInvalidClassBounds, source, i, "bounds must not be NaN")
		}
		upper := float32(d.BoundsMax)
		if math.IsInf(float64(upper), 0) && !math.IsInf(d.BoundsMax, 0) {
			return definitionError(ErrInvalidClassBounds, source, i,
				"bounds_max %s is out of float32 range", FormatBound(d.BoundsMax))
		}
		if d.BoundsMin >= d.BoundsMax {
			return definitionError(ErrInvalidClassBounds, source, i,
				"bounds_min %s is not below bounds_max %s", FormatBound(d.BoundsMin), FormatBound(d.BoundsMax))
		}
		if i == 0 {
			continue
		}
		prev := defs[i-1].BoundsMax
		switch {
		case d.BoundsMin < prev:
			return definitionError(ErrInvalidClassBounds, source, i,
				"bounds_min %s overlaps previous bounds_max %s", FormatBound(d.BoundsMin), FormatBound(prev))
		case d.BoundsMin > prev:
			return definitionError(ErrInvalidClassBounds, source, i,
				"gap between previous bounds_max %s and bounds_min %s", FormatBound(prev), FormatBound(d.BoundsMin))
		}
		if upper <= float32(prev) {
			return definitionError(ErrInvalidClassBounds, source, i,
				"bounds_max %s does not exceed previous bounds_max %s at float32 precision", FormatBound(d.BoundsMax), FormatBound(prev))
		}
	}
	return nil
}

var requiredFields = []string{"label", "alert_label", "color", "bounds_min", "bounds_max"}

// ParseClassDefinitions decodes a JSON array of class definitions, decodes
// their colors and validates their bounds. source names the origin of data
// in errors (path or URL).
func ParseClassDefinitions(data []byte, source string) (ClassSet, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return ClassSet{}, &DefinitionError{
			Kind: ErrMalformedDefinitions, Source: source, Index: -1,
			Detail: "expected a JSON array of objects", Err: err,
		}
	}

	defs := make([]ClassDefinition, 0, len(elems))
	for i, raw := range elems {
		def, err := parseClassDefinition(raw, source, i)
		if err != nil {
			return ClassSet{}, err
		}
		defs = append(defs, def)
	}

	if err := ValidateBounds(defs, source); err != nil {
		return ClassSet{}, err
	}
	return newClassSet(defs), nil
}

func parseClassDefinition(raw json.RawMessage, source string, index int) (ClassDefinition, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return ClassDefinition{}, definitionError(ErrMalformedDefinitions, source, index, "expected a JSON object")
	}
	for _, name := range requiredFields {
		if v, ok := fields[name]; !ok || isNull(v) {
			return ClassDefinition{}, definitionError(ErrMalformedDefinitions, source, index, "missing required field %q", name)
		}
	}

	var def ClassDefinition
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"label", &def.Label},
		{"alert_label", &def.AlertLabel},
		{"color", &def.Color},
	} {
		if err := json.Unmarshal(fields[f.name], f.dst); err != nil {
			return ClassDefinition{}, definitionError(ErrMalformedDefinitions, source, index, "field %q must be a string", f.name)
		}
	}
	if v, ok := fields["legend_label"]; ok && !isNull(v) {
		var l string
		if err := json.Unmarshal(v, &l); err != nil {
			return ClassDefinition{}, definitionError(ErrMalformedDefinitions, source, index, "field \"legend_label\" must be a string or null")
		}
		def.LegendLabel = &l
	}

	var err error
	if def.BoundsMin, err = parseBound(fields["bounds_min"]); err != nil {
		return ClassDefinition{}, definitionError(ErrMalformedDefinitions, source, index, "bounds_min: %v", err)
	}
	if def.BoundsMax, err = parseBound(fields["bounds_max"]); err != nil {
		return ClassDefinition{}, definitionError(ErrMalformedDefinitions, source, index, "bounds_max: %v", err)
	}

	rgba, err := ParseColor(def.Color)
	if err != nil {
		return ClassDefinition{}, &DefinitionError{Kind: ErrInvalidColor, Source: source, Index: index, Err: err}
	}
	def.RGBA = &rgba

	return def, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// parseBound accepts a JSON number or one of the infinity spellings.
func parseBound(v json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("want a number or infinity string, got %s", v)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), nil
	}
	return 0, fmt.Errorf("unrecognised bound %q", s)
}
