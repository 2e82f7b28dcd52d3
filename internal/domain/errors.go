package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced by the classification and styling core.
var (
	ErrSourceUnavailable    = errors.New("class definitions unavailable")
	ErrMalformedDefinitions = errors.New("malformed class definitions")
	ErrInvalidColor         = errors.New("invalid class color")
	ErrInvalidClassBounds   = errors.New("invalid class bounds")
	ErrRender               = errors.New("render failed")
	ErrRasterShape          = errors.New("raster band does not match its dimensions")
)

// DefinitionError reports a class-definition failure together with the
// offending source and, when the failure is tied to one class, its index.
type DefinitionError struct {
	Kind   error
	Source string
	Index  int // -1 when not tied to a single class
	Detail string
	Err    error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Source != "" {
		fmt.Fprintf(&b, ": %s", e.Source)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, ": class %d", e.Index)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *DefinitionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func definitionError(kind error, source string, index int, format string, args ...any) *DefinitionError {
	return &DefinitionError{
		Kind:   kind,
		Source: source,
		Index:  index,
		Detail: fmt.Sprintf(format, args...),
	}
}

// ErrorKind returns a short, metric-friendly name for a core error.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedDefinitions):
		return "malformed_definitions"
	case errors.Is(err, ErrInvalidColor):
		return "invalid_color"
	case errors.Is(err, ErrInvalidClassBounds):
		return "invalid_class_bounds"
	case errors.Is(err, ErrRender):
		return "render"
	default:
		return "other"
	}
}
