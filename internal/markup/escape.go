// Package markup escapes text destined for XML-based documents (the GDAL
// palette descriptor and the intermediate SVG legend).
package markup

import (
	"encoding/xml"
	"strings"
	"text/template"
)

// Escape returns s with &, <, >, ' and " replaced by XML entities. Control
// characters that XML cannot carry become U+FFFD.
func Escape(s string) string {
	var b strings.Builder
	// strings.Builder never returns a write error.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Funcs is the template.FuncMap exposing Escape as "esc".
func Funcs() template.FuncMap {
	return template.FuncMap{"esc": Escape}
}
