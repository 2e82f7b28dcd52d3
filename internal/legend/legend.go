// Package legend renders the alert class legend. Both outputs are drawn from
// one row layout: an SVG document, kept as the inspectable intermediate, and
// a PNG rasterized in memory with gonum/plot.
package legend

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"
	"text/template"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/fsutil"
	"github.com/couchcryptid/atmo-alert-service/internal/markup"
)

// Options sets the legend geometry in pixels. Zero fields take the defaults.
type Options struct {
	Width     int
	RowHeight int
	Padding   int
	Swatch    int
	FontSize  int
}

// DefaultOptions returns the standard legend geometry.
func DefaultOptions() Options {
	return Options{Width: 320, RowHeight: 32, Padding: 8, Swatch: 24, FontSize: 14}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.RowHeight <= 0 {
		o.RowHeight = d.RowHeight
	}
	if o.Padding <= 0 {
		o.Padding = d.Padding
	}
	if o.Swatch <= 0 || o.Swatch > o.RowHeight {
		o.Swatch = min(d.Swatch, o.RowHeight)
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	return o
}

// Height returns the canvas height for n classes.
func (o Options) Height(n int) int {
	o = o.withDefaults()
	return 2*o.Padding + n*o.RowHeight
}

// Row is one legend entry. Y is the top of the row, measured down from the
// top edge of the canvas.
type Row struct {
	Index int
	Y     int
	Color color.NRGBA
	Label string
	Alert string
}

// Text is the line printed next to the swatch.
func (r Row) Text() string {
	return r.Label + ": " + r.Alert
}

// Layout places one row per class at a fixed pitch.
func Layout(classes domain.ClassSet, opts Options) ([]Row, error) {
	opts = opts.withDefaults()
	rows := make([]Row, classes.Len())
	for i := range rows {
		c := classes.At(i)
		if c.RGBA == nil {
			return nil, fmt.Errorf("%w: legend: class %d (%s) has no decoded color", domain.ErrRender, i, c.Label)
		}
		rows[i] = Row{
			Index: i,
			Y:     opts.Padding + i*opts.RowHeight,
			Color: *c.RGBA,
			Label: domain.DisplayLabel(c),
			Alert: c.AlertLabel,
		}
	}
	return rows, nil
}

const svgTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
{{- range .Rows}}
  <g>
    <rect x="{{$.Padding}}" y="{{swatchY .}}" width="{{$.Swatch}}" height="{{$.Swatch}}" fill="{{rgb .Color}}" fill-opacity="{{opacity .Color}}"/>
    <text x="{{$.TextX}}" y="{{centerY .}}" font-family="Liberation Sans, sans-serif" font-size="{{$.FontSize}}" dominant-baseline="middle">{{esc .Text}}</text>
  </g>
{{- end}}
</svg>
`

type svgData struct {
	Options
	Height int
	TextX  int
	Rows   []Row
}

func newSVGTemplate(opts Options) *template.Template {
	return template.Must(template.New("legend").
		Option("missingkey=error").
		Funcs(markup.Funcs()).
		Funcs(template.FuncMap{
			"rgb": domain.FormatRGB,
			"opacity": func(c color.NRGBA) string {
				return strconv.FormatFloat(domain.Opacity(c), 'g', -1, 64)
			},
			"swatchY": func(r Row) int { return r.Y + (opts.RowHeight-opts.Swatch)/2 },
			"centerY": func(r Row) int { return r.Y + opts.RowHeight/2 },
		}).
		Parse(svgTemplate))
}

// SVG renders the legend as an SVG document with every label escaped.
func SVG(classes domain.ClassSet, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	rows, err := Layout(classes, opts)
	if err != nil {
		return nil, err
	}
	data := svgData{
		Options: opts,
		Height:  opts.Height(len(rows)),
		TextX:   textX(opts),
		Rows:    rows,
	}
	var buf bytes.Buffer
	if err := newSVGTemplate(opts).Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: legend svg: %w", domain.ErrRender, err)
	}
	return buf.Bytes(), nil
}

// Legend holds both rendered forms.
type Legend struct {
	SVG []byte
	PNG []byte
}

// Render produces the SVG and PNG legends entirely in memory.
func Render(classes domain.ClassSet, opts Options) (Legend, error) {
	opts = opts.withDefaults()
	svg, err := SVG(classes, opts)
	if err != nil {
		return Legend{}, err
	}
	rows, err := Layout(classes, opts)
	if err != nil {
		return Legend{}, err
	}
	png, err := rasterize(rows, opts)
	if err != nil {
		return Legend{}, err
	}
	return Legend{SVG: svg, PNG: png}, nil
}

func textX(opts Options) int {
	return 2*opts.Padding + opts.Swatch
}

// rasterize draws rows onto a transparent canvas at 72 DPI, so one point is
// one pixel. vg places the origin at the bottom left.
func rasterize(rows []Row, opts Options) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: legend png: %v", domain.ErrRender, r)
		}
	}()

	width := vg.Length(opts.Width)
	height := vg.Length(opts.Height(len(rows)))
	img := vgimg.NewWith(
		vgimg.UseWH(width, height),
		vgimg.UseDPI(72),
		vgimg.UseBackgroundColor(color.Transparent),
	)
	dc := draw.New(img)

	sty := text.Style{
		Color:   color.Black,
		Font:    font.From(plot.DefaultFont, vg.Length(opts.FontSize)),
		XAlign:  draw.XLeft,
		YAlign:  draw.YCenter,
		Handler: plot.DefaultTextHandler,
	}
	swatch := vg.Length(opts.Swatch)
	x0 := vg.Length(opts.Padding)
	for _, r := range rows {
		top := height - vg.Length(r.Y+(opts.RowHeight-opts.Swatch)/2)
		dc.FillPolygon(r.Color, []vg.Point{
			{X: x0, Y: top},
			{X: x0 + swatch, Y: top},
			{X: x0 + swatch, Y: top - swatch},
			{X: x0, Y: top - swatch},
		})
		center := height - vg.Length(r.Y+opts.RowHeight/2)
		dc.FillText(sty, vg.Point{X: vg.Length(textX(opts)), Y: center}, r.Text())
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: legend png: %w", domain.ErrRender, err)
	}
	return buf.Bytes(), nil
}

// WriteFiles stores the PNG at pngPath and, when svgPath is set, the SVG
// alongside it. Each file is written atomically.
func WriteFiles(l Legend, pngPath, svgPath string) error {
	if err := fsutil.WriteFileAtomic(pngPath, l.PNG, 0o644); err != nil {
		return err
	}
	if svgPath == "" {
		return nil
	}
	return fsutil.WriteFileAtomic(svgPath, l.SVG, 0o644)
}
