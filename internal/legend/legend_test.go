package legend

import (
	"bytes"
	"encoding/xml"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classesJSON = `[
  {"label":"good","alert_label":"Bon","color":"#00FF0080","bounds_min":"-inf","bounds_max":0.4},
  {"label":"feeble","legend_label":"<Faible> & \"léger\"","alert_label":"Faible","color":"#FFFF00FF","bounds_min":0.4,"bounds_max":0.6},
  {"label":"high","alert_label":"Élevé","color":"#FF000080","bounds_min":0.6,"bounds_max":"inf"}
]`

func testClasses(t *testing.T) domain.ClassSet {
	t.Helper()
	set, err := domain.ParseClassDefinitions([]byte(classesJSON), "test.json")
	require.NoError(t, err)
	return set
}

func TestLayout_FixedPitch(t *testing.T) {
	opts := DefaultOptions()
	rows, err := Layout(testClasses(t), opts)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i, r := range rows {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, opts.Padding+i*opts.RowHeight, r.Y)
	}
	assert.Equal(t, "-inf - 0.4: Bon", rows[0].Text())
	assert.Equal(t, `<Faible> & "léger": Faible`, rows[1].Text())
	assert.Equal(t, "0.6 - inf: Élevé", rows[2].Text())
	assert.Equal(t, color.NRGBA{R: 0xFF, A: 0x80}, rows[2].Color)
	assert.Equal(t, 2*8+3*32, opts.Height(3))
}

func TestLayout_UndecodedColor(t *testing.T) {
	set, err := domain.NewClassSet([]domain.ClassDefinition{
		{Label: "x", AlertLabel: "x", Color: "#00000000", BoundsMin: math.Inf(-1), BoundsMax: math.Inf(1)},
	})
	require.NoError(t, err)

	_, err = Layout(set, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrRender)

	_, err = Render(set, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrRender)
}

func TestOptions_Defaults(t *testing.T) {
	assert.Equal(t, DefaultOptions(), Options{}.withDefaults())

	o := Options{Width: 500, RowHeight: 20}.withDefaults()
	assert.Equal(t, 500, o.Width)
	assert.Equal(t, 20, o.RowHeight)
	assert.Equal(t, 20, o.Swatch, "swatch never exceeds the row height")
}

type svgDoc struct {
	Width  int `xml:"width,attr"`
	Height int `xml:"height,attr"`
	Groups []struct {
		Rect struct {
			Y           int    `xml:"y,attr"`
			Fill        string `xml:"fill,attr"`
			FillOpacity string `xml:"fill-opacity,attr"`
		} `xml:"rect"`
		Text string `xml:"text"`
	} `xml:"g"`
}

func TestSVG(t *testing.T) {
	out, err := SVG(testClasses(t), DefaultOptions())
	require.NoError(t, err)

	var doc svgDoc
	require.NoError(t, xml.Unmarshal(out, &doc))

	assert.Equal(t, 320, doc.Width)
	assert.Equal(t, 112, doc.Height)
	require.Len(t, doc.Groups, 3)

	assert.Equal(t, "#00FF00", doc.Groups[0].Rect.Fill)
	assert.Equal(t, "0.5019607843137255", doc.Groups[0].Rect.FillOpacity)
	assert.Equal(t, "1", doc.Groups[1].Rect.FillOpacity)
	assert.Equal(t, 8+4, doc.Groups[0].Rect.Y)
	assert.Equal(t, 8+32+4, doc.Groups[1].Rect.Y)

	assert.Equal(t, `<Faible> & "léger": Faible`, doc.Groups[1].Text)
	assert.NotContains(t, string(out), "<Faible>")
}

func TestSVG_Deterministic(t *testing.T) {
	set := testClasses(t)
	a, err := SVG(set, DefaultOptions())
	require.NoError(t, err)
	b, err := SVG(set, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRender_PNG(t *testing.T) {
	opts := DefaultOptions()
	l, err := Render(testClasses(t), opts)
	require.NoError(t, err)
	require.NotEmpty(t, l.SVG)

	img, err := png.Decode(bytes.NewReader(l.PNG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 112), img.Bounds())

	// Swatch centers carry the class colors over a transparent background.
	center := func(row int) color.NRGBA {
		x := opts.Padding + opts.Swatch/2
		y := opts.Padding + row*opts.RowHeight + opts.RowHeight/2
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}
	assertNear(t, color.NRGBA{R: 0x00, G: 0xFF, B: 0x00, A: 0x80}, center(0))
	assertNear(t, color.NRGBA{R: 0xFF, G: 0xFF, B: 0x00, A: 0xFF}, center(1))
	assertNear(t, color.NRGBA{R: 0xFF, G: 0x00, B: 0x00, A: 0x80}, center(2))

	corner := color.NRGBAModel.Convert(img.At(opts.Width-1, 0)).(color.NRGBA)
	assert.Equal(t, uint8(0), corner.A, "background stays transparent")
}

func assertNear(t *testing.T, want, got color.NRGBA) {
	t.Helper()
	assert.InDelta(t, want.R, got.R, 2, "red")
	assert.InDelta(t, want.G, got.G, 2, "green")
	assert.InDelta(t, want.B, got.B, 2, "blue")
	assert.InDelta(t, want.A, got.A, 2, "alpha")
}

func TestRender_EmptyClassSet(t *testing.T) {
	l, err := Render(domain.ClassSet{}, DefaultOptions())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(l.PNG))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestWriteFiles(t *testing.T) {
	l, err := Render(testClasses(t), DefaultOptions())
	require.NoError(t, err)

	dir := t.TempDir()
	pngPath := filepath.Join(dir, "styled", "20240101_legend.png")
	svgPath := filepath.Join(dir, "styled", "20240101_legend.svg")
	require.NoError(t, WriteFiles(l, pngPath, svgPath))

	gotPNG, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.Equal(t, l.PNG, gotPNG)
	gotSVG, err := os.ReadFile(svgPath)
	require.NoError(t, err)
	assert.Equal(t, l.SVG, gotSVG)

	entries, err := os.ReadDir(filepath.Dir(pngPath))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteFiles_PNGOnly(t *testing.T) {
	l, err := Render(testClasses(t), DefaultOptions())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "legend.png")
	require.NoError(t, WriteFiles(l, path, ""))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
