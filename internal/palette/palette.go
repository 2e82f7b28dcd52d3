// Package palette builds the GDAL VRT descriptor that attaches the class
// color table to a categorical raster. gdal_translate turns the descriptor
// into the styled GeoTIFF and PNG outputs.
package palette

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/fsutil"
	"github.com/couchcryptid/atmo-alert-service/internal/markup"
)

// RasterRef points at the categorical raster the descriptor wraps.
type RasterRef struct {
	Path      string
	Width     int
	Height    int
	Transform domain.GeoTransform
	CRS       string
}

// RefFor returns the reference for a categorical raster stored at path.
func RefFor(path string, r domain.CategoricalRaster) RasterRef {
	return RasterRef{
		Path:      path,
		Width:     r.Width,
		Height:    r.Height,
		Transform: r.Transform,
		CRS:       r.CRS,
	}
}

// The color table lists one entry per class in class order, then a fully
// transparent entry for nodata. Source cells holding the categorical nodata
// code are mapped onto that trailing entry.
const vrtTemplate = `<VRTDataset rasterXSize="{{.Ref.Width}}" rasterYSize="{{.Ref.Height}}">
{{- if .Ref.CRS}}
  <SRS>{{esc .Ref.CRS}}</SRS>
{{- end}}
  <GeoTransform>{{.GeoTransform}}</GeoTransform>
  <VRTRasterBand dataType="Byte" band="1">
    <NoDataValue>{{.NoDataIndex}}</NoDataValue>
    <ColorInterp>Palette</ColorInterp>
    <Metadata>
{{- range $i, $c := .Classes}}
      <MDI key="CLASS_{{$i}}_LABEL">{{esc $c.Label}}</MDI>
      <MDI key="CLASS_{{$i}}_ALERT">{{esc $c.AlertLabel}}</MDI>
      <MDI key="CLASS_{{$i}}_BOUNDS">{{bound $c.BoundsMin}} {{bound $c.BoundsMax}}</MDI>
{{- end}}
    </Metadata>
    <CategoryNames>
{{- range .Classes}}
      <Category>{{esc (display .)}}</Category>
{{- end}}
      <Category>nodata</Category>
    </CategoryNames>
    <ColorTable>
{{- range .Classes}}
      <Entry c1="{{.RGBA.R}}" c2="{{.RGBA.G}}" c3="{{.RGBA.B}}" c4="{{.RGBA.A}}"/>
{{- end}}
      <Entry c1="0" c2="0" c3="0" c4="0"/>
    </ColorTable>
    <ComplexSource>
      <SourceFilename relativeToVRT="0">{{esc .Ref.Path}}</SourceFilename>
      <SourceBand>1</SourceBand>
      <SourceProperties RasterXSize="{{.Ref.Width}}" RasterYSize="{{.Ref.Height}}" DataType="Int16"/>
      <SrcRect xOff="0" yOff="0" xSize="{{.Ref.Width}}" ySize="{{.Ref.Height}}"/>
      <DstRect xOff="0" yOff="0" xSize="{{.Ref.Width}}" ySize="{{.Ref.Height}}"/>
      <NODATA>{{.SourceNoData}}</NODATA>
    </ComplexSource>
  </VRTRasterBand>
</VRTDataset>
`

var tmpl = template.Must(template.New("palette").
	Option("missingkey=error").
	Funcs(markup.Funcs()).
	Funcs(template.FuncMap{
		"display": domain.DisplayLabel,
		"bound":   domain.FormatBound,
	}).
	Parse(vrtTemplate))

// Class codes are int8, so a palette never holds more than domain.MaxClasses
// classes plus the nodata slot.
const maxClasses = domain.MaxClasses

type vrtData struct {
	Ref          RasterRef
	GeoTransform string
	Classes      []domain.ClassDefinition
	NoDataIndex  int
	SourceNoData int8
}

// Build renders the descriptor for ref and classes. Identical inputs give
// byte-identical output. A class whose color was never decoded fails with
// domain.ErrRender.
func Build(ref RasterRef, classes domain.ClassSet) (string, error) {
	if classes.Len() == 0 {
		return "", fmt.Errorf("%w: palette: no classes", domain.ErrRender)
	}
	if classes.Len() > maxClasses {
		return "", fmt.Errorf("%w: palette: %d classes exceed the %d a category code can address", domain.ErrRender, classes.Len(), maxClasses)
	}
	data := vrtData{
		Ref:          ref,
		GeoTransform: formatTransform(ref.Transform),
		Classes:      classes.All(),
		NoDataIndex:  classes.Len(),
		SourceNoData: domain.NoDataCode,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: palette: %w", domain.ErrRender, err)
	}
	return buf.String(), nil
}

// WriteFile stores doc at path atomically.
func WriteFile(path, doc string) error {
	return fsutil.WriteFileAtomic(path, []byte(doc), 0o644)
}

func formatTransform(t domain.GeoTransform) string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}
