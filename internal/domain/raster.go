package domain

import (
	"fmt"
	"math"
)

// NoDataCode marks cells that could not be classified. It lies outside every
// valid class index.
const NoDataCode int8 = -1

// GeoTransform is a GDAL-style affine transform:
// x = T[0] + col*T[1] + row*T[2], y = T[3] + col*T[4] + row*T[5].
type GeoTransform [6]float64

// RasterGrid is a single-band float grid with georeferencing. Band is
// row-major, top row first. The classifier never mutates it.
type RasterGrid struct {
	Width     int
	Height    int
	Transform GeoTransform
	CRS       string
	NoData    *float64
	Band      []float32
}

// Validate checks that Band holds exactly Width*Height cells.
func (g RasterGrid) Validate() error {
	if g.Width < 0 || g.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrRasterShape, g.Width, g.Height)
	}
	if len(g.Band) != g.Width*g.Height {
		return fmt.Errorf("%w: %dx%d grid has %d cells", ErrRasterShape, g.Width, g.Height, len(g.Band))
	}
	return nil
}

// At returns the value at column x, row y.
func (g RasterGrid) At(x, y int) float32 {
	return g.Band[y*g.Width+x]
}

// isNoData reports whether v is missing: non-finite or equal to the
// declared nodata value.
func (g RasterGrid) isNoData(v float32) bool {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return true
	}
	return g.NoData != nil && v == float32(*g.NoData)
}

// CategoricalRaster holds one class code per cell of the grid it was derived
// from, with the same size and georeferencing.
type CategoricalRaster struct {
	Width      int
	Height     int
	Transform  GeoTransform
	CRS        string
	Codes      []int8
	NoDataCode int8
}

// At returns the code at column x, row y.
func (r CategoricalRaster) At(x, y int) int8 {
	return r.Codes[y*r.Width+x]
}

// ClassCounts tallies cells per class code.
type ClassCounts struct {
	Cells  []int // indexed by class code
	NoData int
}

// Total returns the number of tallied cells.
func (c ClassCounts) Total() int {
	n := c.NoData
	for _, v := range c.Cells {
		n += v
	}
	return n
}

// Histogram counts cells per class for a raster produced against n classes.
func Histogram(r CategoricalRaster, n int) ClassCounts {
	counts := ClassCounts{Cells: make([]int, n)}
	for _, code := range r.Codes {
		if code == r.NoDataCode || int(code) < 0 || int(code) >= n {
			counts.NoData++
			continue
		}
		counts.Cells[code]++
	}
	return counts
}
