// Package raster reads and writes Esri ASCII grids (GDAL's AAIGrid driver),
// the interchange format between the GDAL tools and the classifier. The CRS
// travels in a sibling .prj file.
package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/fsutil"
)

// ErrFormat reports a grid that is not a well-formed Esri ASCII grid.
var ErrFormat = errors.New("malformed ascii grid")

// DefaultMaxCells bounds the grids ReadGrid accepts: 1 GiB of float32 cells.
const DefaultMaxCells = 1 << 28

// Initial band capacity; the band grows as cells are read.
const initialCells = 1 << 16

type header struct {
	ncols, nrows int
	xll, yll     float64
	xCenter      bool
	yCenter      bool
	dx, dy       float64
	nodata       *float64
	seen         map[string]bool
}

func (h *header) set(key, val string) error {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("%w: %s: %q is not a number", ErrFormat, key, val)
	}
	switch key {
	case "ncols", "nrows":
		if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
			return fmt.Errorf("%w: %s must be an integer in [0, %d], got %s", ErrFormat, key, math.MaxInt32, val)
		}
		if key == "ncols" {
			h.ncols = int(f)
		} else {
			h.nrows = int(f)
		}
	case "xllcorner", "xllcenter":
		h.xll, h.xCenter = f, key == "xllcenter"
	case "yllcorner", "yllcenter":
		h.yll, h.yCenter = f, key == "yllcenter"
	case "cellsize":
		h.dx, h.dy = f, f
	case "dx":
		h.dx = f
	case "dy":
		h.dy = f
	case "nodata_value":
		h.nodata = &f
	}
	h.seen[key] = true
	return nil
}

var headerKeys = map[string]bool{
	"ncols": true, "nrows": true,
	"xllcorner": true, "xllcenter": true,
	"yllcorner": true, "yllcenter": true,
	"cellsize": true, "dx": true, "dy": true,
	"nodata_value": true,
}

func (h *header) validate() error {
	for _, k := range []string{"ncols", "nrows"} {
		if !h.seen[k] {
			return fmt.Errorf("%w: missing %s", ErrFormat, k)
		}
	}
	if !(h.seen["xllcorner"] || h.seen["xllcenter"]) || !(h.seen["yllcorner"] || h.seen["yllcenter"]) {
		return fmt.Errorf("%w: missing lower-left origin", ErrFormat)
	}
	if h.dx <= 0 || h.dy <= 0 {
		return fmt.Errorf("%w: cell size must be positive", ErrFormat)
	}
	return nil
}

func (h *header) checkCells(maxCells int) error {
	if h.ncols != 0 && h.nrows > maxCells/h.ncols {
		return fmt.Errorf("%w: %dx%d grid exceeds the %d cell limit", ErrFormat, h.ncols, h.nrows, maxCells)
	}
	return nil
}

func (h *header) transform() domain.GeoTransform {
	x0 := h.xll
	if h.xCenter {
		x0 -= h.dx / 2
	}
	y0 := h.yll
	if h.yCenter {
		y0 -= h.dy / 2
	}
	top := y0 + float64(h.nrows)*h.dy
	return domain.GeoTransform{x0, h.dx, 0, top, 0, -h.dy}
}

// ReadGrid parses a single-band float grid of at most DefaultMaxCells cells.
func ReadGrid(r io.Reader) (domain.RasterGrid, error) {
	return ReadGridLimit(r, DefaultMaxCells)
}

// ReadGridLimit parses a single-band float grid, rejecting headers that
// declare more than maxCells cells before any band memory is reserved.
func ReadGridLimit(r io.Reader, maxCells int) (domain.RasterGrid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	h := header{seen: map[string]bool{}}
	var band []float32
	inData := false
	for sc.Scan() {
		tok := sc.Text()
		if !inData {
			key := strings.ToLower(tok)
			if headerKeys[key] {
				if !sc.Scan() {
					return domain.RasterGrid{}, fmt.Errorf("%w: %s has no value", ErrFormat, key)
				}
				if err := h.set(key, sc.Text()); err != nil {
					return domain.RasterGrid{}, err
				}
				continue
			}
			if err := h.validate(); err != nil {
				return domain.RasterGrid{}, err
			}
			if err := h.checkCells(maxCells); err != nil {
				return domain.RasterGrid{}, err
			}
			inData = true
			band = make([]float32, 0, min(h.ncols*h.nrows, initialCells))
		}
		if len(band) == h.ncols*h.nrows {
			return domain.RasterGrid{}, fmt.Errorf("%w: more than the %d cells declared", ErrFormat, len(band))
		}
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return domain.RasterGrid{}, fmt.Errorf("%w: cell %d: %q is not a number", ErrFormat, len(band), tok)
		}
		band = append(band, float32(v))
	}
	if err := sc.Err(); err != nil {
		return domain.RasterGrid{}, fmt.Errorf("read ascii grid: %w", err)
	}
	if !inData {
		if err := h.validate(); err != nil {
			return domain.RasterGrid{}, err
		}
		band = []float32{}
	}

	grid := domain.RasterGrid{
		Width:     h.ncols,
		Height:    h.nrows,
		Transform: h.transform(),
		NoData:    h.nodata,
		Band:      band,
	}
	if err := grid.Validate(); err != nil {
		return domain.RasterGrid{}, err
	}
	return grid, nil
}

// ReadGridFile reads the grid at path and its CRS from the sibling .prj
// file when one exists.
func ReadGridFile(path string) (domain.RasterGrid, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RasterGrid{}, err
	}
	defer f.Close()

	grid, err := ReadGrid(bufio.NewReader(f))
	if err != nil {
		return domain.RasterGrid{}, fmt.Errorf("%s: %w", path, err)
	}
	grid.CRS, err = readPrj(path)
	if err != nil {
		return domain.RasterGrid{}, err
	}
	return grid, nil
}

// PrjPath returns the .prj sidecar path for a grid file.
func PrjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

func readPrj(path string) (string, error) {
	data, err := os.ReadFile(PrjPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read projection: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeHeader(w *bufio.Writer, width, height int, t domain.GeoTransform) error {
	if t[2] != 0 || t[4] != 0 {
		return fmt.Errorf("%w: rotated transforms cannot be written", ErrFormat)
	}
	dx, dy := t[1], -t[5]
	if dx <= 0 || dy <= 0 {
		return fmt.Errorf("%w: grid must be north-up with positive cell size", ErrFormat)
	}
	yll := t[3] - float64(height)*dy
	fmt.Fprintf(w, "ncols %d\n", width)
	fmt.Fprintf(w, "nrows %d\n", height)
	fmt.Fprintf(w, "xllcorner %s\n", formatFloat(t[0]))
	fmt.Fprintf(w, "yllcorner %s\n", formatFloat(yll))
	if dx == dy {
		fmt.Fprintf(w, "cellsize %s\n", formatFloat(dx))
	} else {
		fmt.Fprintf(w, "dx %s\n", formatFloat(dx))
		fmt.Fprintf(w, "dy %s\n", formatFloat(dy))
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteGrid writes a float grid. Cells are written with float32 precision.
func WriteGrid(w io.Writer, g domain.RasterGrid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, g.Width, g.Height, g.Transform); err != nil {
		return err
	}
	if g.NoData != nil {
		fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(*g.NoData))
	}
	for y := range g.Height {
		for x := range g.Width {
			if x > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(float64(g.At(x, y)), 'g', -1, 32))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteCategorical writes class codes as integers with the nodata code
// declared in the header.
func WriteCategorical(w io.Writer, r domain.CategoricalRaster) error {
	if len(r.Codes) != r.Width*r.Height {
		return fmt.Errorf("%w: %dx%d raster has %d codes", domain.ErrRasterShape, r.Width, r.Height, len(r.Codes))
	}
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, r.Width, r.Height, r.Transform); err != nil {
		return err
	}
	fmt.Fprintf(bw, "NODATA_value %d\n", r.NoDataCode)
	for y := range r.Height {
		for x := range r.Width {
			if x > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.Itoa(int(r.At(x, y))))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteGridFile writes g to path atomically, plus a .prj when the CRS is known.
func WriteGridFile(path string, g domain.RasterGrid) error {
	if err := fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error { return WriteGrid(w, g) }); err != nil {
		return err
	}
	return writePrj(path, g.CRS)
}

// WriteCategoricalFile writes r to path atomically, plus a .prj when the CRS
// is known.
func WriteCategoricalFile(path string, r domain.CategoricalRaster) error {
	if err := fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error { return WriteCategorical(w, r) }); err != nil {
		return err
	}
	return writePrj(path, r.CRS)
}

func writePrj(path, crs string) error {
	if crs == "" {
		return nil
	}
	return fsutil.WriteFileAtomic(PrjPath(path), []byte(crs+"\n"), 0o644)
}

// ReadCategorical parses a grid written by WriteCategorical.
func ReadCategorical(r io.Reader) (domain.CategoricalRaster, error) {
	g, err := ReadGrid(r)
	if err != nil {
		return domain.CategoricalRaster{}, err
	}
	nodata := domain.NoDataCode
	if g.NoData != nil {
		if !isInt8(*g.NoData) {
			return domain.CategoricalRaster{}, fmt.Errorf("%w: NODATA_value %s is not a class code", ErrFormat, formatFloat(*g.NoData))
		}
		nodata = int8(*g.NoData)
	}
	codes := make([]int8, len(g.Band))
	for i, v := range g.Band {
		if !isInt8(float64(v)) {
			return domain.CategoricalRaster{}, fmt.Errorf("%w: cell %d: %v is not a class code", ErrFormat, i, v)
		}
		codes[i] = int8(v)
	}
	return domain.CategoricalRaster{
		Width:      g.Width,
		Height:     g.Height,
		Transform:  g.Transform,
		CRS:        g.CRS,
		Codes:      codes,
		NoDataCode: nodata,
	}, nil
}

func isInt8(v float64) bool {
	return v == math.Trunc(v) && v >= math.MinInt8 && v <= math.MaxInt8
}

// ReadCategoricalFile reads a categorical grid and its .prj sidecar.
func ReadCategoricalFile(path string) (domain.CategoricalRaster, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.CategoricalRaster{}, err
	}
	defer f.Close()

	r, err := ReadCategorical(bufio.NewReader(f))
	if err != nil {
		return domain.CategoricalRaster{}, fmt.Errorf("%s: %w", path, err)
	}
	r.CRS, err = readPrj(path)
	if err != nil {
		return domain.CategoricalRaster{}, err
	}
	return r, nil
}
