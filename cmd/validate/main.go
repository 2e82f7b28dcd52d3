// Command validate checks a categorical alert raster against the grid and
// class definitions it was produced from: the classes must validate, the
// rasters must share size and georeferencing, every code must be nodata or
// a class index, and re-classifying the grid must reproduce the codes.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -classes data/mock/atmo_classes.json \
//	  -grid data/mock/mock_aai.asc \
//	  -categorical data/mock/mock_categorical_aai.asc
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/raster"
)

// Stop listing mismatched cells after this many per phase.
const maxCellErrors = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	dropped int
}

func (p *phase) errorf(format string, args ...any) {
	if len(p.errors) >= maxCellErrors {
		p.dropped++
		return
	}
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type inputs struct {
	classes    domain.ClassSet
	classesErr error
	grid       domain.RasterGrid
	cat        domain.CategoricalRaster
}

func main() {
	classesPath := flag.String("classes", "", "class definition JSON file")
	gridPath := flag.String("grid", "", "aerosol index ASCII grid")
	catPath := flag.String("categorical", "", "categorical ASCII grid to check")
	flag.Parse()

	if *classesPath == "" || *gridPath == "" || *catPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(os.Stdout, *classesPath, *gridPath, *catPath); code != 0 {
		os.Exit(code)
	}
}

func run(w io.Writer, classesPath, gridPath, catPath string) int {
	fmt.Fprintln(w, "=== Alert Map Integrity Validation ===")
	fmt.Fprintln(w)

	in, err := load(classesPath, gridPath, catPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{validateClasses(in)}
	if in.classesErr == nil {
		phases = append(phases,
			validateDimensions(in),
			validateCodes(in),
			validateReclassification(in),
		)
	}
	return report(w, phases, in)
}

func load(classesPath, gridPath, catPath string) (inputs, error) {
	var in inputs
	data, err := os.ReadFile(classesPath)
	if err != nil {
		return in, fmt.Errorf("read classes: %w", err)
	}
	in.classes, in.classesErr = domain.ParseClassDefinitions(data, classesPath)

	if in.grid, err = raster.ReadGridFile(gridPath); err != nil {
		return in, fmt.Errorf("load grid: %w", err)
	}
	if in.cat, err = raster.ReadCategoricalFile(catPath); err != nil {
		return in, fmt.Errorf("load categorical raster: %w", err)
	}
	return in, nil
}

func report(w io.Writer, phases []*phase, in inputs) int {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors)+p.dropped)
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Cells: %d grid, %d categorical, %d classes\n",
		len(in.grid.Band), len(in.cat.Codes), in.classes.Len())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
		if p.dropped > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", p.dropped)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateClasses(in inputs) *phase {
	p := &phase{name: "Class definitions"}
	if in.classesErr != nil {
		p.errorf("%v", in.classesErr)
	}
	return p
}

func validateDimensions(in inputs) *phase {
	p := &phase{name: "Dimensions and georeferencing"}
	if in.grid.Width != in.cat.Width || in.grid.Height != in.cat.Height {
		p.errorf("size: grid %dx%d, categorical %dx%d",
			in.grid.Width, in.grid.Height, in.cat.Width, in.cat.Height)
	}
	for i := range in.grid.Transform {
		if math.Abs(in.grid.Transform[i]-in.cat.Transform[i]) > 1e-9 {
			p.errorf("geotransform[%d]: grid %g, categorical %g", i, in.grid.Transform[i], in.cat.Transform[i])
		}
	}
	if in.grid.CRS != in.cat.CRS {
		p.errorf("crs: grid %q, categorical %q", in.grid.CRS, in.cat.CRS)
	}
	return p
}

func validateCodes(in inputs) *phase {
	p := &phase{name: "Code validity"}
	n := in.classes.Len()
	for i, c := range in.cat.Codes {
		if c == in.cat.NoDataCode {
			continue
		}
		if c < 0 || int(c) >= n {
			p.errorf("cell (%d,%d): code %d is neither nodata nor a class index", i%in.cat.Width, i/in.cat.Width, c)
		}
	}
	return p
}

func validateReclassification(in inputs) *phase {
	p := &phase{name: "Re-classification matches"}
	want, err := domain.Classify(in.grid, in.classes)
	if err != nil {
		p.errorf("classify grid: %v", err)
		return p
	}
	if len(want.Codes) != len(in.cat.Codes) {
		p.errorf("cell count: expected %d, got %d", len(want.Codes), len(in.cat.Codes))
		return p
	}
	for i, c := range want.Codes {
		if in.cat.Codes[i] != c {
			x, y := i%in.cat.Width, i/in.cat.Width
			p.errorf("cell (%d,%d): value %g expected code %d, got %d", x, y, in.grid.Band[i], c, in.cat.Codes[i])
		}
	}
	return p
}
