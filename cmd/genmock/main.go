// Command genmock writes deterministic fixtures for the classifier and the
// validate command: a synthetic aerosol index grid over the French Guiana
// window, the default six-class definition file and the categorical raster
// the classifier produces for them.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"path/filepath"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/fsutil"
	"github.com/couchcryptid/atmo-alert-service/internal/raster"
)

// Grid geometry produced by the default HARP binning.
const (
	gridWidth  = 280
	gridHeight = 240
	cellSize   = 0.025
	westEdge   = -57.0
	northEdge  = 7.0
)

const (
	classesFile     = "atmo_classes.json"
	gridFile        = "mock_aai.asc"
	categoricalFile = "mock_categorical_aai.asc"
)

type classFixture struct {
	Label       string  `json:"label"`
	LegendLabel *string `json:"legend_label"`
	AlertLabel  string  `json:"alert_label"`
	Color       string  `json:"color"`
	BoundsMin   any     `json:"bounds_min"`
	BoundsMax   any     `json:"bounds_max"`
}

// defaultClasses is the AAI alert scale: [-inf, 0.4, 0.6, 0.9, 1.2, 1.5, inf].
func defaultClasses() []classFixture {
	return []classFixture{
		{Label: "good", AlertLabel: "Bon", Color: "#00E40080", BoundsMin: "-inf", BoundsMax: 0.4},
		{Label: "feeble", AlertLabel: "Faible", Color: "#FFFF0080", BoundsMin: 0.4, BoundsMax: 0.6},
		{Label: "medium", AlertLabel: "Moyen", Color: "#FF7E0080", BoundsMin: 0.6, BoundsMax: 0.9},
		{Label: "high", AlertLabel: "Élevé", Color: "#FF000080", BoundsMin: 0.9, BoundsMax: 1.2},
		{Label: "vhigh", AlertLabel: "Très élevé", Color: "#8F3F97A0", BoundsMin: 1.2, BoundsMax: 1.5},
		{Label: "critical", AlertLabel: "Critique", Color: "#7E0023FF", BoundsMin: 1.5, BoundsMax: "inf"},
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for the fixtures")
	seed := flag.Uint64("seed", 42, "noise seed")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	classJSON, err := json.MarshalIndent(defaultClasses(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode classes: %w", err)
	}
	classes, err := domain.ParseClassDefinitions(classJSON, classesFile)
	if err != nil {
		return fmt.Errorf("generated classes do not validate: %w", err)
	}

	grid := mockGrid(*seed)
	cat, err := domain.Classify(grid, classes)
	if err != nil {
		return fmt.Errorf("classify mock grid: %w", err)
	}

	if err := fsutil.WriteFileAtomic(filepath.Join(*outDir, classesFile), append(classJSON, '\n'), 0o644); err != nil {
		return err
	}
	if err := raster.WriteGridFile(filepath.Join(*outDir, gridFile), grid); err != nil {
		return err
	}
	if err := raster.WriteCategoricalFile(filepath.Join(*outDir, categoricalFile), cat); err != nil {
		return err
	}

	counts := domain.Histogram(cat, classes.Len())
	for _, c := range domain.SummarizeCounts(classes, counts) {
		log.Printf("%-8s %6d cells", c.Label, c.Cells)
	}
	log.Printf("nodata   %6d cells", counts.NoData)
	log.Printf("wrote %s, %s and %s to %s", classesFile, gridFile, categoricalFile, *outDir)
	return nil
}

// mockGrid builds a smoke plume drifting north-west over a noisy background,
// with diagonal swath gaps left as NaN the way orbit edges appear in merged
// products.
func mockGrid(seed uint64) domain.RasterGrid {
	r := rand.New(rand.NewPCG(seed, seed^0x5DEECE66D))
	band := make([]float32, gridWidth*gridHeight)

	const (
		plumeLon, plumeLat = -53.8, 4.1
		spreadLon          = 0.9
		spreadLat          = 0.5
		peak               = 2.4
	)
	for y := range gridHeight {
		lat := northEdge - (float64(y)+0.5)*cellSize
		for x := range gridWidth {
			i := y*gridWidth + x
			if (x+y/3)%90 < 5 {
				band[i] = float32(math.NaN())
				continue
			}
			lon := westEdge + (float64(x)+0.5)*cellSize
			dx := (lon - plumeLon) / spreadLon
			dy := (lat - plumeLat) / spreadLat
			v := peak*math.Exp(-(dx*dx+dy*dy)/2) - 0.3 + r.NormFloat64()*0.12
			band[i] = float32(v)
		}
	}

	return domain.RasterGrid{
		Width:     gridWidth,
		Height:    gridHeight,
		Transform: domain.GeoTransform{westEdge, cellSize, 0, northEdge, 0, -cellSize},
		CRS:       "+proj=latlong",
		Band:      band,
	}
}
