package pipeline

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
)

// aaiStats returns the mean and maximum of the valid cells of g, or zeros
// when there are none.
func aaiStats(g domain.RasterGrid) (mean, peak float64) {
	values := make([]float64, 0, len(g.Band))
	for _, v := range g.Band {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if g.NoData != nil && v == float32(*g.NoData) {
			continue
		}
		values = append(values, f)
	}
	if len(values) == 0 {
		return 0, 0
	}
	return stat.Mean(values, nil), floats.Max(values)
}
