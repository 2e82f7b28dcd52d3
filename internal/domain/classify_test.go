package domain

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClasses(t *testing.T, bounds ...float64) ClassSet {
	t.Helper()
	defs := make([]ClassDefinition, 0, len(bounds))
	lower := math.Inf(-1)
	for i, b := range bounds {
		defs = append(defs, ClassDefinition{
			Label:     string(rune('a' + i)),
			Color:     "#00000000",
			BoundsMin: lower,
			BoundsMax: b,
		})
		lower = b
	}
	set, err := NewClassSet(defs)
	require.NoError(t, err)
	return set
}

func gridOf(w, h int, values ...float32) RasterGrid {
	return RasterGrid{
		Width:     w,
		Height:    h,
		Transform: GeoTransform{-57, 0.025, 0, 7, 0, -0.025},
		CRS:       "+proj=latlong",
		Band:      values,
	}
}

func TestClassify_TwoClassScenario(t *testing.T) {
	set, err := ParseClassDefinitions([]byte(`[
		{"label":"good","alert_label":"good","color":"#00FF0080","bounds_min":"-inf","bounds_max":0.4},
		{"label":"high","alert_label":"high","color":"#FF000080","bounds_min":0.4,"bounds_max":"inf"}
	]`), testSource)
	require.NoError(t, err)

	grid := gridOf(2, 2, 0.1, 0.4, 0.41, float32(math.NaN()))
	out, err := Classify(grid, set)
	require.NoError(t, err)

	assert.Equal(t, []int8{0, 0, 1, NoDataCode}, out.Codes)
	assert.Equal(t, int8(0), out.At(1, 0))
	assert.Equal(t, int8(1), out.At(0, 1))
	assert.Equal(t, NoDataCode, out.NoDataCode)
}

func TestClassify_BoundaryTieBreak(t *testing.T) {
	set := mustClasses(t, 0.4, 0.6, math.Inf(1))

	tests := []struct {
		value float32
		want  int8
	}{
		{0.4, 0},
		{0.6, 1},
		{0.39999, 0},
		{0.40001, 1},
		{0.60001, 2},
		{-1000, 0},
		{1000, 2},
	}
	for _, tt := range tests {
		out, err := Classify(gridOf(1, 1, tt.value), set)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.Codes[0], "value %v", tt.value)
	}
}

func TestClassify_ClampAboveLastBound(t *testing.T) {
	set := mustClasses(t, 0.4, 0.6)

	out, err := Classify(gridOf(3, 1, 0.5, 0.6, 7), set)
	require.NoError(t, err)
	assert.Equal(t, []int8{1, 1, 1}, out.Codes)
}

func TestClassify_NoDataPropagation(t *testing.T) {
	nan := float32(math.NaN())
	posInf := float32(math.Inf(1))
	negInf := float32(math.Inf(-1))

	for _, set := range []ClassSet{
		mustClasses(t, math.Inf(1)),
		mustClasses(t, 0.4, 0.6, 0.9, 1.2, 1.5, math.Inf(1)),
		mustClasses(t, 0, 1),
	} {
		out, err := Classify(gridOf(3, 1, nan, posInf, negInf), set)
		require.NoError(t, err)
		assert.Equal(t, []int8{NoDataCode, NoDataCode, NoDataCode}, out.Codes)
	}
}

func TestClassify_DeclaredNoData(t *testing.T) {
	set := mustClasses(t, 0.4, math.Inf(1))
	nodata := -9999.0
	grid := gridOf(2, 1, -9999, 0.2)
	grid.NoData = &nodata

	out, err := Classify(grid, set)
	require.NoError(t, err)
	assert.Equal(t, []int8{NoDataCode, 0}, out.Codes)
}

func TestClassify_EmptyGrid(t *testing.T) {
	set := mustClasses(t, math.Inf(1))

	for _, g := range []RasterGrid{gridOf(0, 0), gridOf(0, 5), gridOf(5, 0)} {
		out, err := Classify(g, set)
		require.NoError(t, err)
		assert.Empty(t, out.Codes)
		assert.Equal(t, g.Width, out.Width)
		assert.Equal(t, g.Height, out.Height)
	}
}

func TestClassify_AllNoData(t *testing.T) {
	set := mustClasses(t, 0.4, math.Inf(1))
	nan := float32(math.NaN())

	out, err := Classify(gridOf(2, 2, nan, nan, nan, nan), set)
	require.NoError(t, err)
	for _, c := range out.Codes {
		assert.Equal(t, NoDataCode, c)
	}
}

func TestClassify_PreservesGeoreferencing(t *testing.T) {
	set := mustClasses(t, math.Inf(1))
	grid := gridOf(2, 1, 1, 2)

	out, err := Classify(grid, set)
	require.NoError(t, err)
	assert.Equal(t, grid.Transform, out.Transform)
	assert.Equal(t, grid.CRS, out.CRS)
}

func TestClassify_DoesNotMutateInput(t *testing.T) {
	set := mustClasses(t, 0.4, math.Inf(1))
	band := []float32{0.1, float32(math.NaN()), 0.9}
	grid := gridOf(3, 1, band...)
	before := append([]float32(nil), band...)

	_, err := Classify(grid, set)
	require.NoError(t, err)
	for i := range band {
		assert.Equal(t, math.Float32bits(before[i]), math.Float32bits(grid.Band[i]))
	}
}

func TestClassify_ShapeMismatch(t *testing.T) {
	set := mustClasses(t, math.Inf(1))
	_, err := Classify(gridOf(2, 2, 1, 2, 3), set)
	assert.ErrorIs(t, err, ErrRasterShape)
}

func TestClassify_EmptyClassSet(t *testing.T) {
	_, err := Classify(gridOf(1, 1, 1), ClassSet{})
	assert.ErrorIs(t, err, ErrInvalidClassBounds)
}

func randomGrid(w, h int, seed uint64) RasterGrid {
	r := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	band := make([]float32, w*h)
	for i := range band {
		switch r.IntN(20) {
		case 0:
			band[i] = float32(math.NaN())
		case 1:
			band[i] = 0.4
		default:
			band[i] = float32(r.NormFloat64()*0.8 + 0.5)
		}
	}
	return gridOf(w, h, band...)
}

func TestClassify_Deterministic(t *testing.T) {
	set := mustClasses(t, 0.4, 0.6, 0.9, 1.2, 1.5, math.Inf(1))
	grid := randomGrid(97, 61, 7)

	first, err := Classify(grid, set)
	require.NoError(t, err)
	second, err := Classify(grid, set)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("classification not deterministic (-first +second):\n%s", diff)
	}
}

func TestClassify_PartitionCoverage(t *testing.T) {
	set := mustClasses(t, 0.4, 0.6, 0.9, 1.2, 1.5, math.Inf(1))
	grid := randomGrid(128, 128, 42)

	out, err := Classify(grid, set)
	require.NoError(t, err)
	for i, code := range out.Codes {
		if grid.isNoData(grid.Band[i]) {
			assert.Equal(t, NoDataCode, code)
			continue
		}
		require.GreaterOrEqual(t, code, int8(0))
		require.Less(t, int(code), set.Len())

		c := set.At(int(code))
		v := grid.Band[i]
		assert.LessOrEqual(t, v, float32(c.BoundsMax))
		if code > 0 {
			assert.Greater(t, v, float32(c.BoundsMin))
		}
	}
}

func TestClassifyConcurrent_MatchesSequential(t *testing.T) {
	set := mustClasses(t, 0.4, 0.6, 0.9, 1.2, 1.5, math.Inf(1))

	for _, size := range [][2]int{{1, 1}, {17, 3}, {64, 64}, {5, 101}, {0, 0}} {
		grid := randomGrid(size[0], size[1], uint64(size[0]*1000+size[1]))
		want, err := Classify(grid, set)
		require.NoError(t, err)

		for _, workers := range []int{0, 1, 2, 7, 200} {
			got, err := ClassifyConcurrent(context.Background(), grid, set, workers)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("%dx%d with %d workers differs (-want +got):\n%s", size[0], size[1], workers, diff)
			}
		}
	}
}

func TestClassifyConcurrent_Cancelled(t *testing.T) {
	set := mustClasses(t, math.Inf(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ClassifyConcurrent(ctx, randomGrid(8, 8, 1), set, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHistogram(t *testing.T) {
	set := mustClasses(t, 0.4, math.Inf(1))
	out, err := Classify(gridOf(5, 1, 0.1, 0.2, 0.9, float32(math.NaN()), 0.4), set)
	require.NoError(t, err)

	counts := Histogram(out, set.Len())
	assert.Equal(t, []int{3, 1}, counts.Cells)
	assert.Equal(t, 1, counts.NoData)
	assert.Equal(t, 5, counts.Total())

	summary := SummarizeCounts(set, counts)
	require.Len(t, summary, 2)
	assert.Equal(t, ClassCount{Index: 1, Label: "b", Cells: 1}, summary[1])
}
