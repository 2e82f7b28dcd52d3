package domain

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Code returns the class index for v: the smallest i with v <= bounds_max[i],
// clamped to the last class when v exceeds every bound. It does not treat
// non-finite values specially; callers check for nodata first.
func (s ClassSet) Code(v float32) int8 {
	i := sort.Search(len(s.upper), func(i int) bool { return v <= s.upper[i] })
	if i == len(s.upper) {
		i = len(s.upper) - 1
	}
	return int8(i)
}

// Classify bins every cell of grid into a class code. The result is a fresh
// raster with the grid's size and georeferencing; grid is left untouched.
func Classify(grid RasterGrid, classes ClassSet) (CategoricalRaster, error) {
	out, err := newCategorical(grid, classes)
	if err != nil {
		return CategoricalRaster{}, err
	}
	classifyRows(grid, classes, out.Codes, 0, grid.Height)
	return out, nil
}

// ClassifyConcurrent produces the same codes as Classify, splitting the grid
// into row bands processed by up to workers goroutines. Bands write disjoint
// slices of the output, so no locking is involved. Cancellation is observed
// between bands only.
func ClassifyConcurrent(ctx context.Context, grid RasterGrid, classes ClassSet, workers int) (CategoricalRaster, error) {
	out, err := newCategorical(grid, classes)
	if err != nil {
		return CategoricalRaster{}, err
	}
	if workers < 1 {
		workers = 1
	}
	if workers > grid.Height {
		workers = grid.Height
	}
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return CategoricalRaster{}, err
		}
		classifyRows(grid, classes, out.Codes, 0, grid.Height)
		return out, nil
	}

	rowsPerBand := (grid.Height + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for y0 := 0; y0 < grid.Height; y0 += rowsPerBand {
		y1 := min(y0+rowsPerBand, grid.Height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			classifyRows(grid, classes, out.Codes, y0, y1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CategoricalRaster{}, err
	}
	return out, nil
}

func newCategorical(grid RasterGrid, classes ClassSet) (CategoricalRaster, error) {
	if err := grid.Validate(); err != nil {
		return CategoricalRaster{}, err
	}
	if classes.Len() == 0 {
		return CategoricalRaster{}, definitionError(ErrInvalidClassBounds, "", -1, "no classes defined")
	}
	return CategoricalRaster{
		Width:      grid.Width,
		Height:     grid.Height,
		Transform:  grid.Transform,
		CRS:        grid.CRS,
		Codes:      make([]int8, len(grid.Band)),
		NoDataCode: NoDataCode,
	}, nil
}

func classifyRows(grid RasterGrid, classes ClassSet, codes []int8, y0, y1 int) {
	for i := y0 * grid.Width; i < y1*grid.Width; i++ {
		v := grid.Band[i]
		if grid.isNoData(v) {
			codes[i] = NoDataCode
			continue
		}
		codes[i] = classes.Code(v)
	}
}
