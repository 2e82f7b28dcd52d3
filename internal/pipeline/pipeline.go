package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/legend"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
	"github.com/couchcryptid/atmo-alert-service/internal/palette"
	"github.com/couchcryptid/atmo-alert-service/internal/raster"
)

// DefaultCRS is assigned to merged grids that arrive without a projection.
const DefaultCRS = "+proj=latlong"

// ErrNoInputs is returned for a batch with no product files to process.
var ErrNoInputs = errors.New("no input products")

// RasterTool converts, merges and styles rasters with external tools.
type RasterTool interface {
	Convert(ctx context.Context, src, dst string) error
	Merge(ctx context.Context, dst string, srcs []string) error
	ApplyPalette(ctx context.Context, vrt, dst string, format domain.StyledFormat, classes int) error
}

// ResultPublisher announces a completed batch.
type ResultPublisher interface {
	Publish(ctx context.Context, result domain.BatchResult) error
}

// Batch is one day of product files.
type Batch struct {
	Date   time.Time
	Inputs []string
}

// Options controls what a Processor produces.
type Options struct {
	StoragePath     string
	TileWorkers     int
	GenerateGeoTIFF bool
	GeneratePNG     bool
	Legend          legend.Options
}

// Processor turns one day of products into the categorical raster, its
// palette descriptor, the styled outputs and the legend.
type Processor struct {
	tool      RasterTool
	publisher ResultPublisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewProcessor creates a Processor. publisher may be nil.
func NewProcessor(tool RasterTool, publisher ResultPublisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		tool:      tool,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Process runs the full chain for one batch. The batch's private tmp
// directory is removed on return, whatever the outcome.
func (p *Processor) Process(ctx context.Context, runID string, batch Batch, classes domain.ClassSet) (domain.BatchResult, error) {
	ws := NewWorkspace(p.opts.StoragePath, batch.Date)
	logger := p.logger.With("run_id", runID, "batch_date", ws.Stamp())

	if len(batch.Inputs) == 0 {
		return domain.BatchResult{}, fmt.Errorf("%s: %w in %s", ws.Stamp(), ErrNoInputs, ws.NCDir())
	}
	if err := ws.Prepare(); err != nil {
		return domain.BatchResult{}, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("remove batch tmp dir failed", "path", ws.TmpDir(), "error", err)
		}
	}()

	grid, err := p.mergeInputs(ctx, logger, ws, batch.Inputs)
	if err != nil {
		return domain.BatchResult{}, err
	}

	logger.Info("classifying merged grid", "width", grid.Width, "height", grid.Height, "classes", classes.Len())
	start := time.Now()
	cat, err := domain.ClassifyConcurrent(ctx, grid, classes, p.opts.TileWorkers)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("classify: %w", err)
	}
	p.metrics.ClassifyDuration.Observe(time.Since(start).Seconds())

	if err := raster.WriteCategoricalFile(ws.Categorical(), cat); err != nil {
		p.metrics.RenderErrors.WithLabelValues("categorical").Inc()
		return domain.BatchResult{}, fmt.Errorf("write categorical raster: %w", err)
	}

	styled, err := p.style(ctx, logger, ws, cat, classes)
	if err != nil {
		return domain.BatchResult{}, err
	}

	lg, err := legend.Render(classes, p.opts.Legend)
	if err == nil {
		err = legend.WriteFiles(lg, ws.Legend(), ws.LegendSVG())
	}
	if err != nil {
		p.metrics.RenderErrors.WithLabelValues("legend").Inc()
		return domain.BatchResult{}, fmt.Errorf("legend: %w", err)
	}

	counts := domain.Histogram(cat, classes.Len())
	mean, peak := aaiStats(grid)
	result := domain.BatchResult{
		RunID:       runID,
		BatchDate:   ws.Date(),
		Merged:      ws.Merged(),
		Categorical: ws.Categorical(),
		Palette:     ws.Palette(),
		Styled:      styled,
		Legend:      ws.Legend(),
		LegendSVG:   ws.LegendSVG(),
		Width:       cat.Width,
		Height:      cat.Height,
		ClassCounts: domain.SummarizeCounts(classes, counts),
		NoDataCells: counts.NoData,
		AAIMean:     mean,
		AAIMax:      peak,
		ProcessedAt: domain.Now(),
	}
	p.recordCounts(result)
	p.publish(ctx, logger, result)

	logger.Info("batch complete",
		"categorical", result.Categorical,
		"nodata_cells", result.NoDataCells,
		"aai_max", result.AAIMax,
	)
	return result, nil
}

func (p *Processor) mergeInputs(ctx context.Context, logger *slog.Logger, ws Workspace, inputs []string) (domain.RasterGrid, error) {
	converted := make([]string, 0, len(inputs))
	for _, in := range inputs {
		dst := ws.Converted(in)
		logger.Debug("converting product", "path", in, "dst", dst)
		if err := p.tool.Convert(ctx, in, dst); err != nil {
			return domain.RasterGrid{}, fmt.Errorf("convert %s: %w", in, err)
		}
		converted = append(converted, dst)
	}

	logger.Info("merging converted products", "path", ws.Merged(), "inputs", len(converted))
	if err := p.tool.Merge(ctx, ws.Merged(), converted); err != nil {
		return domain.RasterGrid{}, fmt.Errorf("merge: %w", err)
	}

	grid, err := raster.ReadGridFile(ws.Merged())
	if err != nil {
		return domain.RasterGrid{}, fmt.Errorf("read merged grid: %w", err)
	}
	if grid.CRS == "" {
		grid.CRS = DefaultCRS
	}
	return grid, nil
}

func (p *Processor) style(ctx context.Context, logger *slog.Logger, ws Workspace, cat domain.CategoricalRaster, classes domain.ClassSet) (map[domain.StyledFormat]string, error) {
	doc, err := palette.Build(palette.RefFor(ws.Categorical(), cat), classes)
	if err == nil {
		err = palette.WriteFile(ws.Palette(), doc)
	}
	if err != nil {
		p.metrics.RenderErrors.WithLabelValues("palette").Inc()
		return nil, fmt.Errorf("palette: %w", err)
	}

	styled := map[domain.StyledFormat]string{}
	for _, f := range p.formats() {
		dst := ws.Styled(f)
		logger.Info("generating styled output", "format", string(f), "path", dst)
		if err := p.tool.ApplyPalette(ctx, ws.Palette(), dst, f, classes.Len()); err != nil {
			p.metrics.RenderErrors.WithLabelValues("styled").Inc()
			return nil, fmt.Errorf("styled %s: %w", f, err)
		}
		styled[f] = dst
	}
	return styled, nil
}

func (p *Processor) formats() []domain.StyledFormat {
	var out []domain.StyledFormat
	if p.opts.GenerateGeoTIFF {
		out = append(out, domain.FormatGeoTIFF)
	}
	if p.opts.GeneratePNG {
		out = append(out, domain.FormatPNG)
	}
	return out
}

func (p *Processor) recordCounts(r domain.BatchResult) {
	classified := 0
	for _, c := range r.ClassCounts {
		classified += c.Cells
		p.metrics.ClassCells.WithLabelValues(c.Label).Add(float64(c.Cells))
	}
	p.metrics.CellsClassified.Add(float64(classified))
	p.metrics.NoDataCells.Add(float64(r.NoDataCells))
}

// publish announces the result. A failed notification does not fail the
// batch: the artifacts are already on disk.
func (p *Processor) publish(ctx context.Context, logger *slog.Logger, r domain.BatchResult) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, r); err != nil {
		logger.Error("publish batch result failed", "error", err)
		return
	}
	p.metrics.BatchesPublished.Inc()
}
