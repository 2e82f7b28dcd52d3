package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/atmo-alert-service/internal/adapter/gdal"
	kafkaadapter "github.com/couchcryptid/atmo-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
	"github.com/couchcryptid/atmo-alert-service/internal/pipeline"
)

const dateLayout = "2006-01-02"

type runFlags struct {
	dates       []string
	days        int
	storagePath string
	geotiff     bool
	png         bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process daily AAI products into categorical and styled alert maps",
		Long: `Converts and merges the products under {storage}/nc/{YYYYMMDD}/, bins the
merged grid into alert classes and writes the categorical raster, its palette
descriptor, the styled outputs and the legend. Without --date, the --days days
ending yesterday (UTC) are processed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("storage-path") {
				a.cfg.StoragePath = f.storagePath
			}
			if cmd.Flags().Changed("generate-styled-geotiff") {
				a.cfg.GenerateStyledGeoTIFF = f.geotiff
			}
			if cmd.Flags().Changed("generate-styled-png") {
				a.cfg.GenerateStyledPNG = f.png
			}
			dates, err := batchDates(f.dates, f.days)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), dates)
		},
	}
	cmd.Flags().StringSliceVar(&f.dates, "date", nil, "batch date YYYY-MM-DD (repeatable)")
	cmd.Flags().IntVar(&f.days, "days", 1, "number of days ending yesterday to process when --date is not set")
	cmd.Flags().StringVar(&f.storagePath, "storage-path", "", "storage root (overrides ATMO_STORAGE_PATH)")
	cmd.Flags().BoolVar(&f.geotiff, "generate-styled-geotiff", true, "write the styled GeoTIFF")
	cmd.Flags().BoolVar(&f.png, "generate-styled-png", true, "write the styled PNG and world file")
	return cmd
}

// batchDates resolves the explicit dates, or the trailing range ending at
// the default batch date.
func batchDates(explicit []string, days int) ([]time.Time, error) {
	if len(explicit) == 0 {
		if days < 1 {
			return nil, fmt.Errorf("--days must be at least 1, got %d", days)
		}
		return pipeline.DateRange(domain.DefaultBatchDate(), days), nil
	}
	out := make([]time.Time, 0, len(explicit))
	seen := make(map[string]bool, len(explicit))
	for _, s := range explicit {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, domain.BatchDay(d))
	}
	return out, nil
}

func (a *app) run(parent context.Context, dates []time.Time) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := observability.NewUnregisteredMetrics()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	defer a.writeMetrics(reg)

	classes, err := a.loadClasses(ctx, metrics)
	if err != nil {
		return err
	}

	var publisher pipeline.ResultPublisher
	if a.cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(a.cfg, a.logger)
		defer func() {
			if err := p.Close(); err != nil {
				a.logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = p
		a.logger.Info("kafka publishing enabled", "topic", a.cfg.KafkaTopic)
	}

	batches, err := pipeline.DiscoverBatches(a.cfg.StoragePath, dates)
	if err != nil {
		return err
	}

	processor := pipeline.NewProcessor(gdal.NewTool(a.cfg, a.logger), publisher, pipeline.Options{
		StoragePath:     a.cfg.StoragePath,
		TileWorkers:     a.cfg.TileWorkers,
		GenerateGeoTIFF: a.cfg.GenerateStyledGeoTIFF,
		GeneratePNG:     a.cfg.GenerateStyledPNG,
		Legend:          a.legendOptions(),
	}, a.logger, metrics)

	summary := pipeline.NewRunner(processor, a.cfg.BatchConcurrency, a.logger, metrics).Run(ctx, batches, classes)
	for _, r := range summary.Results {
		a.logger.Info("alert map ready",
			"batch_date", domain.DateStamp(r.BatchDate),
			"categorical", r.Categorical,
			"legend", r.Legend,
		)
	}
	return summary.Err()
}

func (a *app) writeMetrics(g prometheus.Gatherer) {
	if a.cfg.MetricsTextfile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(a.cfg.MetricsTextfile, g); err != nil {
		a.logger.Error("write metrics textfile failed", "path", a.cfg.MetricsTextfile, "error", err)
	}
}
