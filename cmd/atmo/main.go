// Command atmo produces aerosol alert maps from Sentinel-5P AAI products and
// serves the class legend and palette over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/atmo-alert-service/internal/classdef"
	"github.com/couchcryptid/atmo-alert-service/internal/config"
	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/legend"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	classes string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "atmo:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "atmo",
		Short:         "Aerosol index alert maps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.classes != "" {
				cfg.ClassesSource = a.classes
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.classes, "classes", "", "class definition file or URL (overrides ATMO_CLASSES_SOURCE)")

	root.AddCommand(
		newRunCmd(a),
		newLegendCmd(a),
		newPaletteCmd(a),
		newValidateClassesCmd(a),
		newServeCmd(a),
	)

	return root
}

func (a *app) legendOptions() legend.Options {
	opts := legend.DefaultOptions()
	opts.Width = a.cfg.LegendWidth
	opts.RowHeight = a.cfg.LegendRowHeight
	return opts
}

func (a *app) loadClasses(ctx context.Context, metrics *observability.Metrics) (domain.ClassSet, error) {
	loader := classdef.NewLoader(a.cfg.ClassesTimeout, metrics, a.logger)
	set, err := classdef.LoadWithRetry(ctx, loader, a.cfg.ClassesSource, a.cfg.ClassesRetries)
	if err != nil {
		return domain.ClassSet{}, err
	}
	a.logger.Info("class definitions loaded", "source", a.cfg.ClassesSource, "classes", set.Len())
	return set, nil
}
