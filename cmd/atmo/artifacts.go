package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
	"github.com/couchcryptid/atmo-alert-service/internal/legend"
	"github.com/couchcryptid/atmo-alert-service/internal/observability"
	"github.com/couchcryptid/atmo-alert-service/internal/palette"
	"github.com/couchcryptid/atmo-alert-service/internal/raster"
)

func newLegendCmd(a *app) *cobra.Command {
	var out, svg string
	cmd := &cobra.Command{
		Use:   "legend",
		Short: "Render the class legend as PNG (and optionally SVG)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			classes, err := a.loadClasses(cmd.Context(), observability.NewUnregisteredMetrics())
			if err != nil {
				return err
			}
			l, err := legend.Render(classes, a.legendOptions())
			if err != nil {
				return err
			}
			if err := legend.WriteFiles(l, out, svg); err != nil {
				return err
			}
			a.logger.Info("legend written", "path", out, "svg", svg, "classes", classes.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "legend.png", "PNG output path")
	cmd.Flags().StringVar(&svg, "svg", "", "optional SVG output path")
	return cmd
}

func newPaletteCmd(a *app) *cobra.Command {
	var rasterPath, out string
	cmd := &cobra.Command{
		Use:   "palette",
		Short: "Write the palette descriptor for a categorical raster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			classes, err := a.loadClasses(cmd.Context(), observability.NewUnregisteredMetrics())
			if err != nil {
				return err
			}
			abs, err := filepath.Abs(rasterPath)
			if err != nil {
				return err
			}
			cat, err := raster.ReadCategoricalFile(abs)
			if err != nil {
				return err
			}
			doc, err := palette.Build(palette.RefFor(abs, cat), classes)
			if err != nil {
				return err
			}
			if err := palette.WriteFile(out, doc); err != nil {
				return err
			}
			a.logger.Info("palette written", "path", out, "raster", abs)
			return nil
		},
	}
	cmd.Flags().StringVar(&rasterPath, "raster", "", "categorical ASCII grid to describe")
	cmd.Flags().StringVar(&out, "out", "palette.vrt", "descriptor output path")
	_ = cmd.MarkFlagRequired("raster")
	return cmd
}

func newValidateClassesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-classes",
		Short: "Load class definitions and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			classes, err := a.loadClasses(cmd.Context(), observability.NewUnregisteredMetrics())
			if err != nil {
				return err
			}
			return printClasses(cmd, classes)
		},
	}
}

func printClasses(cmd *cobra.Command, classes domain.ClassSet) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tLABEL\tLEGEND\tALERT\tCOLOR\tMIN\tMAX")
	for i, c := range classes.All() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i, c.Label, domain.DisplayLabel(c), c.AlertLabel, c.Color,
			domain.FormatBound(c.BoundsMin), domain.FormatBound(c.BoundsMax))
	}
	return tw.Flush()
}
