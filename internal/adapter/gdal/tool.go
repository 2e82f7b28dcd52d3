// Package gdal runs the HARP and GDAL command-line tools that convert
// Sentinel-5P products, merge them into one grid and apply the palette.
package gdal

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/atmo-alert-service/internal/config"
	"github.com/couchcryptid/atmo-alert-service/internal/domain"
)

// maxOutput bounds how much tool output is kept in an error.
const maxOutput = 2048

type runFunc func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

// Tool implements pipeline.RasterTool with external processes.
type Tool struct {
	harpConvert    string
	gdalMerge      string
	gdalTranslate  string
	harpOperations string
	projLib        string
	run            runFunc
	logger         *slog.Logger
}

// NewTool creates a Tool from the configured binaries.
func NewTool(cfg *config.Config, logger *slog.Logger) *Tool {
	return &Tool{
		harpConvert:    cfg.HarpConvertBin,
		gdalMerge:      cfg.GDALMergeBin,
		gdalTranslate:  cfg.GDALTranslateBin,
		harpOperations: cfg.HarpOperations,
		projLib:        cfg.ProjLib,
		run:            runCommand,
		logger:         logger,
	}
}

func runCommand(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	return cmd.CombinedOutput()
}

// env returns the child environment, with PROJ_LIB set when configured.
// The process environment itself is never modified.
func (t *Tool) env() []string {
	env := os.Environ()
	if t.projLib == "" {
		return env
	}
	out := env[:0:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, "PROJ_LIB=") {
			out = append(out, kv)
		}
	}
	return append(out, "PROJ_LIB="+t.projLib)
}

func (t *Tool) exec(ctx context.Context, name string, args ...string) error {
	start := time.Now()
	t.logger.Debug("running tool", "tool", name, "args", args)
	out, err := t.run(ctx, t.env(), name, args...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, truncate(out))
	}
	t.logger.Debug("tool finished", "tool", name, "duration", time.Since(start))
	return nil
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutput {
		s = s[:maxOutput] + "..."
	}
	return s
}

// Convert bins one product onto the regular grid with harpconvert.
func (t *Tool) Convert(ctx context.Context, src, dst string) error {
	return t.exec(ctx, t.harpConvert, "-a", t.harpOperations, src, dst)
}

// Merge mosaics the converted products into one GeoTIFF next to dst, then
// translates it to the ASCII grid at dst with its .prj sidecar.
func (t *Tool) Merge(ctx context.Context, dst string, srcs []string) error {
	if len(srcs) == 0 {
		return fmt.Errorf("merge %s: no sources", dst)
	}
	tif := strings.TrimSuffix(dst, filepath.Ext(dst)) + ".tif"
	args := append([]string{"-o", tif}, srcs...)
	if err := t.exec(ctx, t.gdalMerge, args...); err != nil {
		return err
	}
	return t.exec(ctx, t.gdalTranslate, "-of", "AAIGrid", "-co", "FORCE_CELLSIZE=YES", tif, dst)
}

// ApplyPalette renders the palette descriptor for classes categories to a
// styled output.
func (t *Tool) ApplyPalette(ctx context.Context, vrt, dst string, format domain.StyledFormat, classes int) error {
	var args []string
	switch format {
	case domain.FormatGeoTIFF:
		args = []string{"-co", "COMPRESS=LZW"}
		if n := paletteBits(classes); n < 8 {
			args = append(args, "-co", "NBITS="+strconv.Itoa(n))
		}
		args = append(args, "-co", "ALPHA=YES")
	case domain.FormatPNG:
		args = []string{"-of", "PNG", "-co", "WORLDFILE=YES"}
	default:
		return fmt.Errorf("unsupported styled format %q", format)
	}
	return t.exec(ctx, t.gdalTranslate, append(args, vrt, dst)...)
}

// paletteBits returns the bits a pixel needs to hold every class code plus
// the nodata index, which is the class count.
func paletteBits(classes int) int {
	return max(bits.Len(uint(classes)), 1)
}
