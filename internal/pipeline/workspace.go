package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
)

// Workspace lays out the dated artifact paths of one batch under the
// storage root:
//
//	nc/{date}/            downloaded products
//	tmp/{date}/           converted products, private to the batch
//	raw/{date}_*.asc      merged and categorical grids
//	styled/{date}_*       palette, styled outputs and legend
type Workspace struct {
	root  string
	date  time.Time
	stamp string
}

// NewWorkspace returns the workspace for the day containing date.
func NewWorkspace(root string, date time.Time) Workspace {
	day := domain.BatchDay(date)
	return Workspace{root: root, date: day, stamp: domain.DateStamp(day)}
}

// Date returns the batch day at midnight UTC.
func (w Workspace) Date() time.Time { return w.date }

// Stamp returns the YYYYMMDD form of the batch date.
func (w Workspace) Stamp() string { return w.stamp }

func (w Workspace) NCDir() string  { return filepath.Join(w.root, "nc", w.stamp) }
func (w Workspace) TmpDir() string { return filepath.Join(w.root, "tmp", w.stamp) }

// Converted returns the tmp path for the converted form of a product.
func (w Workspace) Converted(src string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(w.TmpDir(), base+"_converted.nc")
}

func (w Workspace) Merged() string {
	return filepath.Join(w.root, "raw", w.stamp+"_merged_aai.asc")
}

func (w Workspace) Categorical() string {
	return filepath.Join(w.root, "raw", w.stamp+"_categorical_aai.asc")
}

func (w Workspace) Palette() string {
	return filepath.Join(w.root, "styled", w.stamp+"_aai.vrt")
}

// Styled returns the output path for a styled format.
func (w Workspace) Styled(f domain.StyledFormat) string {
	ext := ".tif"
	if f == domain.FormatPNG {
		ext = ".png"
	}
	return filepath.Join(w.root, "styled", w.stamp+"_aai"+ext)
}

func (w Workspace) Legend() string {
	return filepath.Join(w.root, "styled", w.stamp+"_legend.png")
}

func (w Workspace) LegendSVG() string {
	return filepath.Join(w.root, "styled", w.stamp+"_legend.svg")
}

// Prepare creates the storage subdirectories and the batch tmp dir.
func (w Workspace) Prepare() error {
	for _, dir := range []string{
		filepath.Join(w.root, "nc"),
		filepath.Join(w.root, "raw"),
		filepath.Join(w.root, "styled"),
		w.TmpDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("prepare storage: %w", err)
		}
	}
	return nil
}

// Cleanup removes the batch tmp dir. Other batches' tmp dirs are untouched.
func (w Workspace) Cleanup() error {
	return os.RemoveAll(w.TmpDir())
}
