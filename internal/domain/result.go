package domain

import "time"

// StyledFormat names an output produced by applying the palette descriptor.
type StyledFormat string

const (
	FormatGeoTIFF StyledFormat = "geotiff"
	FormatPNG     StyledFormat = "png"
)

// ClassCount is the number of cells assigned to one class in a batch.
type ClassCount struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	AlertLabel string `json:"alert_label"`
	Cells      int    `json:"cells"`
}

// BatchResult describes the artifacts and statistics of one processed day.
type BatchResult struct {
	RunID       string                  `json:"run_id"`
	BatchDate   time.Time               `json:"batch_date"`
	Merged      string                  `json:"merged"`
	Categorical string                  `json:"categorical"`
	Palette     string                  `json:"palette"`
	Styled      map[StyledFormat]string `json:"styled,omitempty"`
	Legend      string                  `json:"legend"`
	LegendSVG   string                  `json:"legend_svg"`
	Width       int                     `json:"width"`
	Height      int                     `json:"height"`
	ClassCounts []ClassCount            `json:"class_counts"`
	NoDataCells int                     `json:"nodata_cells"`
	AAIMean     float64                 `json:"aai_mean"`
	AAIMax      float64                 `json:"aai_max"`
	ProcessedAt time.Time               `json:"processed_at"`
}

// SummarizeCounts pairs per-class cell counts with their class labels.
func SummarizeCounts(classes ClassSet, counts ClassCounts) []ClassCount {
	out := make([]ClassCount, classes.Len())
	for i := range out {
		c := classes.At(i)
		out[i] = ClassCount{Index: i, Label: c.Label, AlertLabel: c.AlertLabel}
		if i < len(counts.Cells) {
			out[i].Cells = counts.Cells[i]
		}
	}
	return out
}
