package pipeline

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/atmo-alert-service/internal/domain"
)

// DateRange returns days consecutive batch days ending at end, oldest first.
func DateRange(end time.Time, days int) []time.Time {
	end = domain.BatchDay(end)
	out := make([]time.Time, 0, max(days, 0))
	for i := days - 1; i >= 0; i-- {
		out = append(out, end.AddDate(0, 0, -i))
	}
	return out
}

// DiscoverBatches lists the NetCDF products under nc/{YYYYMMDD}/ for each
// date. A day without products still yields a batch, so the failure is
// reported for that day.
func DiscoverBatches(storagePath string, dates []time.Time) ([]Batch, error) {
	batches := make([]Batch, 0, len(dates))
	for _, d := range dates {
		ws := NewWorkspace(storagePath, d)
		inputs, err := filepath.Glob(filepath.Join(ws.NCDir(), "*.nc"))
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", ws.Stamp(), err)
		}
		slices.Sort(inputs)
		batches = append(batches, Batch{Date: ws.Date(), Inputs: inputs})
	}
	return batches, nil
}
