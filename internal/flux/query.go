// Package flux builds the extraction queries for incremental backups.
package flux

import (
	"fmt"
	"strings"
	"time"
)

// timeLayout is the timestamp format Flux range() accepts.
const timeLayout = "2006-01-02T15:04:05Z"

// Window is the half-open extraction time range [Start, Stop].
type Window struct {
	Start time.Time
	Stop  time.Time
}

// Validate reports an inverted window, which indicates a configuration error
// upstream (a checkpoint recorded in the future).
func (w Window) Validate() error {
	if w.Start.After(w.Stop) {
		return fmt.Errorf("extraction window start %s is after stop %s",
			w.Start.Format(timeLayout), w.Stop.Format(timeLayout))
	}
	return nil
}

// BuildQuery constructs a Flux query selecting rows in the window whose
// measurement matches any of the given measurements. The caller is
// responsible for skipping buckets with no measurements.
func BuildQuery(bucket string, measurements []string, w Window) string {
	filters := make([]string, 0, len(measurements))
	for _, m := range measurements {
		filters = append(filters, fmt.Sprintf("r._measurement == %q", m))
	}

	return fmt.Sprintf(
		`from(bucket: %q) |> range(start: %s, stop: %s) |> filter(fn: (r) => %s)`,
		bucket,
		w.Start.UTC().Format(timeLayout),
		w.Stop.UTC().Format(timeLayout),
		strings.Join(filters, " or "),
	)
}
