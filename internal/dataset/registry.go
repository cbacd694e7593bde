// Package dataset holds the pure ingestion core: format sniffing, streaming
// record parsing, running per-class statistics and threshold calibration.
package dataset

import "sort"

// defaultMetrics lists the primary metric columns per screening type. The
// registry copies this map at construction; config overrides replace entries
// wholesale.
var defaultMetrics = map[string][]string{
	"dyslexia": {
		"fixation_duration_avg",
		"saccade_length_avg",
		"regression_count",
		"reading_speed_wpm",
	},
	"dysgraphia": {
		"pen_pressure_avg",
		"stroke_speed_avg",
		"letter_spacing_std",
		"tremor_index",
	},
	"dyscalculia": {
		"response_time_avg",
		"error_rate_pct",
		"number_line_accuracy",
		"counting_speed",
	},
}

// Registry maps dataset types to their metric columns. It is built once at
// startup and injected where needed; nothing mutates it afterwards.
type Registry struct {
	metrics map[string][]string
}

// NewRegistry builds a registry from the defaults plus config overrides.
// Overrides may introduce new types or replace a type's metric list.
func NewRegistry(overrides map[string][]string) *Registry {
	metrics := make(map[string][]string, len(defaultMetrics))
	for t, cols := range defaultMetrics {
		metrics[t] = append([]string(nil), cols...)
	}
	for t, cols := range overrides {
		if len(cols) == 0 {
			continue
		}
		metrics[t] = append([]string(nil), cols...)
	}
	return &Registry{metrics: metrics}
}

// Known reports whether the dataset type is registered.
func (r *Registry) Known(datasetType string) bool {
	_, ok := r.metrics[datasetType]
	return ok
}

// Metrics returns the primary metric columns for a dataset type.
func (r *Registry) Metrics(datasetType string) []string {
	return r.metrics[datasetType]
}

// Types returns the registered dataset types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.metrics))
	for t := range r.metrics {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
