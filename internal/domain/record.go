package domain

import (
	"slices"
	"strings"
	"time"
)

// PipelineTag names this processing pipeline in the processed log header.
const PipelineTag = "flight-dose-etl"

// BuildRecord assembles the canonical calibrated record from normalized rows
// and the alignment result. Pure: it performs no I/O and does not alias the
// caller's row slice; persistence is the archive's job.
func BuildRecord(meta FlightMetadata, timestamps string, rows []Row, alignment AlignmentResult) FlightRecord {
	if timestamps != TimestampsRepaired {
		timestamps = TimestampsOriginal
	}
	return FlightRecord{
		Meta:       meta,
		Alignment:  alignment,
		Timestamps: timestamps,
		Rows:       slices.Clone(rows),
	}
}

// nativeQuantity reports what the detector actually measures, derived from
// the device family the same way the legacy archive did. Unknown families
// get the header placeholder.
func nativeQuantity(deviceID string) string {
	id := strings.ToLower(deviceID)
	switch {
	case strings.Contains(id, "safecast"):
		return "cnt_5s"
	case strings.Contains(id, "uct"):
		return "event_timestamps"
	case strings.Contains(id, "radiacode"), strings.Contains(id, "rium"):
		return "average_cps_over_1_minute"
	case strings.Contains(id, "gmc"):
		return "cnt_1mn"
	default:
		return ""
	}
}

// SummaryChart is the data behind the per-flight overlay plot: raw detector
// counts against the simulated dose rate rescaled into counts via the fitted
// beta. Rendering and delivery belong to the notifier collaborator.
type SummaryChart struct {
	Title      string      `json:"title"`
	Timestamps []time.Time `json:"timestamps"`
	Counts     []int       `json:"counts_5s"`
	ScaledDose []float64   `json:"scaled_dose_counts"`
}

// BuildSummaryChart derives the overlay chart data from a record.
func BuildSummaryChart(rec *FlightRecord) SummaryChart {
	chart := SummaryChart{
		Title:      rec.Key().String(),
		Timestamps: make([]time.Time, len(rec.Rows)),
		Counts:     make([]int, len(rec.Rows)),
		ScaledDose: make([]float64, len(rec.Rows)),
	}
	for i, r := range rec.Rows {
		chart.Timestamps[i] = r.Timestamp
		chart.Counts[i] = r.Count5s
		if rec.Alignment.ScalingBeta > 0 {
			chart.ScaledDose[i] = r.DoseTotal / rec.Alignment.ScalingBeta
		}
	}
	return chart
}
