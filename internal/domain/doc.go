// Package domain models citizen-science radiation measurements taken aboard
// commercial flights and their calibration against a physics-based dose-rate
// simulation.
//
// # Data Sources
//
// A submission combines three time series covering the same flight:
//
//	Detector readings:  low-cost detector counts at a short cadence (typically
//	                    5 s), sometimes with a 1-minute aggregate column.
//	Trajectory points:  lat/lon/altitude from ADS-B flight data, usually at a
//	                    coarser cadence than the detector.
//	Simulation samples: total and neutron-component dose-rate estimates from
//	                    the CARI-7A model, computed externally for the same
//	                    trajectory.
//
// The detector's internal clock is not synchronized with the trajectory and
// simulation clocks; drifts of minutes are common on cheap hardware. The
// alignment engine searches a configurable offset window for the shift that
// maximizes the squared Pearson correlation between counts and simulated
// dose, then fits the counts-to-dose scaling coefficient at that offset.
//
// # Processed Log Format
//
// Calibrated records are archived in a versioned textual format: an ordered
// "# key = value" header block followed by comma-delimited data rows. The
// header shape is fixed per format version; unknown values are written as
// the literal placeholder "???" rather than omitted, so every reader can
// parse by version contract alone. See [EncodeProcessedLog] and
// [DecodeProcessedLog].
//
// # Archive Key
//
// A flight is identified by (flight number, UTC takeoff date, device id),
// rendered as a data id like "AFR81 2025-06-27 Safecast 1225". Exactly one
// record exists per key; reprocessing replaces it atomically.
package domain
