package domain

import "time"

// Detector timestamp provenance values carried into the processed log header.
const (
	TimestampsOriginal = "original"
	TimestampsRepaired = "repaired"
)

// DetectorReading is a single raw measurement from a flight detector.
// Sequences must have strictly increasing timestamps; a duplicate timestamp
// is an input error, not a value to be deduplicated silently.
type DetectorReading struct {
	Timestamp time.Time `json:"timestamp"`
	Count5s   int       `json:"cnt_5s"`
	Count1min *int      `json:"cnt_1min,omitempty"` // longer-interval aggregate, absent on some devices
}

// TrajectoryPoint is a position sample along the flight path, usually at a
// coarser cadence than the detector readings.
type TrajectoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"` // degrees
	Lon       float64   `json:"lon"` // degrees
	Alt       float64   `json:"alt"` // metres
}

// SimulationSample is one point of the externally computed dose-rate
// reference for the same flight trajectory.
type SimulationSample struct {
	Timestamp   time.Time `json:"timestamp"`
	DoseTotal   float64   `json:"dose_total"`   // uSv/h
	DoseNeutron float64   `json:"dose_neutron"` // uSv/h
}

// AlignmentResult is the calibration output of the alignment engine.
// Immutable once computed; a new result requires rerunning the engine.
type AlignmentResult struct {
	OffsetSeconds int     `json:"time_offset_s"`
	ScalingBeta   float64 `json:"scaling_beta"` // counts -> uSv/h conversion
	FitR2         float64 `json:"fit_r2"`
}

// FlightMetadata identifies a flight submission. Supplied fully parsed by the
// intake collaborator.
type FlightMetadata struct {
	FlightNumber    string    `json:"flight_number"`
	OriginICAO      string    `json:"origin_icao"`
	DestinationICAO string    `json:"destination_icao"`
	DeviceID        string    `json:"device_id"`
	DetectorModel   string    `json:"detector_model,omitempty"`
	CitizenID       string    `json:"citizen_id"`
	TakeoffUTC      time.Time `json:"takeoff_utc"`
	LandingUTC      time.Time `json:"landing_utc"`
}

// Row is one synchronized line of the merged time series: detector counts
// plus interpolated position and simulated dose on the detector's timestamp.
type Row struct {
	Timestamp   time.Time
	Count5s     int
	Count1min   *int
	Lat         float64
	Lon         float64
	Alt         float64
	DoseTotal   float64
	DoseNeutron float64
}

// FlightRecord is the unit of archival: flight identity, calibration result,
// and the merged time series.
type FlightRecord struct {
	Meta       FlightMetadata
	Alignment  AlignmentResult
	Timestamps string // TimestampsOriginal or TimestampsRepaired
	Rows       []Row
}

// Key is the archive's natural key. Exactly one FlightRecord exists per key.
type Key struct {
	FlightNumber string
	Date         string // UTC takeoff date, YYYY-MM-DD
	DeviceID     string
}

// NewKey derives the natural key from flight metadata.
func NewKey(meta FlightMetadata) Key {
	return Key{
		FlightNumber: meta.FlightNumber,
		Date:         meta.TakeoffUTC.UTC().Format("2006-01-02"),
		DeviceID:     meta.DeviceID,
	}
}

// String renders the key as the archive data id,
// e.g. "AFR81 2025-06-27 Safecast 1225".
func (k Key) String() string {
	return k.FlightNumber + " " + k.Date + " " + k.DeviceID
}

// Key returns the record's natural archive key.
func (r *FlightRecord) Key() Key {
	return NewKey(r.Meta)
}

// Submission is one pending flight, already parsed by the intake
// collaborator: metadata plus the three source series.
type Submission struct {
	Meta       FlightMetadata     `json:"meta"`
	Timestamps string             `json:"timestamps,omitempty"` // provenance flag from intake; defaults to original
	Readings   []DetectorReading  `json:"readings"`
	Trajectory []TrajectoryPoint  `json:"trajectory"`
	Simulation []SimulationSample `json:"simulation"`
}
