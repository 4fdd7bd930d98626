package domain

import (
	"fmt"
	"time"
)

// NormalizeConfig controls the timestamp normalizer.
type NormalizeConfig struct {
	// MinOverlap is the shortest common time window across the three input
	// series that still counts as a usable flight.
	MinOverlap time.Duration
}

// Normalize aligns detector readings, trajectory points and simulation
// samples onto one synchronized sequence keyed by the detector's own
// timestamps (the "original" policy). Position and dose values are linearly
// interpolated onto the detector grid; rows outside the overlap of all three
// sources are dropped rather than extrapolated.
//
// Returns *InsufficientOverlapError when the common window is empty or
// shorter than cfg.MinOverlap.
func Normalize(readings []DetectorReading, trajectory []TrajectoryPoint, simulation []SimulationSample, cfg NormalizeConfig) ([]Row, error) {
	if err := validateReadings(readings); err != nil {
		return nil, err
	}
	if err := validateTrajectory(trajectory); err != nil {
		return nil, err
	}
	if err := validateSimulation(simulation); err != nil {
		return nil, err
	}

	start, end, ok := overlapWindow(readings, trajectory, simulation)
	if !ok || end.Sub(start) < cfg.MinOverlap {
		overlap := time.Duration(0)
		if ok {
			overlap = end.Sub(start)
		}
		return nil, &InsufficientOverlapError{Overlap: overlap, Min: cfg.MinOverlap}
	}

	// Trajectory and simulation series as float seconds relative to the
	// window start, for interpolation.
	trajTimes := make([]time.Time, len(trajectory))
	lats := make([]float64, len(trajectory))
	lons := make([]float64, len(trajectory))
	alts := make([]float64, len(trajectory))
	for i, p := range trajectory {
		trajTimes[i] = p.Timestamp
		lats[i] = p.Lat
		lons[i] = p.Lon
		alts[i] = p.Alt
	}
	lons = unwrapLon(lons)

	simTimes := make([]time.Time, len(simulation))
	totals := make([]float64, len(simulation))
	neutrons := make([]float64, len(simulation))
	for i, s := range simulation {
		simTimes[i] = s.Timestamp
		totals[i] = s.DoseTotal
		neutrons[i] = s.DoseNeutron
	}

	trajXs := secondsSince(start, trajTimes)
	simXs := secondsSince(start, simTimes)

	rows := make([]Row, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		x := r.Timestamp.Sub(start).Seconds()

		lat, ok1 := interpAt(trajXs, lats, x)
		lon, ok2 := interpAt(trajXs, lons, x)
		alt, ok3 := interpAt(trajXs, alts, x)
		total, ok4 := interpAt(simXs, totals, x)
		neutron, ok5 := interpAt(simXs, neutrons, x)
		if !(ok1 && ok2 && ok3 && ok4 && ok5) {
			continue
		}

		rows = append(rows, Row{
			Timestamp:   r.Timestamp,
			Count5s:     r.Count5s,
			Count1min:   r.Count1min,
			Lat:         lat,
			Lon:         wrapLon(lon),
			Alt:         alt,
			DoseTotal:   total,
			DoseNeutron: neutron,
		})
	}

	if len(rows) == 0 || rows[len(rows)-1].Timestamp.Sub(rows[0].Timestamp) < cfg.MinOverlap {
		overlap := time.Duration(0)
		if len(rows) > 0 {
			overlap = rows[len(rows)-1].Timestamp.Sub(rows[0].Timestamp)
		}
		return nil, &InsufficientOverlapError{Overlap: overlap, Min: cfg.MinOverlap}
	}

	return rows, nil
}

// overlapWindow returns the common time window covered by all three series.
func overlapWindow(readings []DetectorReading, trajectory []TrajectoryPoint, simulation []SimulationSample) (start, end time.Time, ok bool) {
	if len(readings) == 0 || len(trajectory) == 0 || len(simulation) == 0 {
		return time.Time{}, time.Time{}, false
	}

	start = readings[0].Timestamp
	end = readings[len(readings)-1].Timestamp

	if t := trajectory[0].Timestamp; t.After(start) {
		start = t
	}
	if t := trajectory[len(trajectory)-1].Timestamp; t.Before(end) {
		end = t
	}
	if t := simulation[0].Timestamp; t.After(start) {
		start = t
	}
	if t := simulation[len(simulation)-1].Timestamp; t.Before(end) {
		end = t
	}

	return start, end, !end.Before(start)
}

func validateReadings(readings []DetectorReading) error {
	for i := 1; i < len(readings); i++ {
		if !readings[i].Timestamp.After(readings[i-1].Timestamp) {
			return fmt.Errorf("detector readings out of order at index %d: %s then %s",
				i, readings[i-1].Timestamp.Format(time.RFC3339), readings[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func validateTrajectory(trajectory []TrajectoryPoint) error {
	for i := 1; i < len(trajectory); i++ {
		if !trajectory[i].Timestamp.After(trajectory[i-1].Timestamp) {
			return fmt.Errorf("trajectory points out of order at index %d", i)
		}
	}
	return nil
}

func validateSimulation(simulation []SimulationSample) error {
	for i := 1; i < len(simulation); i++ {
		if !simulation[i].Timestamp.After(simulation[i-1].Timestamp) {
			return fmt.Errorf("simulation samples out of order at index %d", i)
		}
	}
	return nil
}
