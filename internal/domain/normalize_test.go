package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var normStart = time.Date(2025, 6, 27, 10, 0, 0, 0, time.UTC)

func readingsEvery(start time.Time, step time.Duration, counts []int) []DetectorReading {
	out := make([]DetectorReading, len(counts))
	for i, c := range counts {
		out[i] = DetectorReading{Timestamp: start.Add(time.Duration(i) * step), Count5s: c}
	}
	return out
}

func trajectoryEvery(start time.Time, step time.Duration, n int, lat0, latStep float64) []TrajectoryPoint {
	out := make([]TrajectoryPoint, n)
	for i := range out {
		out[i] = TrajectoryPoint{
			Timestamp: start.Add(time.Duration(i) * step),
			Lat:       lat0 + latStep*float64(i),
			Lon:       2.5,
			Alt:       10000 + 10*float64(i),
		}
	}
	return out
}

func simulationEvery(start time.Time, step time.Duration, doses []float64) []SimulationSample {
	out := make([]SimulationSample, len(doses))
	for i, d := range doses {
		out[i] = SimulationSample{Timestamp: start.Add(time.Duration(i) * step), DoseTotal: d, DoseNeutron: d / 2}
	}
	return out
}

func TestNormalizeInterpolatesOntoDetectorGrid(t *testing.T) {
	// Detector at 5 s cadence, trajectory at 1 min, simulation at 10 s.
	// Trajectory and simulation values are linear in time, so linear
	// interpolation must land exactly on the analytic value.
	counts := make([]int, 121) // 10 min
	for i := range counts {
		counts[i] = 40 + i%7
	}
	readings := readingsEvery(normStart, 5*time.Second, counts)
	trajectory := trajectoryEvery(normStart, time.Minute, 11, 49.0, 0.01)
	doses := make([]float64, 61)
	for i := range doses {
		doses[i] = 1.0 + 0.002*float64(i)
	}
	simulation := simulationEvery(normStart, 10*time.Second, doses)

	rows, err := Normalize(readings, trajectory, simulation, NormalizeConfig{MinOverlap: 5 * time.Minute})
	require.NoError(t, err)
	require.Len(t, rows, 121)

	for i, row := range rows {
		secs := float64(i) * 5
		assert.Equal(t, readings[i].Timestamp, row.Timestamp)
		assert.Equal(t, counts[i], row.Count5s)
		assert.InDelta(t, 49.0+0.01*secs/60, row.Lat, 1e-9, "row %d lat", i)
		assert.InDelta(t, 10000+10*secs/60, row.Alt, 1e-9, "row %d alt", i)
		assert.InDelta(t, 1.0+0.002*secs/10, row.DoseTotal, 1e-9, "row %d dose", i)
		assert.InDelta(t, row.DoseTotal/2, row.DoseNeutron, 1e-9, "row %d neutron", i)
	}
}

func TestNormalizeDropsRowsOutsideOverlap(t *testing.T) {
	// Detector covers 0..20 min, trajectory 5..20, simulation 0..15.
	counts := make([]int, 241)
	for i := range counts {
		counts[i] = 30 + i%5
	}
	readings := readingsEvery(normStart, 5*time.Second, counts)
	trajectory := trajectoryEvery(normStart.Add(5*time.Minute), time.Minute, 16, 49.0, 0.01)
	doses := make([]float64, 181)
	for i := range doses {
		doses[i] = 1.0 + 0.001*float64(i)
	}
	simulation := simulationEvery(normStart, 5*time.Second, doses)

	rows, err := Normalize(readings, trajectory, simulation, NormalizeConfig{MinOverlap: 5 * time.Minute})
	require.NoError(t, err)

	require.NotEmpty(t, rows)
	assert.Equal(t, normStart.Add(5*time.Minute), rows[0].Timestamp)
	assert.Equal(t, normStart.Add(15*time.Minute), rows[len(rows)-1].Timestamp)
}

func TestNormalizeInsufficientOverlap(t *testing.T) {
	counts := []int{1, 2, 3, 4, 5}
	readings := readingsEvery(normStart, 5*time.Second, counts)
	trajectory := trajectoryEvery(normStart, 5*time.Second, 5, 49.0, 0.01)

	t.Run("disjoint windows", func(t *testing.T) {
		simulation := simulationEvery(normStart.Add(time.Hour), 5*time.Second, []float64{1, 2, 3})

		_, err := Normalize(readings, trajectory, simulation, NormalizeConfig{MinOverlap: time.Second})
		var overlap *InsufficientOverlapError
		require.ErrorAs(t, err, &overlap)
		assert.Zero(t, overlap.Overlap)
	})

	t.Run("window shorter than minimum", func(t *testing.T) {
		simulation := simulationEvery(normStart, 5*time.Second, []float64{1, 2, 3, 4, 5})

		_, err := Normalize(readings, trajectory, simulation, NormalizeConfig{MinOverlap: time.Minute})
		var overlap *InsufficientOverlapError
		require.ErrorAs(t, err, &overlap)
		assert.Equal(t, 20*time.Second, overlap.Overlap)
		assert.Equal(t, time.Minute, overlap.Min)
	})

	t.Run("missing reference", func(t *testing.T) {
		_, err := Normalize(readings, trajectory, nil, NormalizeConfig{MinOverlap: time.Second})
		var overlap *InsufficientOverlapError
		require.ErrorAs(t, err, &overlap)
	})
}

func TestNormalizeRejectsDuplicateTimestamps(t *testing.T) {
	readings := readingsEvery(normStart, 5*time.Second, []int{1, 2, 3})
	readings[2].Timestamp = readings[1].Timestamp
	trajectory := trajectoryEvery(normStart, 5*time.Second, 3, 49.0, 0.01)
	simulation := simulationEvery(normStart, 5*time.Second, []float64{1, 2, 3})

	_, err := Normalize(readings, trajectory, simulation, NormalizeConfig{MinOverlap: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")

	var overlap *InsufficientOverlapError
	assert.False(t, errors.As(err, &overlap))
}

func TestNormalizeLongitudeAcrossAntimeridian(t *testing.T) {
	// Eastbound across 180°: interpolating raw longitudes would pass
	// through 0°, the unwrapped series must pass through ±180° instead.
	counts := make([]int, 25)
	for i := range counts {
		counts[i] = 10 + i
	}
	readings := readingsEvery(normStart, 5*time.Second, counts)

	trajectory := []TrajectoryPoint{
		{Timestamp: normStart, Lat: 50, Lon: 179.5, Alt: 10000},
		{Timestamp: normStart.Add(time.Minute), Lat: 50, Lon: -179.5, Alt: 10000},
		{Timestamp: normStart.Add(2 * time.Minute), Lat: 50, Lon: -178.5, Alt: 10000},
	}
	doses := make([]float64, 25)
	for i := range doses {
		doses[i] = 1.0 + 0.01*float64(i)
	}
	simulation := simulationEvery(normStart, 5*time.Second, doses)

	rows, err := Normalize(readings, trajectory, simulation, NormalizeConfig{MinOverlap: time.Minute})
	require.NoError(t, err)

	// Halfway between 179.5 and -179.5 (= 180.5 unwrapped) is 180, which
	// folds to -180.
	mid := rows[6] // t = 30 s
	assert.InDelta(t, -180.0, mid.Lon, 1e-9)
	for _, row := range rows {
		assert.GreaterOrEqual(t, row.Lon, -180.0)
		assert.Less(t, row.Lon, 180.0)
		assert.InDelta(t, 50.0, row.Lat, 1e-9)
	}
}
