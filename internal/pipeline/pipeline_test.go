package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmiconair/flight-dose-etl/internal/archive"
	"github.com/cosmiconair/flight-dose-etl/internal/domain"
	"github.com/cosmiconair/flight-dose-etl/internal/observability"
	"github.com/cosmiconair/flight-dose-etl/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	subs []domain.Submission

	mu   sync.Mutex
	done []domain.Key
}

func (m *mockSource) Pending(_ context.Context) ([]domain.Submission, error) {
	return m.subs, nil
}

func (m *mockSource) Done(key domain.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, key)
	return nil
}

func (m *mockSource) acked() []domain.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Key(nil), m.done...)
}

type mockNotifier struct {
	err error

	mu    sync.Mutex
	calls []domain.Key
}

func (m *mockNotifier) Notify(_ context.Context, rec *domain.FlightRecord, _ *archive.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rec.Key())
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

const (
	trueOffset = 140        // seconds the simulation clock leads the detector clock
	trueBeta   = 2.3106e-03 // uSv/h per CPM used to synthesize the reference
)

// makeSubmission synthesizes one hour of flight data: detector counts at 5 s
// cadence following a smooth dose bump, trajectory at 1 min cadence, and a
// simulated reference equal to trueBeta times the counts shifted by
// trueOffset. Alignment over this input must recover both constants.
func makeSubmission(flight, device string) domain.Submission {
	takeoff := time.Date(2025, 6, 27, 10, 0, 0, 0, time.UTC)
	const samples = 720 // one hour at 5 s cadence

	profile := func(i int) int {
		if i < 0 {
			i = 0
		}
		if i >= samples {
			i = samples - 1
		}
		x := float64(i-samples/2) / 150.0
		return 40 + int(35*math.Exp(-x*x))
	}

	readings := make([]domain.DetectorReading, samples)
	simulation := make([]domain.SimulationSample, samples)
	for i := 0; i < samples; i++ {
		ts := takeoff.Add(time.Duration(i) * 5 * time.Second)
		readings[i] = domain.DetectorReading{Timestamp: ts, Count5s: profile(i)}
		// The reference at time t reflects the counts the detector recorded
		// trueOffset seconds earlier.
		shifted := profile(i - trueOffset/5)
		simulation[i] = domain.SimulationSample{
			Timestamp:   ts,
			DoseTotal:   trueBeta * float64(shifted),
			DoseNeutron: trueBeta * float64(shifted) * 0.4,
		}
	}

	trajectory := make([]domain.TrajectoryPoint, 0, 61)
	for i := 0; i <= 60; i++ {
		trajectory = append(trajectory, domain.TrajectoryPoint{
			Timestamp: takeoff.Add(time.Duration(i) * time.Minute),
			Lat:       49.0 + 0.05*float64(i),
			Lon:       2.5 - 0.08*float64(i),
			Alt:       10500,
		})
	}

	return domain.Submission{
		Meta: domain.FlightMetadata{
			FlightNumber:    flight,
			OriginICAO:      "LFPG",
			DestinationICAO: "KIAD",
			DeviceID:        device,
			DetectorModel:   "bGeigie Nano",
			CitizenID:       "c-042",
			TakeoffUTC:      takeoff,
			LandingUTC:      takeoff.Add(time.Hour),
		},
		Readings:   readings,
		Trajectory: trajectory,
		Simulation: simulation,
	}
}

func testConfigs() (domain.NormalizeConfig, domain.AlignConfig) {
	return domain.NormalizeConfig{MinOverlap: 30 * time.Minute},
		domain.AlignConfig{
			Window:      10 * time.Minute,
			Step:        time.Second,
			MinFitR2:    0.6,
			ForceOrigin: true,
		}
}

func TestPipelineEndToEnd(t *testing.T) {
	a := openTestArchive(t)
	source := &mockSource{subs: []domain.Submission{makeSubmission("AFR81", "Safecast 1225")}}
	notifier := &mockNotifier{}
	normCfg, alignCfg := testConfigs()

	p := pipeline.New(source, a, notifier, testLogger(), observability.NewMetricsForTesting(), normCfg, alignCfg, 2)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	require.Equal(t, pipeline.DispositionArchived, res.Disposition)
	require.NoError(t, res.Err)

	key := domain.Key{FlightNumber: "AFR81", Date: "2025-06-27", DeviceID: "Safecast 1225"}
	assert.Equal(t, key, res.Key)
	assert.Equal(t, trueOffset, res.Alignment.OffsetSeconds)
	assert.InDelta(t, trueBeta, res.Alignment.ScalingBeta, 1e-9)
	assert.Greater(t, res.Alignment.FitR2, 0.99)

	// The record is durably archived and reads back with the same identity.
	loaded, err := a.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "AFR81", loaded.Meta.FlightNumber)
	assert.Equal(t, "Safecast 1225", loaded.Meta.DeviceID)
	assert.Equal(t, domain.TimestampsOriginal, loaded.Timestamps)
	assert.NotEmpty(t, loaded.Rows)

	assert.Equal(t, []domain.Key{key}, source.acked())
	assert.Equal(t, []domain.Key{key}, notifier.calls)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipelineDispositions(t *testing.T) {
	a := openTestArchive(t)
	normCfg, alignCfg := testConfigs()
	alignCfg.Window = time.Minute

	good := makeSubmission("AFR81", "Safecast 1225")

	// No reference uploaded yet: the overlap of all three sources is empty.
	deferred := makeSubmission("UAL915", "Radiacode 102")
	deferred.Simulation = nil

	// Counts and reference that have nothing to do with each other.
	unresolved := makeSubmission("DLH400", "GMC 320")
	for i := range unresolved.Readings {
		unresolved.Readings[i].Count5s = 40 + (i*7919)%13
	}
	for i := range unresolved.Simulation {
		unresolved.Simulation[i].DoseTotal = trueBeta * float64(50+(i*104729)%17)
	}

	// Same key as an already archived flight.
	duplicate := makeSubmission("BAW212", "Safecast 1225")
	pre, err := a.Add(context.Background(), &domain.FlightRecord{
		Meta:       duplicate.Meta,
		Alignment:  domain.AlignmentResult{OffsetSeconds: 10, ScalingBeta: 1e-3, FitR2: 0.9},
		Timestamps: domain.TimestampsOriginal,
		Rows:       []domain.Row{{Timestamp: duplicate.Meta.TakeoffUTC}},
	}, archive.RawFiles{})
	require.NoError(t, err)
	require.NotNil(t, pre)

	source := &mockSource{subs: []domain.Submission{good, deferred, unresolved, duplicate}}
	p := pipeline.New(source, a, nil, testLogger(), observability.NewMetricsForTesting(), normCfg, alignCfg, 3)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	// Ordered by key, independent of worker interleaving.
	byFlight := map[string]pipeline.Result{}
	var order []string
	for _, res := range report.Results {
		byFlight[res.Key.FlightNumber] = res
		order = append(order, res.Key.String())
	}
	assert.IsNonDecreasing(t, order)

	assert.Equal(t, pipeline.DispositionArchived, byFlight["AFR81"].Disposition)

	assert.Equal(t, pipeline.DispositionDeferred, byFlight["UAL915"].Disposition)
	var overlap *domain.InsufficientOverlapError
	require.ErrorAs(t, byFlight["UAL915"].Err, &overlap)

	assert.Equal(t, pipeline.DispositionUnresolved, byFlight["DLH400"].Disposition)
	var failed *domain.AlignmentFailedError
	require.ErrorAs(t, byFlight["DLH400"].Err, &failed)

	assert.Equal(t, pipeline.DispositionFailed, byFlight["BAW212"].Disposition)
	var dup *archive.DuplicateKeyError
	require.ErrorAs(t, byFlight["BAW212"].Err, &dup)

	want := map[pipeline.Disposition]int{
		pipeline.DispositionArchived:   1,
		pipeline.DispositionDeferred:   1,
		pipeline.DispositionUnresolved: 1,
		pipeline.DispositionFailed:     1,
	}
	if diff := cmp.Diff(want, report.Counts()); diff != "" {
		t.Errorf("disposition counts mismatch (-want +got):\n%s", diff)
	}

	// Only the archived flight is acknowledged; the rest stay pending.
	assert.Equal(t, []domain.Key{domain.NewKey(good.Meta)}, source.acked())
}

func TestPipelineNotifyFailureKeepsFlightArchived(t *testing.T) {
	a := openTestArchive(t)
	source := &mockSource{subs: []domain.Submission{makeSubmission("AFR81", "Safecast 1225")}}
	notifier := &mockNotifier{err: errors.New("broker unreachable")}
	normCfg, alignCfg := testConfigs()

	p := pipeline.New(source, a, notifier, testLogger(), observability.NewMetricsForTesting(), normCfg, alignCfg, 1)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, pipeline.DispositionArchived, report.Results[0].Disposition)

	_, err = a.Get(context.Background(), report.Results[0].Key)
	require.NoError(t, err)
}

func TestPipelineReportTimesUseInjectedClock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC))
	pipeline.SetClock(fake)
	t.Cleanup(func() { pipeline.SetClock(nil) })

	a := openTestArchive(t)
	source := &mockSource{subs: nil}
	normCfg, alignCfg := testConfigs()

	p := pipeline.New(source, a, nil, testLogger(), observability.NewMetricsForTesting(), normCfg, alignCfg, 2)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fake.Now().UTC(), report.Started)
	assert.Equal(t, fake.Now().UTC(), report.Completed)
	assert.Empty(t, report.Results)
}

func TestPipelineNotReadyBeforeFirstBatch(t *testing.T) {
	a := openTestArchive(t)
	normCfg, alignCfg := testConfigs()
	p := pipeline.New(&mockSource{}, a, nil, testLogger(), observability.NewMetricsForTesting(), normCfg, alignCfg, 1)

	require.Error(t, p.CheckReadiness(context.Background()))
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.CheckReadiness(context.Background()))
}
