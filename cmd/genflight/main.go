// Command genflight generates synthetic submission bundles for the
// calibration pipeline: one hour of detector counts following a smooth dose
// bump, a minute-cadence trajectory, and a simulated reference offset and
// scaled by known constants. Useful for smoke-testing a deployment end to
// end, since the pipeline must recover exactly the offset and beta the
// generator buried in the data.
//
// Usage:
//
//	go run ./cmd/genflight -out intake -flights 3 -offset 140 -beta 2.3106e-03 -seed 11
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

var (
	airlines = []string{"AFR", "UAL", "DLH", "BAW", "JAL", "QFA", "SAS"}
	airports = []string{"LFPG", "KIAD", "EDDF", "EGLL", "RJTT", "YSSY", "KSFO", "OMDB"}
	devices  = []string{"Safecast 1225", "Safecast 1303", "Radiacode 102", "GMC 320", "RIUM S1"}
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for submission bundles")
	flights := flag.Int("flights", 1, "number of bundles to generate")
	date := flag.String("date", "2025-06-27", "UTC takeoff date, YYYY-MM-DD")
	offset := flag.Int("offset", 140, "clock offset buried in the reference, seconds")
	beta := flag.Float64("beta", 2.3106e-03, "scaling coefficient buried in the reference, uSv/h per CPM")
	noise := flag.Float64("noise", 0, "relative reference noise amplitude, e.g. 0.02")
	seed := flag.Uint64("seed", 0, "random seed (0 picks one)")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	takeoffDate, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return fmt.Errorf("bad -date: %w", err)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	faker := gofakeit.New(*seed)

	for i := 0; i < *flights; i++ {
		sub := makeSubmission(faker, takeoffDate, *offset, *beta, *noise)
		key := domain.NewKey(sub.Meta)

		data, err := json.MarshalIndent(sub, "", "  ")
		if err != nil {
			return err
		}
		name := strings.ReplaceAll(key.String(), " ", "_") + ".json"
		if err := os.WriteFile(filepath.Join(*out, name), data, 0o644); err != nil {
			return err
		}
		log.Printf("wrote %s (%d readings, offset %ds, beta %.4e)",
			name, len(sub.Readings), *offset, *beta)
	}
	return nil
}

func makeSubmission(faker *gofakeit.Faker, date time.Time, offsetSeconds int, beta, noise float64) domain.Submission {
	takeoff := time.Date(date.Year(), date.Month(), date.Day(),
		faker.Number(6, 20), faker.Number(0, 59), 0, 0, time.UTC)

	const samples = 720 // one hour at 5 s cadence
	peak := 40 + faker.Number(20, 50)
	center := samples/2 + faker.Number(-100, 100)
	width := float64(faker.Number(120, 200))

	profile := func(i int) int {
		if i < 0 {
			i = 0
		}
		if i >= samples {
			i = samples - 1
		}
		x := float64(i-center) / width
		return 40 + int(float64(peak-40)*math.Exp(-x*x))
	}

	readings := make([]domain.DetectorReading, samples)
	simulation := make([]domain.SimulationSample, samples)
	for i := 0; i < samples; i++ {
		ts := takeoff.Add(time.Duration(i) * 5 * time.Second)
		readings[i] = domain.DetectorReading{Timestamp: ts, Count5s: profile(i)}

		dose := beta * float64(profile(i-offsetSeconds/5))
		if noise > 0 {
			dose *= 1 + faker.Float64Range(-noise, noise)
		}
		simulation[i] = domain.SimulationSample{
			Timestamp:   ts,
			DoseTotal:   dose,
			DoseNeutron: dose * 0.4,
		}
	}

	lat0 := faker.Float64Range(-60, 60)
	lon0 := faker.Float64Range(-180, 179)
	trajectory := make([]domain.TrajectoryPoint, 0, 61)
	for i := 0; i <= 60; i++ {
		trajectory = append(trajectory, domain.TrajectoryPoint{
			Timestamp: takeoff.Add(time.Duration(i) * time.Minute),
			Lat:       lat0 + 0.05*float64(i),
			Lon:       lon0 + 0.1*float64(i),
			Alt:       10000 + 20*float64(i),
		})
	}

	origin := faker.RandomString(airports)
	destination := faker.RandomString(airports)
	for destination == origin {
		destination = faker.RandomString(airports)
	}

	return domain.Submission{
		Meta: domain.FlightMetadata{
			FlightNumber:    fmt.Sprintf("%s%d", faker.RandomString(airlines), faker.Number(10, 999)),
			OriginICAO:      origin,
			DestinationICAO: destination,
			DeviceID:        faker.RandomString(devices),
			DetectorModel:   "bGeigie Nano",
			CitizenID:       faker.UUID(),
			TakeoffUTC:      takeoff,
			LandingUTC:      takeoff.Add(time.Hour),
		},
		Timestamps: domain.TimestampsOriginal,
		Readings:   readings,
		Trajectory: trajectory,
		Simulation: simulation,
	}
}
