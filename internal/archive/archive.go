// Package archive implements the durable catalog over calibrated flight
// records: a relational index (SQLite) for lookup, backed by an on-disk
// object store split into raw, reference and processed trees.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	// Pure-Go SQLite driver; registers as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

const (
	indexFile     = "index.db"
	rawTree       = "raw"
	referenceTree = "reference"
	processedTree = "processed"

	// Transient directory suffixes used while a reprocess swaps file sets.
	stagingSuffix = ".staging"
	retiredSuffix = ".old"
)

const schema = `
CREATE TABLE IF NOT EXISTS flights (
	data_id        TEXT PRIMARY KEY,
	flight_number  TEXT NOT NULL,
	flight_date    TEXT NOT NULL,
	device_id      TEXT NOT NULL,
	origin         TEXT,
	destination    TEXT,
	takeoff_utc    TEXT NOT NULL,
	landing_utc    TEXT NOT NULL,
	fit_r2         REAL,
	citizen_id     TEXT,
	processed_path TEXT NOT NULL,
	raw_path       TEXT,
	reference_path TEXT,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flights_key ON flights(flight_number, flight_date, device_id);
`

// Entry is the index-level projection of an archived flight: the search key
// fields plus the locations of the stored files, relative to the archive root.
type Entry struct {
	DataID        string
	FlightNumber  string
	Date          string
	DeviceID      string
	Origin        string
	Destination   string
	TakeoffUTC    time.Time
	LandingUTC    time.Time
	FitR2         float64
	CitizenID     string
	ProcessedPath string
	RawPath       string
	ReferencePath string
	CreatedAt     time.Time
}

// Key returns the entry's natural key.
func (e *Entry) Key() domain.Key {
	return domain.Key{FlightNumber: e.FlightNumber, Date: e.Date, DeviceID: e.DeviceID}
}

// Criteria is a conjunction over the archive's key fields. Empty fields are
// not constrained; an entirely empty Criteria is rejected.
type Criteria struct {
	FlightNumber string
	Date         string // YYYY-MM-DD
	DeviceID     string
}

func (c Criteria) empty() bool {
	return c.FlightNumber == "" && c.Date == "" && c.DeviceID == ""
}

// RawFiles carries the original inputs stored next to the processed record,
// so a flight can be reprocessed later from exactly what was submitted.
type RawFiles struct {
	Submission []byte // intake bundle: metadata, detector readings, trajectory
	Reference  []byte // simulation reference series
}

// Divergence is one inconsistency between the index and the object store,
// found by Scan. Reported, never auto-repaired.
type Divergence struct {
	DataID string
	Kind   string // "missing-files" or "orphan-files"
	Detail string
}

// Archive is a process-wide handle over one archive root. Operations on the
// same key are serialized by a per-key lock; operations on different keys
// may run concurrently. Open once, Close when done.
type Archive struct {
	root   string
	db     *sql.DB
	logger *slog.Logger
	clock  clockwork.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Archive at Open time.
type Option func(*Archive)

// WithClock swaps the time source used for entry timestamps. Tests freeze it.
func WithClock(c clockwork.Clock) Option {
	return func(a *Archive) { a.clock = c }
}

// Open opens (creating if needed) the archive rooted at dir: the SQLite
// index plus the raw/reference/processed trees.
func Open(dir string, logger *slog.Logger, opts ...Option) (*Archive, error) {
	a := &Archive{
		root:   dir,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := ensureTrees(dir); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("open archive index: %w", err)
	}

	// One physical connection: SQLite serializes writers anyway, and a single
	// connection keeps the WAL session stable for the process lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA foreign_keys=ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("tune archive index: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive index: %w", err)
	}

	a.db = db
	logger.Info("archive opened", "root", dir)
	return a, nil
}

// Close releases the index connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Root returns the archive root directory.
func (a *Archive) Root() string {
	return a.root
}

// lockKey serializes operations on one data id. Returns the unlock func.
func (a *Archive) lockKey(id string) func() {
	a.mu.Lock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
