package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

const (
	processedLogPrefix = "Data "
	processedLogExt    = ".log"
	rawBundleFile      = "submission.json"
	referenceFile      = "reference.json"
)

func ensureTrees(dir string) error {
	for _, tree := range []string{dir,
		filepath.Join(dir, rawTree),
		filepath.Join(dir, referenceTree),
		filepath.Join(dir, processedTree),
	} {
		if err := os.MkdirAll(tree, 0o755); err != nil {
			return fmt.Errorf("create archive tree: %w", err)
		}
	}
	return nil
}

// Per-flight directories, relative to the archive root. The data id itself
// is the directory name; it contains spaces by construction and that is fine.
func processedRel(id string) string { return filepath.Join(processedTree, id) }
func rawRel(id string) string       { return filepath.Join(rawTree, id) }
func referenceRel(id string) string { return filepath.Join(referenceTree, id) }

func processedLogName(id string) string {
	return processedLogPrefix + id + processedLogExt
}

// fileSet is one flight's on-disk footprint: the directories that exist and
// the files inside them. Paths are relative to the archive root.
type fileSet struct {
	processedDir string
	rawDir       string // "" when no raw bundle was stored
	referenceDir string // "" when no reference was stored
}

// writeFileSet materializes a record and its raw inputs under the given
// per-flight directories. Directories are created; files are written whole.
func (a *Archive) writeFileSet(id string, set fileSet, rec *domain.FlightRecord, raw RawFiles) error {
	dir := filepath.Join(a.root, set.processedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, processedLogName(id)), domain.EncodeProcessedLog(rec), 0o644); err != nil {
		return fmt.Errorf("write processed log: %w", err)
	}

	if set.rawDir != "" {
		dir := filepath.Join(a.root, set.rawDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create raw dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, rawBundleFile), raw.Submission, 0o644); err != nil {
			return fmt.Errorf("write raw bundle: %w", err)
		}
	}
	if set.referenceDir != "" {
		dir := filepath.Join(a.root, set.referenceDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create reference dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, referenceFile), raw.Reference, 0o644); err != nil {
			return fmt.Errorf("write reference file: %w", err)
		}
	}
	return nil
}

func removeFileSet(root string, set fileSet) {
	for _, rel := range []string{set.processedDir, set.rawDir, set.referenceDir} {
		if rel != "" {
			os.RemoveAll(filepath.Join(root, rel))
		}
	}
}

func newFileSet(id string, raw RawFiles) fileSet {
	set := fileSet{processedDir: processedRel(id)}
	if raw.Submission != nil {
		set.rawDir = rawRel(id)
	}
	if raw.Reference != nil {
		set.referenceDir = referenceRel(id)
	}
	return set
}

func suffixed(set fileSet, suffix string) fileSet {
	out := fileSet{processedDir: set.processedDir + suffix}
	if set.rawDir != "" {
		out.rawDir = set.rawDir + suffix
	}
	if set.referenceDir != "" {
		out.referenceDir = set.referenceDir + suffix
	}
	return out
}

// Add stores a newly calibrated flight: files first, index row second, so a
// crash between the two leaves an orphan that Scan can find rather than an
// index row pointing at nothing.
func (a *Archive) Add(ctx context.Context, rec *domain.FlightRecord, raw RawFiles) (*Entry, error) {
	key := rec.Key()
	id := key.String()
	unlock := a.lockKey(id)
	defer unlock()

	if _, err := a.getEntry(ctx, id); err == nil {
		return nil, &DuplicateKeyError{Key: key}
	} else if !errors.As(err, new(*NotFoundError)) {
		return nil, err
	}
	return a.addLocked(ctx, id, rec, raw)
}

// addLocked writes the file set and inserts the index row. The caller must
// hold the key's lock and have established that no row exists for it.
func (a *Archive) addLocked(ctx context.Context, id string, rec *domain.FlightRecord, raw RawFiles) (*Entry, error) {
	set := newFileSet(id, raw)
	if err := a.writeFileSet(id, set, rec, raw); err != nil {
		removeFileSet(a.root, set)
		return nil, err
	}

	entry := a.entryFor(rec, set)
	if err := a.insertEntry(ctx, entry); err != nil {
		removeFileSet(a.root, set)
		return nil, err
	}

	a.logger.Info("flight archived", "data_id", id, "fit_r2", rec.Alignment.FitR2)
	return entry, nil
}

// Reprocess replaces an existing flight's files and index row with a freshly
// calibrated record. The new files are staged to sibling directories, the
// index row is swapped in a transaction, and only then are the old files
// retired and removed. A crash mid-swap leaves suffixed directories that
// Scan reports as orphans. A key with no existing entry is stored as a
// fresh addition.
func (a *Archive) Reprocess(ctx context.Context, rec *domain.FlightRecord, raw RawFiles) (*Entry, error) {
	key := rec.Key()
	id := key.String()
	unlock := a.lockKey(id)
	defer unlock()

	old, err := a.getEntry(ctx, id)
	if errors.As(err, new(*NotFoundError)) {
		return a.addLocked(ctx, id, rec, raw)
	}
	if err != nil {
		return nil, err
	}

	final := newFileSet(id, raw)
	staging := suffixed(final, stagingSuffix)
	if err := a.writeFileSet(id, staging, rec, raw); err != nil {
		removeFileSet(a.root, staging)
		return nil, err
	}

	entry := a.entryFor(rec, final)
	entry.CreatedAt = old.CreatedAt
	if err := a.updateEntry(ctx, entry); err != nil {
		removeFileSet(a.root, staging)
		return nil, err
	}

	oldSet := fileSet{processedDir: old.ProcessedPath, rawDir: old.RawPath, referenceDir: old.ReferencePath}
	retired := suffixed(oldSet, retiredSuffix)
	renameFileSet(a.root, oldSet, retired)
	renameFileSet(a.root, staging, final)
	removeFileSet(a.root, retired)

	a.logger.Info("flight reprocessed", "data_id", id, "fit_r2", rec.Alignment.FitR2)
	return entry, nil
}

func renameFileSet(root string, from, to fileSet) {
	pairs := [][2]string{
		{from.processedDir, to.processedDir},
		{from.rawDir, to.rawDir},
		{from.referenceDir, to.referenceDir},
	}
	for _, p := range pairs {
		if p[0] == "" || p[1] == "" {
			continue
		}
		os.Rename(filepath.Join(root, p[0]), filepath.Join(root, p[1]))
	}
}

// Delete removes a flight's files and then its index row, in that order, so
// a retried delete after a partial failure converges instead of erroring on
// missing files. Absence of the index row is NotFoundError.
func (a *Archive) Delete(ctx context.Context, key domain.Key) error {
	id := key.String()
	unlock := a.lockKey(id)
	defer unlock()

	entry, err := a.getEntry(ctx, id)
	if err != nil {
		return err
	}

	removeFileSet(a.root, fileSet{
		processedDir: entry.ProcessedPath,
		rawDir:       entry.RawPath,
		referenceDir: entry.ReferencePath,
	})

	if _, err := a.db.ExecContext(ctx, `DELETE FROM flights WHERE data_id = ?`, id); err != nil {
		return fmt.Errorf("delete index row: %w", err)
	}
	a.logger.Info("flight deleted", "data_id", id)
	return nil
}

// Search returns index entries matching the criteria, ordered by data id.
// A fully empty Criteria is rejected; listing everything is Scan territory.
func (a *Archive) Search(ctx context.Context, c Criteria) ([]Entry, error) {
	if c.empty() {
		return nil, &InvalidQueryError{}
	}

	var (
		where []string
		args  []any
	)
	if c.FlightNumber != "" {
		where = append(where, "flight_number = ?")
		args = append(args, c.FlightNumber)
	}
	if c.Date != "" {
		where = append(where, "flight_date = ?")
		args = append(args, c.Date)
	}
	if c.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, c.DeviceID)
	}

	query := selectColumns + ` FROM flights WHERE ` + strings.Join(where, " AND ") + ` ORDER BY data_id ASC`
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// Load reads an archived flight's processed log back into a FlightRecord.
func (a *Archive) Load(ctx context.Context, key domain.Key) (*domain.FlightRecord, error) {
	id := key.String()
	entry, err := a.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(a.root, entry.ProcessedPath, processedLogName(id)))
	if err != nil {
		return nil, fmt.Errorf("read processed log: %w", err)
	}
	return domain.DecodeProcessedLog(data)
}

// Count returns the number of archived flights.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count index rows: %w", err)
	}
	return n, nil
}

// Get returns the index entry for one key.
func (a *Archive) Get(ctx context.Context, key domain.Key) (*Entry, error) {
	return a.getEntry(ctx, key.String())
}

// Scan cross-checks the index against the object store and reports every
// divergence it finds: index rows whose files are gone, and stored file sets
// no index row points at (including leftovers of an interrupted swap). Scan
// never repairs; the operator decides.
func (a *Archive) Scan(ctx context.Context) ([]Divergence, error) {
	rows, err := a.db.QueryContext(ctx, selectColumns+` FROM flights ORDER BY data_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	defer rows.Close()

	indexed := make(map[string]bool)
	var out []Divergence
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		indexed[entry.DataID] = true

		log := filepath.Join(a.root, entry.ProcessedPath, processedLogName(entry.DataID))
		if _, err := os.Stat(log); err != nil {
			out = append(out, Divergence{
				DataID: entry.DataID,
				Kind:   "missing-files",
				Detail: fmt.Sprintf("processed log absent at %s", filepath.Join(entry.ProcessedPath, processedLogName(entry.DataID))),
			})
			continue
		}
		for _, rel := range []string{entry.RawPath, entry.ReferencePath} {
			if rel == "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(a.root, rel)); err != nil {
				out = append(out, Divergence{
					DataID: entry.DataID,
					Kind:   "missing-files",
					Detail: fmt.Sprintf("stored directory absent at %s", rel),
				})
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tree := range []string{processedTree, rawTree, referenceTree} {
		entries, err := os.ReadDir(filepath.Join(a.root, tree))
		if err != nil {
			return nil, fmt.Errorf("scan %s tree: %w", tree, err)
		}
		for _, de := range entries {
			if !de.IsDir() {
				continue
			}
			if indexed[de.Name()] {
				continue
			}
			out = append(out, Divergence{
				DataID: strings.TrimSuffix(strings.TrimSuffix(de.Name(), stagingSuffix), retiredSuffix),
				Kind:   "orphan-files",
				Detail: fmt.Sprintf("no index row for %s", filepath.Join(tree, de.Name())),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DataID != out[j].DataID {
			return out[i].DataID < out[j].DataID
		}
		return out[i].Detail < out[j].Detail
	})
	return out, nil
}

const selectColumns = `SELECT data_id, flight_number, flight_date, device_id, origin, destination,
	takeoff_utc, landing_utc, fit_r2, citizen_id, processed_path, raw_path, reference_path, created_at`

func (a *Archive) entryFor(rec *domain.FlightRecord, set fileSet) *Entry {
	key := rec.Key()
	return &Entry{
		DataID:        key.String(),
		FlightNumber:  key.FlightNumber,
		Date:          key.Date,
		DeviceID:      key.DeviceID,
		Origin:        rec.Meta.OriginICAO,
		Destination:   rec.Meta.DestinationICAO,
		TakeoffUTC:    rec.Meta.TakeoffUTC.UTC(),
		LandingUTC:    rec.Meta.LandingUTC.UTC(),
		FitR2:         rec.Alignment.FitR2,
		CitizenID:     rec.Meta.CitizenID,
		ProcessedPath: set.processedDir,
		RawPath:       set.rawDir,
		ReferencePath: set.referenceDir,
		CreatedAt:     a.clock.Now().UTC(),
	}
}

func (a *Archive) insertEntry(ctx context.Context, e *Entry) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO flights (data_id, flight_number, flight_date, device_id, origin, destination,
			takeoff_utc, landing_utc, fit_r2, citizen_id, processed_path, raw_path, reference_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DataID, e.FlightNumber, e.Date, e.DeviceID, e.Origin, e.Destination,
		e.TakeoffUTC.Format(time.RFC3339), e.LandingUTC.Format(time.RFC3339),
		e.FitR2, e.CitizenID, e.ProcessedPath, e.RawPath, e.ReferencePath,
		e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert index row: %w", err)
	}
	return nil
}

func (a *Archive) updateEntry(ctx context.Context, e *Entry) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index swap: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE flights SET origin = ?, destination = ?, takeoff_utc = ?, landing_utc = ?,
			fit_r2 = ?, citizen_id = ?, processed_path = ?, raw_path = ?, reference_path = ?
		WHERE data_id = ?`,
		e.Origin, e.Destination,
		e.TakeoffUTC.Format(time.RFC3339), e.LandingUTC.Format(time.RFC3339),
		e.FitR2, e.CitizenID, e.ProcessedPath, e.RawPath, e.ReferencePath,
		e.DataID)
	if err != nil {
		return fmt.Errorf("swap index row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Key: domain.Key{FlightNumber: e.FlightNumber, Date: e.Date, DeviceID: e.DeviceID}}
	}
	return tx.Commit()
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*Entry, error) {
	var (
		e                            Entry
		takeoff, landing, createdAt  string
		origin, destination, citizen sql.NullString
		raw, reference               sql.NullString
		fitR2                        sql.NullFloat64
	)
	err := row.Scan(&e.DataID, &e.FlightNumber, &e.Date, &e.DeviceID, &origin, &destination,
		&takeoff, &landing, &fitR2, &citizen, &e.ProcessedPath, &raw, &reference, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan index row: %w", err)
	}
	e.Origin = origin.String
	e.Destination = destination.String
	e.CitizenID = citizen.String
	e.RawPath = raw.String
	e.ReferencePath = reference.String
	e.FitR2 = fitR2.Float64
	if e.TakeoffUTC, err = time.Parse(time.RFC3339, takeoff); err != nil {
		return nil, fmt.Errorf("parse takeoff_utc: %w", err)
	}
	if e.LandingUTC, err = time.Parse(time.RFC3339, landing); err != nil {
		return nil, fmt.Errorf("parse landing_utc: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &e, nil
}

func (a *Archive) getEntry(ctx context.Context, id string) (*Entry, error) {
	row := a.db.QueryRowContext(ctx, selectColumns+` FROM flights WHERE data_id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Key: keyFromID(id)}
	}
	return entry, err
}

// ParseDataID splits a data id back into its key fields. The device id may
// itself contain spaces, so the first two fields are positional and the rest
// is the device.
func ParseDataID(id string) (domain.Key, error) {
	parts := strings.SplitN(id, " ", 3)
	if len(parts) != 3 {
		return domain.Key{}, fmt.Errorf("malformed data id %q, want \"FLIGHT YYYY-MM-DD DEVICE\"", id)
	}
	return domain.Key{FlightNumber: parts[0], Date: parts[1], DeviceID: parts[2]}, nil
}

func keyFromID(id string) domain.Key {
	key, err := ParseDataID(id)
	if err != nil {
		return domain.Key{FlightNumber: id}
	}
	return key
}

// LoadRaw reads back the stored raw inputs for one key, for reprocessing.
func (a *Archive) LoadRaw(ctx context.Context, key domain.Key) (RawFiles, error) {
	entry, err := a.getEntry(ctx, key.String())
	if err != nil {
		return RawFiles{}, err
	}

	var raw RawFiles
	if entry.RawPath != "" {
		if raw.Submission, err = os.ReadFile(filepath.Join(a.root, entry.RawPath, rawBundleFile)); err != nil {
			return RawFiles{}, fmt.Errorf("read raw bundle: %w", err)
		}
	}
	if entry.ReferencePath != "" {
		if raw.Reference, err = os.ReadFile(filepath.Join(a.root, entry.ReferencePath, referenceFile)); err != nil {
			return RawFiles{}, fmt.Errorf("read reference file: %w", err)
		}
	}
	return raw, nil
}
