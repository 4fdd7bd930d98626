// Package spool reads flight submissions from an intake directory. Each
// pending submission is one JSON bundle file; acknowledged bundles are moved
// to a done subdirectory so a re-run never reprocesses them.
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

const doneDir = "done"

// Dir is a directory-backed submission source. It implements
// pipeline.SubmissionSource.
type Dir struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	files map[string]string // data id -> pending bundle file name
}

// New opens the intake directory, creating it and its done subdirectory.
func New(root string, logger *slog.Logger) (*Dir, error) {
	for _, dir := range []string{root, filepath.Join(root, doneDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create intake dir: %w", err)
		}
	}
	return &Dir{root: root, logger: logger, files: make(map[string]string)}, nil
}

// Pending parses every JSON bundle in the intake directory, in file name
// order. A bundle that does not parse is logged and left in place; it never
// blocks the rest of the batch.
func (d *Dir) Pending(ctx context.Context) ([]domain.Submission, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read intake dir: %w", err)
	}

	var names []string
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = make(map[string]string, len(names))

	var out []domain.Submission
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(d.root, name))
		if err != nil {
			return nil, fmt.Errorf("read bundle %s: %w", name, err)
		}
		var sub domain.Submission
		if err := json.Unmarshal(data, &sub); err != nil {
			d.logger.Warn("skipping unparseable bundle", "file", name, "error", err)
			continue
		}
		d.files[domain.NewKey(sub.Meta).String()] = name
		out = append(out, sub)
	}
	return out, nil
}

// Done moves the bundle behind the given key to the done subdirectory.
// The key must come from the most recent Pending.
func (d *Dir) Done(key domain.Key) error {
	id := key.String()

	d.mu.Lock()
	name, ok := d.files[id]
	delete(d.files, id)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending bundle for %q", id)
	}
	if err := os.Rename(filepath.Join(d.root, name), filepath.Join(d.root, doneDir, name)); err != nil {
		return fmt.Errorf("move bundle %s: %w", name, err)
	}
	return nil
}
