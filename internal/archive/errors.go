package archive

import (
	"fmt"

	"github.com/cosmiconair/flight-dose-etl/internal/domain"
)

// DuplicateKeyError reports an Add for a key that is already archived.
type DuplicateKeyError struct {
	Key domain.Key
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("archive already holds a record for %q", e.Key)
}

// NotFoundError reports an operation against a key with no archive entry.
type NotFoundError struct {
	Key domain.Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no archive entry for %q", e.Key)
}

// InvalidQueryError reports a search with no criteria at all. Full-archive
// scans must be asked for explicitly, not triggered by an empty form.
type InvalidQueryError struct{}

func (e *InvalidQueryError) Error() string {
	return "search requires at least one of flight number, date, or device id"
}
