package domain

import (
	"fmt"
	"time"
)

// InsufficientOverlapError reports that the three input series do not share
// enough of a common time window to normalize. Not retried automatically:
// the usual cause is a reference upload that has not arrived yet.
type InsufficientOverlapError struct {
	Overlap time.Duration // the overlap that was found (zero when the windows are disjoint)
	Min     time.Duration // the configured minimum
}

func (e *InsufficientOverlapError) Error() string {
	return fmt.Sprintf("insufficient overlap between detector, trajectory and simulation series: %s (minimum %s)", e.Overlap, e.Min)
}

// AlignmentFailedError reports that the offset search could not produce a
// trustworthy calibration. The flight is held as unresolved rather than
// archived with a bad scaling factor.
type AlignmentFailedError struct {
	Reason    string
	FitR2     float64
	Threshold float64
}

func (e *AlignmentFailedError) Error() string {
	if e.Threshold > 0 {
		return fmt.Sprintf("alignment failed: %s (fit r2 %.4f, threshold %.4f)", e.Reason, e.FitR2, e.Threshold)
	}
	return "alignment failed: " + e.Reason
}
