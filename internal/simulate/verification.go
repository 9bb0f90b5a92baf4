package simulate

import (
	"errors"
	"fmt"
)

// ErrMismatch is returned when server metrics disagree with the run.
var ErrMismatch = errors.New("metrics mismatch")

// verifyResults checks every session counted exactly the reactions it
// accepted and produced recommendations.
func verifyResults(stats *Stats) error {
	if stats.ReactionsSubmitted != stats.ReactionsPlanned {
		return fmt.Errorf("%w: submitted %d of %d planned reactions", ErrMismatch, stats.ReactionsSubmitted, stats.ReactionsPlanned)
	}
	var errs []error
	for _, s := range stats.Sessions {
		if s.TotalReactions != s.Accepted {
			errs = append(errs, fmt.Errorf("%w: session %s counted %d reactions, %d accepted",
				ErrMismatch, s.SessionID, s.TotalReactions, s.Accepted))
		}
		if s.PositivityRatio < 0 || s.PositivityRatio > 1 {
			errs = append(errs, fmt.Errorf("%w: session %s positivity %.3f out of range",
				ErrMismatch, s.SessionID, s.PositivityRatio))
		}
		if len(s.Recommendations) == 0 {
			errs = append(errs, fmt.Errorf("%w: session %s has no recommendations", ErrMismatch, s.SessionID))
		}
	}
	return errors.Join(errs...)
}
