package provenance

import (
	"errors"
	"fmt"
)

// ErrQueryTimeout is matched by errors.Is for every query that did not finish
// within its poll budget.
var ErrQueryTimeout = errors.New("provenance query timed out")

// TimeoutError reports a query that was still running after the last poll.
// No partial results are returned with it.
type TimeoutError struct {
	QueryID          string
	Attempts         int
	PercentCompleted int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provenance query %s not finished after %d polls (%d%% complete)",
		e.QueryID, e.Attempts, e.PercentCompleted)
}

// Unwrap lets errors.Is match ErrQueryTimeout.
func (e *TimeoutError) Unwrap() error { return ErrQueryTimeout }
