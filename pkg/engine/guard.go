package engine

import (
	"fmt"

	"github.com/cookkie03/davsync/pkg/model"
)

// Guard aborts a run before any write when the computed deletion set is
// implausibly large. A transient auth failure or a wrong endpoint on one
// side looks identical to "everything was deleted"; the guard turns that
// silent data-loss bug into a loud, recoverable no-op.
type Guard struct {
	// MinState is the minimum number of links before the guard engages.
	MinState int
	// MaxMissingFrac is the tolerated fraction of linked identifiers
	// absent from both sides.
	MaxMissingFrac float64
}

// DefaultGuard engages at 50 links and 20% missing.
var DefaultGuard = Guard{MinState: 50, MaxMissingFrac: 0.20}

// SafetyAbortError reports why the guard stopped the run.
type SafetyAbortError struct {
	Missing int
	Total   int
}

func (e *SafetyAbortError) Error() string {
	return fmt.Sprintf("safety abort: %d/%d linked records missing from both sides (%.0f%% > threshold), refusing to delete",
		e.Missing, e.Total, 100*float64(e.Missing)/float64(e.Total))
}

// Check returns a SafetyAbortError when too many linked identifiers are
// present on neither side, nil otherwise.
func (g Guard) Check(links map[string]*model.Link, aByID, bByID map[string]*model.Record) error {
	if len(links) < g.MinState {
		return nil
	}
	missing := 0
	for id := range links {
		if _, onA := aByID[id]; onA {
			continue
		}
		if _, onB := bByID[id]; onB {
			continue
		}
		missing++
	}
	if float64(missing)/float64(len(links)) > g.MaxMissingFrac {
		return &SafetyAbortError{Missing: missing, Total: len(links)}
	}
	return nil
}
