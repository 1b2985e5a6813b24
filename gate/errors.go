package gate

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/uianchor/geom"
)

// ErrNoCandidates is returned by Validate when there is nothing to gate.
var ErrNoCandidates = errors.New("gate: no candidates")

// AmbiguousMatchError reports more plausible targets than policy allows.
type AmbiguousMatchError struct {
	Count    int
	Top      float64
	RunnerUp float64
	Selector string
}

func (e *AmbiguousMatchError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("gate: ambiguous match: %d nodes for %q", e.Count, e.Selector)
	}
	return fmt.Sprintf("gate: ambiguous match: %d candidates, top %.2f vs %.2f", e.Count, e.Top, e.RunnerUp)
}

// UnsafeTargetError reports a candidate refused by container/full-screen
// interception. It is never overridden by confidence.
type UnsafeTargetError struct {
	Reason    string
	Class     string
	Bounds    geom.Rect
	AreaRatio float64
}

func (e *UnsafeTargetError) Error() string {
	return fmt.Sprintf("gate: unsafe target (%s): class=%s bounds=%s", e.Reason, e.Class, e.Bounds)
}

// CheckError reports a failed light check.
type CheckError struct {
	Check Check
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("gate: light check %s failed", e.Check)
}
