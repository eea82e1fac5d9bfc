package domain

import (
	"errors"
	"fmt"
)

// ErrSnapshotNotFound is returned by the snapshot store when no snapshot
// exists for a (manager, period) key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrPriceUnavailable is returned by price providers when no price exists
// near the requested date. Scoring functions treat it as missing data, never
// as a zero price.
var ErrPriceUnavailable = errors.New("price unavailable")

// ParseError reports a malformed snapshot structure (expected table layout
// absent). Fatal for that snapshot only; the pipeline continues with others.
type ParseError struct {
	ManagerID string
	Period    string
	Reason    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s/%s: %s", e.ManagerID, e.Period, e.Reason)
}

// UnresolvableQuarterError reports that no filing quarter could be derived
// for a snapshot section. Fatal for the affected rows only.
type UnresolvableQuarterError struct {
	ManagerID string
	Period    string
	Section   string // section label, when the snapshot has quarter sections
}

func (e *UnresolvableQuarterError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("cannot resolve quarter for %s/%s section %q", e.ManagerID, e.Period, e.Section)
	}
	return fmt.Sprintf("cannot resolve quarter for %s/%s", e.ManagerID, e.Period)
}

// LedgerInvariantViolation reports a duplicate or out-of-order quarter for a
// manager. It aborts the ledger build for that manager, since downstream
// reconciliation cannot be trusted past it.
type LedgerInvariantViolation struct {
	ManagerID string
	Quarter   Quarter
	Detail    string
}

func (e *LedgerInvariantViolation) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s at %s: %s", e.ManagerID, e.Quarter, e.Detail)
}
