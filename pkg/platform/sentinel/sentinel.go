package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Adapters return these (optionally wrapped)
// so services can translate them into domain errors.
//
// These represent factual states about collaborators, not validation failures:
// - ErrNotFound: the ledger has no record (yet) for the requested handle
// - ErrUnavailable: the ledger endpoint or a shared resource could not be reached
// - ErrConflict: the ledger rejected a submission that clashes with accepted state
// - ErrInvalidState: an entity is in the wrong state for the requested operation
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
