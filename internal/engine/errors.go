package engine

import "errors"

// Structural failures returned by the dispatcher and lookup helpers.
// Formula failures are never returned as errors; they are stored in-band
// as sentinel cell values (see RefError and EvalError in eval.go).
var (
	ErrSheetNotFound  = errors.New("sheet not found")
	ErrDuplicateSheet = errors.New("duplicate sheet")
	ErrUnknownOp      = errors.New("unknown op")
	ErrBadAddress     = errors.New("bad address")
)
