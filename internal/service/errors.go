package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSignal = errors.New("unknown signal type")
	ErrInvalidDelta  = errors.New("delta must be +1 or -1")
)

// PersistenceError reports that a computed record could not be stored. The
// record returned alongside it is valid for display but not durable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ScoreComputationError describes a record the score engine refused to
// score. It never leaves the engine; callers see the neutral fallback.
type ScoreComputationError struct {
	Field  string
	Reason string
}

func (e *ScoreComputationError) Error() string {
	return fmt.Sprintf("score computation: %s %s", e.Field, e.Reason)
}
