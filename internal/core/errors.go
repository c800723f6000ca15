package core

import (
	"errors"
	"fmt"
)

// Stage names the pipeline stage an error originated in.
type Stage string

const (
	StageAugmentation Stage = "augmentation"
	StageGeneration   Stage = "generation"
)

// ErrInvalidTransition is returned for an illegal task state change.
var ErrInvalidTransition = errors.New("invalid task transition")

// StageError tags an error with its pipeline stage.
type StageError struct {
	Stage   Stage
	ModelID ModelID
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.ModelID != "" {
		return fmt.Sprintf("%s failed (model %s): %v", e.Stage, e.ModelID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// IsGenerationError reports whether err came from the final generation call.
func IsGenerationError(err error) bool {
	stage, ok := StageOf(err)
	return ok && stage == StageGeneration
}
