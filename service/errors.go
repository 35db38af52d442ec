package service

import (
	"errors"
	"fmt"
)

// Error taxonomy for the production pipeline. The three *Unavailable errors
// are transient: the orchestrator retries the scene attempt up to its budget
// before escalating. The others are fatal to the Produce call.
var (
	ErrInvalidProjectState     = errors.New("invalid project state")
	ErrInvalidTransition       = errors.New("invalid scene transition")
	ErrOptimizationUnavailable = errors.New("prompt optimizer unavailable")
	ErrAnalysisUnavailable     = errors.New("frame analyzer unavailable")
	ErrGenerationUnavailable   = errors.New("clip generator unavailable")
	ErrAssemblyFailed          = errors.New("assembly failed")
	ErrApprovalTimeout         = errors.New("approval wait timed out")
)

// SceneFailure identifies which scene exhausted its budget and why.
type SceneFailure struct {
	Ordinal int
	Err     error
}

func (f *SceneFailure) Error() string {
	return fmt.Sprintf("scene %d failed: %v", f.Ordinal, f.Err)
}

func (f *SceneFailure) Unwrap() error {
	return f.Err
}
