package core

import "github.com/pkg/errors"

var (
	// ErrCompileFailed is returned by strict runs when the compiler exits
	// non-zero or cannot be started.
	ErrCompileFailed = errors.New("compile failed")

	// ErrNoArtifact is returned when a step needs an artifact that is not there.
	ErrNoArtifact = errors.New("artifact does not exist")

	// ErrInvalidTarget is returned for targets that cannot be run.
	ErrInvalidTarget = errors.New("invalid target")
)
