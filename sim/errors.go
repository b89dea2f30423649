package sim

import "errors"

var (
	// ErrShapeMismatch is returned before any data moves when transition
	// matrices do not match the group's device and cluster counts.
	ErrShapeMismatch = errors.New("transition matrix shape mismatch")

	ErrInvalidProfile = errors.New("invalid device profile")

	// ErrCheckpointNotFound is wrapped by Checkpointer implementations when no
	// checkpoint exists for a key or round.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)
