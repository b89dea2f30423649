package sim

import (
	"context"
	"fmt"
)

// Weights is an opaque parameter vector produced by a LearningBackend.
// Shape is informational; the scheduler never inspects either field.
type Weights struct {
	Params []float64 `json:"params"`
	Shape  []int     `json:"shape,omitempty"`
}

// Empty reports whether no parameters are present (an untrained model).
func (w Weights) Empty() bool {
	return len(w.Params) == 0
}

// LearningBackend trains and evaluates models. The scheduler only triggers it
// after shuffling and forwards dataset sizes for weighted aggregation.
type LearningBackend interface {
	// Train runs local epochs on the device's current dataset, starting from init.
	Train(ctx context.Context, d *Device, init Weights, epochs int) (Weights, error)
	// Evaluate returns mean loss and accuracy of w on testset.
	Evaluate(ctx context.Context, w Weights, testset []Sample) (loss, accuracy float64, err error)
	// Distill trains student against the teachers' soft targets on the KD pool.
	Distill(ctx context.Context, student Weights, teachers []Weights, kd []Sample, epochs int) (Weights, error)
}

// Checkpointer persists model weights keyed by a round-stable id.
// Missing checkpoints are reported with an error wrapping ErrCheckpointNotFound.
type Checkpointer interface {
	SaveWeights(ctx context.Context, key string, round int, w Weights) error
	LoadWeights(ctx context.Context, key string, round int) (Weights, error)
	// Latest returns the highest round checkpointed for key.
	Latest(ctx context.Context, key string) (int, Weights, error)
}

// ServerKey is the checkpoint key of the global model.
const ServerKey = "server"

// GroupKey returns the checkpoint key of a user group's model.
func GroupKey(groupID int) string {
	return fmt.Sprintf("user_%d", groupID)
}

// DeviceKey returns the checkpoint key of a device model.
func DeviceKey(groupID, deviceID int) string {
	return fmt.Sprintf("user_%d/device_%d", groupID, deviceID)
}
