// Package sim provides the resource model and data-migration core of the
// ShuffleFL simulator.
//
// # Reading Guide
//
// Start with these files:
//   - device.go: Device, Sample and the imbalance score over its labels
//   - group.go: Group (a user), the arena every planning step works on
//   - shuffle.go: the shuffling engine, plus TryShuffle for tentative evaluation
//   - matrix.go: TransitionMatrix semantics (probability mass per row)
//
// # Architecture
//
// The sim package owns the data model and the pieces every round needs;
// the planning and training pipeline lives in sub-packages:
//   - sim/reduce/: LDA + k-means cluster reducer
//   - sim/optimize/: constrained transition-matrix optimizer
//   - sim/federation/: round orchestration, aggregator, metrics
//   - sim/backend/: reference learning backend and FedAvg
//   - sim/store/: checkpoint persistence
//   - sim/dataset/: synthetic data and partitioning
//   - sim/trace/: per-round records reported to the aggregator
//
// # Key Interfaces
//
//   - LearningBackend: train / evaluate / distill, consumed after shuffling
//   - Checkpointer: weights persistence keyed by user/device id and round
package sim
