// Package federation drives federated rounds over a fleet of groups.
//
// Each round, every group resets its per-round state, reduces its label space
// to surrogate clusters, optimizes and executes a transfer plan, refreshes its
// capability estimate, trains one model per device and distills them into a
// group model over the KD pool. The server then averages group models weighted
// by sample count and hands every group its next adaptive scaling factor.
//
// Groups share no mutable state, so up to Config.Parallelism of them run
// concurrently. A group whose round fails is recorded with the error and
// left out of aggregation; the other groups continue.
package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inference-sim/shufflefl/sim"
	"github.com/inference-sim/shufflefl/sim/optimize"
	"github.com/inference-sim/shufflefl/sim/reduce"
	"github.com/inference-sim/shufflefl/sim/trace"
)

// ErrUnknownGroup is returned for a group id outside the fleet.
var ErrUnknownGroup = errors.New("unknown group")

// Coordinator owns the fleet and the global model for one run.
type Coordinator struct {
	cfg        Config
	backend    sim.LearningBackend
	store      sim.Checkpointer // nil disables checkpoints
	metrics    *Metrics         // nil disables metrics
	optimizer  *optimize.Optimizer
	aggregator Aggregator
	latency    sim.LatencyModel

	fleet    *Fleet
	groupRNG []*sim.PartitionedRNG // indexed by group id
	runID    string
	trace    *trace.RunTrace

	global      sim.Weights
	groupModels []sim.Weights
	round       int // next round to run
}

// NewCoordinator validates cfg and builds the fleet. store and metrics may be nil.
// Panics if backend is nil.
func NewCoordinator(cfg Config, backend sim.LearningBackend, store sim.Checkpointer, metrics *Metrics) (*Coordinator, error) {
	if backend == nil {
		panic("NewCoordinator: backend must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	fleet, err := BuildFleet(cfg, rng)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:         cfg,
		backend:     backend,
		store:       store,
		metrics:     metrics,
		optimizer:   optimize.New(cfg.Optimizer),
		aggregator:  Aggregator{Base: cfg.BaseScalingFactor},
		latency:     sim.LatencyModel{EpochsPerRound: cfg.Optimizer.EpochsPerRound},
		fleet:       fleet,
		groupRNG:    make([]*sim.PartitionedRNG, len(fleet.Groups)),
		runID:       cfg.RunID,
		groupModels: make([]sim.Weights, len(fleet.Groups)),
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	c.trace = trace.NewRunTrace(c.runID, trace.TraceLevel(cfg.TraceLevel))
	for i, g := range fleet.Groups {
		c.groupRNG[i] = rng.Derive(sim.SubsystemGroup(g.ID))
	}

	logrus.WithFields(logrus.Fields{
		"run":      c.runID,
		"users":    len(fleet.Groups),
		"devices":  fleet.NumDevices(),
		"baseline": cfg.Baseline,
	}).Info("coordinator ready")
	return c, nil
}

func (c *Coordinator) Config() Config { return c.cfg }

func (c *Coordinator) Fleet() *Fleet { return c.fleet }

// RunID tags the run's trace and report and prefixes every checkpoint key.
func (c *Coordinator) RunID() string { return c.runID }

// Round returns the next round to run.
func (c *Coordinator) Round() int { return c.round }

func (c *Coordinator) Trace() *trace.RunTrace { return c.trace }

// Global returns the latest aggregated model; empty before the first round.
func (c *Coordinator) Global() sim.Weights { return c.global }

// GroupModel returns the last distilled model of group id.
func (c *Coordinator) GroupModel(id int) sim.Weights {
	if id < 0 || id >= len(c.groupModels) {
		return sim.Weights{}
	}
	return c.groupModels[id]
}

// Resume restores the global and group models from the latest server
// checkpoint of this run id and continues at the round after it. It reports
// false when there is nothing to resume. Device data, capability trackers and
// scaling factors are rebuilt from the seed rather than restored.
func (c *Coordinator) Resume(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	round, global, err := c.store.Latest(ctx, c.key(sim.ServerKey))
	if errors.Is(err, sim.ErrCheckpointNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resume %s: %w", c.runID, err)
	}

	models := make([]sim.Weights, len(c.groupModels))
	for i, g := range c.fleet.Groups {
		w, err := c.store.LoadWeights(ctx, c.key(sim.GroupKey(g.ID)), round)
		switch {
		case errors.Is(err, sim.ErrCheckpointNotFound):
			// The group failed that round; it restarts from an empty model.
		case err != nil:
			return false, fmt.Errorf("resume %s: %w", c.runID, err)
		default:
			models[i] = w
		}
	}

	c.global = global
	c.groupModels = models
	c.round = round + 1
	logrus.WithFields(logrus.Fields{"run": c.runID, "round": c.round}).Info("resumed from checkpoint")
	return true, nil
}

// Run executes the remaining configured rounds and returns the run trace.
// Cancellation is honoured between rounds and groups.
func (c *Coordinator) Run(ctx context.Context) (*trace.RunTrace, error) {
	for c.round < c.cfg.Rounds {
		if err := ctx.Err(); err != nil {
			return c.trace, err
		}
		if _, err := c.RunRound(ctx); err != nil {
			return c.trace, err
		}
	}
	return c.trace, nil
}

// RunRound runs one round on every group, aggregates and evaluates the
// global model, and assigns the next scaling factors.
func (c *Coordinator) RunRound(ctx context.Context) (trace.ServerRecord, error) {
	round := c.round
	groups := c.fleet.Groups
	records := make([]trace.RoundRecord, len(groups))
	models := make([]sim.Weights, len(groups))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.cfg.Parallelism)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			rec, w, err := c.runGroup(egCtx, round, g)
			records[i], models[i] = rec, w
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return trace.ServerRecord{}, fmt.Errorf("round %d: %w", round, err)
	}

	samples := make([]int, len(groups))
	server := trace.ServerRecord{Round: round}
	for i, rec := range records {
		c.trace.RecordRound(rec)
		c.metrics.ObserveRound(rec)
		server.Wallclock = max(server.Wallclock, rec.MaxLatency())
		if rec.Failed() {
			models[i] = sim.Weights{}
			continue
		}
		c.groupModels[i] = models[i]
		samples[i] = groups[i].DatasetSize()
	}

	global, err := c.aggregator.Aggregate(models, samples, c.cfg.Baseline)
	if err != nil {
		return trace.ServerRecord{}, fmt.Errorf("round %d: %w", round, err)
	}
	server.Loss, server.Accuracy, err = c.backend.Evaluate(ctx, global, c.fleet.TestSet)
	if err != nil {
		return trace.ServerRecord{}, fmt.Errorf("round %d: evaluate global model: %w", round, err)
	}
	if err := c.save(ctx, sim.ServerKey, round, global); err != nil {
		return trace.ServerRecord{}, fmt.Errorf("round %d: %w", round, err)
	}
	c.global = global

	if !c.cfg.Baseline {
		server.ScalingFactors = c.aggregator.ScalingFactors(records)
		for i, g := range groups {
			g.AdaptiveScalingFactor = server.ScalingFactors[i]
		}
	}

	c.trace.RecordServer(server)
	c.metrics.ObserveServer(server)
	c.round++

	logrus.Infof("[round %d] accuracy=%.4f loss=%.4f wallclock=%.3f", round, server.Accuracy, server.Loss, server.Wallclock)
	return server, nil
}

// PlanGroup fits the reducer on group id and optimizes its transfer plan,
// warm-started from the last executed plan. The group's data is left
// unshuffled; only its cluster assignment changes.
func (c *Coordinator) PlanGroup(id int) (optimize.Result, error) {
	if id < 0 || id >= len(c.fleet.Groups) {
		return optimize.Result{}, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	g := c.fleet.Groups[id]
	if _, err := reduce.Reduce(g, c.cfg.Reducer, c.groupRNG[id].ForSubsystem(sim.SubsystemCluster)); err != nil {
		return optimize.Result{}, err
	}
	return c.optimizer.Optimize(g, g.Matrices)
}

// runGroup runs one group's round. Failures are recorded on the returned
// record; the error is non-nil only when ctx was cancelled.
func (c *Coordinator) runGroup(ctx context.Context, round int, g *sim.Group) (trace.RoundRecord, sim.Weights, error) {
	log := logrus.WithFields(logrus.Fields{"round": round, "group": g.ID})
	g.ResetRound()
	rec := trace.RoundRecord{
		Round:            round,
		Group:            g.ID,
		ScalingFactor:    g.AdaptiveScalingFactor,
		ImbalancesBefore: g.Imbalances(),
	}
	fail := func(err error) (trace.RoundRecord, sim.Weights, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rec, sim.Weights{}, ctxErr
		}
		rec.Error = err.Error()
		log.Warnf("group round aborted: %v", err)
		return rec, sim.Weights{}, nil
	}

	if c.cfg.Baseline {
		rec.Latencies = c.latency.Latencies(g.Devices, nil)
	} else {
		res, err := c.PlanGroup(g.ID)
		if err != nil {
			return fail(err)
		}
		if _, err := g.Shuffle(res.Matrices); err != nil {
			return fail(err)
		}
		g.Matrices = res.Matrices
		rec.Matrices = nested(res.Matrices)
		rec.Latencies = res.After.Latencies
		rec.ObjectiveBefore = res.Before.Objective
		rec.ObjectiveAfter = res.After.Objective
		rec.SolverStatus = res.Status
		rec.Evaluations = res.Evals
	}
	g.UpdateCapability()
	g.SetPhase(sim.PhaseDone)

	rec.DiffCapability = g.Tracker.DiffCapability
	rec.StalenessFactor = g.Tracker.StalenessFactor
	rec.ImbalancesAfter = g.Imbalances()
	rec.DatasetSizes = g.DatasetSizes()
	rec.TransferredSamples = g.TransferredSamples()

	teachers := make([]sim.Weights, len(g.Devices))
	for i, d := range g.Devices {
		w, err := c.backend.Train(ctx, d, c.global, c.cfg.LocalEpochs)
		if err != nil {
			return fail(fmt.Errorf("group %d: train: %w", g.ID, err))
		}
		if err := c.save(ctx, sim.DeviceKey(g.ID, d.ID()), round, w); err != nil {
			return fail(err)
		}
		teachers[i] = w
	}

	var (
		model sim.Weights
		err   error
	)
	if c.cfg.Baseline {
		model, err = c.aggregator.Aggregate(teachers, g.DatasetSizes(), false)
	} else {
		g.BuildKDPool(c.cfg.KDPercentage, c.groupRNG[g.ID].ForSubsystem(sim.SubsystemKD))
		rec.KDPoolSize = len(g.KDPool)
		model, err = c.backend.Distill(ctx, c.groupModels[g.ID], teachers, g.KDPool, c.cfg.KDEpochs)
	}
	if err != nil {
		return fail(fmt.Errorf("group %d: %w", g.ID, err))
	}

	rec.Loss, rec.Accuracy, err = c.backend.Evaluate(ctx, model, c.fleet.TestSet)
	if err != nil {
		return fail(fmt.Errorf("group %d: evaluate: %w", g.ID, err))
	}
	if err := c.save(ctx, sim.GroupKey(g.ID), round, model); err != nil {
		return fail(err)
	}

	log.WithFields(logrus.Fields{
		"objective":   rec.ObjectiveAfter,
		"transferred": rec.TransferredSamples,
		"accuracy":    rec.Accuracy,
	}).Debug("group round finished")
	return rec, model, nil
}

// key namespaces a checkpoint key under the run id.
func (c *Coordinator) key(k string) string { return c.runID + "/" + k }

func (c *Coordinator) save(ctx context.Context, key string, round int, w sim.Weights) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveWeights(ctx, c.key(key), round, w); err != nil {
		return fmt.Errorf("checkpoint %s round %d: %w", key, round, err)
	}
	return nil
}

func nested(ms []sim.TransitionMatrix) [][][]float64 {
	out := make([][][]float64, len(ms))
	for i, m := range sim.CloneMatrices(ms) {
		out[i] = m
	}
	return out
}
