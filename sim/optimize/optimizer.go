// Package optimize searches for per-device transition matrices that balance
// round latency and per-device class imbalance within a group.
//
// The search is a penalty method over gonum's Nelder-Mead: each outer round
// minimises objective + w * violation, then w grows. Every objective
// evaluation runs the shuffle tentatively on the group and rolls it back, so
// the group must not be shuffled by anyone else while Optimize runs.
package optimize

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/shufflefl/sim"
)

// Evaluation is the objective and its parts for one candidate plan,
// measured on the tentatively shuffled group.
type Evaluation struct {
	Objective    float64   `json:"objective"`
	StdLatency   float64   `json:"std_latency"`
	MaxLatency   float64   `json:"max_latency"`
	MaxImbalance float64   `json:"max_imbalance"`
	Latencies    []float64 `json:"latencies"`
	Imbalances   []float64 `json:"imbalances"` // over surrogate clusters
	Moved        int       `json:"moved"`
	KDCopied     int       `json:"kd_copied"`
}

// Result is the outcome of one Optimize call.
type Result struct {
	Matrices []sim.TransitionMatrix
	Before   Evaluation // the repaired warm start
	After    Evaluation // the returned plan
	Status   string     // solver status of the last outer round
	Evals    int
}

// Improved reports whether the plan beats the warm start.
func (r Result) Improved() bool {
	return r.After.Objective < r.Before.Objective
}

// Optimizer holds the solve configuration. Safe for concurrent use on
// different groups.
type Optimizer struct {
	cfg     Config
	latency sim.LatencyModel
}

// New creates an optimizer. Panics if cfg is invalid.
func New(cfg Config) *Optimizer {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("optimize.New: %v", err))
	}
	return &Optimizer{cfg: cfg, latency: sim.LatencyModel{EpochsPerRound: cfg.EpochsPerRound}}
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Objective evaluates ms on g without changing it:
//
//	StdCorrection * std(latency) + max(latency) + s * max(imbalance)
//
// where s is the group's adaptive scaling factor.
func (o *Optimizer) Objective(g *sim.Group, ms []sim.TransitionMatrix) (Evaluation, error) {
	var ev Evaluation
	err := g.TryShuffle(ms, func(res sim.ShuffleResult) {
		ev.Latencies = o.latency.Latencies(g.Devices, res.Transfers)
		ev.Imbalances = g.ClusterImbalances()
		ev.Moved = res.Moved
		ev.KDCopied = res.KDCopied
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("group %d: %w", g.ID, err)
	}
	_, ev.StdLatency = stat.PopMeanStdDev(ev.Latencies, nil)
	ev.MaxLatency = floats.Max(ev.Latencies)
	ev.MaxImbalance = floats.Max(ev.Imbalances)
	ev.Objective = o.cfg.StdCorrection*ev.StdLatency + ev.MaxLatency + g.AdaptiveScalingFactor*ev.MaxImbalance
	return ev, nil
}

// Optimize returns the best feasible plan found for g, starting from warm.
// A nil warm start begins from UniformMatrices. The result is never worse
// than the repaired warm start. Solver non-convergence is not an error.
func (o *Optimizer) Optimize(g *sim.Group, warm []sim.TransitionMatrix) (Result, error) {
	n, k := g.NumDevices(), g.NumClusters()
	if warm == nil {
		warm = sim.UniformMatrices(n, k)
	}
	if err := sim.ValidateMatrices(warm, n, k); err != nil {
		return Result{}, fmt.Errorf("group %d warm start: %w", g.ID, err)
	}
	g.SetPhase(sim.PhaseOptimizing)

	floor := o.cfg.SelfRetentionFloor
	start := Repair(warm, floor)
	before, err := o.Objective(g, start)
	if err != nil {
		return Result{}, err
	}

	res := Result{Matrices: start, Before: before, After: before, Evals: 1}
	x := flatten(start)
	weight := o.cfg.PenaltyWeight
	for outer := 0; outer < o.cfg.OuterIterations; outer++ {
		w := weight
		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				ms := unflatten(x, n, k)
				ev, err := o.Objective(g, ms)
				if err != nil {
					return math.Inf(1)
				}
				res.Evals++
				v := violation(Constraints(ms, floor))
				if v == 0 && ev.Objective < res.After.Objective {
					res.Matrices, res.After = ms, ev
				}
				return ev.Objective + w*v
			},
		}
		settings := &optimize.Settings{
			FuncEvaluations: o.cfg.MaxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   o.cfg.Tolerance,
				Iterations: 4 * len(x),
			},
		}
		sol, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		if err != nil {
			logrus.WithFields(logrus.Fields{"group": g.ID, "outer": outer}).Debugf("solver stopped: %v", err)
		}
		if sol != nil {
			res.Status = sol.Status.String()
			if !converged(sol.Status) {
				logrus.WithFields(logrus.Fields{"group": g.ID, "outer": outer, "status": sol.Status}).Debug("solver did not converge")
			}
			x = sol.X
		}
		weight *= o.cfg.PenaltyGrowth
	}

	// The last iterate may sit just outside the feasible set.
	repaired := Repair(unflatten(x, n, k), floor)
	if ev, err := o.Objective(g, repaired); err == nil {
		res.Evals++
		if ev.Objective < res.After.Objective {
			res.Matrices, res.After = repaired, ev
		}
	}

	logrus.WithFields(logrus.Fields{
		"group":  g.ID,
		"before": before.Objective,
		"after":  res.After.Objective,
		"evals":  res.Evals,
		"status": res.Status,
	}).Debug("optimization finished")
	return res, nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge, optimize.FunctionThreshold:
		return true
	}
	return false
}
