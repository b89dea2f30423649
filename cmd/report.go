package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/shufflefl/sim/federation"
	"github.com/inference-sim/shufflefl/sim/optimize"
	"github.com/inference-sim/shufflefl/sim/trace"
)

// Report is the YAML document written by --report.
type Report struct {
	RunID    string              `yaml:"run_id"`
	Started  time.Time           `yaml:"started"`
	Elapsed  string              `yaml:"elapsed"`
	Config   federation.Config   `yaml:"config"`
	Summary  *trace.TraceSummary `yaml:"summary"`
	Trace    *trace.RunTrace     `yaml:"trace,omitempty"`
	Failures []string            `yaml:"failures,omitempty"`
}

// newReport summarizes rt for the run that started at start.
func newReport(cfg federation.Config, rt *trace.RunTrace, start time.Time) Report {
	r := Report{
		RunID:   rt.RunID,
		Started: start,
		Elapsed: time.Since(start).Round(time.Millisecond).String(),
		Config:  cfg,
		Summary: trace.Summarize(rt),
	}
	if rt.Level != trace.TraceLevelNone {
		r.Trace = rt
	}
	for _, rec := range rt.Rounds {
		if rec.Failed() {
			r.Failures = append(r.Failures, fmt.Sprintf("round %d group %d: %s", rec.Round, rec.Group, rec.Error))
		}
	}
	return r
}

// writeReport marshals r to path.
func writeReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// printSummary writes the human-readable run summary.
func printSummary(w io.Writer, r Report) {
	s := r.Summary
	fmt.Fprintln(w, "=== ShuffleFL Run Summary ===")
	fmt.Fprintf(w, "Run ID              : %s\n", r.RunID)
	fmt.Fprintf(w, "Rounds              : %d (%d group rounds, %d failed)\n", s.Rounds, s.GroupRounds, s.FailedRounds)
	fmt.Fprintf(w, "Mean round latency  : %.4f\n", s.MeanLatency)
	fmt.Fprintf(w, "Max round latency   : %.4f\n", s.MaxLatency)
	fmt.Fprintf(w, "Imbalance           : %.4f -> %.4f\n", s.MeanImbalanceBefore, s.MeanImbalanceAfter)
	fmt.Fprintf(w, "Mean staleness      : %.4f\n", s.MeanStaleness)
	fmt.Fprintf(w, "Samples transferred : %d\n", s.TotalTransferred)
	fmt.Fprintf(w, "Mean objective gain : %.4f\n", s.MeanObjectiveGain)
	fmt.Fprintf(w, "Final accuracy      : %.4f (best %.4f)\n", s.FinalAccuracy, s.BestAccuracy)
	fmt.Fprintf(w, "Final loss          : %.4f\n", s.FinalLoss)
	fmt.Fprintf(w, "Elapsed             : %s\n", r.Elapsed)
}

// printPlan writes one line per group for the plan command.
func printPlan(w io.Writer, group int, res optimize.Result) {
	outcome := "kept warm start"
	if res.Improved() {
		outcome = "improved"
	}
	fmt.Fprintf(w, "group %d: objective %.4f -> %.4f (%s), max latency %.4f -> %.4f, max imbalance %.4f -> %.4f, moved %d, kd %d, evals %d, status %s\n",
		group,
		res.Before.Objective, res.After.Objective, outcome,
		res.Before.MaxLatency, res.After.MaxLatency,
		res.Before.MaxImbalance, res.After.MaxImbalance,
		res.After.Moved, res.After.KDCopied,
		res.Evals, res.Status)
}
