package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/shufflefl/sim/federation"
	"github.com/inference-sim/shufflefl/sim/optimize"
	"github.com/inference-sim/shufflefl/sim/trace"
)

func sampleTrace(level trace.TraceLevel) *trace.RunTrace {
	rt := trace.NewRunTrace("run-1", level)
	rt.RecordRound(trace.RoundRecord{Round: 0, Group: 0, Latencies: []float64{2, 3}, TransferredSamples: 10})
	rt.RecordRound(trace.RoundRecord{Round: 0, Group: 1, Error: "shape mismatch"})
	rt.RecordServer(trace.ServerRecord{Round: 0, Accuracy: 0.8, Loss: 0.5})
	return rt
}

func TestNewReport_CollectsFailures(t *testing.T) {
	r := newReport(federation.DefaultConfig(), sampleTrace(trace.TraceLevelRounds), time.Now())

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, []string{"round 0 group 1: shape mismatch"}, r.Failures)
	assert.Equal(t, 1, r.Summary.FailedRounds)
	assert.NotNil(t, r.Trace)
}

func TestNewReport_NoTraceLevelOmitsTrace(t *testing.T) {
	rt := trace.NewRunTrace("run-2", trace.TraceLevelNone)

	r := newReport(federation.DefaultConfig(), rt, time.Now())

	assert.Nil(t, r.Trace)
	assert.Empty(t, r.Failures)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	r := newReport(federation.DefaultConfig(), sampleTrace(trace.TraceLevelRounds), time.Now())

	require.NoError(t, writeReport(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	summary, ok := got["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.8, summary["final_accuracy"])
	assert.Equal(t, 10, summary["total_transferred"])
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, newReport(federation.DefaultConfig(), sampleTrace(trace.TraceLevelRounds), time.Now()))

	out := buf.String()
	assert.Contains(t, out, "=== ShuffleFL Run Summary ===")
	assert.Contains(t, out, "Run ID              : run-1")
	assert.Contains(t, out, "Final accuracy      : 0.8000")
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	printPlan(&buf, 2, optimize.Result{
		Before: optimize.Evaluation{Objective: 9},
		After:  optimize.Evaluation{Objective: 4, Moved: 12},
		Status: "FunctionConvergence",
		Evals:  40,
	})

	out := buf.String()
	assert.Contains(t, out, "group 2: objective 9.0000 -> 4.0000 (improved)")
	assert.Contains(t, out, "moved 12")
	assert.Contains(t, out, "status FunctionConvergence")

	buf.Reset()
	printPlan(&buf, 0, optimize.Result{Before: optimize.Evaluation{Objective: 3}, After: optimize.Evaluation{Objective: 3}})
	assert.Contains(t, buf.String(), "(kept warm start)")
}
