package trace

// TraceLevel controls the verbosity of round tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelRounds records every round without transition matrices.
	TraceLevelRounds TraceLevel = "rounds"
	// TraceLevelFull also keeps the executed matrices.
	TraceLevelFull TraceLevel = "full"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelRounds: true,
	TraceLevelFull:   true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// RunTrace collects round records during a simulation.
type RunTrace struct {
	RunID  string         `yaml:"run_id" json:"run_id"`
	Level  TraceLevel     `yaml:"level" json:"level"`
	Rounds []RoundRecord  `yaml:"rounds" json:"rounds"`
	Server []ServerRecord `yaml:"server" json:"server"`
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(runID string, level TraceLevel) *RunTrace {
	if level == "" {
		level = TraceLevelNone
	}
	return &RunTrace{
		RunID:  runID,
		Level:  level,
		Rounds: make([]RoundRecord, 0),
		Server: make([]ServerRecord, 0),
	}
}

// RecordRound appends a group round record. Matrices are dropped below TraceLevelFull.
func (rt *RunTrace) RecordRound(record RoundRecord) {
	if rt.Level == TraceLevelNone {
		return
	}
	if rt.Level != TraceLevelFull {
		record.Matrices = nil
	}
	rt.Rounds = append(rt.Rounds, record)
}

// RecordServer appends a server round record.
func (rt *RunTrace) RecordServer(record ServerRecord) {
	if rt.Level == TraceLevelNone {
		return
	}
	rt.Server = append(rt.Server, record)
}
