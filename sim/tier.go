package sim

// TierKind names the model variant a device trains.
type TierKind string

const (
	TierQuantized TierKind = "quantized"
	TierPruned    TierKind = "pruned"
	TierFull      TierKind = "full"
)

// ModelTier is handed to the learning backend; the scheduler never branches on it.
type ModelTier struct {
	Kind          TierKind `yaml:"kind" json:"kind"`
	PruningFactor float64  `yaml:"pruning_factor" json:"pruning_factor"` // fraction of weights zeroed
}

// Resource score thresholds on compute + memory + energy budget.
const (
	quantizeBelow   = 30
	heavyPruneBelow = 40
	lightPruneBelow = 50
)

// SelectTier maps a device's resources to a model tier. Low compute favours
// quantization; low memory or energy favours pruning.
func SelectTier(p DeviceProfile) ModelTier {
	score := p.Compute + p.Memory + p.EnergyBudget
	switch {
	case score < quantizeBelow:
		return ModelTier{Kind: TierQuantized}
	case score < heavyPruneBelow:
		return ModelTier{Kind: TierPruned, PruningFactor: 0.5}
	case score < lightPruneBelow:
		return ModelTier{Kind: TierPruned, PruningFactor: 0.3}
	default:
		return ModelTier{Kind: TierFull, PruningFactor: 0.1}
	}
}
