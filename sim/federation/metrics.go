package federation

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/shufflefl/sim/trace"
)

// Metric names.
const (
	MetricObjective        = "shufflefl_group_objective"
	MetricRoundLatency     = "shufflefl_group_round_latency"
	MetricMaxImbalance     = "shufflefl_group_max_imbalance"
	MetricScalingFactor    = "shufflefl_group_scaling_factor"
	MetricStaleness        = "shufflefl_group_staleness_factor"
	MetricTransferredTotal = "shufflefl_group_transferred_samples_total"
	MetricRoundsTotal      = "shufflefl_group_rounds_total"
	MetricServerAccuracy   = "shufflefl_server_accuracy"
	MetricServerLoss       = "shufflefl_server_loss"
	MetricServerRound      = "shufflefl_server_round"
)

// Label names.
const (
	LabelGroup  = "group"
	LabelStage  = "stage"
	LabelStatus = "status"
)

// Metrics exports round results as Prometheus series. A nil *Metrics is a
// valid no-op sink.
type Metrics struct {
	objective     *prometheus.GaugeVec
	roundLatency  *prometheus.GaugeVec
	maxImbalance  *prometheus.GaugeVec
	scalingFactor *prometheus.GaugeVec
	staleness     *prometheus.GaugeVec
	transferred   *prometheus.CounterVec
	rounds        *prometheus.CounterVec

	serverAccuracy prometheus.Gauge
	serverLoss     prometheus.Gauge
	serverRound    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	group := []string{LabelGroup}
	m := &Metrics{
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricObjective,
			Help: "Planner objective for the group's last round, before and after optimization",
		}, []string{LabelGroup, LabelStage}),
		roundLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricRoundLatency,
			Help: "Simulated round latency of the group's slowest device",
		}, group),
		maxImbalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricMaxImbalance,
			Help: "Largest per-device label imbalance after the shuffle",
		}, group),
		scalingFactor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricScalingFactor,
			Help: "Adaptive scaling factor used in the group's last objective",
		}, group),
		staleness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricStaleness,
			Help: "Staleness factor after the group's last shuffle",
		}, group),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTransferredTotal,
			Help: "Samples sent or received by the group's devices",
		}, group),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRoundsTotal,
			Help: "Group rounds by outcome",
		}, []string{LabelGroup, LabelStatus}),
		serverAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricServerAccuracy,
			Help: "Global model accuracy on the test set",
		}),
		serverLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricServerLoss,
			Help: "Global model loss on the test set",
		}),
		serverRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricServerRound,
			Help: "Last completed server round",
		}),
	}

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{MetricObjective, m.objective},
		{MetricRoundLatency, m.roundLatency},
		{MetricMaxImbalance, m.maxImbalance},
		{MetricScalingFactor, m.scalingFactor},
		{MetricStaleness, m.staleness},
		{MetricTransferredTotal, m.transferred},
		{MetricRoundsTotal, m.rounds},
		{MetricServerAccuracy, m.serverAccuracy},
		{MetricServerLoss, m.serverLoss},
		{MetricServerRound, m.serverRound},
	}
	for _, c := range collectors {
		if err := registry.Register(c.c); err != nil {
			return nil, fmt.Errorf("failed to register %s metric: %w", c.name, err)
		}
	}
	return m, nil
}

// ObserveRound records one group round.
func (m *Metrics) ObserveRound(rec trace.RoundRecord) {
	if m == nil {
		return
	}
	group := strconv.Itoa(rec.Group)
	if rec.Failed() {
		m.rounds.WithLabelValues(group, "failed").Inc()
		return
	}
	m.rounds.WithLabelValues(group, "ok").Inc()
	m.objective.WithLabelValues(group, "before").Set(rec.ObjectiveBefore)
	m.objective.WithLabelValues(group, "after").Set(rec.ObjectiveAfter)
	m.roundLatency.WithLabelValues(group).Set(rec.MaxLatency())
	m.scalingFactor.WithLabelValues(group).Set(rec.ScalingFactor)
	m.staleness.WithLabelValues(group).Set(rec.StalenessFactor)
	m.transferred.WithLabelValues(group).Add(float64(rec.TransferredSamples))

	worst := 0.0
	for _, v := range rec.ImbalancesAfter {
		worst = max(worst, v)
	}
	m.maxImbalance.WithLabelValues(group).Set(worst)
}

// ObserveServer records the global model after aggregation.
func (m *Metrics) ObserveServer(rec trace.ServerRecord) {
	if m == nil {
		return
	}
	m.serverAccuracy.Set(rec.Accuracy)
	m.serverLoss.Set(rec.Loss)
	m.serverRound.Set(float64(rec.Round))
}
