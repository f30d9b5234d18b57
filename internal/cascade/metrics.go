package cascade

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trigger labels for cascade observations.
const (
	TriggerTask      = "task"
	TriggerKR        = "kr"
	TriggerRecompute = "recompute"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics records cascade and snapshot activity. A nil *Metrics records
// nothing.
type Metrics struct {
	reg       prometheus.Registerer
	cascades  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	retries   prometheus.Counter
	exhausted prometheus.Counter
	dropped   prometheus.Counter
	snapshots *prometheus.CounterVec
}

// NewMetrics registers the cascade metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		// Labels: trigger (task, kr, recompute), status (ok, error)
		cascades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "okr",
			Name:      "cascades_total",
			Help:      "Cascades run, by trigger and outcome",
		}, []string{"trigger", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "okr",
			Name:      "cascade_duration_seconds",
			Help:      "Cascade wall time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"trigger"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "okr",
			Name:      "cascade_retries_total",
			Help:      "Cascade job attempts after a failure",
		}),
		exhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "okr",
			Name:      "cascade_exhausted_total",
			Help:      "Cascade jobs abandoned after their last retry",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "okr",
			Name:      "cascade_dropped_total",
			Help:      "Cascade jobs rejected because the queue was full",
		}),
		// Labels: scope (global, cycle), status (ok, error)
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "okr",
			Name:      "snapshots_built_total",
			Help:      "Snapshot builds, by scope and outcome",
		}, []string{"scope", "status"}),
	}
}

// WatchEventDrops exposes a publisher's dropped delivery count.
func (m *Metrics) WatchEventDrops(dropped func() int64) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: "okr",
		Name:      "events_dropped_total",
		Help:      "Change events dropped because a subscriber buffer was full",
	}, func() float64 { return float64(dropped()) })
}

// SnapshotBuilt records one snapshot build. It matches snapshot.Options.OnBuild.
func (m *Metrics) SnapshotBuilt(scope string, err error) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(scope, status(err)).Inc()
}

func (m *Metrics) observeCascade(trigger string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.cascades.WithLabelValues(trigger, status(err)).Inc()
	m.duration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retried() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) gaveUp() {
	if m != nil {
		m.exhausted.Inc()
	}
}

func (m *Metrics) droppedJob() {
	if m != nil {
		m.dropped.Inc()
	}
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}
