package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/TheBunny221/sync-service-urban-voice/internal/domain"
	"github.com/TheBunny221/sync-service-urban-voice/internal/ports"
)

// PromObs pairs a structured zap logger with pre-registered Prometheus
// instruments. Unknown metric names are ignored rather than registered
// lazily, so the metric surface stays fixed.
type PromObs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(log *zap.Logger, reg prometheus.Registerer) *PromObs {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	candidates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultsync_candidates_total",
		Help: "Fault candidates nominated by the selection stage.",
	})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultsync_incidents_created_total",
		Help: "Incidents successfully registered.",
	})
	suppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultsync_duplicates_suppressed_total",
		Help: "Candidates dropped because an open incident already exists.",
	})
	persistErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultsync_persist_errors_total",
		Help: "Candidate deliveries that failed.",
	})
	stateErrs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultsync_state_errors_total",
		Help: "Condition store failures during debounce tracking.",
	})
	rows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultsync_rows_total",
		Help: "Telemetry rows consumed from the source.",
	})
	debounceKeys := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "faultsync_debounce_keys",
		Help: "Condition timers currently tracked.",
	})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "faultsync_run_duration_seconds",
		Help:    "Wall time of one evaluation run.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	reg.MustRegister(candidates, created, suppressed, persistErrs, stateErrs, rows, debounceKeys, runDuration)

	return &PromObs{
		log: log,
		counters: map[string]prometheus.Counter{
			"faultsync_candidates_total":            candidates,
			"faultsync_incidents_created_total":     created,
			"faultsync_duplicates_suppressed_total": suppressed,
			"faultsync_persist_errors_total":        persistErrs,
			"faultsync_state_errors_total":          stateErrs,
			"faultsync_rows_total":                  rows,
		},
		gauges: map[string]prometheus.Gauge{
			"faultsync_debounce_keys": debounceKeys,
		},
		histos: map[string]prometheus.Observer{
			"faultsync_run_duration_seconds": runDuration,
		},
	}
}

func (p *PromObs) Debug(msg string, fields ...ports.Field) {
	p.log.Debug(msg, zapFields(fields)...)
}

func (p *PromObs) Info(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) Warn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, zapFields(fields)...)
}

func (p *PromObs) Error(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordSuppression(c domain.FaultCandidate, incidentID, status string) {
	p.IncCounter("faultsync_duplicates_suppressed_total", 1)
	p.log.Info("candidate_suppressed",
		zap.String("unit", c.UnitID),
		zap.String("tag", c.Tag),
		zap.String("value", c.Value),
		zap.String("incident", incidentID),
		zap.String("status", status))
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
