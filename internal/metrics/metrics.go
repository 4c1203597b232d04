// Package metrics exposes Prometheus series for reallocation cycles:
//
//	realloc_cycles_total{state}                 cycles by final state
//	realloc_cycle_duration_seconds{state}       cycle wall time
//	realloc_venue_unavailable_total{venue}      venues dropped from a cycle
//	realloc_transfers_total{venue,status}       executed plan entries
//	realloc_moved_value_total{venue}            net proceeds of fills
//	realloc_fees_paid_total{venue}              trading fees on fills
//	realloc_extractable_value                   surplus seen by the last scan
//	realloc_snapshots                           positions priced by the last scan
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

const namespace = "realloc"

// Collector records engine events. It satisfies engine.Recorder.
type Collector struct {
	reg *prometheus.Registry

	cycles      *prometheus.CounterVec
	cycleTime   *prometheus.HistogramVec
	unavailable *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	moved       *prometheus.CounterVec
	fees        *prometheus.CounterVec
	extractable prometheus.Gauge
	snapshots   prometheus.Gauge
}

// New registers the collectors on a fresh registry, along with the Go and
// process collectors.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Planning cycles by final state.",
		}, []string{"state"}),
		cycleTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Cycle wall time by final state.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"state"}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "venue_unavailable_total",
			Help: "Venues excluded from a cycle after a failed or timed-out call.",
		}, []string{"venue"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transfers_total",
			Help: "Executed plan entries by outcome.",
		}, []string{"venue", "status"}),
		moved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "moved_value_total",
			Help: "Net sell proceeds in quote currency.",
		}, []string{"venue"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fees_paid_total",
			Help: "Trading fees paid in quote currency.",
		}, []string{"venue"}),
		extractable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "extractable_value",
			Help: "Total extractable surplus seen by the last scan.",
		}),
		snapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "snapshots",
			Help: "Positions priced by the last scan.",
		}),
	}
	c.reg.MustRegister(
		c.cycles, c.cycleTime, c.unavailable, c.transfers, c.moved, c.fees, c.extractable, c.snapshots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// CycleFinished counts a cycle by end state and records its duration.
func (c *Collector) CycleFinished(state domain.CycleState, took time.Duration) {
	c.cycles.WithLabelValues(string(state)).Inc()
	c.cycleTime.WithLabelValues(string(state)).Observe(took.Seconds())
}

// VenueUnavailable counts a venue excluded from a cycle.
func (c *Collector) VenueUnavailable(venue string) {
	c.unavailable.WithLabelValues(venue).Inc()
}

// TransferExecuted counts the outcome; proceeds and fees only move on fills.
func (c *Collector) TransferExecuted(venue string, status domain.ExecStatus, proceeds, fee float64) {
	c.transfers.WithLabelValues(venue, string(status)).Inc()
	if proceeds > 0 {
		c.moved.WithLabelValues(venue).Add(proceeds)
	}
	if fee > 0 {
		c.fees.WithLabelValues(venue).Add(fee)
	}
}

// SurplusObserved records the extractable total of the last scan.
func (c *Collector) SurplusObserved(extractable float64, snapshots int) {
	c.extractable.Set(extractable)
	c.snapshots.Set(float64(snapshots))
}
