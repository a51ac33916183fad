// Package metrics exposes dispatch and session counters on a private
// prometheus registry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"emergency-dispatch-be/pkg/emergency/escalation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "emergency_dispatch"

type Collector struct {
	registry *prometheus.Registry

	DispatchTotal     *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	ReservedResponder prometheus.Histogram
	SessionEvents     *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by outcome",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent ranking and reserving responders",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"outcome"}),
		ReservedResponder: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_reserved_responders",
			Help:      "Responders reserved per dispatch",
			Buckets:   []float64{0, 1, 2, 3, 4},
		}),
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Published session updates by event",
		}, []string{"event"}),
	}
	reg.MustRegister(c.DispatchTotal, c.DispatchDuration, c.ReservedResponder, c.SessionEvents)
	return c
}

// ObserveDispatch records one matcher run.
func (c *Collector) ObserveDispatch(outcome string, reserved int, elapsed time.Duration) {
	c.DispatchTotal.WithLabelValues(outcome).Inc()
	c.DispatchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	c.ReservedResponder.Observe(float64(reserved))
}

// Notify counts session updates; it never fails.
func (c *Collector) Notify(_ context.Context, update escalation.Update) error {
	c.SessionEvents.WithLabelValues(update.Event).Inc()
	return nil
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
