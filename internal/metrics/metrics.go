// Package metrics exposes pod lifecycle and scheduler metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/podpairer/server/internal/model"
)

// Recorder is used by the services and the scheduler.
type Recorder interface {
	RecordPodsCreated(count int)
	RecordPodResolved(status model.PodStatus)
	RecordAssemblyConflict()
	RecordTick(job string, duration time.Duration, err error)
}

type Collector struct {
	podsCreated       prometheus.Counter
	podsResolved      *prometheus.CounterVec
	assemblyConflicts prometheus.Counter
	tickDuration      *prometheus.HistogramVec
	tickFailures      *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		podsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podpairer_pods_created_total",
			Help: "Pods committed by the assembler",
		}),
		podsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podpairer_pods_resolved_total",
			Help: "Pods that left the pending state, by final status",
		}, []string{"status"}),
		assemblyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podpairer_assembly_conflicts_total",
			Help: "Groups dropped at commit because a member was no longer available",
		}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "podpairer_scheduler_tick_seconds",
			Help:    "Duration of scheduler ticks",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		tickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podpairer_scheduler_tick_failures_total",
			Help: "Scheduler ticks that returned an error",
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.podsCreated,
		c.podsResolved,
		c.assemblyConflicts,
		c.tickDuration,
		c.tickFailures,
	)

	return c
}

func (c *Collector) RecordPodsCreated(count int) {
	c.podsCreated.Add(float64(count))
}

func (c *Collector) RecordPodResolved(status model.PodStatus) {
	c.podsResolved.WithLabelValues(string(status)).Inc()
}

func (c *Collector) RecordAssemblyConflict() {
	c.assemblyConflicts.Inc()
}

func (c *Collector) RecordTick(job string, duration time.Duration, err error) {
	c.tickDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		c.tickFailures.WithLabelValues(job).Inc()
	}
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordPodsCreated(int)                   {}
func (Nop) RecordPodResolved(model.PodStatus)       {}
func (Nop) RecordAssemblyConflict()                 {}
func (Nop) RecordTick(string, time.Duration, error) {}
