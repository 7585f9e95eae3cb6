// Package metrics exposes the worker's Prometheus metrics: build/deploy
// counters and durations, and the depth of in-flight jobs. These back the
// worker's ops endpoint (/metrics), not the control plane's own telemetry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DefaultCollector *Collector
	once             sync.Once
)

type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	uptimeSeconds prometheus.Gauge
	jobsActive    prometheus.Gauge

	buildsTotal      *prometheus.CounterVec
	deploymentsTotal *prometheus.CounterVec

	buildDuration  prometheus.Histogram
	deployDuration prometheus.Histogram
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	startTime := time.Now()

	uptimeSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dprod_worker_uptime_seconds",
		Help: "Number of seconds since this worker process started",
	})

	jobsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dprod_jobs_active",
		Help: "Number of deployment jobs currently being worked by this process",
	})

	buildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dprod_builds_total",
			Help: "Total number of image builds by outcome",
		},
		[]string{"status"},
	)

	deploymentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dprod_deployments_total",
			Help: "Total number of deployment attempts by terminal status",
		},
		[]string{"status"},
	)

	buildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dprod_build_duration_seconds",
		Help:    "Duration of image build operations in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to 2048s (~34min)
	})

	deployDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dprod_deploy_duration_seconds",
		Help:    "Duration of container run+publish operations in seconds",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(
		uptimeSeconds,
		jobsActive,
		buildsTotal,
		deploymentsTotal,
		buildDuration,
		deployDuration,
	)

	c := &Collector{
		registry:         registry,
		startTime:        startTime,
		uptimeSeconds:    uptimeSeconds,
		jobsActive:       jobsActive,
		buildsTotal:      buildsTotal,
		deploymentsTotal: deploymentsTotal,
		buildDuration:    buildDuration,
		deployDuration:   deployDuration,
	}

	go c.updateUptime()

	return c
}

func InitGlobal() {
	once.Do(func() {
		DefaultCollector = NewCollector()
	})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) updateUptime() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		c.uptimeSeconds.Set(time.Since(c.startTime).Seconds())
	}
}

func (c *Collector) IncActiveJobs() { c.jobsActive.Inc() }
func (c *Collector) DecActiveJobs() { c.jobsActive.Dec() }

func (c *Collector) RecordBuild(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.buildsTotal.WithLabelValues(status).Inc()
	c.buildDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordDeployment(status string, duration time.Duration) {
	c.deploymentsTotal.WithLabelValues(status).Inc()
	c.deployDuration.Observe(duration.Seconds())
}

// Global convenience wrappers mirroring the teacher's package-level API.

func IncActiveJobs() {
	if DefaultCollector != nil {
		DefaultCollector.IncActiveJobs()
	}
}

func DecActiveJobs() {
	if DefaultCollector != nil {
		DefaultCollector.DecActiveJobs()
	}
}

func RecordBuild(success bool, duration time.Duration) {
	if DefaultCollector != nil {
		DefaultCollector.RecordBuild(success, duration)
	}
}

func RecordDeployment(status string, duration time.Duration) {
	if DefaultCollector != nil {
		DefaultCollector.RecordDeployment(status, duration)
	}
}
