package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	scenarioDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "concurrentbench",
		Name:      "scenario_duration_seconds",
		Help:      "Wall-clock duration of a scenario run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"scenario"})

	scenarioFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concurrentbench",
		Name:      "scenario_failures_total",
		Help:      "Count of scenario runs that failed an assertion.",
	}, []string{"scenario"})

	queueBackpressure = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "concurrentbench",
		Name:      "queue_backpressure_wait_seconds",
		Help:      "How long the blocking queue scenario's producer was blocked on put.",
	})
)

func timeScenario(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	scenarioDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		scenarioFailures.WithLabelValues(name).Inc()
	}
	return err
}

var metricsPort int

var metricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve collected Prometheus metrics over HTTP until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", metricsPort)
		log.WithField("addr", addr).Info("serving metrics")
		return http.ListenAndServe(addr, nil)
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsPort, "port", 9090, "port to serve /metrics on")
}
