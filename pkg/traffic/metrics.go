package traffic

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionsTotal counts completed action invocations.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafficgen_actions_total",
			Help: "Total number of actions invoked against the target",
		},
		[]string{"action", "result", "class"},
	)

	// ActionDuration tracks action latency including the HTTP round trip.
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trafficgen_action_duration_seconds",
			Help:    "Action latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"action"},
	)

	registrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trafficgen_registry_size",
			Help: "Number of product ids the generator believes exist on the target",
		},
	)
)

func init() {
	prometheus.MustRegister(ActionsTotal)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(registrySize)
}

// MetricsRecorder exports outcomes as prometheus series.
type MetricsRecorder struct{}

func (MetricsRecorder) Record(_ context.Context, o Outcome) error {
	ActionsTotal.WithLabelValues(o.Action, strconv.FormatBool(o.Succeeded), string(o.Class)).Inc()
	ActionDuration.WithLabelValues(o.Action).Observe(o.Latency.Seconds())
	return nil
}
