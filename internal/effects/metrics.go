package effects

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kblight_worker_messages_total",
			Help: "Messages dispatched by the effect worker, by kind.",
		},
		[]string{"kind"},
	)
	supersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kblight_worker_superseded_total",
			Help: "Commands that were already superseded when the worker reached them.",
		},
	)
	effectRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kblight_effect_runs_total",
			Help: "Profiles and custom effects started, by effect.",
		},
		[]string{"effect"},
	)
	deviceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kblight_device_errors_total",
			Help: "Failed device writes, by primitive.",
		},
		[]string{"op"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kblight_worker_queue_depth",
			Help: "Messages waiting in the worker mailbox.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesTotal, supersededTotal, effectRunsTotal, deviceErrorsTotal, queueDepth)
}
