package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DispatchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_dispatch_runs_total",
		Help: "Dispatch runs by terminal campaign status (sent, failed, dry_run)",
	}, []string{"status"})

	DispatchRecipients = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_dispatch_recipients_total",
		Help: "Recipients processed by the dispatch loop, by outcome",
	}, []string{"outcome"})

	DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campaign_dispatch_duration_seconds",
		Help:    "Wall time of a full dispatch run",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	EventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaign_events_applied_total",
		Help: "Delivery events applied by canonical type",
	}, []string{"event"})
)

// Register registers the collectors on reg (or the default registerer if nil).
// Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{DispatchRuns, DispatchRecipients, DispatchDuration, EventsApplied} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
