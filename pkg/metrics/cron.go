package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics covers the maintenance worker: every job run, plus what the
// notification retention job finds in the outbox.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	pruned   prometheus.Counter
	dead     prometheus.Gauge
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kilnpay_cron_job_duration_seconds",
			Help:    "Wall time of maintenance job runs.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kilnpay_cron_job_runs_total",
			Help: "Maintenance job runs by outcome.",
		}, []string{"job", "outcome"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kilnpay_notifications_pruned_total",
			Help: "Delivered or abandoned notification events deleted by retention.",
		}),
		dead: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kilnpay_notifications_dead",
			Help: "Notification events the notifier gave up on, as of the last retention run.",
		}),
	}
	reg.MustRegister(m.duration, m.runs, m.pruned, m.dead)
	return m
}

// ObserveRun records one run of job. A nil err counts as success.
func (c *CronJobMetrics) ObserveRun(job string, duration time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	if job == "" {
		job = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.duration.WithLabelValues(job).Observe(duration.Seconds())
	c.runs.WithLabelValues(job, outcome).Inc()
}

func (c *CronJobMetrics) AddNotificationsPruned(n int64) {
	if c == nil || c.pruned == nil || n <= 0 {
		return
	}
	c.pruned.Add(float64(n))
}

func (c *CronJobMetrics) SetDeadNotifications(n int64) {
	if c == nil || c.dead == nil {
		return
	}
	c.dead.Set(float64(n))
}
