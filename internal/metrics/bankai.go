package metrics

import "github.com/prometheus/client_golang/prometheus"

// Bankai holds the metrics emitted by the job lifecycle engine (C1-C8).
type Bankai struct {
	JobsCreatedTotal        *prometheus.CounterVec
	JobsByStatus            *prometheus.GaugeVec
	JobErrorsTotal          *prometheus.CounterVec
	JobRetriesTotal         *prometheus.CounterVec
	StageDuration           *prometheus.HistogramVec
	HeadEventsTotal         prometheus.Counter
	HeadEventsDroppedTotal  prometheus.Counter
	BroadcastsTotal         *prometheus.CounterVec
	BroadcastWaitingTotal   prometheus.Counter
	EpochBatchSize          prometheus.Histogram
	LatestObservedSlot      prometheus.Gauge
	LatestVerifiedEpochSlot prometheus.Gauge
	LatestVerifiedCommittee prometheus.Gauge
}

// NewBankai registers the daemon's metric set under the "job" subsystem.
func NewBankai() *Bankai {
	reg := NewComponentRegistry("bankai", "job")

	return &Bankai{
		JobsCreatedTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "created_total",
			Help: "Total number of jobs created, by kind",
		}, []string{"kind"}),

		JobsByStatus: reg.NewGaugeVec(prometheus.GaugeOpts{
			Name: "by_status",
			Help: "Current number of jobs in each status",
		}, []string{"kind", "status"}),

		JobErrorsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of jobs transitioned to Error, by kind and failed_at status",
		}, []string{"kind", "failed_at"}),

		JobRetriesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "retries_total",
			Help: "Total weighted retry increments applied, by kind",
		}, []string{"kind"}),

		StageDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name: "stage_duration_seconds",
			Help: "Duration of a single pipeline stage handler invocation",
		}, []string{"kind", "stage"}),

		HeadEventsTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "head_events_total",
			Help: "Total number of beacon head events received",
		}),

		HeadEventsDroppedTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "head_events_dropped_total",
			Help: "Total number of beacon head events dropped due to a full channel",
		}),

		BroadcastsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total number of on-chain broadcasts, by kind and outcome",
		}, []string{"kind", "outcome"}),

		BroadcastWaitingTotal: reg.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_waiting_total",
			Help: "Total number of broadcast attempts deferred due to unsatisfied committee ordering",
		}),

		EpochBatchSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "epoch_batch_size",
			Help:    "Number of epochs in a created epoch-batch job",
			Buckets: CountBuckets,
		}),

		LatestObservedSlot: reg.NewGauge(prometheus.GaugeOpts{
			Name: "latest_observed_slot",
			Help: "Latest beacon slot observed by the head-event ingress",
		}),

		LatestVerifiedEpochSlot: reg.NewGauge(prometheus.GaugeOpts{
			Name: "latest_verified_epoch_slot",
			Help: "Latest epoch slot verified on the settlement-chain contract",
		}),

		LatestVerifiedCommittee: reg.NewGauge(prometheus.GaugeOpts{
			Name: "latest_verified_committee_id",
			Help: "Latest sync committee id verified on the settlement-chain contract",
		}),
	}
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogramVec(opts, labels)
	prometheus.MustRegister(h)
	return h
}
