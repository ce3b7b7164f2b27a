package negsync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nostrsync/relay/metrics"
	"github.com/nostrsync/relay/metrics/public"
)

const subsystem = "negsync"

var (
	syncDuration = metrics.NewHistogramWithBuckets(
		"sync_duration_seconds",
		subsystem,
		"Duration of the reconciliation in seconds",
		[]string{"outcome"},
		prometheus.ExponentialBuckets(0.01, 2, 14),
	)
	syncDurationOK      = syncDuration.WithLabelValues("ok")
	syncDurationTimeout = syncDuration.WithLabelValues("timeout")
	syncDurationRemote  = syncDuration.WithLabelValues("remote_error")
	syncDurationFail    = syncDuration.WithLabelValues("fail")

	syncRounds = metrics.NewHistogramWithBuckets(
		"sync_rounds",
		subsystem,
		"Number of rounds per successful reconciliation",
		[]string{},
		prometheus.LinearBuckets(1, 1, 16),
	).WithLabelValues()

	syncIDs = metrics.NewCounter(
		"sync_ids",
		subsystem,
		"Number of ids discovered by reconciliation",
		[]string{"kind"},
	)
	syncHaveIDs = syncIDs.WithLabelValues("have")
	syncNeedIDs = syncIDs.WithLabelValues("need")

	responderSessions = metrics.NewGauge(
		"responder_sessions",
		subsystem,
		"Number of open responder sessions",
		[]string{},
	).WithLabelValues()

	responderFrames = metrics.NewCounter(
		"responder_frames",
		subsystem,
		"Number of frames handled by the responder",
		[]string{"type", "outcome"},
	)

	initiatedReconciliations = public.Reconciliations.WithLabelValues("initiator")
	answeredReconciliations  = public.Reconciliations.WithLabelValues("responder")
)
