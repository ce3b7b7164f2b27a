package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"

	"github.com/nostrsync/relay/metrics"
)

const subsystem = "relay"

var (
	connections = metrics.NewCounter(
		"connections",
		subsystem,
		"Number of accepted websocket connections",
		[]string{},
	).WithLabelValues()

	connectionDuration = metrics.NewHistogramWithBuckets(
		"connection_duration_seconds",
		subsystem,
		"Lifetime of the websocket connections",
		[]string{},
		prometheus.ExponentialBuckets(1, 4, 10),
	).WithLabelValues()

	frames = metrics.NewCounter(
		"frames",
		subsystem,
		"Number of websocket frames by direction",
		[]string{"dir"},
	)
	framesIn  = frames.WithLabelValues("in")
	framesOut = frames.WithLabelValues("out")

	notices = metrics.NewCounter(
		"notices",
		subsystem,
		"Number of NOTICE frames sent to the peers",
		[]string{"reason"},
	)
	noticeMalformed   = notices.WithLabelValues("malformed")
	noticeUnsupported = notices.WithLabelValues("unsupported")

	httpMetrics = middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Prefix: metrics.Namespace}),
	})
)
