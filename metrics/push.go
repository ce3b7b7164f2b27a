package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/nostrsync/relay/metrics/public"
)

// PushConfig specifies where and how often the public metrics are pushed.
type PushConfig struct {
	URL        string            `mapstructure:"push-url"`
	Username   string            `mapstructure:"push-username"`
	Password   string            `mapstructure:"push-password"`
	Headers    map[string]string `mapstructure:"push-headers"`
	Period     time.Duration     `mapstructure:"push-period"`
	Retries    int               `mapstructure:"push-retries"`
	RetryDelay time.Duration     `mapstructure:"push-retry-delay"`
}

// A wrapper around zap.Logger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHTTPLogger struct {
	inner *zap.Logger
}

func (r retryableHTTPLogger) Error(format string, args ...any) {
	r.inner.Sugar().Errorw(format, args...)
}

func (r retryableHTTPLogger) Info(format string, args ...any) {
	r.inner.Sugar().Infow(format, args...)
}

func (r retryableHTTPLogger) Warn(format string, args ...any) {
	r.inner.Sugar().Warnw(format, args...)
}

func (r retryableHTTPLogger) Debug(format string, args ...any) {
	r.inner.Sugar().Debugw(format, args...)
}

// StartPushingMetrics pushes the public metrics to the push gateway until the context
// is canceled. Failed pushes are retried with linear backoff.
func StartPushingMetrics(ctx context.Context, logger *zap.Logger, cfg PushConfig, instance string) {
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Add(k, v)
	}
	client := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: cfg.Period},
		Logger:       retryableHTTPLogger{inner: logger.Named("push")},
		RetryMax:     cfg.Retries,
		RetryWaitMin: cfg.RetryDelay,
		RetryWaitMax: 2 * cfg.RetryDelay,
		Backoff:      retryablehttp.LinearJitterBackoff,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
	}
	pusher := push.New(cfg.URL, "nostrsync").Gatherer(public.Registry).
		Grouping("instance", instance).
		Header(header).
		Client(client.StandardClient())
	if cfg.Username != "" && cfg.Password != "" {
		pusher = pusher.BasicAuth(cfg.Username, cfg.Password)
	}
	go func() {
		ticker := time.NewTicker(cfg.Period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pusher.PushContext(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("failed to push metrics", zap.Error(err))
				}
			}
		}
	}()
}
