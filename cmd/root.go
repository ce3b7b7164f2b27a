package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"github.com/nostrsync/relay/config"
)

type levelValue struct {
	level *zapcore.Level
}

func (v levelValue) String() string {
	if v.level == nil {
		return ""
	}
	return v.level.String()
}

func (v levelValue) Set(s string) error {
	return v.level.Set(s)
}

func (levelValue) Type() string {
	return "level"
}

// AddFlags adds the configuration flags to the flag set. The flags write directly
// into conf. The returned pointer holds the path of the config file.
func AddFlags(flagSet *pflag.FlagSet, conf *config.Config) (configPath *string) {
	configPath = flagSet.StringP("config", "c", "", "load configuration from file")
	flagSet.StringVarP(&conf.Preset, "preset", "p", conf.Preset,
		fmt.Sprintf("preset overwrites default values of the config. options %s",
			strings.Join(config.Presets(), ", ")))

	/** ======================== BaseConfig Flags ========================== **/
	flagSet.StringVarP(&conf.DataDir, "data-dir", "d",
		conf.DataDir, "directory with the event database")
	flagSet.IntVar(&conf.DatabaseConnections, "db-connections",
		conf.DatabaseConnections, "number of pooled database connections")
	flagSet.BoolVar(&conf.DatabaseLatencyMetering, "db-latency-metering",
		conf.DatabaseLatencyMetering, "collect database query latency metrics")
	flagSet.StringVar(&conf.ProfilerURL, "profiler-url",
		conf.ProfilerURL, "send profiler data to certain url, if no url no profiling will be sent, format: http://<IP>:<PORT>")
	flagSet.StringVar(&conf.ProfilerName, "profiler-name",
		conf.ProfilerName, "the name to use when sending profiles")

	/** ======================== Logging Flags ========================== **/
	flagSet.Var(levelValue{&conf.Logging.Level}, "log-level", "log level (debug, info, warn, error)")
	flagSet.StringVar(&conf.Logging.Encoder, "log-encoder",
		conf.Logging.Encoder, "log encoder (console or json)")

	/** ======================== Sync Flags ========================== **/
	flagSet.DurationVar(&conf.Sync.Timeout, "sync-timeout",
		conf.Sync.Timeout, "maximum duration of a single reconciliation")
	flagSet.DurationVar(&conf.Sync.WaitSlice, "sync-wait-slice",
		conf.Sync.WaitSlice, "maximum wait for the peer before re-checking the deadline")
	flagSet.IntVar(&conf.Sync.IDListThreshold, "id-list-threshold",
		conf.Sync.IDListThreshold, "send ids instead of splitting ranges with at most this many records")
	flagSet.IntVar(&conf.Sync.FrameSizeLimit, "frame-size-limit",
		conf.Sync.FrameSizeLimit, "soft limit on the reconciliation message size in bytes (0 or at least 4096)")

	/** ======================== Relay Flags ========================== **/
	flagSet.StringVar(&conf.Relay.Listen, "listen",
		conf.Relay.Listen, "address of the websocket listener")
	flagSet.IntVar(&conf.Relay.MaxSessions, "max-sessions",
		conf.Relay.MaxSessions, "reconciliation sessions per connection")
	flagSet.IntVar(&conf.Relay.MaxRecords, "max-records",
		conf.Relay.MaxRecords, "maximum number of records in a reconciliation snapshot")

	/** ======================== Metrics Flags ========================== **/
	flagSet.BoolVar(&conf.Metrics.Enabled, "metrics",
		conf.Metrics.Enabled, "serve prometheus metrics")
	flagSet.StringVar(&conf.Metrics.Listen, "metrics-listen",
		conf.Metrics.Listen, "address of the metrics server")
	flagSet.StringVar(&conf.Metrics.URL, "metrics-push",
		conf.Metrics.URL, "push metrics to url")
	flagSet.DurationVar(&conf.Metrics.Period, "metrics-push-period",
		conf.Metrics.Period, "push period")
	return configPath
}
