package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap/zapcore"
)

var presets = map[string]func() Config{}

func init() {
	register("local", local)
	register("public", public)
}

func register(name string, preset func() Config) {
	if _, exist := presets[name]; exist {
		panic(fmt.Sprintf("preset with name %s already exists", name))
	}
	presets[name] = preset
}

// Presets returns the names of the registered presets.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func getPreset(name string) (Config, error) {
	preset, exist := presets[name]
	if !exist {
		return Config{}, fmt.Errorf("preset %s is not registered. select one from %v", name, Presets())
	}
	return preset(), nil
}

// local is a throwaway relay for development.
func local() Config {
	conf := DefaultConfig()
	conf.Preset = "local"
	conf.DataDir = filepath.Join(os.TempDir(), defaultDataDirName)
	conf.Logging.Level = zapcore.DebugLevel
	conf.Sync.Timeout = 10 * time.Second
	conf.Sync.WaitSlice = time.Second
	conf.Relay.MessagesPerSecond = 1000
	conf.Relay.MessageBurst = 1000
	return conf
}

// public is a relay exposed to arbitrary clients.
func public() Config {
	conf := DefaultConfig()
	conf.Preset = "public"
	conf.Logging.Encoder = JSONLogEncoder
	conf.Sync.FrameSizeLimit = 128 << 10
	conf.Relay.Listen = "0.0.0.0:7777"
	conf.Relay.MaxSessions = 8
	conf.Relay.MaxRecords = 500_000
	conf.Relay.MessagesPerSecond = 20
	conf.Relay.MessageBurst = 40
	conf.Metrics.Enabled = true
	return conf
}
