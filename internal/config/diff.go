package config

import (
	"reflect"
	"slices"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/engine"
)

// ConfigDiff describes what changed between two configs and how the
// change can be applied: pushed onto the running engine, applied to the
// logger, or deferred to the next restart.
type ConfigDiff struct {
	// TuningChanged reports that the hot-reloadable engine subset
	// (gate threshold, over-subtraction, AGC target, VAD threshold,
	// silence limit) differs; NewTuning is ready for
	// [engine.Engine.ApplyTuning].
	TuningChanged bool
	NewTuning     engine.Tuning

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartNeeded reports that structural settings changed; the
	// running session keeps its old values. RestartFields names the
	// affected sections for the operator log.
	RestartNeeded bool
	RestartFields []string
}

// Diff compares old and new configs and classifies every change.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Tuning() != new.Tuning() {
		d.TuningChanged = true
		d.NewTuning = new.Tuning()
	}

	d.RestartFields = restartFields(old, new)
	d.RestartNeeded = len(d.RestartFields) > 0
	return d
}

// restartFields returns the sections whose non-hot-reloadable settings
// differ between old and new.
func restartFields(old, new *Config) []string {
	var fields []string
	if old.Server.ListenAddr != new.Server.ListenAddr {
		fields = append(fields, "server.listen_addr")
	}
	if old.Device != new.Device {
		fields = append(fields, "device")
	}
	if coldStream(old.Stream) != coldStream(new.Stream) {
		fields = append(fields, "stream")
	}
	if coldEnhance(old.Enhance) != coldEnhance(new.Enhance) {
		fields = append(fields, "enhance")
	}
	if old.Network != new.Network {
		fields = append(fields, "network")
	}
	if !transportEqual(old.Transport, new.Transport) {
		fields = append(fields, "transport")
	}
	return fields
}

// coldStream masks the hot-reloadable fields so the remainder compares
// directly.
func coldStream(s StreamConfig) StreamConfig {
	s.SilenceLimitMs = 0
	return s
}

func coldEnhance(e EnhanceConfig) EnhanceConfig {
	e.GateThreshold = 0
	e.OverSubtraction = 0
	e.AGCTarget = 0
	e.VADThreshold = 0
	return e
}

func transportEqual(a, b TransportConfig) bool {
	if !slices.Equal(a.Endpoints, b.Endpoints) {
		return false
	}
	a.Endpoints, b.Endpoints = nil, nil
	return reflect.DeepEqual(a, b)
}
