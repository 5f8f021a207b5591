package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.LogLevel = config.LogInfo
	cfg.Server.ListenAddr = ":9090"
	cfg.Device.SampleRate = 16000
	cfg.Stream.SilenceLimitMs = 3000
	cfg.Enhance.GateThreshold = 0.005
	cfg.Enhance.OverSubtraction = 1.5
	cfg.Enhance.AGCTarget = 0.25
	cfg.Enhance.VADThreshold = 0.02
	cfg.Enhance.VADDebounce = 3
	cfg.Network.MaxChunk = 8192
	cfg.Transport.Endpoints = []config.EndpointConfig{
		{Name: "primary", URL: "wss://a.example.com"},
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.TuningChanged {
		t.Error("expected TuningChanged=false for identical configs")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.RestartNeeded {
		t.Errorf("expected RestartNeeded=false, got fields %v", d.RestartFields)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartNeeded {
		t.Errorf("log level change should not need a restart, got fields %v", d.RestartFields)
	}
}

func TestDiff_TuningChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Enhance.GateThreshold = 0.02
	new.Enhance.AGCTarget = 0.4

	d := config.Diff(old, new)
	if !d.TuningChanged {
		t.Error("expected TuningChanged=true")
	}
	if d.NewTuning.GateThreshold != 0.02 {
		t.Errorf("NewTuning.GateThreshold = %v, want 0.02", d.NewTuning.GateThreshold)
	}
	if d.NewTuning.AGCTarget != 0.4 {
		t.Errorf("NewTuning.AGCTarget = %v, want 0.4", d.NewTuning.AGCTarget)
	}
	if d.RestartNeeded {
		t.Errorf("tuning change should not need a restart, got fields %v", d.RestartFields)
	}
}

func TestDiff_SilenceLimitIsTuning(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Stream.SilenceLimitMs = 1500

	d := config.Diff(old, new)
	if !d.TuningChanged {
		t.Error("expected TuningChanged=true")
	}
	if d.NewTuning.SilenceLimit != 1500*time.Millisecond {
		t.Errorf("NewTuning.SilenceLimit = %v, want 1.5s", d.NewTuning.SilenceLimit)
	}
	if d.RestartNeeded {
		t.Errorf("silence limit change should not need a restart, got fields %v", d.RestartFields)
	}
}

func TestDiff_DeviceChangeNeedsRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Device.SampleRate = 48000

	d := config.Diff(old, new)
	if !d.RestartNeeded {
		t.Fatal("expected RestartNeeded=true")
	}
	if !slices.Contains(d.RestartFields, "device") {
		t.Errorf("RestartFields = %v, want to contain %q", d.RestartFields, "device")
	}
	if d.TuningChanged {
		t.Error("sample rate change should not report a tuning change")
	}
}

func TestDiff_ColdEnhanceNeedsRestart(t *testing.T) {
	t.Parallel()
	// Debounce depth feeds pipeline construction, not Retune.
	old := baseConfig()
	new := baseConfig()
	new.Enhance.VADDebounce = 5

	d := config.Diff(old, new)
	if d.TuningChanged {
		t.Error("debounce change should not report a tuning change")
	}
	if !slices.Contains(d.RestartFields, "enhance") {
		t.Errorf("RestartFields = %v, want to contain %q", d.RestartFields, "enhance")
	}
}

func TestDiff_EndpointChangeNeedsRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Transport.Endpoints = append(new.Transport.Endpoints,
		config.EndpointConfig{Name: "fallback", URL: "wss://b.example.com"})

	d := config.Diff(old, new)
	if !d.RestartNeeded {
		t.Fatal("expected RestartNeeded=true")
	}
	if !slices.Contains(d.RestartFields, "transport") {
		t.Errorf("RestartFields = %v, want to contain %q", d.RestartFields, "transport")
	}
}

func TestDiff_ListenAddrNeedsRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9191"

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartFields, "server.listen_addr") {
		t.Errorf("RestartFields = %v, want to contain %q", d.RestartFields, "server.listen_addr")
	}
	if d.LogLevelChanged {
		t.Error("listen addr change should not report a log level change")
	}
}

func TestDiff_MixedChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogWarn
	new.Enhance.OverSubtraction = 2.0
	new.Network.MaxChunk = 4096

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.TuningChanged {
		t.Error("expected TuningChanged=true")
	}
	if d.NewTuning.OverSubtraction != 2.0 {
		t.Errorf("NewTuning.OverSubtraction = %v, want 2.0", d.NewTuning.OverSubtraction)
	}
	if !slices.Contains(d.RestartFields, "network") {
		t.Errorf("RestartFields = %v, want to contain %q", d.RestartFields, "network")
	}
}
