package config_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/config"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/resilience"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/wire"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
	audiomock "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio/mock"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
	trmock "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: info

device:
  backend: miniaudio
  sample_rate: 16000
  capture_period_ms: 10
  playback_period_ms: 10
  buffer_bytes: 32768

stream:
  codec: mulaw
  silence_limit_ms: 3000
  max_retries: 3
  retry_backoff_ms: 50
  send_timeout_ms: 2000
  max_inbound_payload: 16384

enhance:
  gate_threshold: 0.005
  over_subtraction: 1.5
  calibration_windows: 30
  agc_target: 0.25
  agc_min_gain: 0.5
  agc_max_gain: 4.0
  vad_threshold: 0.02
  vad_debounce: 3

network:
  base_chunk: 4096
  min_chunk: 1024
  max_chunk: 8192
  step: 512
  adapt_interval_ms: 2000
  failure_streak: 3
  success_streak: 5

transport:
  backend: ws
  endpoints:
    - name: primary
      url: wss://speech.example.com/v1
      token: tk-test
    - name: fallback
      url: wss://speech-b.example.com/v1
  dial_timeout_ms: 10000
  write_timeout_ms: 5000
  ping_interval_ms: 15000
  reconnect:
    max_attempts: 10
    backoff_ms: 1000
    max_backoff_ms: 30000
    breaker:
      max_failures: 5
      reset_timeout_ms: 30000
      half_open_max: 3
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Device.Backend != config.DeviceMiniaudio {
		t.Errorf("device.backend: got %q, want %q", cfg.Device.Backend, config.DeviceMiniaudio)
	}
	if cfg.Device.SampleRate != 16000 {
		t.Errorf("device.sample_rate: got %d, want 16000", cfg.Device.SampleRate)
	}
	if cfg.Stream.Codec != config.CodecMuLaw {
		t.Errorf("stream.codec: got %q, want %q", cfg.Stream.Codec, config.CodecMuLaw)
	}
	if cfg.Stream.SilenceLimitMs != 3000 {
		t.Errorf("stream.silence_limit_ms: got %d, want 3000", cfg.Stream.SilenceLimitMs)
	}
	if cfg.Enhance.OverSubtraction != 1.5 {
		t.Errorf("enhance.over_subtraction: got %.2f, want 1.5", cfg.Enhance.OverSubtraction)
	}
	if cfg.Network.MaxChunk != 8192 {
		t.Errorf("network.max_chunk: got %d, want 8192", cfg.Network.MaxChunk)
	}
	if len(cfg.Transport.Endpoints) != 2 {
		t.Fatalf("transport.endpoints: got %d, want 2", len(cfg.Transport.Endpoints))
	}
	if cfg.Transport.Endpoints[0].Name != "primary" {
		t.Errorf("endpoints[0].name: got %q", cfg.Transport.Endpoints[0].Name)
	}
	if cfg.Transport.Endpoints[1].URL != "wss://speech-b.example.com/v1" {
		t.Errorf("endpoints[1].url: got %q", cfg.Transport.Endpoints[1].URL)
	}
	if cfg.Transport.Reconnect.Breaker.MaxFailures != 5 {
		t.Errorf("reconnect.breaker.max_failures: got %d, want 5", cfg.Transport.Reconnect.Breaker.MaxFailures)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// No top-level field is required; everything defaults downstream.
	for _, src := range []string{"{}", ""} {
		if _, err := config.LoadFromReader(strings.NewReader(src)); err != nil {
			t.Errorf("unexpected error for %q: %v", src, err)
		}
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
stream:
  codec: pcm16
  chunk_len: 512
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "chunk_len") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

// ── Enum mappings ─────────────────────────────────────────────────────────────

func TestCodec_Wire(t *testing.T) {
	tests := []struct {
		codec config.Codec
		want  wire.Codec
	}{
		{config.CodecPCM16, wire.CodecPCM16},
		{config.CodecMuLaw, wire.CodecMuLaw},
		{"", wire.CodecPCM16},
	}
	for _, tt := range tests {
		if got := tt.codec.Wire(); got != tt.want {
			t.Errorf("Codec(%q).Wire() = %v, want %v", tt.codec, got, tt.want)
		}
	}
}

func TestLogLevel_Slog(t *testing.T) {
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.Slog(); got != tt.want {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// ── Engine bridge ─────────────────────────────────────────────────────────────

func TestConfig_Engine(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ec := cfg.Engine()
	if ec.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", ec.SampleRate)
	}
	if ec.Codec != wire.CodecMuLaw {
		t.Errorf("Codec = %v, want %v", ec.Codec, wire.CodecMuLaw)
	}
	if ec.CapturePeriod != 10*time.Millisecond {
		t.Errorf("CapturePeriod = %v, want 10ms", ec.CapturePeriod)
	}
	if ec.SilenceLimit != 3*time.Second {
		t.Errorf("SilenceLimit = %v, want 3s", ec.SilenceLimit)
	}
	if ec.SendTimeout != 2*time.Second {
		t.Errorf("SendTimeout = %v, want 2s", ec.SendTimeout)
	}
	if ec.Enhance.SampleRate != 16000 {
		t.Errorf("Enhance.SampleRate = %d, want 16000", ec.Enhance.SampleRate)
	}
	if ec.Enhance.CalibrationWindows != 30 {
		t.Errorf("Enhance.CalibrationWindows = %d, want 30", ec.Enhance.CalibrationWindows)
	}
	if ec.Net.BaseChunk != 4096 || ec.Net.MinChunk != 1024 || ec.Net.MaxChunk != 8192 {
		t.Errorf("Net chunks = %d/%d/%d, want 4096/1024/8192", ec.Net.BaseChunk, ec.Net.MinChunk, ec.Net.MaxChunk)
	}
	if ec.Net.Interval != 2*time.Second {
		t.Errorf("Net.Interval = %v, want 2s", ec.Net.Interval)
	}
	if ec.Reconnect.MaxAttempts != 10 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 10", ec.Reconnect.MaxAttempts)
	}
	if ec.Reconnect.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("Reconnect.Breaker.ResetTimeout = %v, want 30s", ec.Reconnect.Breaker.ResetTimeout)
	}
}

func TestConfig_EngineZeroPassthrough(t *testing.T) {
	// An empty config hands all-zero values to the engine so its own
	// defaults apply.
	ec := (&config.Config{}).Engine()
	if ec.SampleRate != 0 {
		t.Errorf("SampleRate = %d, want 0", ec.SampleRate)
	}
	if ec.SilenceLimit != 0 {
		t.Errorf("SilenceLimit = %v, want 0", ec.SilenceLimit)
	}
	if ec.Codec != wire.CodecPCM16 {
		t.Errorf("Codec = %v, want %v", ec.Codec, wire.CodecPCM16)
	}
}

func TestConfig_Tuning(t *testing.T) {
	cfg := &config.Config{
		Stream: config.StreamConfig{SilenceLimitMs: 1500},
		Enhance: config.EnhanceConfig{
			GateThreshold:   0.01,
			OverSubtraction: 2.0,
			AGCTarget:       0.3,
			VADThreshold:    0.05,
		},
	}
	tn := cfg.Tuning()
	if tn.GateThreshold != 0.01 {
		t.Errorf("GateThreshold = %v, want 0.01", tn.GateThreshold)
	}
	if tn.OverSubtraction != 2.0 {
		t.Errorf("OverSubtraction = %v, want 2.0", tn.OverSubtraction)
	}
	if tn.AGCTarget != 0.3 {
		t.Errorf("AGCTarget = %v, want 0.3", tn.AGCTarget)
	}
	if tn.VADThreshold != 0.05 {
		t.Errorf("VADThreshold = %v, want 0.05", tn.VADThreshold)
	}
	if tn.SilenceLimit != 1500*time.Millisecond {
		t.Errorf("SilenceLimit = %v, want 1.5s", tn.SilenceLimit)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownDevice(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateDevice(config.DeviceConfig{Backend: config.DeviceMock})
	if err == nil {
		t.Fatal("expected error for unregistered device backend")
	}
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("expected ErrBackendNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownTransport(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateTransport(config.TransportConfig{Backend: config.TransportMock})
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("expected ErrBackendNotRegistered, got: %v", err)
	}
}

func TestRegistry_EmptyBackendSelectsDefaults(t *testing.T) {
	// An empty backend name means the real implementation.
	reg := config.NewRegistry()
	want := &audiomock.Device{}
	reg.RegisterDevice(config.DeviceMiniaudio, func(config.DeviceConfig) (audio.Device, error) {
		return want, nil
	})
	reg.RegisterTransport(config.TransportWebsocket, func(config.EndpointConfig, config.TransportConfig) (transport.Transport, error) {
		return trmock.New(), nil
	})

	got, err := reg.CreateDevice(config.DeviceConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned device is not the registered miniaudio instance")
	}

	if _, err := reg.CreateTransport(config.TransportConfig{
		Endpoints: []config.EndpointConfig{{Name: "primary", URL: "wss://a"}},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_RegisteredDevice(t *testing.T) {
	reg := config.NewRegistry()
	want := &audiomock.Device{}
	var gotCfg config.DeviceConfig
	reg.RegisterDevice(config.DeviceMock, func(dc config.DeviceConfig) (audio.Device, error) {
		gotCfg = dc
		return want, nil
	})

	got, err := reg.CreateDevice(config.DeviceConfig{Backend: config.DeviceMock, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned device is not the registered instance")
	}
	if gotCfg.SampleRate != 16000 {
		t.Errorf("factory received SampleRate %d, want 16000", gotCfg.SampleRate)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("no such device")
	reg.RegisterDevice(config.DeviceMiniaudio, func(config.DeviceConfig) (audio.Device, error) {
		return nil, wantErr
	})
	_, err := reg.CreateDevice(config.DeviceConfig{Backend: config.DeviceMiniaudio})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_SingleEndpointReturnsBareTransport(t *testing.T) {
	reg := config.NewRegistry()
	want := trmock.New()
	var gotEP config.EndpointConfig
	reg.RegisterTransport(config.TransportWebsocket, func(ep config.EndpointConfig, _ config.TransportConfig) (transport.Transport, error) {
		gotEP = ep
		return want, nil
	})

	got, err := reg.CreateTransport(config.TransportConfig{
		Backend:   config.TransportWebsocket,
		Endpoints: []config.EndpointConfig{{Name: "primary", URL: "wss://a", Token: "tk"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != transport.Transport(want) {
		t.Error("CreateTransport should hand back the factory's transport unchanged")
	}
	if gotEP.URL != "wss://a" || gotEP.Token != "tk" {
		t.Errorf("factory received endpoint %+v", gotEP)
	}
}

func TestRegistry_MultipleEndpointsWrapInFailover(t *testing.T) {
	reg := config.NewRegistry()
	var built []string
	reg.RegisterTransport(config.TransportWebsocket, func(ep config.EndpointConfig, _ config.TransportConfig) (transport.Transport, error) {
		built = append(built, ep.Name)
		return trmock.New(), nil
	})

	got, err := reg.CreateTransport(config.TransportConfig{
		Backend: config.TransportWebsocket,
		Endpoints: []config.EndpointConfig{
			{Name: "primary", URL: "wss://a"},
			{Name: "fallback", URL: "wss://b"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.(*resilience.Failover); !ok {
		t.Errorf("expected a *resilience.Failover, got %T", got)
	}
	if len(built) != 2 || built[0] != "primary" || built[1] != "fallback" {
		t.Errorf("endpoints built = %v, want [primary fallback]", built)
	}
}

func TestRegistry_NoEndpoints(t *testing.T) {
	reg := config.NewRegistry()
	reg.RegisterTransport(config.TransportWebsocket, func(config.EndpointConfig, config.TransportConfig) (transport.Transport, error) {
		return trmock.New(), nil
	})
	_, err := reg.CreateTransport(config.TransportConfig{Backend: config.TransportWebsocket})
	if !errors.Is(err, config.ErrNoEndpoints) {
		t.Errorf("expected ErrNoEndpoints, got: %v", err)
	}
}

func TestRegistry_MockTransportNeedsNoEndpoint(t *testing.T) {
	reg := config.NewRegistry()
	want := trmock.New()
	reg.RegisterTransport(config.TransportMock, func(config.EndpointConfig, config.TransportConfig) (transport.Transport, error) {
		return want, nil
	})
	got, err := reg.CreateTransport(config.TransportConfig{Backend: config.TransportMock})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != transport.Transport(want) {
		t.Error("mock backend should build without endpoints")
	}
}
