// Package config provides the YAML configuration schema, loader, and
// backend registry for the bearstream device firmware.
package config

import (
	"log/slog"
	"time"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/dsp"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/engine"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/netadapt"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/resilience"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/wire"
)

// LogLevel controls log verbosity for the bearstream process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding [slog.Level]. Unrecognised values
// map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Codec selects the outbound payload encoding.
type Codec string

const (
	// CodecPCM16 sends raw 16-bit PCM payloads.
	CodecPCM16 Codec = "pcm16"

	// CodecMuLaw compands payloads to G.711 mu-law, halving the byte rate.
	CodecMuLaw Codec = "mulaw"
)

// IsValid reports whether c is a recognised codec name.
func (c Codec) IsValid() bool {
	return c == CodecPCM16 || c == CodecMuLaw
}

// Wire maps c onto the corresponding [wire.Codec]. Empty or unrecognised
// values map to PCM16.
func (c Codec) Wire() wire.Codec {
	if c == CodecMuLaw {
		return wire.CodecMuLaw
	}
	return wire.CodecPCM16
}

// DeviceBackend selects the audio peripheral implementation.
type DeviceBackend string

const (
	// DeviceMiniaudio drives the real microphone and speaker.
	DeviceMiniaudio DeviceBackend = "miniaudio"

	// DeviceMock is an in-memory device for hardware-less development.
	DeviceMock DeviceBackend = "mock"
)

// IsValid reports whether d is a recognised device backend name.
func (d DeviceBackend) IsValid() bool {
	return d == DeviceMiniaudio || d == DeviceMock
}

// TransportBackend selects the cloud link implementation.
type TransportBackend string

const (
	// TransportWebsocket streams over a websocket connection.
	TransportWebsocket TransportBackend = "ws"

	// TransportMock is an in-memory link for development and tests.
	TransportMock TransportBackend = "mock"
)

// IsValid reports whether t is a recognised transport backend name.
func (t TransportBackend) IsValid() bool {
	return t == TransportWebsocket || t == TransportMock
}

// Config is the root configuration structure for bearstream.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Device    DeviceConfig    `yaml:"device"`
	Stream    StreamConfig    `yaml:"stream"`
	Enhance   EnhanceConfig   `yaml:"enhance"`
	Network   NetworkConfig   `yaml:"network"`
	Transport TransportConfig `yaml:"transport"`
}

// ServerConfig holds logging and status listener settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the status listener serving
	// /healthz, /readyz, /statusz, and /metrics (e.g., ":9090").
	// Empty disables the listener entirely.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DeviceConfig holds audio peripheral settings.
type DeviceConfig struct {
	// Backend selects the peripheral implementation.
	Backend DeviceBackend `yaml:"backend"`

	// SampleRate in Hz. 0 means the 16000 default.
	SampleRate int `yaml:"sample_rate"`

	// CapturePeriodMs and PlaybackPeriodMs are the peripheral polling
	// cadences in milliseconds. 0 means the 10ms default.
	CapturePeriodMs  int `yaml:"capture_period_ms"`
	PlaybackPeriodMs int `yaml:"playback_period_ms"`

	// BufferBytes is the capacity of each ring buffer. 0 sizes the
	// rings from the maximum chunk size.
	BufferBytes int `yaml:"buffer_bytes"`
}

// StreamConfig holds streaming session settings.
type StreamConfig struct {
	// Codec selects the outbound payload encoding.
	Codec Codec `yaml:"codec"`

	// SilenceLimitMs is the sustained-silence span in milliseconds after
	// which streaming pauses. 0 means the 3000 default.
	SilenceLimitMs int `yaml:"silence_limit_ms"`

	// MaxRetries is the transmission attempt budget per chunk.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffMs is the initial wait between attempts in
	// milliseconds, doubling on each failure.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`

	// SendTimeoutMs bounds a single transport send in milliseconds.
	SendTimeoutMs int `yaml:"send_timeout_ms"`

	// MaxInboundPayload bounds accepted backend frame payloads in bytes.
	MaxInboundPayload int `yaml:"max_inbound_payload"`
}

// EnhanceConfig tunes the audio enhancement pipeline.
type EnhanceConfig struct {
	// GateThreshold is the normalised RMS floor below which windows are
	// silenced outright.
	GateThreshold float64 `yaml:"gate_threshold"`

	// OverSubtraction scales the noise estimate during spectral
	// subtraction. Values above 1 denoise harder.
	OverSubtraction float64 `yaml:"over_subtraction"`

	// CalibrationWindows is how many initial windows feed the noise
	// profile before denoising activates.
	CalibrationWindows int `yaml:"calibration_windows"`

	// AGCTarget is the normalised RMS level the automatic gain control
	// steers toward; AGCMinGain and AGCMaxGain bound the applied gain.
	AGCTarget  float64 `yaml:"agc_target"`
	AGCMinGain float64 `yaml:"agc_min_gain"`
	AGCMaxGain float64 `yaml:"agc_max_gain"`

	// VADThreshold is the normalised energy above which a window may be
	// classified as speech; VADDebounce is how many consecutive windows
	// must agree before the classification flips.
	VADThreshold float64 `yaml:"vad_threshold"`
	VADDebounce  int     `yaml:"vad_debounce"`
}

// NetworkConfig tunes chunk size adaptation.
type NetworkConfig struct {
	// BaseChunk is the starting chunk size in bytes; MinChunk and
	// MaxChunk bound every adaptation decision.
	BaseChunk int `yaml:"base_chunk"`
	MinChunk  int `yaml:"min_chunk"`
	MaxChunk  int `yaml:"max_chunk"`

	// Step is how many bytes one evaluation may grow or shrink the chunk.
	Step int `yaml:"step"`

	// AdaptIntervalMs is the evaluation cadence in milliseconds.
	AdaptIntervalMs int `yaml:"adapt_interval_ms"`

	// FailureStreak forces an immediate shrink after that many
	// consecutive send failures; SuccessStreak is required before the
	// chunk size may grow again.
	FailureStreak int `yaml:"failure_streak"`
	SuccessStreak int `yaml:"success_streak"`
}

// TransportConfig holds cloud link settings.
type TransportConfig struct {
	// Backend selects the link implementation.
	Backend TransportBackend `yaml:"backend"`

	// Endpoints lists the speech service endpoints. The first entry is
	// the primary; any further entries are failover backups tried in
	// order when the active endpoint cannot be reached.
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// DialTimeoutMs bounds connection establishment in milliseconds.
	DialTimeoutMs int `yaml:"dial_timeout_ms"`

	// WriteTimeoutMs bounds a single frame write in milliseconds.
	WriteTimeoutMs int `yaml:"write_timeout_ms"`

	// PingIntervalMs is the spacing of link quality probes in
	// milliseconds.
	PingIntervalMs int `yaml:"ping_interval_ms"`

	// Reconnect tunes link re-establishment after a drop.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// EndpointConfig describes one speech service endpoint.
type EndpointConfig struct {
	// Name is a unique human-readable identifier for this endpoint
	// (used in logs and circuit breaker labels).
	Name string `yaml:"name"`

	// URL is the endpoint address (e.g., "wss://speech.example.com/v1").
	URL string `yaml:"url"`

	// Token, when non-empty, is sent as a Bearer token on the dial
	// request.
	Token string `yaml:"token"`
}

// ReconnectConfig tunes link re-establishment and its circuit breaker.
type ReconnectConfig struct {
	// MaxAttempts bounds one re-establishment cycle.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffMs is the initial wait between attempts in milliseconds,
	// doubling up to MaxBackoffMs.
	BackoffMs    int `yaml:"backoff_ms"`
	MaxBackoffMs int `yaml:"max_backoff_ms"`

	// Breaker tunes the circuit breaker guarding the dial path.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes a dial-path circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutMs is how long the breaker stays open before probing
	// again, in milliseconds.
	ResetTimeoutMs int `yaml:"reset_timeout_ms"`

	// HalfOpenMax is the probe budget of the half-open state.
	HalfOpenMax int `yaml:"half_open_max"`
}

// Engine translates the loaded schema into an [engine.Config]. Zero
// values pass through so the engine's own defaults apply.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		SampleRate:        c.Device.SampleRate,
		Codec:             c.Stream.Codec.Wire(),
		CapturePeriod:     millis(c.Device.CapturePeriodMs),
		PlaybackPeriod:    millis(c.Device.PlaybackPeriodMs),
		BufferBytes:       c.Device.BufferBytes,
		Enhance:           c.Enhance.dsp(c.Device.SampleRate),
		SilenceLimit:      millis(c.Stream.SilenceLimitMs),
		MaxRetries:        c.Stream.MaxRetries,
		RetryBackoff:      millis(c.Stream.RetryBackoffMs),
		SendTimeout:       millis(c.Stream.SendTimeoutMs),
		MaxInboundPayload: c.Stream.MaxInboundPayload,
		Net: netadapt.Config{
			BaseChunk:     c.Network.BaseChunk,
			MinChunk:      c.Network.MinChunk,
			MaxChunk:      c.Network.MaxChunk,
			Step:          c.Network.Step,
			Interval:      millis(c.Network.AdaptIntervalMs),
			FailureStreak: c.Network.FailureStreak,
			SuccessStreak: c.Network.SuccessStreak,
		},
		Reconnect: resilience.ReconnectorConfig{
			MaxAttempts: c.Transport.Reconnect.MaxAttempts,
			Backoff:     millis(c.Transport.Reconnect.BackoffMs),
			MaxBackoff:  millis(c.Transport.Reconnect.MaxBackoffMs),
			Breaker:     c.Transport.Reconnect.Breaker.breaker("uplink"),
		},
	}
}

// breaker translates b into a [resilience.CircuitBreakerConfig] labelled
// name.
func (b BreakerConfig) breaker(name string) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  b.MaxFailures,
		ResetTimeout: millis(b.ResetTimeoutMs),
		HalfOpenMax:  b.HalfOpenMax,
	}
}

// Tuning extracts the hot-reloadable subset of c as an [engine.Tuning],
// suitable for [engine.Engine.ApplyTuning] on a running session.
func (c *Config) Tuning() engine.Tuning {
	return engine.Tuning{
		GateThreshold:   c.Enhance.GateThreshold,
		OverSubtraction: c.Enhance.OverSubtraction,
		AGCTarget:       c.Enhance.AGCTarget,
		VADThreshold:    c.Enhance.VADThreshold,
		SilenceLimit:    millis(c.Stream.SilenceLimitMs),
	}
}

func (e EnhanceConfig) dsp(sampleRate int) dsp.Config {
	return dsp.Config{
		SampleRate:         sampleRate,
		GateThreshold:      e.GateThreshold,
		OverSubtraction:    e.OverSubtraction,
		CalibrationWindows: e.CalibrationWindows,
		AGCTarget:          e.AGCTarget,
		AGCMinGain:         e.AGCMinGain,
		AGCMaxGain:         e.AGCMaxGain,
		VADThreshold:       e.VADThreshold,
		VADDebounce:        e.VADDebounce,
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
