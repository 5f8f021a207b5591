package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated,
// clamped [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates the result, and
// clamps tunables into their safe ranges. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Clamp(cfg)
	return cfg, nil
}

// Validate checks that cfg is structurally coherent: recognised enum
// values, endpoint entries that can actually be dialled. It returns a
// joined error listing all failures found. Out-of-range numeric tunables
// are not errors; [Clamp] corrects those.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Stream.Codec != "" && !cfg.Stream.Codec.IsValid() {
		errs = append(errs, fmt.Errorf("stream.codec %q is invalid; valid values: pcm16, mulaw", cfg.Stream.Codec))
	}
	if cfg.Device.Backend != "" && !cfg.Device.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("device.backend %q is invalid; valid values: miniaudio, mock", cfg.Device.Backend))
	}
	if cfg.Transport.Backend != "" && !cfg.Transport.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("transport.backend %q is invalid; valid values: ws, mock", cfg.Transport.Backend))
	}

	// An empty endpoint list parses fine but cannot stream; creation
	// fails later with a clearer context.
	if len(cfg.Transport.Endpoints) == 0 && cfg.Transport.Backend != TransportMock {
		slog.Warn("no speech endpoints configured; the engine will not be able to establish an uplink")
	}

	names := make(map[string]int, len(cfg.Transport.Endpoints))
	for i, ep := range cfg.Transport.Endpoints {
		prefix := fmt.Sprintf("transport.endpoints[%d]", i)
		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := names[ep.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of transport.endpoints[%d]", prefix, ep.Name, prev))
			}
			names[ep.Name] = i
		}
		if ep.URL == "" && cfg.Transport.Backend != TransportMock {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
	}

	return errors.Join(errs...)
}

// Clamp forces every numeric tunable into its safe range, logging each
// adjustment. A value of zero means "use the default" and always passes
// through untouched. Out-of-range values are corrected rather than
// rejected so a bad config push cannot brick the device.
func Clamp(cfg *Config) {
	clampInt("device.sample_rate", &cfg.Device.SampleRate, 8000, 48000)
	clampInt("device.capture_period_ms", &cfg.Device.CapturePeriodMs, 1, 100)
	clampInt("device.playback_period_ms", &cfg.Device.PlaybackPeriodMs, 1, 100)
	clampInt("device.buffer_bytes", &cfg.Device.BufferBytes, 4096, 1<<20)

	clampInt("stream.silence_limit_ms", &cfg.Stream.SilenceLimitMs, 200, 60000)
	clampInt("stream.max_retries", &cfg.Stream.MaxRetries, 1, 10)
	clampInt("stream.retry_backoff_ms", &cfg.Stream.RetryBackoffMs, 10, 5000)
	clampInt("stream.send_timeout_ms", &cfg.Stream.SendTimeoutMs, 100, 30000)
	clampInt("stream.max_inbound_payload", &cfg.Stream.MaxInboundPayload, 512, 65535)

	clampFloat("enhance.gate_threshold", &cfg.Enhance.GateThreshold, 0, 0.2)
	clampFloat("enhance.over_subtraction", &cfg.Enhance.OverSubtraction, 1.0, 3.0)
	clampInt("enhance.calibration_windows", &cfg.Enhance.CalibrationWindows, 1, 600)
	clampFloat("enhance.agc_target", &cfg.Enhance.AGCTarget, 0.05, 0.9)
	clampFloat("enhance.agc_min_gain", &cfg.Enhance.AGCMinGain, 0.1, 1.0)
	clampFloat("enhance.agc_max_gain", &cfg.Enhance.AGCMaxGain, 1.0, 16.0)
	clampFloat("enhance.vad_threshold", &cfg.Enhance.VADThreshold, 0.001, 0.5)
	clampInt("enhance.vad_debounce", &cfg.Enhance.VADDebounce, 1, 10)

	// Chunk sizes are bounded by the 16-bit payload length on the wire.
	clampInt("network.base_chunk", &cfg.Network.BaseChunk, 256, 65535)
	clampInt("network.min_chunk", &cfg.Network.MinChunk, 256, 65535)
	clampInt("network.max_chunk", &cfg.Network.MaxChunk, 256, 65535)
	if cfg.Network.MinChunk != 0 && cfg.Network.MaxChunk != 0 && cfg.Network.MaxChunk < cfg.Network.MinChunk {
		slog.Warn("config value out of range, clamped",
			"field", "network.max_chunk", "got", cfg.Network.MaxChunk, "using", cfg.Network.MinChunk)
		cfg.Network.MaxChunk = cfg.Network.MinChunk
	}
	clampInt("network.step", &cfg.Network.Step, 64, 4096)
	clampInt("network.adapt_interval_ms", &cfg.Network.AdaptIntervalMs, 100, 60000)
	clampInt("network.failure_streak", &cfg.Network.FailureStreak, 1, 20)
	clampInt("network.success_streak", &cfg.Network.SuccessStreak, 1, 20)

	clampInt("transport.dial_timeout_ms", &cfg.Transport.DialTimeoutMs, 100, 60000)
	clampInt("transport.write_timeout_ms", &cfg.Transport.WriteTimeoutMs, 100, 30000)
	clampInt("transport.ping_interval_ms", &cfg.Transport.PingIntervalMs, 1000, 120000)
	clampInt("transport.reconnect.max_attempts", &cfg.Transport.Reconnect.MaxAttempts, 1, 100)
	clampInt("transport.reconnect.backoff_ms", &cfg.Transport.Reconnect.BackoffMs, 10, 10000)
	clampInt("transport.reconnect.max_backoff_ms", &cfg.Transport.Reconnect.MaxBackoffMs, 100, 300000)
	clampInt("transport.reconnect.breaker.max_failures", &cfg.Transport.Reconnect.Breaker.MaxFailures, 1, 100)
	clampInt("transport.reconnect.breaker.reset_timeout_ms", &cfg.Transport.Reconnect.Breaker.ResetTimeoutMs, 100, 300000)
	clampInt("transport.reconnect.breaker.half_open_max", &cfg.Transport.Reconnect.Breaker.HalfOpenMax, 1, 10)

	clampSizing(cfg)
}

// clampSizing enforces the coupled buffer invariants that single-field
// ranges cannot express: the ring buffers must hold two chunks of audio,
// and a decoded inbound frame must fit the playback ring.
func clampSizing(cfg *Config) {
	maxChunk := cfg.Network.MaxChunk
	if maxChunk == 0 {
		maxChunk = 8192
	}

	if cfg.Device.BufferBytes != 0 && cfg.Device.BufferBytes < 2*maxChunk {
		slog.Warn("config value out of range, clamped",
			"field", "device.buffer_bytes", "got", cfg.Device.BufferBytes, "using", 2*maxChunk)
		cfg.Device.BufferBytes = 2 * maxChunk
	}

	ringBytes := cfg.Device.BufferBytes
	if ringBytes == 0 {
		ringBytes = 4 * maxChunk
	}

	// Mu-law payloads double when decoded, so half the ring is the hard
	// ceiling for an accepted inbound frame.
	inbound := cfg.Stream.MaxInboundPayload
	if inbound == 0 {
		inbound = 16384
	}
	if limit := ringBytes / 2; inbound > limit {
		slog.Warn("config value out of range, clamped",
			"field", "stream.max_inbound_payload", "got", inbound, "using", limit)
		cfg.Stream.MaxInboundPayload = limit
	}
}

// clampInt forces a set *v into [lo, hi], logging any adjustment.
// Zero means unset and is left alone.
func clampInt(field string, v *int, lo, hi int) {
	if *v == 0 {
		return
	}
	c := min(max(*v, lo), hi)
	if c == *v {
		return
	}
	slog.Warn("config value out of range, clamped", "field", field, "got", *v, "using", c)
	*v = c
}

// clampFloat is [clampInt] for float fields.
func clampFloat(field string, v *float64, lo, hi float64) {
	if *v == 0 {
		return
	}
	c := min(max(*v, lo), hi)
	if c == *v {
		return
	}
	slog.Warn("config value out of range, clamped", "field", field, "got", *v, "using", c)
	*v = c
}
