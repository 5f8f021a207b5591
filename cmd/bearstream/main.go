// Command bearstream runs the microphone-to-cloud audio engine for the
// toy device. It loads the YAML configuration, builds the audio device
// and uplink transport through the backend registry, starts the engine,
// and serves health and metrics endpoints while watching the config
// file for tuning pushes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/config"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/engine"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/health"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/observe"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
	audiomock "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio/mock"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio/miniaudio"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
	trmock "github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport/mock"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport/ws"
)

// version is stamped at release build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── Command line ─────────────────────────────────────────────────

	configPath := flag.String("config", "bearstream.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env beside the binary supplies endpoint tokens on development
	// machines; device images set the real environment instead.
	_ = godotenv.Load()

	// ── Configuration ────────────────────────────────────────────────

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config file %q not found; copy configs/bearstream.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		}
		return 1
	}
	applyEnvOverrides(cfg)

	// ── Logging ──────────────────────────────────────────────────────

	// The level lives in a LevelVar so a config push can switch it
	// without rebuilding the handler.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Signals ──────────────────────────────────────────────────────

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "bearstream",
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 1
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		return 1
	}

	// ── Backends ─────────────────────────────────────────────────────

	reg := config.NewRegistry()
	registerBuiltinBackends(reg, logger)

	dev, err := reg.CreateDevice(cfg.Device)
	if err != nil {
		logger.Error("audio device init failed", "backend", cfg.Device.Backend, "error", err)
		return 1
	}
	tr, err := reg.CreateTransport(cfg.Transport)
	if err != nil {
		logger.Error("transport init failed", "backend", cfg.Transport.Backend, "error", err)
		return 1
	}

	// ── Engine ───────────────────────────────────────────────────────

	eng := engine.New(cfg.Engine(), dev, tr,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)

	var statusSrv *http.Server
	if addr := cfg.Server.ListenAddr; addr != "" {
		statusSrv = newStatusServer(addr, eng, tr, metrics)
		go func() {
			logger.Info("status listener up", "addr", addr)
			if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status listener failed", "error", err)
			}
		}()
	}

	// ── Config hot-push ──────────────────────────────────────────────

	watcher, err := config.NewWatcher(*configPath, func(prev, next *config.Config) {
		d := config.Diff(prev, next)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Slog())
			logger.Info("log level switched", "level", d.NewLogLevel)
		}
		if d.TuningChanged {
			eng.ApplyTuning(d.NewTuning)
			logger.Info("tuning pushed to engine")
		}
		if d.RestartNeeded {
			logger.Warn("config sections changed that only apply after a restart",
				"sections", strings.Join(d.RestartFields, ", "))
		}
	})
	if err != nil {
		logger.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, *configPath)

	// ── Run ──────────────────────────────────────────────────────────

	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx) }()

	exit := 0
	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", "error", err)
			exit = 1
			if statusSrv != nil {
				// Hold /statusz and /metrics open so the failure can be
				// inspected remotely. The hardware is already released.
				logger.Info("holding status listener for post-mortem; signal to exit")
				<-ctx.Done()
			}
		}
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", "error", err)
			exit = 1
		}
	}

	// ── Shutdown ─────────────────────────────────────────────────────

	if err := eng.Stop(); err != nil {
		logger.Warn("engine stop", "error", err)
	}
	if statusSrv != nil {
		sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusSrv.Shutdown(sdCtx); err != nil {
			logger.Warn("status listener shutdown", "error", err)
		}
	}
	logger.Info("bearstream stopped", "exit", exit)
	return exit
}

// registerBuiltinBackends wires the compiled-in device and transport
// implementations into reg. The mock backends let the binary run on a
// machine with no sound hardware or uplink.
func registerBuiltinBackends(reg *config.Registry, logger *slog.Logger) {
	reg.RegisterDevice(config.DeviceMiniaudio, func(dc config.DeviceConfig) (audio.Device, error) {
		f := audio.DefaultFormat()
		if dc.SampleRate > 0 {
			f.SampleRate = dc.SampleRate
		}
		return miniaudio.New(f)
	})
	reg.RegisterDevice(config.DeviceMock, func(config.DeviceConfig) (audio.Device, error) {
		return &audiomock.Device{}, nil
	})

	reg.RegisterTransport(config.TransportWebsocket, func(ep config.EndpointConfig, tc config.TransportConfig) (transport.Transport, error) {
		return ws.New(ws.Config{
			URL:          ep.URL,
			Token:        ep.Token,
			DialTimeout:  time.Duration(tc.DialTimeoutMs) * time.Millisecond,
			WriteTimeout: time.Duration(tc.WriteTimeoutMs) * time.Millisecond,
			PingInterval: time.Duration(tc.PingIntervalMs) * time.Millisecond,
		}, logger), nil
	})
	reg.RegisterTransport(config.TransportMock, func(config.EndpointConfig, config.TransportConfig) (transport.Transport, error) {
		return trmock.New(), nil
	})
}

// applyEnvOverrides fills endpoint tokens from the environment so
// secrets can stay out of the config file. BEARSTREAM_TOKEN applies to
// every endpoint without an inline token; BEARSTREAM_TOKEN_<NAME> wins
// for the named endpoint.
func applyEnvOverrides(cfg *config.Config) {
	shared := os.Getenv("BEARSTREAM_TOKEN")
	for i := range cfg.Transport.Endpoints {
		ep := &cfg.Transport.Endpoints[i]
		key := "BEARSTREAM_TOKEN_" + strings.ToUpper(strings.ReplaceAll(ep.Name, "-", "_"))
		if tok := os.Getenv(key); tok != "" {
			ep.Token = tok
		} else if ep.Token == "" && shared != "" {
			ep.Token = shared
		}
	}
}

// newStatusServer builds the diagnostics endpoint: liveness and
// readiness probes, the JSON status snapshot, and the Prometheus
// scrape handler.
func newStatusServer(addr string, eng *engine.Engine, tr transport.Transport, metrics *observe.Metrics) *http.Server {
	h := health.New(
		func() any { return eng.Status() },
		health.Checker{Name: "engine", Check: func(context.Context) error {
			st := eng.Status()
			switch st.State {
			case engine.StateStreaming, engine.StatePausedSilence:
				return nil
			case engine.StateError:
				return fmt.Errorf("engine failed: %s", st.Err)
			default:
				return fmt.Errorf("engine is %s", st.State)
			}
		}},
		// Connect is a no-op on a live link, so the probe is cheap and
		// doubles as a nudge to re-dial a dropped one.
		health.Checker{Name: "uplink", Check: tr.Connect},
	)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// printStartupSummary writes a boot banner to stderr so operators see
// at a glance what mode the device came up in.
func printStartupSummary(cfg *config.Config, path string) {
	endpoint := "(none)"
	if eps := cfg.Transport.Endpoints; len(eps) > 0 {
		endpoint = eps[0].URL
		if len(eps) > 1 {
			endpoint = fmt.Sprintf("%s (+%d fallback)", endpoint, len(eps)-1)
		}
	}
	rate := cfg.Device.SampleRate
	if rate == 0 {
		rate = audio.DefaultSampleRate
	}

	fmt.Fprintf(os.Stderr, `
╔═╣ bearstream %s ╠══════════════════════════════
║ config:    %s
║ device:    %s @ %d Hz
║ codec:     %s
║ endpoint:  %s
║ listen:    %s
╚════════════════════════════════════════════════
`,
		version,
		path,
		optString(string(cfg.Device.Backend), string(config.DeviceMiniaudio)),
		rate,
		optString(string(cfg.Stream.Codec), string(config.CodecPCM16)),
		endpoint,
		optString(cfg.Server.ListenAddr, "(disabled)"),
	)
}

func optString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
