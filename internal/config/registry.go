package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/internal/resilience"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/audio"
	"github.com/JAAFAR1996/ai-tiddy-bear-v-sub004/pkg/transport"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory
// has been registered under the selected backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// ErrNoEndpoints is returned by [Registry.CreateTransport] when the
// endpoint list is empty and the backend needs one.
var ErrNoEndpoints = errors.New("config: no endpoints configured")

// DeviceFactory builds an audio device from the device settings.
type DeviceFactory func(DeviceConfig) (audio.Device, error)

// EndpointFactory builds the transport for a single endpoint. Shared link
// settings (timeouts, probe cadence) come from the [TransportConfig].
type EndpointFactory func(EndpointConfig, TransportConfig) (transport.Transport, error)

// Registry maps backend names to their constructor functions. The main
// package registers the real and mock backends at startup; tests register
// whatever they need. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	devices    map[DeviceBackend]DeviceFactory
	transports map[TransportBackend]EndpointFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[DeviceBackend]DeviceFactory),
		transports: make(map[TransportBackend]EndpointFactory),
	}
}

// RegisterDevice registers a device factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterDevice(name DeviceBackend, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// RegisterTransport registers a per-endpoint transport factory under name.
func (r *Registry) RegisterTransport(name TransportBackend, factory EndpointFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[name] = factory
}

// CreateDevice instantiates the audio device selected by cfg.Backend.
// An empty backend selects "miniaudio". Returns
// [ErrBackendNotRegistered] if no factory is registered for that name.
func (r *Registry) CreateDevice(cfg DeviceConfig) (audio.Device, error) {
	name := cfg.Backend
	if name == "" {
		name = DeviceMiniaudio
	}
	r.mu.RLock()
	factory, ok := r.devices[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrBackendNotRegistered, name)
	}
	return factory(cfg)
}

// CreateTransport instantiates the uplink selected by cfg.Backend. An
// empty backend selects "ws". With a single endpoint the factory's
// transport is returned directly; with several, each endpoint gets its
// own transport and the set is wrapped in a [resilience.Failover] that
// walks them in registration order.
func (r *Registry) CreateTransport(cfg TransportConfig) (transport.Transport, error) {
	name := cfg.Backend
	if name == "" {
		name = TransportWebsocket
	}
	r.mu.RLock()
	factory, ok := r.transports[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transport/%q", ErrBackendNotRegistered, name)
	}

	if len(cfg.Endpoints) == 0 {
		// The mock link needs no address; anything real does.
		if name == TransportMock {
			return factory(EndpointConfig{}, cfg)
		}
		return nil, ErrNoEndpoints
	}

	primary, err := factory(cfg.Endpoints[0], cfg)
	if err != nil {
		return nil, fmt.Errorf("config: endpoint %q: %w", cfg.Endpoints[0].Name, err)
	}
	if len(cfg.Endpoints) == 1 {
		return primary, nil
	}

	fo := resilience.NewFailover(cfg.Endpoints[0].Name, primary, cfg.Reconnect.Breaker.breaker(""))
	for _, ep := range cfg.Endpoints[1:] {
		tr, err := factory(ep, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: endpoint %q: %w", ep.Name, err)
		}
		fo.AddEndpoint(ep.Name, tr)
	}
	return fo, nil
}
