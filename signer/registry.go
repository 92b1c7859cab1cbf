// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package signer

import (
	"fmt"
	"sync"

	"github.com/tern-wallet/tern/tern"
)

// Config describes a configured signing backend.
type Config struct {
	// ID uniquely identifies the backend within a session, e.g. "token1".
	ID string
	// Type selects the registered driver, e.g. "token" or "remote".
	Type string
	// Addr is the API address for remote backends.
	Addr string
	// Key is an optional fixed 32-byte private key for token backends.
	Key tern.Bytes
}

// Driver constructs a Backend from its configuration.
type Driver func(cfg *Config, log tern.Logger) (Backend, error)

// Registry is a session-owned collection of signing backends. Backends are
// constructed lazily on first request and cached, one instance per ID. There
// is no package-level registry; callers create a Registry and pass it to
// whatever needs it.
type Registry struct {
	log tern.Logger

	mtx      sync.Mutex
	drivers  map[string]Driver
	configs  map[string]*Config
	backends map[string]Backend
}

// NewRegistry creates an empty Registry.
func NewRegistry(log tern.Logger) *Registry {
	return &Registry{
		log:      log,
		drivers:  make(map[string]Driver),
		configs:  make(map[string]*Config),
		backends: make(map[string]Backend),
	}
}

// RegisterDriver registers a constructor for a backend type. Registering the
// same type twice is an error.
func (r *Registry) RegisterDriver(typ string, drv Driver) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, exists := r.drivers[typ]; exists {
		return fmt.Errorf("driver %q already registered", typ)
	}
	r.drivers[typ] = drv
	return nil
}

// AddBackend declares a backend configuration. The backend itself is not
// constructed until the first Backend call for its ID.
func (r *Registry) AddBackend(cfg *Config) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, exists := r.configs[cfg.ID]; exists {
		return fmt.Errorf("backend %q already configured", cfg.ID)
	}
	if _, known := r.drivers[cfg.Type]; !known {
		return fmt.Errorf("no driver registered for backend type %q", cfg.Type)
	}
	r.configs[cfg.ID] = cfg
	return nil
}

// Backend returns the backend with the given ID, constructing it on first
// request. Repeated calls return the same instance.
func (r *Registry) Backend(id string) (Backend, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if backend, exists := r.backends[id]; exists {
		return backend, nil
	}
	cfg, exists := r.configs[id]
	if !exists {
		return nil, fmt.Errorf("no backend configured with ID %q", id)
	}
	drv := r.drivers[cfg.Type]
	backend, err := drv(cfg, r.log)
	if err != nil {
		return nil, fmt.Errorf("error constructing %s backend %q: %w", cfg.Type, id, err)
	}
	r.backends[id] = backend
	r.log.Debugf("constructed %s backend %q", cfg.Type, id)
	return backend, nil
}

// DisconnectAll disconnects every constructed backend. Used at session
// shutdown.
func (r *Registry) DisconnectAll() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for id, backend := range r.backends {
		if backend.IsConnected() {
			backend.Disconnect()
			r.log.Infof("disconnected backend %q", id)
		}
	}
}

// TokenDriver is the Driver for the built-in hardware-token backend.
func TokenDriver(cfg *Config, log tern.Logger) (Backend, error) {
	if len(cfg.Key) > 0 {
		return NewSeededToken(cfg.ID, cfg.Key, log)
	}
	return NewToken(cfg.ID, log), nil
}

// RemoteDriver is the Driver for the built-in remote custodian backend.
func RemoteDriver(cfg *Config, log tern.Logger) (Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("remote backend %q requires an address", cfg.ID)
	}
	return NewRemote(cfg.ID, cfg.Addr, log), nil
}
