// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/oidcrp/internal/httpclient"
	"github.com/tomtom215/oidcrp/internal/telemetry"
)

// RegistryOptions configures a Registry. The zero value is usable: a
// disabled logger, a default *http.Client, and suture's production
// defaults (spec §10.1/§10.2).
type RegistryOptions struct {
	// Logger receives the engine's structured logs. Defaults to a
	// disabled logger — a library must not impose a sink on its host.
	Logger zerolog.Logger

	// HTTPClient is shared by every provider's discovery/JWKS/token
	// calls. Defaults to &http.Client{}.
	HTTPClient *http.Client

	// RequestTimeout is the per-call deadline applied when a caller's
	// context carries none. Defaults to 30s.
	RequestTimeout time.Duration

	// SupervisorFailureThreshold/Decay/Backoff tune the root
	// suture.Supervisor's restart behavior. Zero values take suture's
	// own defaults.
	SupervisorFailureThreshold float64
	SupervisorFailureDecay     float64
	SupervisorFailureBackoff   time.Duration
}

// Registry holds every provider registered in this process. Discovery
// and JWKS bootstrap run as supervised background actors (spec §5);
// registry operations themselves never block on network I/O.
type Registry struct {
	opts RegistryOptions
	http *httpclient.Client
	log  zerolog.Logger

	sup *suture.Supervisor

	mu        sync.RWMutex
	providers map[ProviderID]*Provider
	tokens    map[ProviderID]suture.ServiceToken

	modules *ClientModuleRegistry

	cancel context.CancelFunc
	done   <-chan error
}

// NewRegistry creates a Registry and starts its supervisor tree in the
// background, tied to ctx (spec §5: "registry owns a root supervisor").
// Cancel ctx, or call Close, to shut every provider actor down.
func NewRegistry(ctx context.Context, opts RegistryOptions) *Registry {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	slogger := telemetry.NewSlogLogger(opts.Logger)
	spec := suture.Spec{
		EventHook:        sutureslog.Handler{Logger: slogger}.MustHook(),
		FailureThreshold: opts.SupervisorFailureThreshold,
		FailureDecay:     opts.SupervisorFailureDecay,
		FailureBackoff:   opts.SupervisorFailureBackoff,
	}

	runCtx, cancel := context.WithCancel(ctx)
	sup := suture.New("oidcrp", spec)

	r := &Registry{
		opts:      opts,
		http:      httpclient.New(opts.HTTPClient, opts.RequestTimeout),
		log:       opts.Logger,
		sup:       sup,
		providers: make(map[ProviderID]*Provider),
		tokens:    make(map[ProviderID]suture.ServiceToken),
		modules:   newClientModuleRegistry(),
		cancel:    cancel,
	}
	r.done = sup.ServeBackground(runCtx)
	return r
}

// AddProvider registers a new provider and starts its discovery/JWKS
// bootstrap actor. The returned id is generated; use AddProviderWithID
// to supply your own (spec §4.2 — ErrIDAlreadyUsed if it collides).
func (r *Registry) AddProvider(cfg ProviderConfig) (ProviderID, error) {
	return r.AddProviderWithID(uuid.New(), cfg)
}

// AddProviderWithID registers cfg under a caller-chosen id.
func (r *Registry) AddProviderWithID(id ProviderID, cfg ProviderConfig) (ProviderID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; exists {
		return ProviderID{}, ErrIDAlreadyUsed
	}

	p := newProvider(id, cfg, r.http, r.log)
	token := r.sup.Add(p)

	r.providers[id] = p
	r.tokens[id] = token
	return id, nil
}

// RemoveProvider stops a provider's actor and drops it from the
// registry.
func (r *Registry) RemoveProvider(id ProviderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if err := r.sup.Remove(token); err != nil {
		return err
	}
	delete(r.providers, id)
	delete(r.tokens, id)
	return nil
}

// GetByID returns the provider registered under id.
func (r *Registry) GetByID(id ProviderID) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// GetProviderInfo returns the immutable snapshot of a registered
// provider's config and discovered metadata (spec §6).
func (r *Registry) GetProviderInfo(id ProviderID) (ProviderInfo, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return ProviderInfo{}, err
	}
	return p.info(), nil
}

// FindByIssuer returns the id of the provider whose discovered issuer
// matches iss, for resolving which provider produced a given token when
// several are registered (spec §4.2: "linear scan over ready providers").
// A provider mid-bootstrap already has a discovered issuer before it's
// ready; it stays invisible to issuer lookup until then.
func (r *Registry) FindByIssuer(iss string) (ProviderID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, p := range r.providers {
		info := p.info()
		if !info.Ready {
			continue
		}
		if info.Issuer == iss {
			return id, nil
		}
	}
	return ProviderID{}, ErrNotFound
}

// List returns a snapshot of every registered provider's info.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.info())
	}
	return out
}

// Modules returns the client-module plugin registry (spec §4.7).
func (r *Registry) Modules() *ClientModuleRegistry {
	return r.modules
}

// Close stops every provider actor and the supervisor tree, waiting for
// shutdown to complete.
func (r *Registry) Close() error {
	r.cancel()
	return <-r.done
}
