// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/oidcrp/internal/backoffpolicy"
	"github.com/tomtom215/oidcrp/internal/httpclient"
	"github.com/tomtom215/oidcrp/internal/jwks"
	"github.com/tomtom215/oidcrp/internal/telemetry"
)

// providerState names the per-provider actor's state machine states
// (spec §5): Fetching-Config -> Fetching-Keys -> Ready, with Config-Failed
// and Keys-Failed as transient error sinks the retry loop climbs back out
// of rather than terminal states.
type providerState string

const (
	stateFetchingConfig providerState = "fetching_config"
	stateFetchingKeys   providerState = "fetching_keys"
	stateReady          providerState = "ready"
	stateConfigFailed   providerState = "config_failed"
	stateKeysFailed     providerState = "keys_failed"
)

// discoveryDoc is the subset of the OIDC discovery document
// (.well-known/openid-configuration, OIDC Discovery 1.0 §3) this engine
// consumes.
type discoveryDoc struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
}

// Provider is a single registered OpenID Provider: its configuration, its
// asynchronously-discovered metadata, and its JWKS cache. It implements
// suture.Service so a Registry's supervisor restarts it in isolation if
// its actor loop ever panics.
type Provider struct {
	id  ProviderID
	cfg ProviderConfig

	http *httpclient.Client
	log  zerolog.Logger

	mu    sync.RWMutex
	state providerState
	doc   discoveryDoc
	ready bool
	lastRefresh time.Time

	keys atomic.Pointer[jwks.Cache]

	// stateCh signals state transitions to any waiter (e.g. tests); it is
	// never required for correctness, only observability.
	stateCh chan providerState
}

// newProvider constructs a Provider in its initial state. Discovery and
// JWKS bootstrap happen once Serve is called by the owning supervisor.
func newProvider(id ProviderID, cfg ProviderConfig, httpClient *httpclient.Client, log zerolog.Logger) *Provider {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.JWKSUnknownKidInterval <= 0 {
		cfg.JWKSUnknownKidInterval = 10 * time.Second
	}
	if cfg.IatFutureSkew <= 0 {
		cfg.IatFutureSkew = 5 * time.Minute
	}
	return &Provider{
		id:      id,
		cfg:     cfg,
		http:    httpClient,
		log:     log.With().Str("provider", cfg.Name).Logger(),
		state:   stateFetchingConfig,
		stateCh: make(chan providerState, 1),
	}
}

// Serve runs the provider's bootstrap and then blocks, holding the actor
// alive for suture's lifecycle management. It never returns on its own
// once bootstrap succeeds; it returns only when ctx is canceled (clean
// shutdown, no restart) or not at all on crash (suture restarts it).
func (p *Provider) Serve(ctx context.Context) error {
	if err := p.bootstrapConfig(ctx); err != nil {
		return nil // ctx was canceled mid-retry; exit cleanly
	}
	if err := p.bootstrapKeys(ctx); err != nil {
		return nil
	}

	p.setState(stateReady)
	p.mu.Lock()
	p.ready = true
	p.lastRefresh = time.Now()
	p.mu.Unlock()

	<-ctx.Done()
	return nil
}

func (p *Provider) bootstrapConfig(ctx context.Context) error {
	p.setState(stateFetchingConfig)
	err := backoffpolicy.Retry(ctx, func() error {
		doc, err := p.fetchDiscovery(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.doc = *doc
		p.mu.Unlock()
		return nil
	}, func(err error, next time.Duration) {
		p.setState(stateConfigFailed)
		p.log.Warn().Err(err).Dur("retry_in", next).Msg("discovery fetch failed, retrying")
	})
	if err != nil {
		return err
	}

	uri := p.jwksURI()
	p.keys.Store(jwks.NewCache(uri, p.fetchJWKSBody, json.Unmarshal, p.cfg.JWKSUnknownKidInterval))
	return nil
}

func (p *Provider) bootstrapKeys(ctx context.Context) error {
	p.setState(stateFetchingKeys)
	return backoffpolicy.Retry(ctx, func() error {
		_, err := p.keys.Load().Refresh(ctx)
		if err != nil {
			telemetry.JWKSRefreshTotal.WithLabelValues(p.cfg.Name, "failure").Inc()
			return err
		}
		telemetry.JWKSRefreshTotal.WithLabelValues(p.cfg.Name, "success").Inc()
		return nil
	}, func(err error, next time.Duration) {
		p.setState(stateKeysFailed)
		p.log.Warn().Err(err).Dur("retry_in", next).Msg("jwks fetch failed, retrying")
	})
}

func (p *Provider) fetchDiscovery(ctx context.Context) (*discoveryDoc, error) {
	resp, err := p.http.Get(ctx, p.cfg.ConfigEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("oidcrp: fetch discovery document: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: resp.Body}
	}
	var doc discoveryDoc
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("%w: discovery document: %v", ErrParseError, err)
	}
	if doc.Issuer == "" || doc.TokenEndpoint == "" || doc.AuthorizationEndpoint == "" {
		return nil, fmt.Errorf("%w: discovery document missing required fields", ErrParseError)
	}
	return &doc, nil
}

func (p *Provider) fetchJWKSBody(ctx context.Context, uri string) ([]byte, error) {
	resp, err := p.http.Get(ctx, uri, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: resp.Body}
	}
	return resp.Body, nil
}

func (p *Provider) jwksURI() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.doc.JWKSURI
}

func (p *Provider) setState(s providerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	telemetry.ProviderStateTransitions.WithLabelValues(p.cfg.Name, string(s)).Inc()
	select {
	case p.stateCh <- s:
	default:
	}
}

// RefreshKeys forces a JWKS refresh, coalesced with any concurrent
// refresh already in flight (spec §4.1's public bootstrap/refresh
// contract).
func (p *Provider) RefreshKeys(ctx context.Context) error {
	cache := p.keys.Load()
	if cache == nil {
		return ErrProviderNotReady
	}
	_, err := cache.Refresh(ctx)
	if err != nil {
		telemetry.JWKSRefreshTotal.WithLabelValues(p.cfg.Name, "failure").Inc()
		return err
	}
	telemetry.JWKSRefreshTotal.WithLabelValues(p.cfg.Name, "success").Inc()
	return nil
}

// IsReady reports whether discovery and the initial JWKS fetch have
// both completed.
func (p *Provider) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// lookupKey resolves a kid against this provider's key cache, triggering
// a rate-limited refresh on miss (spec §4.5 item 3).
func (p *Provider) lookupKey(ctx context.Context, kid string) (interface{}, error) {
	cache := p.keys.Load()
	if cache == nil {
		return nil, ErrProviderNotReady
	}
	key, err := cache.Lookup(ctx, kid)
	if err != nil {
		return nil, err
	}
	return key.PublicKey, nil
}

// info builds the immutable ProviderInfo snapshot (spec §6).
func (p *Provider) info() ProviderInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keyCount := 0
	if cache := p.keys.Load(); cache != nil {
		keyCount = cache.Current().Len()
	}

	return ProviderInfo{
		ID:                        p.id,
		Name:                      p.cfg.Name,
		Description:               p.cfg.Description,
		ClientID:                  p.cfg.ClientID,
		ClientSecret:              p.cfg.ClientSecret,
		ConfigEndpoint:            p.cfg.ConfigEndpoint,
		LocalEndpoint:             p.cfg.LocalEndpoint,
		RequestScopes:             p.cfg.Scopes,
		Ready:                     p.ready,
		LastRefresh:               p.lastRefresh,
		Issuer:                    p.doc.Issuer,
		AuthorizationEndpoint:     p.doc.AuthorizationEndpoint,
		TokenEndpoint:             p.doc.TokenEndpoint,
		UserinfoEndpoint:          p.doc.UserinfoEndpoint,
		IntrospectionEndpoint:     p.doc.IntrospectionEndpoint,
		EndSessionEndpoint:        p.doc.EndSessionEndpoint,
		JWKSURI:                   p.doc.JWKSURI,
		TokenEndpointAuthMethods:  p.doc.TokenEndpointAuthMethodsSupported,
		IDTokenSigningAlgValues:   p.doc.IDTokenSigningAlgValuesSupported,
		ScopesSupported:           p.doc.ScopesSupported,
		JWKSKeyCount:              keyCount,
	}
}
