// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

// Command oidcrp-demo is a minimal host application exercising the
// authorization-code flow end to end against a single configured
// provider: it serves /login (redirect to the OP) and /callback
// (exchange + validate + userinfo), logging each step to the console.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tomtom215/oidcrp"
	oidcconfig "github.com/tomtom215/oidcrp/config"
	"github.com/tomtom215/oidcrp/internal/telemetry"
)

func main() {
	logger := telemetry.NewConsole(os.Stdout, zerolog.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := oidcconfig.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load provider configuration")
	}
	if len(providers) == 0 {
		logger.Fatal().Msg("no providers configured; set OIDCRP_CONFIG_PATH or place oidcrp.yaml")
	}

	reg := oidcrp.NewRegistry(ctx, oidcrp.RegistryOptions{
		Logger:         logger,
		RequestTimeout: 30 * time.Second,
	})
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn().Err(err).Msg("registry shutdown")
		}
	}()

	id, err := reg.AddProvider(providers[0])
	if err != nil {
		logger.Fatal().Err(err).Msg("register provider")
	}

	s := newDemoSession(reg, id, logger)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	router.Get("/login", s.handleLogin)
	router.Get("/callback", s.handleCallback)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		info, err := reg.GetProviderInfo(id)
		if err != nil || !info.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	logger.Info().Str("addr", srv.Addr).Msg("starting demo server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("http server")
	}
}

// demoSession keeps in-memory state/nonce/verifier bindings keyed by
// state, standing in for the persistent session storage spec.md treats
// as the host's responsibility.
type demoSession struct {
	reg    *oidcrp.Registry
	id     oidcrp.ProviderID
	log    zerolog.Logger
	mu     sync.Mutex
	states map[string]pendingAuth
}

type pendingAuth struct {
	verifier string
	nonce    string
}

func newDemoSession(reg *oidcrp.Registry, id oidcrp.ProviderID, log zerolog.Logger) *demoSession {
	return &demoSession{reg: reg, id: id, log: log, states: make(map[string]pendingAuth)}
}

func (s *demoSession) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := oidcrp.GenerateState()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	nonce, err := oidcrp.GenerateNonce()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkce, err := oidcrp.NewPKCEParams()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	url, err := s.reg.CreateRedirectURL(s.id, oidcrp.RedirectParams{
		State: state,
		Nonce: nonce,
		PKCE:  pkce,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("create redirect url")
		http.Error(w, "provider not ready", http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	s.states[state] = pendingAuth{verifier: pkce.Verifier, nonce: nonce}
	s.mu.Unlock()

	http.Redirect(w, r, url, http.StatusFound)
}

func (s *demoSession) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	s.mu.Lock()
	pending, ok := s.states[state]
	delete(s.states, state)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown or expired state", http.StatusBadRequest)
		return
	}

	raw, err := s.reg.ExchangeCode(ctx, s.id, code, pending.verifier)
	if err != nil {
		s.log.Error().Err(err).Msg("exchange code")
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	bundle, err := oidcrp.ExtractTokenMap(raw)
	if err != nil {
		s.log.Error().Err(err).Msg("extract token map")
		http.Error(w, "malformed token response", http.StatusBadGateway)
		return
	}

	bundle, err = s.reg.Validate(ctx, s.id, bundle, oidcrp.ExpectedNonce(pending.nonce))
	if err != nil {
		s.log.Error().Err(err).Msg("validate id token")
		http.Error(w, "id token validation failed", http.StatusUnauthorized)
		return
	}

	claims, err := s.reg.UserInfoForBundle(ctx, s.id, bundle)
	if err != nil {
		s.log.Warn().Err(err).Msg("userinfo request failed, continuing with id token claims only")
		claims = bundle.ID.Claims
	}

	fmt.Fprintf(w, "signed in as %v\n", claims["sub"])
}
