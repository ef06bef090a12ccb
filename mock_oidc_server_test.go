// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// mockOIDCServer is a minimal OpenID Provider backed by httptest.Server,
// serving discovery, JWKS, token, and userinfo for the flow tests below.
// No Docker daemon required, unlike a testcontainers-based OP.
type mockOIDCServer struct {
	Server       *httptest.Server
	Issuer       string
	ClientID     string
	ClientSecret string

	privateKey *rsa.PrivateKey
	keyID      string

	authMethodsSupported []string
	tokenExpiresIn       time.Duration

	mu            sync.Mutex
	authCodes     map[string]mockAuthCode
	subject       string
	extraIDClaims map[string]interface{}
	audOverride   string
}

type mockAuthCode struct {
	redirectURI string
	nonce       string
	used        bool
}

func newMockOIDCServer(t interface{ Helper() }, clientID, clientSecret string) *mockOIDCServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	m := &mockOIDCServer{
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		privateKey:           key,
		keyID:                "test-key-1",
		authMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		tokenExpiresIn:       time.Hour,
		authCodes:            make(map[string]mockAuthCode),
		subject:              "user-123",
		extraIDClaims:        map[string]interface{}{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", m.handleDiscovery)
	mux.HandleFunc("/jwks", m.handleJWKS)
	mux.HandleFunc("/authorize", m.handleAuthorize)
	mux.HandleFunc("/token", m.handleToken)
	mux.HandleFunc("/userinfo", m.handleUserinfo)
	mux.HandleFunc("/introspect", m.handleIntrospect)

	m.Server = httptest.NewServer(mux)
	m.Issuer = m.Server.URL
	return m
}

func (m *mockOIDCServer) Close() { m.Server.Close() }

func (m *mockOIDCServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	doc := map[string]interface{}{
		"issuer":                                m.Issuer,
		"authorization_endpoint":                m.Issuer + "/authorize",
		"token_endpoint":                        m.Issuer + "/token",
		"userinfo_endpoint":                     m.Issuer + "/userinfo",
		"introspection_endpoint":                m.Issuer + "/introspect",
		"jwks_uri":                              m.Issuer + "/jwks",
		"scopes_supported":                      []string{"openid", "email", "profile"},
		"token_endpoint_auth_methods_supported": m.authMethodsSupported,
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (m *mockOIDCServer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	n := base64.RawURLEncoding.EncodeToString(m.privateKey.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(m.privateKey.PublicKey.E)).Bytes())
	jwks := map[string]interface{}{
		"keys": []map[string]interface{}{
			{"kty": "RSA", "kid": m.keyID, "use": "sig", "alg": "RS256", "n": n, "e": e},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}

func (m *mockOIDCServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "not used in tests", http.StatusNotImplemented)
}

// issueCode registers an authorization code the token endpoint will accept
// exactly once, standing in for the browser-driven /authorize step tests
// don't need to exercise over HTTP.
func (m *mockOIDCServer) issueCode(code, redirectURI, nonce string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authCodes[code] = mockAuthCode{redirectURI: redirectURI, nonce: nonce}
}

func (m *mockOIDCServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !m.authenticateClient(r) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
		return
	}

	switch r.FormValue("grant_type") {
	case "authorization_code":
		m.handleAuthorizationCodeGrant(w, r)
	case "refresh_token":
		m.handleRefreshTokenGrant(w, r)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
	}
}

func (m *mockOIDCServer) authenticateClient(r *http.Request) bool {
	if user, pass, ok := r.BasicAuth(); ok {
		return user == m.ClientID && pass == m.ClientSecret
	}
	if r.FormValue("client_id") != m.ClientID {
		return false
	}
	if m.ClientSecret == "" {
		return true
	}
	return r.FormValue("client_secret") == m.ClientSecret
}

func (m *mockOIDCServer) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	m.mu.Lock()
	entry, ok := m.authCodes[code]
	if ok {
		entry.used = true
		m.authCodes[code] = entry
	}
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	idToken, err := m.signIDToken(entry.nonce, time.Now().Add(m.tokenExpiresIn))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeTokenResponse(w, idToken)
}

func (m *mockOIDCServer) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("refresh_token") == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}
	idToken, err := m.signIDToken("", time.Now().Add(m.tokenExpiresIn))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.writeTokenResponse(w, idToken)
}

func (m *mockOIDCServer) writeTokenResponse(w http.ResponseWriter, idToken string) {
	resp := map[string]interface{}{
		"access_token":  "access-" + m.subject,
		"token_type":    "Bearer",
		"expires_in":    int(m.tokenExpiresIn.Seconds()),
		"refresh_token": "refresh-" + m.subject,
		"id_token":      idToken,
		"scope":         "openid email",
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *mockOIDCServer) signIDToken(nonce string, expiry time.Time) (string, error) {
	now := time.Now()
	aud := m.ClientID
	if m.audOverride != "" {
		aud = m.audOverride
	}
	claims := jwt.MapClaims{
		"iss": m.Issuer,
		"sub": m.subject,
		"aud": aud,
		"exp": expiry.Unix(),
		"iat": now.Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	for k, v := range m.extraIDClaims {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = m.keyID
	return token.SignedString(m.privateKey)
}

func (m *mockOIDCServer) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		w.Header().Set("WWW-Authenticate", "Bearer")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"sub":   m.subject,
		"email": "user@example.com",
	})
}

func (m *mockOIDCServer) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"active": r.FormValue("token") != "",
		"sub":    m.subject,
		"scope":  "openid email",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
}
