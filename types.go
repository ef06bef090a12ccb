// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"time"

	"github.com/google/uuid"
)

// ProviderID uniquely identifies a registered provider. It is opaque and
// binary, per spec §3 — a uuid.UUID satisfies both directly.
type ProviderID = uuid.UUID

// PKCEMethod is the code_challenge_method for PKCE (RFC 7636).
type PKCEMethod string

const (
	PKCES256  PKCEMethod = "S256"
	PKCEPlain PKCEMethod = "plain"
)

// PKCEParams carries a PKCE verifier/challenge pair. The verifier is
// produced by the host (e.g. via GeneratePKCEVerifier); this library only
// transports it — spec §3: "the library only transports it."
type PKCEParams struct {
	Verifier  string
	Challenge string
	Method    PKCEMethod
}

// ProviderConfig is the host-supplied configuration for a provider,
// spec §3's "Configuration attributes".
type ProviderConfig struct {
	// Name is a short, human-readable label for the provider.
	Name string `validate:"required"`
	// Description is a free-form note about the provider.
	Description string

	ClientID     string `validate:"required"`
	ClientSecret string

	// ConfigEndpoint is the discovery document URL
	// (.../.well-known/openid-configuration).
	ConfigEndpoint string `validate:"required,url"`
	// LocalEndpoint is this application's redirect_uri.
	LocalEndpoint string `validate:"required,url"`

	// Scopes are the default request scopes used when CreateRedirectURL
	// is called without an explicit scope list.
	Scopes []string

	// AllowNoneAlg permits an unsigned ID token (alg=none). Spec §4.5
	// item 4: default false — reject none unless the client is
	// explicitly public and this is set.
	AllowNoneAlg bool

	// ClockSkew is the leeway applied to exp (default 0, spec §4.5 item 5).
	ClockSkew time.Duration

	// IatFutureSkew bounds how far into the future iat may be before
	// being rejected (default 5 minutes, spec §4.5 item 6).
	IatFutureSkew time.Duration

	// JWKSUnknownKidInterval rate-limits JWKS refreshes triggered by an
	// unrecognized kid (default 10s, spec §3).
	JWKSUnknownKidInterval time.Duration

	// RequestTimeout bounds each HTTP call this provider's actor and
	// client operations make (default 30s, spec §5).
	RequestTimeout time.Duration
}

// ProviderInfo is the immutable snapshot returned by GetProviderInfo
// (spec §6's "Provider info map").
type ProviderInfo struct {
	ID          ProviderID
	Name        string
	Description string

	ClientID     string
	ClientSecret string

	ConfigEndpoint string
	LocalEndpoint  string
	RequestScopes  []string

	Ready       bool
	LastRefresh time.Time

	Issuer                         string
	AuthorizationEndpoint          string
	TokenEndpoint                  string
	UserinfoEndpoint               string
	IntrospectionEndpoint          string
	EndSessionEndpoint             string
	JWKSURI                        string
	TokenEndpointAuthMethods       []string
	IDTokenSigningAlgValues        []string
	ScopesSupported                []string

	// JWKSKeyCount is the number of keys currently cached for this
	// provider. Exposed instead of the raw key set — the wire material
	// itself has no use to a host beyond "do we have keys".
	JWKSKeyCount int
}

// AuthMethod is a token-endpoint client authentication method
// (spec §4.4).
type AuthMethod string

const (
	AuthMethodBasic AuthMethod = "client_secret_basic"
	AuthMethodPost  AuthMethod = "client_secret_post"
	AuthMethodNone  AuthMethod = "none"
)

// IDToken is the decoded ID token half of a TokenBundle.
type IDToken struct {
	Token  string
	Claims map[string]interface{}
	Header string // alg, kept for diagnostics
}

// AccessToken is the access token half of a TokenBundle.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time // zero if the provider didn't send expires_in
}

// RefreshToken is the refresh token half of a TokenBundle, if issued.
type RefreshToken struct {
	Token string
}

// TokenBundle is the normalized result of ExtractTokenMap (spec §3,
// §4.5) — the "tagged union with a single normalization step" spec §9
// asks for so variant handling doesn't leak into every call site.
type TokenBundle struct {
	ID        *IDToken
	Access    *AccessToken
	Refresh   *RefreshToken
	Scope     string
	TokenType string
}
