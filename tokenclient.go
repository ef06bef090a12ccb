// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oidcrp/internal/jwtutil"
	"github.com/tomtom215/oidcrp/internal/telemetry"
)

// rawTokenResponse mirrors the token endpoint's JSON body (RFC 6749 §5.1).
type rawTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`
}

// chooseAuthMethod picks the strongest method the OP advertised, in the
// strict no-downgrade order spec §4.4 requires: client_secret_basic over
// client_secret_post over none. A confidential client (non-empty secret)
// never falls back to none even if the OP lists it.
func chooseAuthMethod(supported []string, hasSecret bool) AuthMethod {
	if !hasSecret {
		return AuthMethodNone
	}
	if len(supported) == 0 {
		// OP didn't advertise; RFC 6749 default is client_secret_basic.
		return AuthMethodBasic
	}
	has := func(m AuthMethod) bool {
		for _, s := range supported {
			if s == string(m) {
				return true
			}
		}
		return false
	}
	switch {
	case has(AuthMethodBasic):
		return AuthMethodBasic
	case has(AuthMethodPost):
		return AuthMethodPost
	default:
		// A confidential client never sends its secret nowhere just
		// because the OP's advertised list omits basic/post; fall back
		// to basic rather than silently downgrading to none.
		return AuthMethodBasic
	}
}

func (p *Provider) applyClientAuth(form url.Values, headers map[string]string) {
	info := p.info()
	method := chooseAuthMethod(info.TokenEndpointAuthMethods, info.ClientSecret != "")

	switch method {
	case AuthMethodBasic:
		applyBasicAuth(headers, info.ClientID, info.ClientSecret)
	case AuthMethodPost:
		form.Set("client_id", info.ClientID)
		form.Set("client_secret", info.ClientSecret)
	default:
		form.Set("client_id", info.ClientID)
	}
}

// applyBasicAuth sets the RFC 6749 §2.3.1 Basic auth header directly,
// bypassing auth-method negotiation. Introspect uses this unconditionally
// (spec §4.4: "always client-authenticated via Basic") regardless of what
// the provider's token_endpoint_auth_methods_supported advertises.
func applyBasicAuth(headers map[string]string, clientID, clientSecret string) {
	creds := base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(clientID) + ":" + url.QueryEscape(clientSecret)))
	headers["Authorization"] = "Basic " + creds
}

// ExchangeCode performs the authorization_code grant (spec §4.4, RFC
// 6749 §4.1.3). verifier is the PKCE code_verifier matching the
// challenge sent in CreateRedirectURL's params; pass "" if PKCE wasn't
// used.
func (r *Registry) ExchangeCode(ctx context.Context, id ProviderID, code, verifier string) ([]byte, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	return p.exchangeCode(ctx, code, verifier)
}

func (p *Provider) exchangeCode(ctx context.Context, code, verifier string) ([]byte, error) {
	if !p.IsReady() {
		return nil, ErrProviderNotReady
	}
	info := p.info()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", info.LocalEndpoint)
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}

	headers := map[string]string{}
	p.applyClientAuth(form, headers)

	return p.doTokenRequest(ctx, "exchange", info.TokenEndpoint, form, headers)
}

// RefreshToken performs the refresh_token grant (RFC 6749 §6).
func (r *Registry) RefreshToken(ctx context.Context, id ProviderID, refreshToken string) ([]byte, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	return p.refreshToken(ctx, refreshToken)
}

func (p *Provider) refreshToken(ctx context.Context, refreshToken string) ([]byte, error) {
	if !p.IsReady() {
		return nil, ErrProviderNotReady
	}
	info := p.info()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	headers := map[string]string{}
	p.applyClientAuth(form, headers)

	return p.doTokenRequest(ctx, "refresh", info.TokenEndpoint, form, headers)
}

func (p *Provider) doTokenRequest(ctx context.Context, op, endpoint string, form url.Values, headers map[string]string) ([]byte, error) {
	start := time.Now()
	resp, err := p.http.PostForm(ctx, endpoint, headers, form)
	telemetry.TokenRequestDuration.WithLabelValues(p.cfg.Name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("oidcrp: %s request: %w", op, err)
	}
	if resp.StatusCode != 200 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: resp.Body}
	}
	return resp.Body, nil
}

// IntrospectionResult is the normalized subset of an RFC 7662
// introspection response this engine exposes.
type IntrospectionResult struct {
	Active    bool
	Subject   string
	Scope     string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

type rawIntrospection struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub"`
	Scope  string `json:"scope"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
	Iss    string `json:"iss"`
}

// Introspect calls the provider's introspection endpoint (RFC 7662) for
// token. Returns ErrNotFound-wrapped nil if the provider didn't
// advertise an introspection_endpoint.
func (r *Registry) Introspect(ctx context.Context, id ProviderID, token string) (*IntrospectionResult, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	return p.introspect(ctx, token)
}

func (p *Provider) introspect(ctx context.Context, token string) (*IntrospectionResult, error) {
	if !p.IsReady() {
		return nil, ErrProviderNotReady
	}
	info := p.info()
	if info.IntrospectionEndpoint == "" {
		return nil, fmt.Errorf("oidcrp: provider %q has no introspection_endpoint", info.Name)
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	headers := map[string]string{"Accept": "application/json"}
	applyBasicAuth(headers, info.ClientID, info.ClientSecret)

	body, err := p.doTokenRequest(ctx, "introspect", info.IntrospectionEndpoint, form, headers)
	if err != nil {
		return nil, err
	}

	var raw rawIntrospection
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: introspection response: %v", ErrParseError, err)
	}

	result := &IntrospectionResult{
		Active:  raw.Active,
		Subject: raw.Sub,
		Scope:   raw.Scope,
		Issuer:  raw.Iss,
	}
	if raw.Exp > 0 {
		result.ExpiresAt = time.Unix(raw.Exp, 0)
	}
	if raw.Iat > 0 {
		result.IssuedAt = time.Unix(raw.Iat, 0)
	}
	return result, nil
}

// ExtractTokenMap normalizes a raw token-endpoint JSON response body into
// a TokenBundle (spec §3, §4.5's "tagged union with a single
// normalization step"). The ID token, if present, is decoded but NOT
// signature-verified here — call Validate for that.
func ExtractTokenMap(raw []byte) (*TokenBundle, error) {
	var resp rawTokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: token response: %v", ErrParseError, err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrParseError)
	}

	bundle := &TokenBundle{
		Access:    &AccessToken{Token: resp.AccessToken},
		Scope:     resp.Scope,
		TokenType: resp.TokenType,
	}
	if resp.ExpiresIn > 0 {
		bundle.Access.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.RefreshToken != "" {
		bundle.Refresh = &RefreshToken{Token: resp.RefreshToken}
	}
	if resp.IDToken != "" {
		decoded, err := decodeIDTokenUnverified(resp.IDToken)
		if err != nil {
			return nil, err
		}
		bundle.ID = decoded
	}
	return bundle, nil
}

func decodeIDTokenUnverified(raw string) (*IDToken, error) {
	decoded, err := jwtutil.DecodeUnverified(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: id_token: %v", ErrParseError, err)
	}
	return &IDToken{Token: raw, Claims: decoded.Claims, Header: decoded.Header}, nil
}
