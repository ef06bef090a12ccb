// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"net/url"
	"strings"
)

// RedirectParams are the caller-supplied, per-request parts of an
// authorization redirect URL (spec §4.3). State, nonce, and PKCE are the
// caller's responsibility to generate, store, and later validate; this
// library only assembles the URL (spec §3's "transports, doesn't own").
type RedirectParams struct {
	// Scopes overrides the provider's configured default scopes when
	// non-empty.
	Scopes []string

	// State is echoed back on the callback for CSRF protection.
	State string

	// Nonce is echoed inside the ID token for replay protection. Empty
	// means no nonce parameter is sent.
	Nonce string

	// PKCE, if set, adds code_challenge/code_challenge_method.
	PKCE *PKCEParams

	// ExtraParams are added verbatim (e.g. prompt, login_hint, acr_values).
	ExtraParams map[string]string
}

// CreateRedirectURL builds the authorization_endpoint URL for id (spec
// §4.3). It returns ErrProviderNotReady until discovery has completed,
// since the authorization endpoint isn't known before then.
func (r *Registry) CreateRedirectURL(id ProviderID, params RedirectParams) (string, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return "", err
	}
	return p.createRedirectURL(params)
}

func (p *Provider) createRedirectURL(params RedirectParams) (string, error) {
	if !p.IsReady() {
		return "", ErrProviderNotReady
	}

	info := p.info()
	if info.AuthorizationEndpoint == "" {
		return "", ErrProviderNotReady
	}

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = info.RequestScopes
	}

	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", info.ClientID)
	v.Set("redirect_uri", info.LocalEndpoint)
	if len(scopes) > 0 {
		v.Set("scope", strings.Join(scopes, " "))
	}
	if params.State != "" {
		v.Set("state", params.State)
	}
	if params.Nonce != "" {
		v.Set("nonce", params.Nonce)
	}
	if params.PKCE != nil {
		v.Set("code_challenge", params.PKCE.Challenge)
		method := params.PKCE.Method
		if method == "" {
			method = PKCES256
		}
		v.Set("code_challenge_method", string(method))
	}
	for k, val := range params.ExtraParams {
		v.Set(k, val)
	}

	sep := "?"
	if strings.Contains(info.AuthorizationEndpoint, "?") {
		sep = "&"
	}
	return info.AuthorizationEndpoint + sep + v.Encode(), nil
}
