// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oidcrp/internal/telemetry"
)

// UserInfo calls the provider's userinfo_endpoint (OIDC Core §5.3) with
// accessToken as a Bearer credential, returning the claims as a map.
// expectedSubject, if non-empty, must match the response's sub claim or
// ErrBadSubject is returned (OIDC Core §5.3.2: "the sub Claim in the
// UserInfo Response MUST be verified to exactly match").
func (r *Registry) UserInfo(ctx context.Context, id ProviderID, accessToken string, expectedSubject string) (map[string]interface{}, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	return p.userInfo(ctx, accessToken, expectedSubject)
}

// UserInfoForBundle is a convenience wrapper that derives the access
// token and expected subject from a validated TokenBundle.
func (r *Registry) UserInfoForBundle(ctx context.Context, id ProviderID, bundle *TokenBundle) (map[string]interface{}, error) {
	if bundle == nil || bundle.Access == nil {
		return nil, fmt.Errorf("oidcrp: userinfo: bundle has no access token")
	}
	var expectedSubject string
	if bundle.ID != nil {
		expectedSubject, _ = bundle.ID.Claims["sub"].(string)
	}
	return r.UserInfo(ctx, id, bundle.Access.Token, expectedSubject)
}

func (p *Provider) userInfo(ctx context.Context, accessToken, expectedSubject string) (map[string]interface{}, error) {
	if !p.IsReady() {
		return nil, ErrProviderNotReady
	}
	info := p.info()
	if info.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("oidcrp: provider %q has no userinfo_endpoint", info.Name)
	}

	start := time.Now()
	resp, err := p.http.Get(ctx, info.UserinfoEndpoint, map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Accept":        "application/json",
	})
	telemetry.UserInfoRequestDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("oidcrp: userinfo request: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: resp.Body}
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(resp.Body, &claims); err != nil {
		return nil, fmt.Errorf("%w: userinfo response: %v", ErrParseError, err)
	}

	if expectedSubject != "" {
		sub, _ := claims["sub"].(string)
		if sub != expectedSubject {
			return nil, ErrBadSubject
		}
	}
	return claims, nil
}
