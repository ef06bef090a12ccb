// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

/*
Package oidcrp implements an OpenID Connect relying party: register one
or more OpenID Providers by issuer discovery, build authorization
redirect URLs (with state, nonce, and PKCE), exchange authorization
codes for tokens, refresh tokens, validate ID tokens, and call userinfo
and introspection.

# Registering a provider

Discovery and JWKS bootstrap happen asynchronously the moment a provider
is added; the returned handle is usable immediately; ready-ness is a
field you check, not a thing you wait on.

	reg := oidcrp.NewRegistry(ctx, oidcrp.RegistryOptions{})
	defer reg.Close()

	id, err := reg.AddProvider(oidcrp.ProviderConfig{
	    Name:           "keycloak",
	    ClientID:       "my-client",
	    ClientSecret:   "s3cr3t",
	    ConfigEndpoint: "https://idp.example.com/.well-known/openid-configuration",
	    LocalEndpoint:  "https://app.example.com/callback",
	    Scopes:         []string{"openid", "email"},
	})

# Driving the authorization-code flow

	info, err := reg.GetProviderInfo(id)
	url, err := reg.CreateRedirectURL(id, oidcrp.RedirectParams{
	    Scopes: []string{"openid", "email"},
	    State:  state,
	    Nonce:  nonce,
	    PKCE:   &oidcrp.PKCEParams{Verifier: verifier, Challenge: challenge, Method: oidcrp.PKCES256},
	})

	// ... redirect the user, receive "code" on the callback ...

	raw, err := reg.ExchangeCode(ctx, id, code, verifier)
	bundle, err := oidcrp.ExtractTokenMap(raw)
	bundle, err = reg.Validate(ctx, id, bundle, oidcrp.ExpectedNonce(nonce))

# Scope

This package is the provider registry and token/flow engine only. HTTP
transport primitives, persistent session storage, the host web
framework, configuration file parsing beyond the optional oidcrp/config
helper, the logging backend's sink, and CLI/release tooling are the
host's responsibility.
*/
package oidcrp
