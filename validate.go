// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/oidcrp/internal/jwtutil"
	"github.com/tomtom215/oidcrp/internal/telemetry"
)

// ValidateOption customizes a single Validate call.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	expectedNonce   string
	checkNonce      bool
	anyNonce        bool
	expectedSubject string
}

// AnyNonce is the sentinel passed to ExpectedNonce to require only that
// a nonce claim be present, without checking its value (spec §4.5 item
// 7's "any").
const AnyNonce = "\x00oidcrp-any-nonce\x00"

// ExpectedNonce requires the ID token's nonce claim to equal nonce (OIDC
// Core §3.1.3.7 step 11). Pass AnyNonce to require only presence; if
// this option is omitted entirely, nonce is not checked at all.
func ExpectedNonce(nonce string) ValidateOption {
	return func(o *validateOptions) {
		o.checkNonce = true
		if nonce == AnyNonce {
			o.anyNonce = true
			return
		}
		o.expectedNonce = nonce
	}
}

// ExpectedSubject requires the ID token's sub claim to equal subject
// (used when re-validating a refreshed ID token against the original).
func ExpectedSubject(subject string) ValidateOption {
	return func(o *validateOptions) { o.expectedSubject = subject }
}

// algList is accepted as jwt's "valid methods" list; RS256 is the
// near-universal default and the others cover the common EC/HMAC
// deployments OIDC_Core §3.1.3.7 step 1 allows.
var defaultSigningAlgs = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"PS256", "PS384", "PS512",
}

// Validate runs the ID token validation checklist from OIDC Core
// §3.1.3.7 (spec §4.5): signature, issuer, audience, expiry, iat
// freshness, nonce, and algorithm. On success it returns bundle
// unchanged (a convenience for call chaining); on failure it returns a
// *ValidationError with a stable Kind.
func (r *Registry) Validate(ctx context.Context, id ProviderID, bundle *TokenBundle, opts ...ValidateOption) (*TokenBundle, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	return p.validate(ctx, bundle, opts...)
}

func (p *Provider) validate(ctx context.Context, bundle *TokenBundle, opts ...ValidateOption) (*TokenBundle, error) {
	if bundle == nil || bundle.ID == nil {
		return nil, validationErr(KindMalformed, fmt.Errorf("no id_token present"))
	}
	if !p.IsReady() {
		return nil, ErrProviderNotReady
	}

	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	info := p.info()

	algs := info.IDTokenSigningAlgValues
	if len(algs) == 0 {
		algs = defaultSigningAlgs
	}

	decoded, err := jwtutil.Verify(ctx, bundle.ID.Token, p.lookupKeyForJWT, algs, p.cfg.AllowNoneAlg)
	if err != nil {
		kind := classifyVerifyError(err)
		telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, string(kind)).Inc()
		return nil, validationErr(kind, err)
	}

	if err := checkIssuer(decoded.Claims, info.Issuer); err != nil {
		telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, string(KindBadIssuer)).Inc()
		return nil, err
	}
	if err := checkAudience(decoded.Claims, info.ClientID); err != nil {
		telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, string(KindBadAudience)).Inc()
		return nil, err
	}
	if err := checkTimes(decoded.Claims, p.cfg.ClockSkew, p.cfg.IatFutureSkew); err != nil {
		kind := KindExpired
		var ve *ValidationError
		if asValidationError(err, &ve) {
			kind = ve.Kind
		}
		telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, string(kind)).Inc()
		return nil, err
	}
	if o.checkNonce {
		if err := checkNonce(decoded.Claims, o.expectedNonce, o.anyNonce); err != nil {
			telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, string(KindBadNonce)).Inc()
			return nil, err
		}
	}
	if o.expectedSubject != "" {
		if sub, _ := decoded.Claims["sub"].(string); sub != o.expectedSubject {
			telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, string(KindMalformed)).Inc()
			return nil, validationErr(KindMalformed, fmt.Errorf("sub mismatch: got %q want %q", sub, o.expectedSubject))
		}
	}

	telemetry.ValidationOutcomes.WithLabelValues(p.cfg.Name, "").Inc()
	bundle.ID.Claims = decoded.Claims
	return bundle, nil
}

func (p *Provider) lookupKeyForJWT(ctx context.Context, kid string) (interface{}, error) {
	return p.lookupKey(ctx, kid)
}

func classifyVerifyError(err error) ValidationErrorKind {
	switch {
	case errors.Is(err, jwtutil.ErrNoneAlgRejected), errors.Is(err, jwtutil.ErrAlgNotAllowed):
		return KindBadAlgorithm
	case errors.Is(err, jwtutil.ErrUnknownKey):
		return KindUnknownKey
	default:
		return KindBadSignature
	}
}

func checkIssuer(claims map[string]interface{}, issuer string) error {
	iss, _ := claims["iss"].(string)
	if iss == "" || iss != issuer {
		return validationErr(KindBadIssuer, fmt.Errorf("iss %q does not match provider issuer %q", iss, issuer))
	}
	return nil
}

// checkAudience accepts either a single string aud or an array (OIDC
// Core §2), and requires azp to equal the client id when aud contains
// more than one value (§3.1.3.7 step 6).
func checkAudience(claims map[string]interface{}, clientID string) error {
	var auds []string
	switch v := claims["aud"].(type) {
	case string:
		auds = []string{v}
	case []interface{}:
		for _, a := range v {
			if s, ok := a.(string); ok {
				auds = append(auds, s)
			}
		}
	}

	found := false
	for _, a := range auds {
		if a == clientID {
			found = true
			break
		}
	}
	if !found {
		return validationErr(KindBadAudience, fmt.Errorf("aud %v does not contain client_id %q", auds, clientID))
	}

	if len(auds) > 1 {
		azp, _ := claims["azp"].(string)
		if azp != clientID {
			return validationErr(KindBadAudience, fmt.Errorf("multiple audiences require matching azp, got %q", azp))
		}
	}
	return nil
}

func checkTimes(claims map[string]interface{}, clockSkew, iatFutureSkew time.Duration) error {
	now := time.Now()

	exp, ok := numericClaim(claims, "exp")
	if !ok {
		return validationErr(KindMalformed, fmt.Errorf("missing exp claim"))
	}
	if now.After(time.Unix(exp, 0).Add(clockSkew)) {
		return validationErr(KindExpired, fmt.Errorf("token expired at %v", time.Unix(exp, 0)))
	}

	if nbf, ok := numericClaim(claims, "nbf"); ok {
		if now.Before(time.Unix(nbf, 0).Add(-clockSkew)) {
			return validationErr(KindNotYetValid, fmt.Errorf("token not valid until %v", time.Unix(nbf, 0)))
		}
	}

	iat, ok := numericClaim(claims, "iat")
	if !ok {
		return validationErr(KindMalformed, fmt.Errorf("missing iat claim"))
	}
	if time.Unix(iat, 0).After(now.Add(iatFutureSkew)) {
		return validationErr(KindNotYetValid, fmt.Errorf("iat %v is too far in the future", time.Unix(iat, 0)))
	}
	return nil
}

func checkNonce(claims map[string]interface{}, expected string, anyNonce bool) error {
	nonce, _ := claims["nonce"].(string)
	if anyNonce {
		if nonce == "" {
			return validationErr(KindBadNonce, fmt.Errorf("nonce claim absent"))
		}
		return nil
	}
	if nonce != expected {
		return validationErr(KindBadNonce, fmt.Errorf("nonce mismatch"))
	}
	return nil
}

// numericClaim reads a JSON numeric claim. golang-jwt decodes MapClaims
// via encoding/json without UseNumber, so timestamps arrive as float64.
func numericClaim(claims map[string]interface{}, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func asValidationError(err error, target **ValidationError) bool {
	ve, ok := err.(*ValidationError)
	if !ok {
		return false
	}
	*target = ve
	return true
}
