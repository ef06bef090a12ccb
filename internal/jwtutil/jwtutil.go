// Package jwtutil decodes and verifies compact JWS tokens, the "JWT
// utility" leaf component from spec §2. It never applies OIDC semantics
// (issuer/audience/nonce/exp) — that belongs to the validator, which owns
// the provider-specific rules from spec §4.5. This package only answers
// "is the signature valid, and what are the raw claims".
package jwtutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoneAlgRejected is returned when a token uses alg=none and the
// caller did not explicitly allow it.
var ErrNoneAlgRejected = errors.New("jwtutil: alg=none rejected")

// ErrAlgNotAllowed is returned when a token's alg is well-formed but not
// among the provider's advertised signing algorithms (spec §4.5 item 4).
var ErrAlgNotAllowed = errors.New("jwtutil: algorithm not allowed")

// ErrUnknownKey is returned when a token's kid does not resolve to any
// key in the provider's JWKS, even after the cache's single
// refresh-on-unknown-kid retry (spec §4.5 item 3).
var ErrUnknownKey = errors.New("jwtutil: unknown key id")

// KeyLookup resolves a kid to a public key (*rsa.PublicKey or
// *ecdsa.PublicKey). Implementations typically wrap a jwks.Cache.
type KeyLookup func(ctx context.Context, kid string) (interface{}, error)

// Decoded holds the raw (unverified or verified) parts of a JWT.
type Decoded struct {
	Header string
	Claims jwt.MapClaims
	Raw    string
}

// DecodeUnverified parses header and claims without checking the
// signature. Used by ExtractTokenMap, which must be able to read an
// id_token before a key set necessarily exists.
func DecodeUnverified(raw string) (*Decoded, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	token, _, err := parser.ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("jwtutil: decode: %w", err)
	}
	alg, _ := token.Header["alg"].(string)
	return &Decoded{Header: alg, Claims: claims, Raw: raw}, nil
}

// Verify checks the token's signature against a key resolved via lookup,
// restricting acceptable algorithms to allowedAlgs. alg=none is rejected
// unless allowNone is true (spec §4.5 item 4 — default reject). The
// algorithm and key-resolution checks are done in this package's own
// keyfunc, not via jwt.WithValidMethods, so their failures can be
// classified by the caller via errors.Is(err, ErrAlgNotAllowed) /
// errors.Is(err, ErrUnknownKey) instead of collapsing into one generic
// signature failure.
//
// Verify performs no claim validation beyond the signature and algorithm
// check; exp/iat/iss/aud/nonce rules live in the caller (the validator).
func Verify(ctx context.Context, raw string, lookup KeyLookup, allowedAlgs []string, allowNone bool) (*Decoded, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	allowed := make(map[string]bool, len(allowedAlgs))
	for _, a := range allowedAlgs {
		allowed[a] = true
	}

	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		alg, _ := t.Header["alg"].(string)
		if alg == "none" || alg == "" {
			if !allowNone {
				return nil, ErrNoneAlgRejected
			}
			return jwt.UnsafeAllowNoneSignatureType, nil
		}
		if len(allowed) > 0 && !allowed[alg] {
			return nil, fmt.Errorf("%w: %q", ErrAlgNotAllowed, alg)
		}

		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("jwtutil: token missing kid header")
		}
		key, err := lookup(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnknownKey, kid, err)
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("jwtutil: token invalid")
	}

	alg, _ := token.Header["alg"].(string)
	return &Decoded{Header: alg, Claims: claims, Raw: raw}, nil
}
