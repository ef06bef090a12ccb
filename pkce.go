// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// GeneratePKCEVerifier returns a cryptographically random code verifier:
// 32 bytes of entropy, base64url-encoded to 43 characters, within RFC
// 7636's 43-128 character range. The library only transports a verifier
// (spec §3); generating one is a convenience, not a requirement.
func GeneratePKCEVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oidcrp: generate pkce verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GeneratePKCEChallenge derives the S256 code_challenge from verifier
// (RFC 7636 §4.2).
func GeneratePKCEChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewPKCEParams generates a fresh verifier/challenge pair using S256.
func NewPKCEParams() (*PKCEParams, error) {
	verifier, err := GeneratePKCEVerifier()
	if err != nil {
		return nil, err
	}
	return &PKCEParams{
		Verifier:  verifier,
		Challenge: GeneratePKCEChallenge(verifier),
		Method:    PKCES256,
	}, nil
}

// GenerateState returns a cryptographically random state parameter.
func GenerateState() (string, error) {
	return randomURLSafe()
}

// GenerateNonce returns a cryptographically random nonce for ID token
// replay protection (OIDC Core §3.1.2.1).
func GenerateNonce() (string, error) {
	return randomURLSafe()
}

func randomURLSafe() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oidcrp: generate random value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
