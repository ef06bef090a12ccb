// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import (
	"errors"
	"fmt"

	"github.com/tomtom215/oidcrp/internal/httpclient"
)

// Registry/provider-lookup errors (spec §4.2, §6).
var (
	// ErrIDAlreadyUsed is returned by AddProvider when the caller-supplied
	// id is already registered.
	ErrIDAlreadyUsed = errors.New("oidcrp: provider id already used")

	// ErrNotFound is returned by FindByIssuer/GetByID when no matching
	// provider exists.
	ErrNotFound = errors.New("oidcrp: provider not found")

	// ErrProviderNotReady is returned by CreateRedirectURL (and any
	// operation requiring discovered endpoints) when the provider's
	// bootstrap hasn't completed. Spec §9 fixes the spelling as
	// "provider_not_ready", not the "provider_no_ready" typo found in one
	// of the source's type declarations.
	ErrProviderNotReady = errors.New("oidcrp: provider not ready")
)

// Flow/transport errors (spec §7).
var (
	// ErrTimeout is returned when an HTTP operation exceeds its deadline.
	// It is httpclient's own sentinel re-exported here so every
	// HTTP-backed operation (ExchangeCode, Introspect, UserInfo, discovery
	// and JWKS fetches, ...) surfaces the same comparable error.
	ErrTimeout = httpclient.ErrTimeout

	// ErrParseError is returned when a response body cannot be parsed.
	ErrParseError = errors.New("oidcrp: parse error")

	// ErrBadSubject is returned by UserInfo when the returned sub claim
	// does not match the expected subject (spec §4.6).
	ErrBadSubject = errors.New("oidcrp: bad subject")
)

// HTTPError wraps a non-200 response from an OP endpoint, carrying the
// status and body for the caller to inspect (spec §4.4, §7
// http_error(status, body)).
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("oidcrp: http error: status %d: %s", e.Status, truncate(e.Body, 256))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ValidationErrorKind enumerates the ID token validation failure kinds
// from spec §4.5/§7.
type ValidationErrorKind string

const (
	KindBadIssuer     ValidationErrorKind = "bad_issuer"
	KindBadAudience   ValidationErrorKind = "bad_audience"
	KindBadSignature  ValidationErrorKind = "bad_signature"
	KindUnknownKey    ValidationErrorKind = "unknown_key"
	KindBadAlgorithm  ValidationErrorKind = "bad_algorithm"
	KindExpired       ValidationErrorKind = "expired"
	KindNotYetValid   ValidationErrorKind = "not_yet_valid"
	KindBadNonce      ValidationErrorKind = "bad_nonce"
	KindMalformed     ValidationErrorKind = "malformed"
)

// ValidationError is returned by Validate. Kind is stable and suitable
// for switch/compare; Detail carries the underlying cause for logging.
type ValidationError struct {
	Kind   ValidationErrorKind
	Detail error
}

func (e *ValidationError) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("oidcrp: validation failed (%s): %v", e.Kind, e.Detail)
	}
	return fmt.Sprintf("oidcrp: validation failed (%s)", e.Kind)
}

func (e *ValidationError) Unwrap() error {
	return e.Detail
}

func validationErr(kind ValidationErrorKind, detail error) *ValidationError {
	return &ValidationError{Kind: kind, Detail: detail}
}
