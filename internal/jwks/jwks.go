// Package jwks fetches and caches a JSON Web Key Set for a single OpenID
// Provider, keyed by kid, with atomic-swap refresh semantics.
package jwks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Key is a single parsed JWK, ready for use as a golang-jwt verification key.
type Key struct {
	Kid       string
	Kty       string
	Alg       string
	PublicKey interface{} // *rsa.PublicKey or *ecdsa.PublicKey
}

// Set is an immutable snapshot of a provider's key set, keyed by kid.
// Once built, a Set is never mutated — refresh produces a new Set and
// swaps the pointer, so a goroutine holding a Set reference never
// observes a partially-updated key list.
type Set struct {
	byKid map[string]*Key
}

// Empty reports whether the set has no keys.
func (s *Set) Empty() bool {
	return s == nil || len(s.byKid) == 0
}

// Len returns the number of keys in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byKid)
}

// Lookup returns the key for kid, if present.
func (s *Set) Lookup(kid string) (*Key, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.byKid[kid]
	return k, ok
}

// rawJWKS mirrors RFC 7517's top-level JWKS document.
type rawJWKS struct {
	Keys []rawJWK `json:"keys"`
}

type rawJWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	// RSA
	N string `json:"n"`
	E string `json:"e"`
	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// Parse decodes a JWKS document body into a Set, skipping keys whose
// key material this library doesn't understand (we speak RSA and EC,
// not oct/OKP) rather than failing the whole set.
func Parse(body []byte, unmarshal func([]byte, interface{}) error) (*Set, error) {
	var doc rawJWKS
	if err := unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("jwks: decode document: %w", err)
	}

	byKid := make(map[string]*Key, len(doc.Keys))
	for _, k := range doc.Keys {
		key, err := toKey(k)
		if err != nil {
			continue
		}
		if key.Kid == "" {
			continue
		}
		byKid[key.Kid] = key
	}

	return &Set{byKid: byKid}, nil
}

func toKey(k rawJWK) (*Key, error) {
	switch k.Kty {
	case "RSA":
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			return nil, err
		}
		return &Key{Kid: k.Kid, Kty: k.Kty, Alg: k.Alg, PublicKey: pub}, nil
	case "EC":
		pub, err := ecPublicKey(k.Crv, k.X, k.Y)
		if err != nil {
			return nil, err
		}
		return &Key{Kid: k.Kid, Kty: k.Kty, Alg: k.Alg, PublicKey: pub}, nil
	default:
		return nil, fmt.Errorf("jwks: unsupported kty %q", k.Kty)
	}
}

func rsaPublicKey(nEnc, eEnc string) (*rsa.PublicKey, error) {
	nBytes, err := b64Decode(nEnc)
	if err != nil {
		return nil, fmt.Errorf("jwks: decode n: %w", err)
	}
	eBytes, err := b64Decode(eEnc)
	if err != nil {
		return nil, fmt.Errorf("jwks: decode e: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("jwks: zero exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func ecPublicKey(crv, xEnc, yEnc string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("jwks: unsupported curve %q", crv)
	}

	xBytes, err := b64Decode(xEnc)
	if err != nil {
		return nil, fmt.Errorf("jwks: decode x: %w", err)
	}
	yBytes, err := b64Decode(yEnc)
	if err != nil {
		return nil, fmt.Errorf("jwks: decode y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// b64Decode decodes a base64url string, tolerating both padded and
// unpadded encodings the way real-world JWKS documents are found in.
func b64Decode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
