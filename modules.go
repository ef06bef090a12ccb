// oidcrp - OpenID Connect relying-party engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oidcrp

package oidcrp

import "sync"

// ClientModule is a host-supplied post-auth handler, registered under a
// key and invoked by the host's own web layer after a successful code
// exchange. The registry only records the binding (spec §4.7) — it never
// calls Handle itself; that line belongs to the host, which is why this
// type carries no particular method signature beyond identity.
type ClientModule interface {
	// ModuleName identifies this module for logging and for detecting
	// a duplicate-key registration.
	ModuleName() string
}

// ClientModuleRegistry is a process-wide map of registered client
// modules, keyed by the caller-chosen key passed to Register.
type ClientModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]ClientModule
}

func newClientModuleRegistry() *ClientModuleRegistry {
	return &ClientModuleRegistry{modules: make(map[string]ClientModule)}
}

// Register binds handler under key, replacing any prior binding for the
// same key (spec §4.7: "duplicate registration replaces the prior
// binding").
func (c *ClientModuleRegistry) Register(key string, handler ClientModule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules[key] = handler
}

// Get returns the module registered under key, if any.
func (c *ClientModuleRegistry) Get(key string) (ClientModule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[key]
	return m, ok
}

// Unregister removes the binding for key, if present.
func (c *ClientModuleRegistry) Unregister(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.modules, key)
}

// Keys returns every currently registered key.
func (c *ClientModuleRegistry) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.modules))
	for k := range c.modules {
		out = append(out, k)
	}
	return out
}
