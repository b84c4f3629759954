// Package tokenstore implements ports.TokenStore over process memory,
// browser cookies, a local file and server-side slot backends.
package tokenstore

import (
	"context"
	"sync"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// Memory keeps one credential in process memory.
type Memory struct {
	mu    sync.RWMutex
	value domainauth.Credential
}

var _ ports.TokenStore = (*Memory)(nil)

// NewMemory returns an empty in-memory slot.
func NewMemory() *Memory { return &Memory{} }

// Get implements ports.TokenStore.
func (m *Memory) Get(_ context.Context) (domainauth.Credential, bool) {
	if m == nil {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value, !m.value.IsZero()
}

// Set implements ports.TokenStore.
func (m *Memory) Set(_ context.Context, cred domainauth.Credential) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.value = cred
	m.mu.Unlock()
	return nil
}

// Clear implements ports.TokenStore.
func (m *Memory) Clear(_ context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.value = ""
	m.mu.Unlock()
	return nil
}
