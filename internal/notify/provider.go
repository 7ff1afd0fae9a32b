// Package notify decouples alert-triggered notification intent from
// slow, unreliable external delivery. Jobs pass through a bounded queue
// drained by workers that call pluggable providers with bounded retry.
package notify

import (
	"context"
	"fmt"
	"sync"

	"fleetwatch/internal/models"
)

// Provider delivers one notification job to an external channel.
// Implementations must be safe for concurrent use.
type Provider interface {
	Send(ctx context.Context, job *models.NotificationJob) error
}

// Registry maps channel-type names to providers. Providers are
// registered once at startup; lookup at dispatch time is a map read.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to a channel type, replacing any previous one
func (r *Registry) Register(channel string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[channel] = p
}

// Resolve returns the provider for a channel type
func (r *Registry) Resolve(channel string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[channel]
	if !ok {
		return nil, fmt.Errorf("no provider registered for channel %q", channel)
	}
	return p, nil
}
