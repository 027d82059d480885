// Package health tracks the bridge's operational state: the Slack
// connection flag feeding the liveness probe, and the degraded-message
// status mirrored to the case host.
package health

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/casebridge/casebridge/internal/casehost"
)

// Status is the shared health state. The listener degrades it on event
// failures and clears it on success; probes and the host see the result.
type Status struct {
	connected atomic.Bool

	mu       sync.Mutex
	degraded string
	host     casehost.Client
}

// NewStatus creates a Status reporting to the given host. A nil host
// keeps the state purely local.
func NewStatus(host casehost.Client) *Status {
	return &Status{host: host}
}

// SetConnected updates the Slack connection state.
func (s *Status) SetConnected(connected bool) {
	s.connected.Store(connected)
}

// IsConnected reports whether the Socket Mode connection is up.
func (s *Status) IsConnected() bool {
	return s.connected.Load()
}

// Degrade records a failure message and mirrors it to the host. Repeated
// identical degradations are reported once.
func (s *Status) Degrade(ctx context.Context, message string) {
	s.mu.Lock()
	changed := s.degraded != message
	s.degraded = message
	s.mu.Unlock()
	if !changed || s.host == nil {
		return
	}
	if err := s.host.UpdateModuleHealth(ctx, message); err != nil {
		log.Printf("health: could not report degradation: %v", err)
	}
}

// Clear resets a previously reported degradation.
func (s *Status) Clear(ctx context.Context) {
	s.mu.Lock()
	wasDegraded := s.degraded != ""
	s.degraded = ""
	s.mu.Unlock()
	if !wasDegraded || s.host == nil {
		return
	}
	if err := s.host.UpdateModuleHealth(ctx, ""); err != nil {
		log.Printf("health: could not clear degradation: %v", err)
	}
}

// Degraded returns the current degradation message, empty when healthy.
func (s *Status) Degraded() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}
