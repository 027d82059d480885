package listener

import (
	"context"
	"log"
	"time"

	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/health"
	"github.com/casebridge/casebridge/internal/mirror"
)

// DefaultPollInterval paces the mirror-activation scan.
const DefaultPollInterval = 5 * time.Second

// Poller activates pending mirrors in the background: every interval it
// scans for mirrors that carry a complete target but have not been
// registered with the host yet.
type Poller struct {
	store    contextstore.Store
	mirrors  *mirror.Manager
	status   *health.Status
	interval time.Duration
	metrics  *metrics
}

// NewPoller builds a Poller. A zero interval uses DefaultPollInterval.
func NewPoller(store contextstore.Store, mirrors *mirror.Manager, status *health.Status, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{store: store, mirrors: mirrors, status: status, interval: interval, metrics: newMetrics()}
}

// Interval returns the effective scan interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run blocks until the context is canceled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Pass(ctx)
		}
	}
}

// Pass runs one activation scan. Per-mirror failures are logged and the
// scan continues; a store failure degrades health for this pass only.
func (p *Poller) Pass(ctx context.Context) {
	snap, err := p.store.Snapshot()
	if err != nil {
		log.Printf("poller: could not read state: %v", err)
		p.status.Degrade(ctx, err.Error())
		return
	}

	for i := range snap.Mirrors {
		mir := &snap.Mirrors[i]
		if mir.Mirrored || mir.Remove || !mir.HasTarget() {
			continue
		}
		if err := p.mirrors.Activate(ctx, mir); err != nil {
			log.Printf("poller: could not activate mirror %s: %v", mir.InvestigationID, err)
			p.status.Degrade(ctx, err.Error())
			continue
		}
		p.metrics.activations.Add(ctx, 1)
	}
}
