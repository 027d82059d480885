package listener

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/casebridge/casebridge/internal/telemetry"
)

type metrics struct {
	events       metric.Int64Counter
	relays       metric.Int64Counter
	entitlements metric.Int64Counter
	activations  metric.Int64Counter
}

func newMetrics() *metrics {
	meter := telemetry.Meter("listener")
	events, _ := meter.Int64Counter("casebridge.events.total",
		metric.WithDescription("Slack events received"))
	relays, _ := meter.Int64Counter("casebridge.relays.total",
		metric.WithDescription("Messages relayed into cases"))
	entitlements, _ := meter.Int64Counter("casebridge.entitlements.total",
		metric.WithDescription("Entitlement replies resolved"))
	activations, _ := meter.Int64Counter("casebridge.mirror.activations.total",
		metric.WithDescription("Mirrors registered with the host"))
	return &metrics{events: events, relays: relays, entitlements: entitlements, activations: activations}
}
