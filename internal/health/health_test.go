package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casebridge/casebridge/internal/casehost/casehosttest"
)

func TestStatusConnectedFlag(t *testing.T) {
	s := NewStatus(nil)
	assert.False(t, s.IsConnected())
	s.SetConnected(true)
	assert.True(t, s.IsConnected())
	s.SetConnected(false)
	assert.False(t, s.IsConnected())
}

func TestDegradeReportsOncePerMessage(t *testing.T) {
	host := &casehosttest.Fake{}
	s := NewStatus(host)
	ctx := context.Background()

	s.Degrade(ctx, "socket error")
	s.Degrade(ctx, "socket error")
	assert.Equal(t, []string{"socket error"}, host.HealthUpdates)

	s.Degrade(ctx, "other error")
	assert.Equal(t, []string{"socket error", "other error"}, host.HealthUpdates)
}

func TestClearOnlyAfterDegrade(t *testing.T) {
	host := &casehosttest.Fake{}
	s := NewStatus(host)
	ctx := context.Background()

	s.Clear(ctx)
	assert.Empty(t, host.HealthUpdates, "clearing a healthy status is a no-op")

	s.Degrade(ctx, "boom")
	s.Clear(ctx)
	assert.Equal(t, []string{"boom", ""}, host.HealthUpdates)
	assert.Empty(t, s.Degraded())
}
