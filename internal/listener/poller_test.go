package listener

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/casehost/casehosttest"
	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/health"
	"github.com/casebridge/casebridge/internal/mirror"
	"github.com/casebridge/casebridge/internal/slackapi"
	"github.com/casebridge/casebridge/internal/slackapi/slackapitest"
)

func newTestPoller(t *testing.T) (*Poller, *slackapitest.Fake, *casehosttest.Fake, contextstore.Store) {
	t.Helper()
	api := slackapitest.NewFake()
	store := contextstore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	host := &casehosttest.Fake{}
	dir := slackapi.NewDirectory(api, store, 200)
	mirrors := mirror.NewManager(api, api, store, host, dir)
	return NewPoller(store, mirrors, health.NewStatus(host), 0), api, host, store
}

func seedMirror(t *testing.T, store contextstore.Store, mir contextstore.Mirror) {
	t.Helper()
	_, err := store.Update(context.Background(), func(s *contextstore.Snapshot) error {
		s.UpsertMirror(mir)
		return nil
	})
	require.NoError(t, err)
}

func TestPollerActivatesPendingMirror(t *testing.T) {
	p, api, host, store := newTestPoller(t)
	api.AddChannel("C1", "incident-42")
	api.AddUser("U1", "alice", "Alice A", "alice@corp.example")
	host.MirrorUsers = []casehost.User{{ID: "10", Username: "alice", Email: "alice@corp.example"}}

	seedMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C1", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionBoth,
		MirrorTo: contextstore.MirrorToGroup, AutoClose: true,
	})

	ctx := context.Background()
	p.Pass(ctx)

	require.Len(t, host.MirrorCalls, 1)
	assert.Equal(t, "all:both", host.MirrorCalls[0].Mode)
	assert.Equal(t, 1, api.InviteCount("C1", "UBOT"))
	assert.Equal(t, 1, api.InviteCount("C1", "U1"))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.MirrorByInvestigation("42").Mirrored)

	// A second pass is a no-op: the mirror is already registered.
	p.Pass(ctx)
	assert.Len(t, host.MirrorCalls, 1)
	assert.Equal(t, 1, api.InviteCount("C1", "UBOT"), "the bot is invited exactly once")
}

func TestPollerSkipsIncompleteTargets(t *testing.T) {
	p, _, host, store := newTestPoller(t)
	seedMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C1", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll,
	})

	p.Pass(context.Background())
	assert.Empty(t, host.MirrorCalls)
}

func TestPollerContinuesPastFailures(t *testing.T) {
	p, api, host, store := newTestPoller(t)
	api.AddChannel("C1", "incident-41")
	api.AddChannel("C2", "incident-42")
	host.MirrorErr = assert.AnError

	seedMirror(t, store, contextstore.Mirror{
		InvestigationID: "41", ChannelID: "C1", ChannelName: "incident-41",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionBoth,
		MirrorTo: contextstore.MirrorToGroup,
	})
	seedMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C2", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionBoth,
		MirrorTo: contextstore.MirrorToGroup,
	})

	p.Pass(context.Background())
	assert.Len(t, host.MirrorCalls, 2, "one failure must not stop the scan")

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.MirrorByInvestigation("41").Mirrored)
	assert.False(t, snap.MirrorByInvestigation("42").Mirrored)
}

func TestPollerDegradesHealthOnActivationFailure(t *testing.T) {
	p, api, host, store := newTestPoller(t)
	api.AddChannel("C1", "incident-42")
	host.MirrorErr = assert.AnError

	seedMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C1", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionBoth,
		MirrorTo: contextstore.MirrorToGroup,
	})

	p.Pass(context.Background())
	assert.NotEmpty(t, p.status.Degraded(), "an unreachable host must degrade health")
	assert.NotEmpty(t, host.HealthUpdates)
}
