package mirror

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/casehost/casehosttest"
	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/slackapi"
	"github.com/casebridge/casebridge/internal/slackapi/slackapitest"
)

func newTestManager(t *testing.T) (*Manager, *slackapitest.Fake, *casehosttest.Fake, contextstore.Store) {
	t.Helper()
	api := slackapitest.NewFake()
	store := contextstore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	host := &casehosttest.Fake{Inv: &casehost.Investigation{ID: "42", Type: 1}}
	dir := slackapi.NewDirectory(api, store, 200)
	return NewManager(api, api, store, host, dir), api, host, store
}

func TestMirrorCreatesChannel(t *testing.T) {
	m, api, _, store := newTestManager(t)

	name, err := m.Mirror(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "incident-42", name)

	require.Len(t, api.CreatedChannels, 1)
	assert.Equal(t, "incident-42", api.CreatedChannels[0].ChannelName)
	assert.True(t, api.CreatedChannels[0].IsPrivate, "mirror-to group defaults to a private channel")

	channelID := api.ChannelsByName["incident-42"].ID
	assert.Equal(t, 1, api.InviteCount(channelID, "UBOT"))
	assert.Equal(t, "incident-42", api.Topics[channelID])

	require.Len(t, api.PostedMessages, 1)
	assert.Equal(t, channelID, api.PostedMessages[0].ChannelID)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	mir := snap.MirrorByInvestigation("42")
	require.NotNil(t, mir)
	assert.Equal(t, channelID, mir.ChannelID)
	assert.Equal(t, contextstore.MirrorTypeAll, mir.MirrorType)
	assert.Equal(t, contextstore.DirectionBoth, mir.Direction)
	assert.True(t, mir.AutoClose)
	assert.False(t, mir.Mirrored, "registration with the host is deferred")
}

func TestMirrorPublicChannel(t *testing.T) {
	m, api, _, _ := newTestManager(t)

	_, err := m.Mirror(context.Background(), Request{MirrorTo: contextstore.MirrorToChannel})
	require.NoError(t, err)
	require.Len(t, api.CreatedChannels, 1)
	assert.False(t, api.CreatedChannels[0].IsPrivate)
}

func TestMirrorPlaygroundRejected(t *testing.T) {
	m, _, host, _ := newTestManager(t)
	host.Inv = &casehost.Investigation{ID: "9", Type: casehost.PlaygroundInvestigationType}

	_, err := m.Mirror(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrPlayground)
}

func TestMirrorRerequestUpdatesWithoutNewChannel(t *testing.T) {
	m, api, _, store := newTestManager(t)
	ctx := context.Background()

	_, err := m.Mirror(ctx, Request{})
	require.NoError(t, err)

	name, err := m.Mirror(ctx, Request{Direction: contextstore.DirectionToCase})
	require.NoError(t, err)
	assert.Equal(t, "incident-42", name)
	assert.Len(t, api.CreatedChannels, 1, "existing mirror must reuse its channel")
	assert.Len(t, api.PostedMessages, 1, "intro is only posted for a fresh channel")

	snap, err := store.Snapshot()
	require.NoError(t, err)
	mir := snap.MirrorByInvestigation("42")
	require.NotNil(t, mir)
	assert.Equal(t, contextstore.DirectionToCase, mir.Direction)
	assert.False(t, mir.Mirrored, "policy change re-queues host registration")
}

func TestMirrorRejectsIdentityChanges(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Mirror(ctx, Request{})
	require.NoError(t, err)

	_, err = m.Mirror(ctx, Request{ChannelName: "other"})
	assert.ErrorContains(t, err, "channel name")

	_, err = m.Mirror(ctx, Request{MirrorTo: contextstore.MirrorToChannel})
	assert.ErrorContains(t, err, "channel type")

	_, err = m.Mirror(ctx, Request{ChannelTopic: "new topic"})
	assert.ErrorContains(t, err, "topic")
}

func TestMirrorCustomTopicPreserved(t *testing.T) {
	m, api, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Mirror(ctx, Request{ChannelTopic: "war room for the breach"})
	require.NoError(t, err)
	channelID := api.ChannelsByName["incident-42"].ID
	assert.Equal(t, "war room for the breach", api.Topics[channelID])

	// Re-request without a topic: the custom topic must not be clobbered
	// by the auto-derived incident list.
	_, err = m.Mirror(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "war room for the breach", api.Topics[channelID])
}

func TestMirrorSharedChannelTopicLists(t *testing.T) {
	m, api, host, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Mirror(ctx, Request{ChannelName: "soc-war-room"})
	require.NoError(t, err)

	host.Inv = &casehost.Investigation{ID: "43", Type: 1}
	_, err = m.Mirror(ctx, Request{ChannelName: "soc-war-room"})
	require.NoError(t, err)

	assert.Len(t, api.CreatedChannels, 1, "same channel name joins the existing channel")
	channelID := api.ChannelsByName["soc-war-room"].ID
	assert.Equal(t, "incident-42, incident-43", api.Topics[channelID])
}

func TestActivateRegistersAndInvites(t *testing.T) {
	m, api, host, store := newTestManager(t)
	ctx := context.Background()
	api.AddChannel("C100", "incident-42")
	api.AddUser("U1", "alice", "Alice A", "alice@corp.example")
	host.MirrorUsers = []casehost.User{{ID: "10", Username: "alice", Email: "alice@corp.example"}}

	mir := contextstore.Mirror{
		InvestigationID: "42",
		ChannelID:       "C100",
		ChannelName:     "incident-42",
		MirrorType:      contextstore.MirrorTypeAll,
		Direction:       contextstore.DirectionBoth,
		MirrorTo:        contextstore.MirrorToGroup,
		AutoClose:       true,
	}
	_, err := store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.UpsertMirror(mir)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, m.Activate(ctx, &mir))

	require.Len(t, host.MirrorCalls, 1)
	assert.Equal(t, "42", host.MirrorCalls[0].InvestigationID)
	assert.Equal(t, "all:both", host.MirrorCalls[0].Mode)
	assert.True(t, host.MirrorCalls[0].AutoClose)

	assert.Equal(t, 1, api.InviteCount("C100", "UBOT"))
	assert.Equal(t, 1, api.InviteCount("C100", "U1"))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.MirrorByInvestigation("42").Mirrored)
}

func relayMirror(t *testing.T, store contextstore.Store, mir contextstore.Mirror) {
	t.Helper()
	_, err := store.Update(context.Background(), func(s *contextstore.Snapshot) error {
		s.UpsertMirror(mir)
		return nil
	})
	require.NoError(t, err)
}

func TestRelayInboundAppendsEntry(t *testing.T) {
	m, api, host, store := newTestManager(t)
	ctx := context.Background()
	api.AddChannel("C100", "incident-42")
	relayMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C100", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionBoth,
		MirrorTo: contextstore.MirrorToGroup, AutoClose: true,
	})

	author := &contextstore.CachedUser{ID: "U1", Name: "alice", Email: "alice@corp.example"}
	require.NoError(t, m.RelayInbound(ctx, "C100", "the host looks compromised", author))

	require.Len(t, host.Entries, 1)
	assert.Equal(t, "42", host.Entries[0].InvestigationID)
	assert.Equal(t, "the host looks compromised", host.Entries[0].Text)
	assert.Equal(t, "alice", host.Entries[0].Username)
	assert.Equal(t, MessageFooter, host.Entries[0].Footer)

	// First traffic activates the pending mirror.
	require.Len(t, host.MirrorCalls, 1)
	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.MirrorByInvestigation("42").Mirrored)
}

func TestRelayInboundRespectsDirection(t *testing.T) {
	m, _, host, store := newTestManager(t)
	relayMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C100", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionToSlack,
		MirrorTo: contextstore.MirrorToGroup, Mirrored: true,
	})

	require.NoError(t, m.RelayInbound(context.Background(), "C100", "ignored", nil))
	assert.Empty(t, host.Entries)
}

func TestRelayInboundIgnoresUnmirroredChannel(t *testing.T) {
	m, _, host, _ := newTestManager(t)
	require.NoError(t, m.RelayInbound(context.Background(), "C999", "noise", nil))
	assert.Empty(t, host.Entries)
}

func TestCleanMessage(t *testing.T) {
	m, _, _, store := newTestManager(t)
	ctx := context.Background()
	_, err := store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.CacheUser(contextstore.CachedUser{ID: "U1", Name: "alice"})
		s.CacheConversation(contextstore.CachedConversation{ID: "C7", Name: "soc"})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "alice please fix", m.CleanMessage(ctx, "<@U1> please fix"))
	assert.Equal(t, "see soc", m.CleanMessage(ctx, "see <#C7>"))
	assert.Equal(t, "report: https://x.example/r", m.CleanMessage(ctx, "report: <https://x.example/r|the report>"))
}

func TestCloseArchivesAndDeregisters(t *testing.T) {
	m, api, host, store := newTestManager(t)
	ctx := context.Background()
	api.AddChannel("C100", "incident-42")
	relayMirror(t, store, contextstore.Mirror{
		InvestigationID: "42", ChannelID: "C100", ChannelName: "incident-42",
		MirrorType: contextstore.MirrorTypeAll, Direction: contextstore.DirectionBoth,
		MirrorTo: contextstore.MirrorToGroup, Mirrored: true, AutoClose: true,
	})

	require.NoError(t, m.Close(ctx, "incident-42"))

	assert.Equal(t, []string{"C100"}, api.Archived)
	require.Len(t, host.MirrorCalls, 1)
	assert.Equal(t, "none:both", host.MirrorCalls[0].Mode)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.MirrorByInvestigation("42"), "closed mirrors are dropped on compaction")
}

func TestInviteCaseUsersSkipsUnknown(t *testing.T) {
	m, api, _, _ := newTestManager(t)
	api.AddChannel("C100", "incident-42")
	api.AddUser("U1", "alice", "Alice A", "alice@corp.example")

	m.InviteCaseUsers(context.Background(), "C100", []casehost.User{
		{ID: "10", Username: "alice", Email: "alice@corp.example"},
		{ID: "11", Username: "ghost", Email: "ghost@corp.example"},
	})
	assert.Equal(t, 1, api.InviteCount("C100", "U1"))
}
