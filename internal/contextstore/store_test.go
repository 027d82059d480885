package contextstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "context.json"))
}

func TestSnapshotEmptyStore(t *testing.T) {
	fs := newTestStore(t)

	snap, err := fs.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Mirrors)
	assert.Empty(t, snap.Questions)
	assert.Empty(t, snap.BotID)
}

func TestUpdatePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	ctx := context.Background()

	fs := NewFileStore(path)
	_, err := fs.Update(ctx, func(s *Snapshot) error {
		s.UpsertMirror(Mirror{
			InvestigationID: "42",
			ChannelID:       "C1",
			ChannelName:     "incident-42",
			MirrorType:      MirrorTypeAll,
			Direction:       DirectionBoth,
			MirrorTo:        MirrorToGroup,
		})
		s.BotID = "B99"
		return nil
	})
	require.NoError(t, err)

	reopened := NewFileStore(path)
	snap, err := reopened.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.MirrorByInvestigation("42"))
	assert.Equal(t, "C1", snap.MirrorByInvestigation("42").ChannelID)
	assert.Equal(t, "B99", snap.BotID)
}

func TestMutateErrorAbortsWithoutRetry(t *testing.T) {
	fs := newTestStore(t)
	boom := errors.New("boom")

	calls := 0
	_, err := fs.Update(context.Background(), func(s *Snapshot) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "mutate errors must not be retried")
}

// A writer that loses the version race must re-derive its change against
// the latest snapshot. Both questions survive; neither is silently lost.
func TestConflictingWritersBothLand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	ctx := context.Background()

	first := NewFileStore(path)
	second := NewFileStore(path)

	var interleave sync.Once
	_, err := first.Update(ctx, func(s *Snapshot) error {
		// The competing writer lands between our read and our commit on
		// the first attempt only.
		var interleaveErr error
		interleave.Do(func() {
			_, interleaveErr = second.Update(ctx, func(s *Snapshot) error {
				s.UpsertQuestion(Question{Thread: "t2", Entitlement: "e2"})
				return nil
			})
		})
		if interleaveErr != nil {
			return interleaveErr
		}
		s.UpsertQuestion(Question{Thread: "t1", Entitlement: "e1"})
		return nil
	})
	require.NoError(t, err)

	snap, err := first.Snapshot()
	require.NoError(t, err)
	assert.NotNil(t, snap.QuestionByThread("t1"))
	assert.NotNil(t, snap.QuestionByThread("t2"))
	assert.Len(t, snap.Questions, 2)
}

func TestCompactionDropsRemovedEntries(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	_, err := fs.Update(ctx, func(s *Snapshot) error {
		s.UpsertMirror(Mirror{InvestigationID: "1", ChannelID: "C1"})
		s.UpsertMirror(Mirror{InvestigationID: "2", ChannelID: "C1"})
		s.UpsertQuestion(Question{Thread: "t", Entitlement: "e"})
		return nil
	})
	require.NoError(t, err)

	snap, err := fs.Update(ctx, func(s *Snapshot) error {
		for i := range s.Mirrors {
			if s.Mirrors[i].InvestigationID == "1" {
				s.Mirrors[i].Remove = true
			}
		}
		s.Questions[0].Remove = true
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, snap.Mirrors, 1)
	assert.Equal(t, "2", snap.Mirrors[0].InvestigationID)
	assert.Empty(t, snap.Questions)
}

func TestRemovedMirrorInvisibleToLookups(t *testing.T) {
	snap := &Snapshot{Mirrors: []Mirror{
		{InvestigationID: "7", ChannelID: "C7", ChannelName: "incident-7", Remove: true},
	}}

	assert.Nil(t, snap.MirrorByInvestigation("7"))
	assert.Empty(t, snap.MirrorsForChannel("C7"))
	assert.Empty(t, snap.MirrorsByChannelName("incident-7"))
}

func TestQuestionSingleShotResolution(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	_, err := fs.Update(ctx, func(s *Snapshot) error {
		s.UpsertQuestion(Question{Thread: "155.2", Entitlement: "guid@110"})
		return nil
	})
	require.NoError(t, err)

	// First reply resolves and removes the question.
	snap, err := fs.Update(ctx, func(s *Snapshot) error {
		q := s.QuestionByThread("155.2")
		require.NotNil(t, q)
		q.Remove = true
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, snap.QuestionByThread("155.2"))

	// A second reply in the same thread matches nothing.
	snap, err = fs.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.QuestionByThread("155.2"))
}

func TestUpsertReplacesByKey(t *testing.T) {
	snap := &Snapshot{}

	snap.UpsertMirror(Mirror{InvestigationID: "9", ChannelID: "C1"})
	snap.UpsertMirror(Mirror{InvestigationID: "9", ChannelID: "C2"})
	require.Len(t, snap.Mirrors, 1)
	assert.Equal(t, "C2", snap.Mirrors[0].ChannelID)

	snap.CacheUser(CachedUser{ID: "U1", Name: "old"})
	snap.CacheUser(CachedUser{ID: "U1", Name: "new"})
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "new", snap.Users[0].Name)
}

func TestUserAndConversationLookups(t *testing.T) {
	snap := &Snapshot{
		Users: []CachedUser{
			{ID: "U1", Name: "alice", RealName: "Alice Liddell", Email: "alice@example.com"},
		},
		Conversations: []CachedConversation{
			{ID: "C1", Name: "incident-42"},
		},
	}

	assert.NotNil(t, snap.UserByNameOrEmail("ALICE"))
	assert.NotNil(t, snap.UserByNameOrEmail("alice@example.com"))
	assert.NotNil(t, snap.UserByNameOrEmail("alice liddell"))
	assert.Nil(t, snap.UserByNameOrEmail("bob"))
	assert.NotNil(t, snap.ConversationByName("Incident-42"))
	assert.Nil(t, snap.ConversationByID("C9"))
}
