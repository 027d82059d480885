// Package mirror maintains the case ⇄ channel bindings: creating channels
// on demand, deciding mirroring policy, and relaying chat traffic into
// case notes. All binding state lives in the context store; the manager
// itself is stateless between calls.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/slackapi"
)

// MessageFooter marks notes relayed from Slack. The send path uses it to
// suppress echoes so mirrored traffic never loops.
const MessageFooter = "\n**From Slack**"

// ErrPlayground rejects mirroring the host's scratch investigation.
var ErrPlayground = errors.New("cannot mirror the playground investigation")

// Manager owns mirror lifecycle and relay.
type Manager struct {
	bot   slackapi.API // bot-token client: messaging
	admin slackapi.API // admin-token client: channel management
	store contextstore.Store
	host  casehost.Client
	dir   *slackapi.Directory
}

// NewManager builds a Manager. bot posts messages; admin manages channels
// (create, topic, invite, archive) the way a workspace admin would.
func NewManager(bot, admin slackapi.API, store contextstore.Store, host casehost.Client, dir *slackapi.Directory) *Manager {
	return &Manager{bot: bot, admin: admin, store: store, host: host, dir: dir}
}

// Request is a create-or-update mirror command.
type Request struct {
	MirrorType   string // all | chat | case | none
	Direction    string // both | to-slack | to-case
	MirrorTo     string // channel | group
	ChannelName  string // empty: derive incident-<id>
	ChannelTopic string // empty: auto-derive
	AutoClose    *bool  // nil: keep current (or default true on create)
	KickAdmin    bool
}

// Mirror creates or updates the mirror for the current investigation and
// returns the channel name. The operation is an idempotent upsert: an
// existing mirror only changes in the fields the caller supplied, and
// changing the channel name, topic, or destination kind of an existing
// mirror is a caller error.
func (m *Manager) Mirror(ctx context.Context, req Request) (string, error) {
	investigation, err := m.host.Investigation(ctx)
	if err != nil {
		return "", fmt.Errorf("current investigation: %w", err)
	}
	if investigation.Type == casehost.PlaygroundInvestigationType {
		return "", ErrPlayground
	}
	investigationID := investigation.ID

	snap, err := m.store.Snapshot()
	if err != nil {
		return "", err
	}

	var (
		mirror           contextstore.Mirror
		conversationID   string
		conversationName string
		sendFirstMessage bool
		freshChannel     *contextstore.CachedConversation
	)

	current := snap.MirrorByInvestigation(investigationID)
	if current == nil {
		channelName := req.ChannelName
		if channelName == "" {
			channelName = "incident-" + investigationID
		}

		if existing := snap.MirrorsByChannelName(channelName); len(existing) > 0 && req.ChannelName != "" {
			// Another case already mirrors into a channel with the
			// requested name: share it.
			conversationID = existing[0].ChannelID
			conversationName = existing[0].ChannelName
		} else {
			conversationID, conversationName, err = m.createChannel(ctx, channelName, req.MirrorTo)
			if err != nil {
				return "", err
			}
			freshChannel = &contextstore.CachedConversation{ID: conversationID, Name: conversationName}
			sendFirstMessage = true
		}

		autoClose := true
		if req.AutoClose != nil {
			autoClose = *req.AutoClose
		}
		mirror = contextstore.Mirror{
			InvestigationID: investigationID,
			ChannelID:       conversationID,
			ChannelName:     conversationName,
			MirrorType:      defaultString(req.MirrorType, contextstore.MirrorTypeAll),
			Direction:       defaultString(req.Direction, contextstore.DirectionBoth),
			MirrorTo:        defaultString(req.MirrorTo, contextstore.MirrorToGroup),
			AutoClose:       autoClose,
			Mirrored:        false,
		}
	} else {
		mirror = *current
		conversationID = mirror.ChannelID
		conversationName = mirror.ChannelName

		if req.MirrorTo != "" && req.MirrorTo != mirror.MirrorTo {
			return "", errors.New("cannot change the channel type of an existing mirror")
		}
		if req.ChannelName != "" {
			return "", errors.New("cannot change the channel name of an existing mirror")
		}
		if req.ChannelTopic != "" {
			return "", errors.New("cannot change the channel topic of an existing mirror")
		}
		if req.MirrorType != "" {
			mirror.MirrorType = req.MirrorType
		}
		if req.Direction != "" {
			mirror.Direction = req.Direction
		}
		if req.AutoClose != nil {
			mirror.AutoClose = *req.AutoClose
		}
		// Policy changed: re-register with the host on the next pass.
		mirror.Mirrored = false
	}

	topic, setTopic := deriveTopic(snap, &mirror, req.ChannelTopic, investigationID, conversationName)
	if setTopic {
		if _, err := m.admin.SetTopicOfConversation(conversationID, topic); err != nil {
			return "", fmt.Errorf("set channel topic: %w", err)
		}
	}
	mirror.ChannelTopic = topic

	if _, err := m.store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.UpsertMirror(mirror)
		if freshChannel != nil {
			s.CacheConversation(*freshChannel)
		}
		return nil
	}); err != nil {
		return "", err
	}

	if req.KickAdmin {
		if _, err := m.admin.LeaveConversation(conversationID); err != nil {
			log.Printf("mirror: admin could not leave %s: %v", conversationID, err)
		}
	}
	if sendFirstMessage {
		m.postIntro(ctx, conversationID, investigationID)
	}
	return conversationName, nil
}

// createChannel allocates the mirror channel and invites the bot into it.
func (m *Manager) createChannel(ctx context.Context, name, mirrorTo string) (id, resolvedName string, err error) {
	private := mirrorTo != contextstore.MirrorToChannel

	channel, err := m.admin.CreateConversation(slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   private,
	})
	if err != nil {
		if slackapi.IsNameTakenError(err) {
			conv, findErr := m.dir.ConversationByName(ctx, name)
			if findErr == nil && conv != nil {
				return conv.ID, conv.Name, nil
			}
		}
		return "", "", fmt.Errorf("create channel %s: %w", name, err)
	}

	botID, err := m.dir.BotID(ctx)
	if err != nil {
		return "", "", err
	}
	if _, err := m.admin.InviteUsersToConversation(channel.ID, botID); err != nil && !slackapi.IsBenignInviteError(err) {
		return "", "", fmt.Errorf("invite bot to %s: %w", channel.ID, err)
	}
	return channel.ID, channel.Name, nil
}

// deriveTopic decides the channel topic. A caller-supplied topic always
// wins. Otherwise the topic is auto-derived as the comma-joined incident
// list of every mirror sharing the channel, but only when the current
// topic is empty or itself looks auto-derived; a custom topic set earlier
// is preserved verbatim.
func deriveTopic(snap *contextstore.Snapshot, mirror *contextstore.Mirror, requested, investigationID, conversationName string) (string, bool) {
	if requested != "" {
		return requested, true
	}

	mirrorName := "incident-" + investigationID
	var siblings []*contextstore.Mirror
	for _, sib := range snap.MirrorsByChannelName(conversationName) {
		if sib.InvestigationID != investigationID {
			siblings = append(siblings, sib)
		}
	}

	topic := mirror.ChannelTopic
	if topic == "" && len(siblings) > 0 {
		topic = siblings[0].ChannelTopic
	}

	if topic != "" && !strings.Contains(topic, "incident-") {
		return topic, false
	}

	names := make([]string, 0, len(siblings)+1)
	for _, sib := range siblings {
		names = append(names, "incident-"+sib.InvestigationID)
	}
	names = append(names, mirrorName)
	derived := strings.Join(names, ", ")
	if derived != topic {
		return derived, true
	}
	return topic, false
}

func (m *Manager) postIntro(ctx context.Context, channelID, investigationID string) {
	message := fmt.Sprintf("This channel was created to mirror incident %s.", investigationID)
	if links, err := m.host.URLs(ctx); err == nil && links.Server != "" {
		message += fmt.Sprintf("\nView it on: %s#/WarRoom/%s", links.Server, investigationID)
	}
	if _, _, err := m.bot.PostMessage(channelID, slack.MsgOptionText(message, false)); err != nil {
		log.Printf("mirror: could not post intro message to %s: %v", channelID, err)
	}
}

// FindByInvestigation returns the current investigation's mirror, or nil.
func (m *Manager) FindByInvestigation(ctx context.Context) (*contextstore.Mirror, error) {
	investigation, err := m.host.Investigation(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := m.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.MirrorByInvestigation(investigation.ID), nil
}

// InviteCaseUsers invites the case's participants into a mirrored channel.
// Users missing from Slack are logged and skipped; benign invite failures
// are ignored.
func (m *Manager) InviteCaseUsers(ctx context.Context, channelID string, users []casehost.User) {
	for _, user := range users {
		var slackUser *contextstore.CachedUser
		var err error
		if user.Email != "" {
			slackUser, err = m.dir.UserByNameOrEmail(ctx, user.Email, true)
		}
		if slackUser == nil && err == nil && user.Username != "" {
			slackUser, err = m.dir.UserByNameOrEmail(ctx, user.Username, true)
		}
		if err != nil {
			log.Printf("mirror: lookup of case user %s failed: %v", user.Username, err)
			continue
		}
		if slackUser == nil {
			log.Printf("mirror: case user %s not found in Slack", user.Username)
			continue
		}
		if _, err := m.admin.InviteUsersToConversation(channelID, slackUser.ID); err != nil && !slackapi.IsBenignInviteError(err) {
			log.Printf("mirror: could not invite %s to %s: %v", slackUser.ID, channelID, err)
		}
	}
}

// Activate registers a pending mirror with the host, grants channel
// membership, and marks it mirrored. Used by both the background poller
// and the lazy-activation path in RelayInbound.
func (m *Manager) Activate(ctx context.Context, mir *contextstore.Mirror) error {
	mode := mir.MirrorType + ":" + mir.Direction
	users, err := m.host.MirrorInvestigation(ctx, mir.InvestigationID, mode, mir.AutoClose)
	if err != nil {
		return fmt.Errorf("register mirror %s: %w", mir.InvestigationID, err)
	}

	if mir.MirrorType != contextstore.MirrorTypeNone {
		botID, err := m.dir.BotID(ctx)
		if err != nil {
			return err
		}
		if _, err := m.admin.InviteUsersToConversation(mir.ChannelID, botID); err != nil && !slackapi.IsBenignInviteError(err) {
			log.Printf("mirror: could not invite bot to %s: %v", mir.ChannelID, err)
		}
		m.InviteCaseUsers(ctx, mir.ChannelID, users)
	}

	investigationID := mir.InvestigationID
	_, err = m.store.Update(ctx, func(s *contextstore.Snapshot) error {
		if live := s.MirrorByInvestigation(investigationID); live != nil {
			live.Mirrored = true
		}
		return nil
	})
	return err
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
