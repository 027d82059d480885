package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/slackapi"
)

// ErrNoChannel reports that neither a channel name nor a mirrored
// investigation identified a conversation.
var ErrNoChannel = errors.New("no channel or mirrored investigation to operate on")

// ResolveChannel maps a channel name to a conversation ID. With an empty
// name it falls back to the mirror of the current investigation, so
// channel commands issued from a mirrored case need no explicit channel.
func (m *Manager) ResolveChannel(ctx context.Context, channelName string) (string, error) {
	if channelName != "" {
		conv, err := m.dir.ConversationByName(ctx, channelName)
		if err != nil {
			return "", err
		}
		if conv == nil {
			return "", fmt.Errorf("channel %s not found", channelName)
		}
		return conv.ID, nil
	}
	mir, err := m.FindByInvestigation(ctx)
	if err != nil {
		return "", err
	}
	if mir == nil {
		return "", ErrNoChannel
	}
	return mir.ChannelID, nil
}

// SetTopic updates a channel topic and records it on every mirror bound
// to the channel.
func (m *Manager) SetTopic(ctx context.Context, channelName, topic string) error {
	channelID, err := m.ResolveChannel(ctx, channelName)
	if err != nil {
		return err
	}
	if _, err := m.admin.SetTopicOfConversation(channelID, topic); err != nil {
		return fmt.Errorf("set topic of %s: %w", channelID, err)
	}
	_, err = m.store.Update(ctx, func(s *contextstore.Snapshot) error {
		for _, mir := range s.MirrorsForChannel(channelID) {
			mir.ChannelTopic = topic
		}
		return nil
	})
	return err
}

// Rename renames a channel and updates the bound mirrors.
func (m *Manager) Rename(ctx context.Context, channelName, newName string) error {
	channelID, err := m.ResolveChannel(ctx, channelName)
	if err != nil {
		return err
	}
	if _, err := m.admin.RenameConversation(channelID, newName); err != nil {
		return fmt.Errorf("rename %s: %w", channelID, err)
	}
	_, err = m.store.Update(ctx, func(s *contextstore.Snapshot) error {
		for _, mir := range s.MirrorsForChannel(channelID) {
			mir.ChannelName = newName
		}
		if conv := s.ConversationByID(channelID); conv != nil {
			conv.Name = newName
		}
		return nil
	})
	return err
}

// Close archives a channel, deregisters every case mirrored into it from
// the host, and flags the bindings for removal from the store.
func (m *Manager) Close(ctx context.Context, channelName string) error {
	channelID, err := m.ResolveChannel(ctx, channelName)
	if err != nil {
		return err
	}
	if err := m.admin.ArchiveConversation(channelID); err != nil {
		return fmt.Errorf("archive %s: %w", channelID, err)
	}

	snap, err := m.store.Snapshot()
	if err != nil {
		return err
	}
	for _, mir := range snap.MirrorsForChannel(channelID) {
		mode := contextstore.MirrorTypeNone + ":" + mir.Direction
		if _, err := m.host.MirrorInvestigation(ctx, mir.InvestigationID, mode, mir.AutoClose); err != nil {
			log.Printf("mirror: could not deregister %s on close: %v", mir.InvestigationID, err)
		}
	}
	_, err = m.store.Update(ctx, func(s *contextstore.Snapshot) error {
		for _, mir := range s.MirrorsForChannel(channelID) {
			mir.Remove = true
		}
		return nil
	})
	return err
}

// InviteUsers invites Slack users, given by name or email, to a channel.
func (m *Manager) InviteUsers(ctx context.Context, channelName string, users []string) error {
	channelID, err := m.ResolveChannel(ctx, channelName)
	if err != nil {
		return err
	}
	for _, name := range users {
		user, err := m.dir.UserByNameOrEmail(ctx, name, true)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s not found", name)
		}
		if _, err := m.admin.InviteUsersToConversation(channelID, user.ID); err != nil && !slackapi.IsBenignInviteError(err) {
			return fmt.Errorf("invite %s to %s: %w", name, channelID, err)
		}
	}
	return nil
}

// KickUsers removes Slack users from a channel.
func (m *Manager) KickUsers(ctx context.Context, channelName string, users []string) error {
	channelID, err := m.ResolveChannel(ctx, channelName)
	if err != nil {
		return err
	}
	for _, name := range users {
		user, err := m.dir.UserByNameOrEmail(ctx, name, true)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %s not found", name)
		}
		if err := m.admin.KickUserFromConversation(channelID, user.ID); err != nil {
			return fmt.Errorf("kick %s from %s: %w", name, channelID, err)
		}
	}
	return nil
}
