// Package slackapi narrows the slack-go client to the methods the bridge
// uses and layers the cached directory lookups on top. Tests substitute a
// mock implementation without a live Slack connection.
package slackapi

import (
	"strings"

	"github.com/slack-go/slack"
)

// API abstracts the subset of slack.Client methods used by the bridge.
type API interface {
	AuthTest() (*slack.AuthTestResponse, error)

	// Messaging
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error)

	// Conversations
	CreateConversation(params slack.CreateConversationParams) (*slack.Channel, error)
	GetConversations(params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetConversationInfo(input *slack.GetConversationInfoInput) (*slack.Channel, error)
	InviteUsersToConversation(channelID string, users ...string) (*slack.Channel, error)
	KickUserFromConversation(channelID, user string) error
	SetTopicOfConversation(channelID, topic string) (*slack.Channel, error)
	ArchiveConversation(channelID string) error
	RenameConversation(channelID, name string) (*slack.Channel, error)
	LeaveConversation(channelID string) (bool, error)
	OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)

	// Users
	GetUserInfo(userID string) (*slack.User, error)
	GetUsers(options ...slack.GetUsersOption) ([]slack.User, error)
}

// IsMembershipError reports whether a send failed because the bot is not
// in the target channel. These are the self-healable errors: invite the
// bot and retry once.
func IsMembershipError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not_in_channel") || strings.Contains(msg, "channel_not_found")
}

// IsBenignInviteError reports whether an invite failure can be ignored:
// the member is already there, or the bot tried to invite itself.
func IsBenignInviteError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already_in_channel") || strings.Contains(msg, "cant_invite_self")
}

// IsNameTakenError reports whether channel creation failed because the
// name already exists; the caller falls back to a lookup.
func IsNameTakenError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "name_taken")
}
