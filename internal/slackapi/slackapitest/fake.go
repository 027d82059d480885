// Package slackapitest provides an in-memory slackapi.API for tests. No
// Slack connection or token validation is performed.
package slackapitest

import (
	"fmt"
	"sync"

	"github.com/slack-go/slack"
)

// PostedMessage captures a PostMessage call for assertion.
type PostedMessage struct {
	ChannelID string
	Options   []slack.MsgOption
}

// UploadedFile captures an UploadFileV2 call.
type UploadedFile struct {
	Params slack.UploadFileV2Parameters
}

// Invite captures an InviteUsersToConversation call.
type Invite struct {
	ChannelID string
	Users     []string
}

// Fake is a scriptable slackapi.API. Zero value is usable; state maps are
// allocated lazily.
type Fake struct {
	mu sync.Mutex

	BotUserID string

	// Captured calls.
	PostedMessages  []PostedMessage
	UploadedFiles   []UploadedFile
	Invites         []Invite
	Kicked          []string
	Topics          map[string]string
	Archived        []string
	Renamed         map[string]string
	Left            []string
	CreatedChannels []slack.CreateConversationParams

	// Workspace state.
	ChannelsByName map[string]*slack.Channel
	UsersByID      map[string]*slack.User
	DMByUser       map[string]string // user ID → DM channel ID

	// Configurable errors. PostMessageErrs is consumed front to
	// back, letting tests script a failure followed by success.
	PostMessageErrs []error
	UploadErrs      []error
	CreateErr       error
	InviteErr       error

	nextTS int
	nextID int
}

// NewFake returns an empty Fake with a default bot identity.
func NewFake() *Fake {
	return &Fake{
		BotUserID:      "UBOT",
		Topics:         make(map[string]string),
		Renamed:        make(map[string]string),
		ChannelsByName: make(map[string]*slack.Channel),
		UsersByID:      make(map[string]*slack.User),
		DMByUser:       make(map[string]string),
	}
}

// AddChannel registers a workspace channel and returns it.
func (f *Fake) AddChannel(id, name string) *slack.Channel {
	ch := &slack.Channel{}
	ch.ID = id
	ch.Name = name
	f.ChannelsByName[name] = ch
	return ch
}

// AddUser registers a workspace user.
func (f *Fake) AddUser(id, name, realName, email string) *slack.User {
	u := &slack.User{ID: id, Name: name, RealName: realName}
	u.Profile.Email = email
	f.UsersByID[id] = u
	return u
}

func (f *Fake) AuthTest() (*slack.AuthTestResponse, error) {
	return &slack.AuthTestResponse{UserID: f.BotUserID}, nil
}

func (f *Fake) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.PostMessageErrs) > 0 {
		err := f.PostMessageErrs[0]
		f.PostMessageErrs = f.PostMessageErrs[1:]
		if err != nil {
			return "", "", err
		}
	}
	f.nextTS++
	ts := fmt.Sprintf("1234567890.%06d", f.nextTS)
	f.PostedMessages = append(f.PostedMessages, PostedMessage{ChannelID: channelID, Options: options})
	return channelID, ts, nil
}

func (f *Fake) UploadFileV2(params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.UploadErrs) > 0 {
		err := f.UploadErrs[0]
		f.UploadErrs = f.UploadErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.UploadedFiles = append(f.UploadedFiles, UploadedFile{Params: params})
	return &slack.FileSummary{ID: "F1", Title: params.Title}, nil
}

func (f *Fake) CreateConversation(params slack.CreateConversationParams) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if _, exists := f.ChannelsByName[params.ChannelName]; exists {
		return nil, fmt.Errorf("name_taken")
	}
	f.nextID++
	ch := &slack.Channel{}
	ch.ID = fmt.Sprintf("C%03d", f.nextID)
	ch.Name = params.ChannelName
	ch.IsPrivate = params.IsPrivate
	f.ChannelsByName[params.ChannelName] = ch
	f.CreatedChannels = append(f.CreatedChannels, params)
	return ch, nil
}

func (f *Fake) GetConversations(params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []slack.Channel
	for _, ch := range f.ChannelsByName {
		out = append(out, *ch)
	}
	return out, "", nil
}

func (f *Fake) GetConversationInfo(input *slack.GetConversationInfoInput) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.ChannelsByName {
		if ch.ID == input.ChannelID {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("channel_not_found")
}

func (f *Fake) InviteUsersToConversation(channelID string, users ...string) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InviteErr != nil {
		return nil, f.InviteErr
	}
	f.Invites = append(f.Invites, Invite{ChannelID: channelID, Users: users})
	return nil, nil
}

func (f *Fake) KickUserFromConversation(channelID, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Kicked = append(f.Kicked, channelID+":"+user)
	return nil
}

func (f *Fake) SetTopicOfConversation(channelID, topic string) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Topics[channelID] = topic
	return nil, nil
}

func (f *Fake) ArchiveConversation(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Archived = append(f.Archived, channelID)
	return nil
}

func (f *Fake) RenameConversation(channelID, name string) (*slack.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Renamed[channelID] = name
	return nil, nil
}

func (f *Fake) LeaveConversation(channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Left = append(f.Left, channelID)
	return false, nil
}

func (f *Fake) OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(params.Users) == 0 {
		return nil, false, false, fmt.Errorf("users_not_found")
	}
	dm, ok := f.DMByUser[params.Users[0]]
	if !ok {
		dm = "D" + params.Users[0]
		f.DMByUser[params.Users[0]] = dm
	}
	ch := &slack.Channel{}
	ch.ID = dm
	return ch, false, false, nil
}

func (f *Fake) GetUserInfo(userID string) (*slack.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.UsersByID[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user_not_found")
}

func (f *Fake) GetUsers(options ...slack.GetUsersOption) ([]slack.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []slack.User
	for _, u := range f.UsersByID {
		out = append(out, *u)
	}
	return out, nil
}

// TextOf returns the rendered text of the i-th posted message, or the
// empty string when out of range.
func (f *Fake) TextOf(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.PostedMessages) {
		return ""
	}
	m := f.PostedMessages[i]
	_, values, err := slack.UnsafeApplyMsgOptions("token", m.ChannelID, "https://slack.test/api/", m.Options...)
	if err != nil {
		return ""
	}
	return values.Get("text")
}

// MessagesTo returns the channel IDs of all posted messages, in order.
func (f *Fake) MessagesTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.PostedMessages {
		out = append(out, m.ChannelID)
	}
	return out
}

// InviteCount returns how many times a user was invited to a channel.
func (f *Fake) InviteCount(channelID, user string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, inv := range f.Invites {
		if inv.ChannelID != channelID {
			continue
		}
		for _, u := range inv.Users {
			if u == user {
				n++
			}
		}
	}
	return n
}
