// Package sender implements the outbound path: resolving a logical
// destination to a channel, posting messages and files, and persisting
// entitlement questions so threaded replies can be routed back.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/mirror"
	"github.com/casebridge/casebridge/internal/slackapi"
)

const (
	// MirrorEntryType marks messages produced by the host's mirror-out
	// machinery.
	MirrorEntryType = "mirrorEntry"
	// IncidentOpenedType marks new-incident notifications.
	IncidentOpenedType = "incidentOpened"
	// NotificationChannelAlias routes a message to the configured
	// dedicated channel.
	NotificationChannelAlias = "incidentNotificationChannel"

	sentTimeFormat = "2006-01-02 15:04:05"
)

// ErrSkipped reports that gating (echo suppression, tag filtering,
// severity threshold) decided not to send. Not a failure.
var ErrSkipped = errors.New("message not sent")

// Config is the send-path policy.
type Config struct {
	DedicatedChannel  string
	NotifyIncidents   bool
	SeverityThreshold float64
	FilteredTags      []string
}

// Sender resolves destinations and posts.
type Sender struct {
	bot   slackapi.API
	admin slackapi.API
	store contextstore.Store
	host  casehost.Client
	dir   *slackapi.Directory
	cfg   Config
}

func New(bot, admin slackapi.API, store contextstore.Store, host casehost.Client, dir *slackapi.Directory, cfg Config) *Sender {
	return &Sender{bot: bot, admin: admin, store: store, host: host, dir: dir, cfg: cfg}
}

// Request is one outbound message. Exactly one of To, Channel, ChannelID
// or Group names the destination.
type Request struct {
	To        string
	Channel   string
	ChannelID string
	Group     string

	Message  string
	Blocks   string // Block Kit JSON array
	Entry    string
	ThreadID string

	IgnoreAddURL    bool
	MessageType     string
	OriginalMessage string
	Severity        float64
	EntryTags       []string
}

// envelope is the entitlement wrapper the host embeds in a message or
// blocks payload.
type envelope struct {
	Entitlement     string          `json:"entitlement"`
	Message         string          `json:"message"`
	Blocks          json.RawMessage `json:"blocks"`
	Reply           string          `json:"reply"`
	Expiry          string          `json:"expiry"`
	DefaultResponse string          `json:"default_response"`
}

// Send posts a message and returns the thread timestamp. Suppressed
// messages return ErrSkipped.
func (s *Sender) Send(ctx context.Context, req Request) (string, error) {
	if req.MessageType == MirrorEntryType && strings.Contains(req.OriginalMessage, mirror.MessageFooter) {
		// Echo of a message we relayed in; sending it back loops.
		return "", ErrSkipped
	}
	if req.MessageType == MirrorEntryType && len(s.cfg.FilteredTags) > 0 && !anyTagMatches(req.EntryTags, s.cfg.FilteredTags) {
		return "", ErrSkipped
	}

	channel := req.Channel
	if channel == NotificationChannelAlias || (channel == "" && req.MessageType == IncidentOpenedType) {
		if !s.cfg.NotifyIncidents || s.cfg.DedicatedChannel == "" {
			return "", errors.New("no dedicated channel configured for incident notifications")
		}
		if req.Severity < s.cfg.SeverityThreshold {
			return "", ErrSkipped
		}
		channel = s.cfg.DedicatedChannel
	}

	destinationID, err := s.resolve(ctx, req.To, channel, req.ChannelID, req.Group)
	if err != nil {
		return "", err
	}

	message, blocks := req.Message, req.Blocks
	var env *envelope
	if e := parseEnvelope(message); e != nil {
		env = e
		message = e.Message
	} else if e := parseEnvelope(blocks); e != nil {
		env = e
		blocks = string(e.Blocks)
	}

	if message == "" {
		if blocks != "" {
			message = "New message from SOC Bot"
		} else {
			message = "\n"
		}
	}
	if !req.IgnoreAddURL && (req.MessageType == IncidentOpenedType || req.Entry != "") {
		if link := s.warRoomLink(ctx, req.Entry); link != "" {
			message += "\nView it on: " + link
		}
	}

	options := []slack.MsgOption{slack.MsgOptionText(message, false)}
	if blocks != "" {
		var parsed slack.Blocks
		if err := json.Unmarshal([]byte(blocks), &parsed); err != nil {
			return "", fmt.Errorf("parse blocks: %w", err)
		}
		options = append(options, slack.MsgOptionBlocks(parsed.BlockSet...))
	}
	if req.ThreadID != "" {
		options = append(options, slack.MsgOptionTS(req.ThreadID))
	}

	ts, err := s.postWithSelfHeal(ctx, destinationID, options)
	if err != nil {
		return "", err
	}

	if env != nil && env.Entitlement != "" {
		question := contextstore.Question{
			Thread:          ts,
			Entitlement:     env.Entitlement,
			Reply:           env.Reply,
			Expiry:          env.Expiry,
			DefaultResponse: env.DefaultResponse,
			Sent:            time.Now().UTC().Format(sentTimeFormat),
		}
		if _, err := s.store.Update(ctx, func(snap *contextstore.Snapshot) error {
			snap.UpsertQuestion(question)
			return nil
		}); err != nil {
			return "", fmt.Errorf("save question: %w", err)
		}
	}
	return ts, nil
}

// FileRequest is one outbound file upload.
type FileRequest struct {
	To        string
	Channel   string
	ChannelID string
	Group     string

	Path     string
	Name     string
	Size     int
	Comment  string
	ThreadID string
}

// SendFile uploads a file. With no destination it defaults to the current
// investigation's mirror channel.
func (s *Sender) SendFile(ctx context.Context, req FileRequest) error {
	destinationID := req.ChannelID
	if destinationID == "" && req.To == "" && req.Channel == "" && req.Group == "" {
		investigation, err := s.host.Investigation(ctx)
		if err != nil {
			return err
		}
		snap, err := s.store.Snapshot()
		if err != nil {
			return err
		}
		mir := snap.MirrorByInvestigation(investigation.ID)
		if mir == nil {
			return errors.New("either a user, group or channel must be provided")
		}
		destinationID = mir.ChannelID
	}
	if destinationID == "" {
		var err error
		destinationID, err = s.resolve(ctx, req.To, req.Channel, "", req.Group)
		if err != nil {
			return err
		}
	}

	params := slack.UploadFileV2Parameters{
		File:           req.Path,
		FileSize:       req.Size,
		Filename:       req.Name,
		Title:          req.Name,
		InitialComment: req.Comment,
		Channel:        destinationID,
		ThreadTimestamp: req.ThreadID,
	}
	if _, err := s.bot.UploadFileV2(params); err != nil {
		if !slackapi.IsMembershipError(err) {
			return fmt.Errorf("upload file: %w", err)
		}
		if err := s.inviteBot(ctx, destinationID); err != nil {
			return err
		}
		if _, err := s.bot.UploadFileV2(params); err != nil {
			return fmt.Errorf("upload file after invite: %w", err)
		}
	}
	return nil
}

// resolve maps the logical destination to a conversation ID.
func (s *Sender) resolve(ctx context.Context, to, channel, channelID, group string) (string, error) {
	destinations := 0
	for _, d := range []string{to, channel, group} {
		if d != "" {
			destinations++
		}
	}
	if destinations > 1 {
		return "", errors.New("only one destination can be provided")
	}
	if destinations == 0 && channelID == "" {
		return "", errors.New("either a user, group or channel must be provided")
	}
	if channelID != "" {
		return channelID, nil
	}

	if to != "" {
		user, err := s.dir.UserByNameOrEmail(ctx, to, true)
		if err != nil {
			return "", err
		}
		if user == nil {
			return "", fmt.Errorf("user %s not found", to)
		}
		dm, _, _, err := s.bot.OpenConversation(&slack.OpenConversationParameters{Users: []string{user.ID}})
		if err != nil {
			return "", fmt.Errorf("open conversation with %s: %w", to, err)
		}
		return dm.ID, nil
	}

	name := channel
	if name == "" {
		name = group
	}
	snap, err := s.store.Snapshot()
	if err != nil {
		return "", err
	}
	if mirrors := snap.MirrorsByChannelName(name); len(mirrors) > 0 {
		return mirrors[0].ChannelID, nil
	}
	conv, err := s.dir.ConversationByName(ctx, name)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return "", fmt.Errorf("could not find the Slack conversation %s", name)
	}
	return conv.ID, nil
}

func (s *Sender) postWithSelfHeal(ctx context.Context, channelID string, options []slack.MsgOption) (string, error) {
	_, ts, err := s.bot.PostMessage(channelID, options...)
	if err == nil {
		return ts, nil
	}
	if !slackapi.IsMembershipError(err) {
		return "", fmt.Errorf("post to %s: %w", channelID, err)
	}
	if err := s.inviteBot(ctx, channelID); err != nil {
		return "", err
	}
	_, ts, err = s.bot.PostMessage(channelID, options...)
	if err != nil {
		return "", fmt.Errorf("post to %s after invite: %w", channelID, err)
	}
	return ts, nil
}

func (s *Sender) inviteBot(ctx context.Context, channelID string) error {
	botID, err := s.dir.BotID(ctx)
	if err != nil {
		return err
	}
	if _, err := s.admin.InviteUsersToConversation(channelID, botID); err != nil && !slackapi.IsBenignInviteError(err) {
		return fmt.Errorf("invite bot to %s: %w", channelID, err)
	}
	return nil
}

func (s *Sender) warRoomLink(ctx context.Context, entry string) string {
	links, err := s.host.URLs(ctx)
	if err != nil {
		log.Printf("sender: could not fetch host links: %v", err)
		return ""
	}
	investigation, err := s.host.Investigation(ctx)
	if err == nil && investigation.Type == casehost.PlaygroundInvestigationType {
		return links.Server + "#/home"
	}
	link := links.WarRoom
	if entry != "" {
		link += "/" + entry
	}
	return link
}

// parseEnvelope decodes an entitlement wrapper. Anything that is not a
// JSON object with an entitlement key is plain content.
func parseEnvelope(raw string) *envelope {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Entitlement == "" {
		return nil
	}
	return &env
}

func anyTagMatches(tags, filtered []string) bool {
	for _, tag := range tags {
		for _, f := range filtered {
			if tag == f {
				return true
			}
		}
	}
	return false
}
