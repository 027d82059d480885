// Package listener runs the long-lived event side of the bridge: the
// Socket Mode dispatcher that turns Slack events into case actions, and
// the background poller that activates pending mirrors.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/contextstore"
	"github.com/casebridge/casebridge/internal/entitlement"
	"github.com/casebridge/casebridge/internal/health"
	"github.com/casebridge/casebridge/internal/mirror"
	"github.com/casebridge/casebridge/internal/slackapi"
)

const (
	defaultEntitlementReply = "Thank you for your response."
	defaultActionReply      = "Thank you for your reply."
)

// Config is the listener policy.
type Config struct {
	AllowIncidents bool
	IncidentType   string
}

// Dispatcher consumes the Socket Mode event stream. Every event is
// handled in isolation: a failure degrades module health and the loop
// moves on.
type Dispatcher struct {
	socket  *socketmode.Client
	api     slackapi.API
	store   contextstore.Store
	host    casehost.Client
	mirrors *mirror.Manager
	dir     *slackapi.Directory
	status  *health.Status
	cfg     Config
	metrics *metrics

	botUserID string
}

// NewDispatcher wires the dispatcher. socket may be nil in tests that
// drive the handlers directly.
func NewDispatcher(socket *socketmode.Client, api slackapi.API, store contextstore.Store, host casehost.Client, mirrors *mirror.Manager, dir *slackapi.Directory, status *health.Status, cfg Config) *Dispatcher {
	return &Dispatcher{
		socket:  socket,
		api:     api,
		store:   store,
		host:    host,
		mirrors: mirrors,
		dir:     dir,
		status:  status,
		cfg:     cfg,
		metrics: newMetrics(),
	}
}

// Run starts the event loop. Blocks until the context is canceled or the
// connection fails permanently.
func (d *Dispatcher) Run(ctx context.Context) error {
	authResp, err := d.api.AuthTest()
	if err != nil {
		log.Printf("listener: warning: could not resolve bot user ID: %v", err)
	} else {
		d.botUserID = authResp.UserID
		log.Printf("listener: bot user ID: %s", d.botUserID)
	}

	go func() {
		for evt := range d.socket.Events {
			d.handleEvent(ctx, evt)
		}
	}()

	return d.socket.RunContext(ctx)
}

func (d *Dispatcher) handleEvent(ctx context.Context, evt socketmode.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("listener: panic handling %s event: %v", evt.Type, r)
			d.status.Degrade(ctx, fmt.Sprintf("listener panic: %v", r))
		}
	}()

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		log.Println("listener: connecting to Socket Mode...")

	case socketmode.EventTypeConnected:
		log.Println("listener: connected to Socket Mode")
		d.status.SetConnected(true)

	case socketmode.EventTypeConnectionError:
		log.Printf("listener: connection error: %v", evt.Data)
		d.status.SetConnected(false)
		d.status.Degrade(ctx, fmt.Sprintf("connection error: %v", evt.Data))

	case socketmode.EventTypeIncomingError,
		socketmode.EventTypeErrorBadMessage,
		socketmode.EventTypeErrorWriteFailed:
		log.Printf("listener: %s error frame: %v", evt.Type, evt.Data)
		d.status.Degrade(ctx, fmt.Sprintf("listener error: %v", evt.Data))

	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		d.socket.Ack(*evt.Request)
		d.handleEventsAPI(ctx, eventsAPIEvent)

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		d.socket.Ack(*evt.Request)
		d.HandleInteraction(ctx, callback)
	}
}

func (d *Dispatcher) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		d.HandleMessage(ctx, ev)
	}
}

// HandleMessage processes one message event end to end. Success clears
// module health; any error degrades it and is swallowed.
func (d *Dispatcher) HandleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	d.metrics.events.Add(ctx, 1)
	if err := d.processMessage(ctx, ev); err != nil {
		log.Printf("listener: message in %s failed: %v", ev.Channel, err)
		d.status.Degrade(ctx, err.Error())
		return
	}
	d.status.Clear(ctx)
}

func (d *Dispatcher) processMessage(ctx context.Context, ev *slackevents.MessageEvent) error {
	// Our own traffic echoes back through the event stream.
	if ev.BotID != "" || (d.botUserID != "" && ev.User == d.botUserID) {
		return nil
	}
	if ev.SubType != "" && ev.SubType != "file_share" {
		return nil
	}

	text := ev.Text
	if token := entitlement.Find(text); token != "" {
		return d.resolveTextEntitlement(ctx, ev, token, text)
	}
	if ev.ThreadTimeStamp != "" {
		handled, err := d.resolveThreadReply(ctx, ev)
		if handled || err != nil {
			return err
		}
	}
	if strings.HasPrefix(ev.Channel, "D") {
		return d.handleDirectMessage(ctx, ev)
	}

	author, err := d.dir.UserByID(ctx, ev.User)
	if err != nil {
		log.Printf("listener: could not resolve author %s: %v", ev.User, err)
	}
	d.metrics.relays.Add(ctx, 1)
	return d.mirrors.RelayInbound(ctx, ev.Channel, text, author)
}

// resolveTextEntitlement handles a free-text reply carrying an embedded
// entitlement token.
func (d *Dispatcher) resolveTextEntitlement(ctx context.Context, ev *slackevents.MessageEvent, token, text string) error {
	content, ent := entitlement.Extract(token, text)
	content = strings.TrimSpace(content)

	var email string
	if author, err := d.dir.UserByID(ctx, ev.User); err == nil && author != nil {
		email = author.Email
	}
	if err := d.host.HandleEntitlement(ctx, ent.InvestigationID, ent.GUID, email, content, ent.TaskID); err != nil {
		return fmt.Errorf("resolve entitlement: %w", err)
	}
	d.metrics.entitlements.Add(ctx, 1)
	d.reply(ev.Channel, threadOf(ev), defaultEntitlementReply)
	return nil
}

// resolveThreadReply matches a threaded reply against an open question.
// Returns handled=false when no question is waiting on the thread.
func (d *Dispatcher) resolveThreadReply(ctx context.Context, ev *slackevents.MessageEvent) (bool, error) {
	snap, err := d.store.Snapshot()
	if err != nil {
		return false, err
	}
	question := snap.QuestionByThread(ev.ThreadTimeStamp)
	if question == nil {
		return false, nil
	}

	ent := entitlement.Parse(question.Entitlement)
	var email string
	if author, err := d.dir.UserByID(ctx, ev.User); err == nil && author != nil {
		email = author.Email
	}
	if err := d.host.HandleEntitlement(ctx, ent.InvestigationID, ent.GUID, email, ev.Text, ent.TaskID); err != nil {
		return true, fmt.Errorf("resolve entitlement: %w", err)
	}
	d.metrics.entitlements.Add(ctx, 1)

	reply := question.Reply
	if reply == "" {
		reply = defaultEntitlementReply
	}
	d.reply(ev.Channel, ev.ThreadTimeStamp, reply)

	// The question is single-shot.
	thread := ev.ThreadTimeStamp
	_, err = d.store.Update(ctx, func(s *contextstore.Snapshot) error {
		if q := s.QuestionByThread(thread); q != nil {
			q.Remove = true
		}
		return nil
	})
	return true, err
}

// actionPayload is the entitlement envelope a block-action button carries
// in its value.
type actionPayload struct {
	Entitlement string `json:"entitlement"`
	Reply       string `json:"reply"`
}

// HandleInteraction processes block actions: a clicked button resolves
// its entitlement with the button's label as the answer.
func (d *Dispatcher) HandleInteraction(ctx context.Context, callback slack.InteractionCallback) {
	d.metrics.events.Add(ctx, 1)
	for _, action := range callback.ActionCallback.BlockActions {
		var payload actionPayload
		if err := json.Unmarshal([]byte(action.Value), &payload); err != nil || payload.Entitlement == "" {
			continue
		}

		answer := action.Value
		if action.Text.Text != "" {
			answer = action.Text.Text
		}
		ent := entitlement.Parse(payload.Entitlement)
		var email string
		if author, err := d.dir.UserByID(ctx, callback.User.ID); err == nil && author != nil {
			email = author.Email
		}
		if err := d.host.HandleEntitlement(ctx, ent.InvestigationID, ent.GUID, email, answer, ent.TaskID); err != nil {
			log.Printf("listener: block action entitlement failed: %v", err)
			d.status.Degrade(ctx, err.Error())
			continue
		}
		d.metrics.entitlements.Add(ctx, 1)

		reply := payload.Reply
		if reply == "" {
			reply = defaultActionReply
		}
		d.reply(callback.Channel.ID, callback.Message.Timestamp, reply)

		ent2 := payload.Entitlement
		if _, err := d.store.Update(ctx, func(s *contextstore.Snapshot) error {
			for i := range s.Questions {
				if s.Questions[i].Entitlement == ent2 {
					s.Questions[i].Remove = true
				}
			}
			return nil
		}); err != nil {
			log.Printf("listener: could not retire question: %v", err)
		}
		d.status.Clear(ctx)
	}
}

func (d *Dispatcher) reply(channelID, thread, text string) {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if thread != "" {
		options = append(options, slack.MsgOptionTS(thread))
	}
	if _, _, err := d.api.PostMessage(channelID, options...); err != nil {
		log.Printf("listener: could not reply in %s: %v", channelID, err)
	}
}

func threadOf(ev *slackevents.MessageEvent) string {
	if ev.ThreadTimeStamp != "" {
		return ev.ThreadTimeStamp
	}
	return ev.TimeStamp
}
