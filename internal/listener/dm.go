package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/casebridge/casebridge/internal/casehost"
	"github.com/casebridge/casebridge/internal/contextstore"
)

var (
	jsonArgPattern = regexp.MustCompile(`json=(.*)`)
	nameArgPattern = regexp.MustCompile(`name=([^,]+)`)
	typeArgPattern = regexp.MustCompile(`type=([^,]+)`)
)

// handleDirectMessage interprets a DM to the bot: a create-incident
// command when it reads like one, otherwise an opaque pass-through to the
// host's command interpreter.
func (d *Dispatcher) handleDirectMessage(ctx context.Context, ev *slackevents.MessageEvent) error {
	author, err := d.dir.UserByID(ctx, ev.User)
	if err != nil {
		return fmt.Errorf("resolve DM author: %w", err)
	}

	var reply string
	lowered := strings.ToLower(ev.Text)
	if strings.Contains(lowered, "incident") &&
		(strings.Contains(lowered, "create") || strings.Contains(lowered, "open") || strings.Contains(lowered, "new")) {
		reply = d.translateCreate(ctx, ev.Text, author)
	} else {
		reply, err = d.host.DirectMessage(ctx, ev.Text, author.Name, author.Email, d.cfg.AllowIncidents)
		if err != nil {
			return fmt.Errorf("host direct message: %w", err)
		}
	}
	if reply == "" {
		return nil
	}

	dm, _, _, err := d.api.OpenConversation(&slack.OpenConversationParameters{Users: []string{ev.User}})
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", ev.User, err)
	}
	if _, _, err := d.api.PostMessage(dm.ID, slack.MsgOptionText(reply, false)); err != nil {
		return fmt.Errorf("reply to DM: %w", err)
	}
	return nil
}

// translateCreate parses the create-incident grammar and files the
// incidents. All outcomes, including usage errors, are returned as the
// reply text.
func (d *Dispatcher) translateCreate(ctx context.Context, text string, author *contextstore.CachedUser) string {
	hostUser, err := d.host.FindUser(ctx, author.Email, author.Name)
	if err != nil {
		log.Printf("listener: host user lookup failed: %v", err)
	}
	if hostUser == nil && !d.cfg.AllowIncidents {
		return "You are not allowed to create incidents."
	}

	jsonMatch := jsonArgPattern.FindStringSubmatch(text)
	nameMatch := nameArgPattern.FindStringSubmatch(text)
	typeMatch := typeArgPattern.FindStringSubmatch(text)

	var incidents []casehost.Incident
	switch {
	case jsonMatch != nil && (nameMatch != nil || typeMatch != nil):
		return "No other properties other than json should be specified."
	case jsonMatch != nil:
		incidents, err = parseIncidentsJSON(jsonMatch[1])
		if err != nil {
			return fmt.Sprintf("Invalid incident JSON: %v", err)
		}
	case nameMatch != nil:
		incident := casehost.Incident{Name: strings.TrimSpace(nameMatch[1]), Type: d.cfg.IncidentType}
		if typeMatch != nil {
			incident.Type = strings.TrimSpace(typeMatch[1])
		}
		incidents = []casehost.Incident{incident}
	default:
		return "Please specify arguments in the following manner: name=<name> type=[type] or json=<json>."
	}

	var onBehalfOf string
	if hostUser != nil {
		onBehalfOf = hostUser.ID
	} else {
		for i := range incidents {
			incidents[i].Labels = append(incidents[i].Labels,
				casehost.Label{Type: "Reporter", Value: author.Name},
				casehost.Label{Type: "ReporterEmail", Value: author.Email},
			)
		}
	}

	created, err := d.host.CreateIncidents(ctx, incidents, onBehalfOf)
	if err != nil || len(created) == 0 {
		log.Printf("listener: incident creation failed: %v", err)
		return "Sorry, I could not perform the selected operation."
	}

	links, err := d.host.URLs(ctx)
	if err != nil {
		log.Printf("listener: could not fetch host links: %v", err)
		links = &casehost.Links{}
	}
	var lines []string
	for _, incident := range created {
		lines = append(lines, fmt.Sprintf("Successfully created incident %s.\n View it on: %s#/WarRoom/%s",
			incident.Name, links.Server, incident.ID))
	}
	return strings.Join(lines, "\n")
}

// parseIncidentsJSON accepts a single incident object or an array.
func parseIncidentsJSON(raw string) ([]casehost.Incident, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var incidents []casehost.Incident
		if err := json.Unmarshal([]byte(raw), &incidents); err != nil {
			return nil, err
		}
		return incidents, nil
	}
	var incident casehost.Incident
	if err := json.Unmarshal([]byte(raw), &incident); err != nil {
		return nil, err
	}
	return []casehost.Incident{incident}, nil
}
