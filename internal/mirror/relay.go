package mirror

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/casebridge/casebridge/internal/contextstore"
)

var (
	userTagPattern    = regexp.MustCompile(`<@(.*?)>`)
	channelTagPattern = regexp.MustCompile(`<#(.*?)>`)
	urlPattern        = regexp.MustCompile(`<(https?://.+?)(?:\|.+?)?>`)
)

// RelayInbound appends a channel message to every case mirrored into the
// channel whose policy allows Slack-to-case traffic. Mirrors not yet
// registered with the host are activated lazily on first traffic.
func (m *Manager) RelayInbound(ctx context.Context, channelID, text string, author *contextstore.CachedUser) error {
	snap, err := m.store.Snapshot()
	if err != nil {
		return err
	}
	mirrors := snap.MirrorsForChannel(channelID)
	if len(mirrors) == 0 {
		log.Printf("mirror: message in %s ignored, channel is not mirrored", channelID)
		return nil
	}

	var cleaned string
	for _, mir := range mirrors {
		if !mir.AllowsInbound() {
			continue
		}
		if !mir.Mirrored {
			if !mir.HasTarget() {
				continue
			}
			if err := m.Activate(ctx, mir); err != nil {
				log.Printf("mirror: lazy activation of %s failed: %v", mir.InvestigationID, err)
				continue
			}
		}
		if cleaned == "" {
			cleaned = m.CleanMessage(ctx, text)
		}
		var username, email string
		if author != nil {
			username, email = author.Name, author.Email
		}
		if err := m.host.AddEntry(ctx, mir.InvestigationID, cleaned, username, email, MessageFooter); err != nil {
			return fmt.Errorf("relay to case %s: %w", mir.InvestigationID, err)
		}
	}
	return nil
}

// CleanMessage rewrites Slack markup into plain text: <@U…> and <#C…>
// tags become resolved display names and <url|label> collapses to the
// bare URL. Unresolvable IDs are left in place.
func (m *Manager) CleanMessage(ctx context.Context, message string) string {
	ids := map[string]struct{}{}
	for _, match := range userTagPattern.FindAllStringSubmatch(message, -1) {
		ids[match[1]] = struct{}{}
	}
	for _, match := range channelTagPattern.FindAllStringSubmatch(message, -1) {
		ids[match[1]] = struct{}{}
	}
	message = userTagPattern.ReplaceAllString(message, "$1")
	message = channelTagPattern.ReplaceAllString(message, "$1")

	for id := range ids {
		name, err := m.dir.Name(ctx, id)
		if err != nil {
			log.Printf("mirror: could not resolve %s: %v", id, err)
			continue
		}
		message = strings.ReplaceAll(message, id, name)
	}
	return urlPattern.ReplaceAllString(message, "$1")
}
