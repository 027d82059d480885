package slackapi

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/casebridge/casebridge/internal/contextstore"
)

// Directory resolves Slack users and conversations by name or ID, checking
// the persisted caches before hitting the live API. Cache entries are
// best-effort: staleness is acceptable and a miss always falls back to a
// live query whose result is cached for next time.
type Directory struct {
	api            API
	store          contextstore.Store
	paginatedCount int
}

// NewDirectory builds a Directory over the given client and store.
// paginatedCount bounds each page of live list calls.
func NewDirectory(api API, store contextstore.Store, paginatedCount int) *Directory {
	if paginatedCount <= 0 {
		paginatedCount = 200
	}
	return &Directory{api: api, store: store, paginatedCount: paginatedCount}
}

// BotID returns the bot's own user ID, cached in the context store after
// the first auth lookup.
func (d *Directory) BotID(ctx context.Context) (string, error) {
	snap, err := d.store.Snapshot()
	if err != nil {
		return "", err
	}
	if snap.BotID != "" {
		return snap.BotID, nil
	}

	resp, err := d.api.AuthTest()
	if err != nil {
		return "", fmt.Errorf("resolve bot identity: %w", err)
	}

	if _, err := d.store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.BotID = resp.UserID
		return nil
	}); err != nil {
		log.Printf("slackapi: could not cache bot id: %v", err)
	}
	return resp.UserID, nil
}

// ConversationByName finds a conversation by name, cache first, then a
// paginated live listing. The live result is cached.
func (d *Directory) ConversationByName(ctx context.Context, name string) (*contextstore.CachedConversation, error) {
	snap, err := d.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if cached := snap.ConversationByName(name); cached != nil {
		return cached, nil
	}

	var cursor string
	for {
		channels, next, err := d.api.GetConversations(&slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel"},
			Limit:           d.paginatedCount,
			Cursor:          cursor,
			ExcludeArchived: true,
		})
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				conv := contextstore.CachedConversation{ID: ch.ID, Name: ch.Name}
				d.cacheConversation(ctx, conv)
				return &conv, nil
			}
		}
		if next == "" {
			return nil, nil
		}
		cursor = next
	}
}

// ConversationName resolves a conversation ID to its name, cache first.
func (d *Directory) ConversationName(ctx context.Context, conversationID string) (string, error) {
	// IDs embed an optional display suffix after a pipe.
	conversationID, _, _ = strings.Cut(conversationID, "|")

	snap, err := d.store.Snapshot()
	if err != nil {
		return "", err
	}
	if cached := snap.ConversationByID(conversationID); cached != nil {
		return cached.Name, nil
	}

	info, err := d.api.GetConversationInfo(&slack.GetConversationInfoInput{ChannelID: conversationID})
	if err != nil {
		return "", fmt.Errorf("conversation info %s: %w", conversationID, err)
	}
	d.cacheConversation(ctx, contextstore.CachedConversation{ID: info.ID, Name: info.Name})
	return info.Name, nil
}

// UserByID returns a user by Slack ID, cache first, live fallback.
func (d *Directory) UserByID(ctx context.Context, userID string) (*contextstore.CachedUser, error) {
	snap, err := d.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if cached := snap.UserByID(userID); cached != nil {
		return cached, nil
	}

	info, err := d.api.GetUserInfo(userID)
	if err != nil {
		return nil, fmt.Errorf("user info %s: %w", userID, err)
	}
	user := cachedUserFromSlack(info)
	d.cacheUser(ctx, user)
	return &user, nil
}

// UserByNameOrEmail finds a user by username, real name, or email, cache
// first then a full workspace listing. cache controls whether a live hit
// is written back; skipping the write keeps lookups done on behalf of
// other systems from growing the cache unboundedly.
func (d *Directory) UserByNameOrEmail(ctx context.Context, nameOrEmail string, cache bool) (*contextstore.CachedUser, error) {
	snap, err := d.store.Snapshot()
	if err != nil {
		return nil, err
	}
	if cached := snap.UserByNameOrEmail(nameOrEmail); cached != nil {
		return cached, nil
	}

	users, err := d.api.GetUsers(slack.GetUsersOptionLimit(d.paginatedCount))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	needle := strings.ToLower(nameOrEmail)
	for i := range users {
		u := cachedUserFromSlack(&users[i])
		if strings.ToLower(u.Name) == needle ||
			strings.ToLower(u.RealName) == needle ||
			strings.ToLower(u.Email) == needle {
			if cache {
				d.cacheUser(ctx, u)
			}
			return &u, nil
		}
	}
	return nil, nil
}

// Name resolves a Slack ID (user or conversation, by prefix) to its
// display name. Unknown prefixes resolve to empty.
func (d *Directory) Name(ctx context.Context, slackID string) (string, error) {
	if slackID == "" {
		return "", nil
	}
	switch slackID[0] {
	case 'C', 'D', 'G':
		return d.ConversationName(ctx, slackID)
	case 'U':
		user, err := d.UserByID(ctx, slackID)
		if err != nil {
			return "", err
		}
		return user.Name, nil
	}
	return "", nil
}

func (d *Directory) cacheConversation(ctx context.Context, conv contextstore.CachedConversation) {
	if _, err := d.store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.CacheConversation(conv)
		return nil
	}); err != nil {
		log.Printf("slackapi: could not cache conversation %s: %v", conv.ID, err)
	}
}

func (d *Directory) cacheUser(ctx context.Context, user contextstore.CachedUser) {
	if _, err := d.store.Update(ctx, func(s *contextstore.Snapshot) error {
		s.CacheUser(user)
		return nil
	}); err != nil {
		log.Printf("slackapi: could not cache user %s: %v", user.ID, err)
	}
}

func cachedUserFromSlack(u *slack.User) contextstore.CachedUser {
	return contextstore.CachedUser{
		ID:          u.ID,
		Name:        u.Name,
		RealName:    u.RealName,
		DisplayName: u.Profile.DisplayName,
		Email:       u.Profile.Email,
	}
}
