// Package contextstore persists the shared integration state: mirror
// bindings, open entitlement questions, and best-effort caches of Slack
// users and conversations. All components mutate the state through the
// optimistic read-modify-write contract of Store; nothing patches the
// persisted collections in place.
package contextstore

import "strings"

// Mirror type policy values.
const (
	MirrorTypeAll  = "all"
	MirrorTypeChat = "chat"
	MirrorTypeCase = "case"
	MirrorTypeNone = "none"
)

// Mirror direction values.
const (
	DirectionBoth    = "both"
	DirectionToSlack = "to-slack"
	DirectionToCase  = "to-case"
)

// Mirror destination kinds.
const (
	MirrorToChannel = "channel"
	MirrorToGroup   = "group"
)

// Mirror binds one investigation to one Slack channel. A channel may host
// several mirrors, but each investigation has at most one live mirror.
type Mirror struct {
	InvestigationID string `json:"investigation_id"`
	ChannelID       string `json:"channel_id"`
	ChannelName     string `json:"channel_name"`
	ChannelTopic    string `json:"channel_topic"`
	MirrorType      string `json:"mirror_type"`
	Direction       string `json:"mirror_direction"`
	MirrorTo        string `json:"mirror_to"`
	AutoClose       bool   `json:"auto_close"`
	Mirrored        bool   `json:"mirrored"`
	Remove          bool   `json:"remove,omitempty"`
}

// AllowsInbound reports whether Slack→case relay is permitted by the
// mirror's policy. Mirrors restricted to case→Slack flow and mirrors of
// type "none" never receive inbound relay.
func (m *Mirror) AllowsInbound() bool {
	return m.MirrorType != MirrorTypeNone && m.Direction != DirectionToSlack
}

// HasTarget reports whether the mirror carries everything the poller needs
// to activate it.
func (m *Mirror) HasTarget() bool {
	return m.MirrorTo != "" && m.Direction != "" && m.MirrorType != ""
}

// Question is a pending entitlement awaiting a threaded reply.
type Question struct {
	Thread          string `json:"thread"`
	Entitlement     string `json:"entitlement"`
	Reply           string `json:"reply,omitempty"`
	Expiry          string `json:"expiry,omitempty"`
	Sent            string `json:"sent,omitempty"`
	DefaultResponse string `json:"default_response,omitempty"`
	Remove          bool   `json:"remove,omitempty"`
}

// CachedUser is a locally cached Slack user record. Staleness is
// acceptable; a miss always falls back to a live lookup.
type CachedUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RealName    string `json:"real_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// CachedConversation is a locally cached Slack conversation record.
type CachedConversation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is one consistent view of the persisted state.
type Snapshot struct {
	Mirrors       []Mirror             `json:"mirrors"`
	Questions     []Question           `json:"questions"`
	Users         []CachedUser         `json:"users"`
	Conversations []CachedConversation `json:"conversations"`
	BotID         string               `json:"bot_id,omitempty"`
}

// MirrorByInvestigation returns the live mirror for an investigation, or
// nil. Mirrors flagged for removal are invisible to lookups.
func (s *Snapshot) MirrorByInvestigation(investigationID string) *Mirror {
	for i := range s.Mirrors {
		if s.Mirrors[i].Remove {
			continue
		}
		if s.Mirrors[i].InvestigationID == investigationID {
			return &s.Mirrors[i]
		}
	}
	return nil
}

// MirrorsForChannel returns all live mirrors bound to a channel.
func (s *Snapshot) MirrorsForChannel(channelID string) []*Mirror {
	var out []*Mirror
	for i := range s.Mirrors {
		if s.Mirrors[i].Remove {
			continue
		}
		if s.Mirrors[i].ChannelID == channelID {
			out = append(out, &s.Mirrors[i])
		}
	}
	return out
}

// MirrorsByChannelName returns all live mirrors whose channel carries the
// given name.
func (s *Snapshot) MirrorsByChannelName(name string) []*Mirror {
	var out []*Mirror
	for i := range s.Mirrors {
		if s.Mirrors[i].Remove {
			continue
		}
		if s.Mirrors[i].ChannelName == name {
			out = append(out, &s.Mirrors[i])
		}
	}
	return out
}

// QuestionByThread returns the open question for a thread, or nil. A
// resolved (removed) question never matches.
func (s *Snapshot) QuestionByThread(thread string) *Question {
	if thread == "" {
		return nil
	}
	for i := range s.Questions {
		if s.Questions[i].Remove {
			continue
		}
		if s.Questions[i].Thread == thread {
			return &s.Questions[i]
		}
	}
	return nil
}

// UserByID returns the cached user with the given Slack ID, or nil.
func (s *Snapshot) UserByID(id string) *CachedUser {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i]
		}
	}
	return nil
}

// UserByNameOrEmail matches a cached user by username, real name or email,
// case-insensitively.
func (s *Snapshot) UserByNameOrEmail(nameOrEmail string) *CachedUser {
	needle := lower(nameOrEmail)
	for i := range s.Users {
		u := &s.Users[i]
		if lower(u.Name) == needle || lower(u.RealName) == needle || lower(u.Email) == needle {
			return u
		}
	}
	return nil
}

// ConversationByID returns the cached conversation with the given ID, or nil.
func (s *Snapshot) ConversationByID(id string) *CachedConversation {
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return &s.Conversations[i]
		}
	}
	return nil
}

// ConversationByName matches a cached conversation by name,
// case-insensitively.
func (s *Snapshot) ConversationByName(name string) *CachedConversation {
	needle := lower(name)
	for i := range s.Conversations {
		if lower(s.Conversations[i].Name) == needle {
			return &s.Conversations[i]
		}
	}
	return nil
}

// UpsertMirror replaces the mirror keyed by investigation ID, or appends.
func (s *Snapshot) UpsertMirror(m Mirror) {
	for i := range s.Mirrors {
		if s.Mirrors[i].InvestigationID == m.InvestigationID {
			s.Mirrors[i] = m
			return
		}
	}
	s.Mirrors = append(s.Mirrors, m)
}

// UpsertQuestion replaces the question keyed by entitlement, or appends.
func (s *Snapshot) UpsertQuestion(q Question) {
	for i := range s.Questions {
		if s.Questions[i].Entitlement == q.Entitlement {
			s.Questions[i] = q
			return
		}
	}
	s.Questions = append(s.Questions, q)
}

// CacheUser replaces the cached user keyed by ID, or appends.
func (s *Snapshot) CacheUser(u CachedUser) {
	for i := range s.Users {
		if s.Users[i].ID == u.ID {
			s.Users[i] = u
			return
		}
	}
	s.Users = append(s.Users, u)
}

// CacheConversation replaces the cached conversation keyed by ID, or appends.
func (s *Snapshot) CacheConversation(c CachedConversation) {
	for i := range s.Conversations {
		if s.Conversations[i].ID == c.ID {
			s.Conversations[i] = c
			return
		}
	}
	s.Conversations = append(s.Conversations, c)
}

// compact drops entries flagged for removal. Runs on every committed write
// so removed mirrors and resolved questions never outlive one update.
func (s *Snapshot) compact() {
	mirrors := s.Mirrors[:0]
	for _, m := range s.Mirrors {
		if !m.Remove {
			mirrors = append(mirrors, m)
		}
	}
	s.Mirrors = mirrors

	questions := s.Questions[:0]
	for _, q := range s.Questions {
		if !q.Remove {
			questions = append(questions, q)
		}
	}
	s.Questions = questions
}

func lower(s string) string { return strings.ToLower(s) }
