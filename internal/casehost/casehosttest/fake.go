// Package casehosttest provides a scriptable in-memory casehost.Client
// for tests.
package casehosttest

import (
	"context"
	"sync"

	"github.com/casebridge/casebridge/internal/casehost"
)

// Entry records one AddEntry call.
type Entry struct {
	InvestigationID string
	Text            string
	Username        string
	Email           string
	Footer          string
}

// MirrorCall records one MirrorInvestigation call.
type MirrorCall struct {
	InvestigationID string
	Mode            string
	AutoClose       bool
}

// EntitlementCall records one HandleEntitlement call.
type EntitlementCall struct {
	InvestigationID string
	GUID            string
	Email           string
	Content         string
	TaskID          string
}

// DirectMessageCall records one DirectMessage call.
type DirectMessageCall struct {
	Text           string
	Username       string
	Email          string
	AllowIncidents bool
}

// Fake implements casehost.Client. Zero value is usable; configure the
// response fields and inspect the captured-call slices afterward.
type Fake struct {
	mu sync.Mutex

	Inv    *casehost.Investigation
	InvErr error

	Created   []casehost.CreatedIncident
	CreateErr error

	MirrorUsers []casehost.User
	MirrorErr   error

	Users map[string]*casehost.User // keyed by email and username

	DirectReply string
	DirectErr   error

	EntitlementErr error
	AddEntryErr    error

	Links *casehost.Links

	Entries        []Entry
	MirrorCalls    []MirrorCall
	Incidents      [][]casehost.Incident
	OnBehalfOf     []string
	Entitlements   []EntitlementCall
	DirectMessages []DirectMessageCall
	HealthUpdates  []string
}

var _ casehost.Client = (*Fake)(nil)

func (f *Fake) Investigation(ctx context.Context) (*casehost.Investigation, error) {
	if f.InvErr != nil {
		return nil, f.InvErr
	}
	if f.Inv != nil {
		return f.Inv, nil
	}
	return &casehost.Investigation{ID: "1", Type: 1}, nil
}

func (f *Fake) CreateIncidents(ctx context.Context, incidents []casehost.Incident, onBehalfOf string) ([]casehost.CreatedIncident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Incidents = append(f.Incidents, incidents)
	f.OnBehalfOf = append(f.OnBehalfOf, onBehalfOf)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return f.Created, nil
}

func (f *Fake) AddEntry(ctx context.Context, investigationID, text, username, email, footer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Entries = append(f.Entries, Entry{
		InvestigationID: investigationID,
		Text:            text,
		Username:        username,
		Email:           email,
		Footer:          footer,
	})
	return f.AddEntryErr
}

func (f *Fake) MirrorInvestigation(ctx context.Context, investigationID, mode string, autoClose bool) ([]casehost.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MirrorCalls = append(f.MirrorCalls, MirrorCall{InvestigationID: investigationID, Mode: mode, AutoClose: autoClose})
	if f.MirrorErr != nil {
		return nil, f.MirrorErr
	}
	return f.MirrorUsers, nil
}

func (f *Fake) FindUser(ctx context.Context, email, username string) (*casehost.User, error) {
	if u, ok := f.Users[email]; ok {
		return u, nil
	}
	if u, ok := f.Users[username]; ok {
		return u, nil
	}
	return nil, nil
}

func (f *Fake) HandleEntitlement(ctx context.Context, investigationID, guid, email, content, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Entitlements = append(f.Entitlements, EntitlementCall{
		InvestigationID: investigationID,
		GUID:            guid,
		Email:           email,
		Content:         content,
		TaskID:          taskID,
	})
	return f.EntitlementErr
}

func (f *Fake) DirectMessage(ctx context.Context, text, username, email string, allowIncidents bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DirectMessages = append(f.DirectMessages, DirectMessageCall{
		Text:           text,
		Username:       username,
		Email:          email,
		AllowIncidents: allowIncidents,
	})
	if f.DirectErr != nil {
		return "", f.DirectErr
	}
	return f.DirectReply, nil
}

func (f *Fake) UpdateModuleHealth(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HealthUpdates = append(f.HealthUpdates, message)
	return nil
}

func (f *Fake) URLs(ctx context.Context) (*casehost.Links, error) {
	if f.Links != nil {
		return f.Links, nil
	}
	return &casehost.Links{Server: "https://host.example/", WarRoom: "https://host.example/#/WarRoom/"}, nil
}
