// Package casehost talks to the case-management host: the system that owns
// investigations, notes, users and entitlement resolution. The bridge only
// consumes this surface; everything behind it is the host's business.
package casehost

import "context"

// PlaygroundInvestigationType marks the host's scratch investigation.
// Mirroring the playground is rejected.
const PlaygroundInvestigationType = 9

// Investigation is the case record the current command operates on.
type Investigation struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Users []User `json:"users,omitempty"`
}

// User is a case-system user identity.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Incident is a creation request forwarded from chat.
type Incident struct {
	Name   string  `json:"name"`
	Type   string  `json:"type,omitempty"`
	Labels []Label `json:"labels,omitempty"`
}

// Label annotates an incident with contextual metadata.
type Label struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// CreatedIncident is the host's creation result.
type CreatedIncident struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Links are the host's externally reachable URLs, used to decorate
// outbound messages.
type Links struct {
	Server  string `json:"server"`
	WarRoom string `json:"warRoom"`
}

// Client is the host calling convention consumed by the bridge. Errors are
// per-call; no method is fatal to the process.
type Client interface {
	// Investigation returns the case context of the current invocation.
	Investigation(ctx context.Context) (*Investigation, error)

	// CreateIncidents files new incidents, optionally on behalf of a known
	// host user.
	CreateIncidents(ctx context.Context, incidents []Incident, onBehalfOf string) ([]CreatedIncident, error)

	// AddEntry appends a note to an investigation with sender attribution
	// and a fixed footer.
	AddEntry(ctx context.Context, investigationID, text, username, email, footer string) error

	// MirrorInvestigation registers or updates mirroring for a case. The
	// mode is "type:direction". Returns the case's users so they can be
	// invited to the mirrored channel.
	MirrorInvestigation(ctx context.Context, investigationID, mode string, autoClose bool) ([]User, error)

	// FindUser locates a host user by email or username. A nil user with a
	// nil error means no match.
	FindUser(ctx context.Context, email, username string) (*User, error)

	// HandleEntitlement resolves an approval back to the originating case.
	HandleEntitlement(ctx context.Context, investigationID, guid, email, content, taskID string) error

	// DirectMessage forwards an unrecognized direct message to the host's
	// command interpreter and returns its textual response.
	DirectMessage(ctx context.Context, text, username, email string, allowIncidents bool) (string, error)

	// UpdateModuleHealth reports the integration's health. An empty
	// message clears a previously reported degradation.
	UpdateModuleHealth(ctx context.Context, message string) error

	// URLs returns the host's externally reachable links.
	URLs(ctx context.Context) (*Links, error)
}
