package casehost

import "context"

// scoped pins the investigation a command operates on, overriding the
// host's notion of the current case.
type scoped struct {
	Client
	id string
}

// WithInvestigation returns a client whose Investigation is fixed to the
// given ID. Used by the CLI's --investigation flag.
func WithInvestigation(c Client, id string) Client {
	if id == "" {
		return c
	}
	return &scoped{Client: c, id: id}
}

func (s *scoped) Investigation(ctx context.Context) (*Investigation, error) {
	if inv, err := s.Client.Investigation(ctx); err == nil && inv.ID == s.id {
		return inv, nil
	}
	return &Investigation{ID: s.id}, nil
}
