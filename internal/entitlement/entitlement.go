// Package entitlement implements the compact approval-token codec.
//
// A token embeds a globally unique GUID, the owning investigation ID, and
// an optional task ID: {guid}@{investigation} or
// {guid}@{investigation}|{task}. The GUID may be wrapped in braces. The
// token travels inside free message text; Extract strips it back out so
// the remaining text is the reply body.
package entitlement

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const guidPattern = `(\{){0,1}[0-9a-fA-F]{8}\-[0-9a-fA-F]{4}\-[0-9a-fA-F]{4}\-[0-9a-fA-F]{4}\-[0-9a-fA-F]{12}(\}){0,1}`

var tokenRegex = regexp.MustCompile(fmt.Sprintf(`%s@((%s)|(?:[\d_]+))_*(\|\S+)?\b`, guidPattern, guidPattern))

// Entitlement is a decoded token.
type Entitlement struct {
	GUID            string
	InvestigationID string
	TaskID          string
}

// New builds a token for an investigation with a fresh GUID. The task ID
// is optional.
func New(investigationID, taskID string) string {
	token := uuid.NewString() + "@" + investigationID
	if taskID != "" {
		token += "|" + taskID
	}
	return token
}

// Parse splits a token into its components. A missing task ID is a valid
// case, not an error: TaskID comes back empty.
func Parse(token string) Entitlement {
	guid, rest, _ := strings.Cut(token, "@")
	investigationID, taskID, _ := strings.Cut(rest, "|")
	return Entitlement{
		GUID:            guid,
		InvestigationID: investigationID,
		TaskID:          taskID,
	}
}

// Extract parses a token and removes its first occurrence from the reply
// text, returning the remaining content alongside the components.
func Extract(token, text string) (content string, e Entitlement) {
	return strings.Replace(text, token, "", 1), Parse(token)
}

// Find scans free text for an embedded token and returns the first match,
// or the empty string when the text carries none.
func Find(text string) string {
	return tokenRegex.FindString(text)
}
