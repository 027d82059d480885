package entitlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithTask(t *testing.T) {
	e := Parse("4404dae8-2d45-46bd-85fa-64779c12abe8@22|43")

	assert.Equal(t, "4404dae8-2d45-46bd-85fa-64779c12abe8", e.GUID)
	assert.Equal(t, "22", e.InvestigationID)
	assert.Equal(t, "43", e.TaskID)
}

func TestParseWithoutTask(t *testing.T) {
	e := Parse("4404dae8-2d45-46bd-85fa-64779c12abe8@22")

	assert.Equal(t, "22", e.InvestigationID)
	assert.Empty(t, e.TaskID)
}

func TestExtractRemovesTokenOnce(t *testing.T) {
	token := "4404dae8-2d45-46bd-85fa-64779c12abe8@22|43"
	content, e := Extract(token, "goodbye "+token)

	assert.Equal(t, "goodbye ", content)
	assert.Equal(t, "4404dae8-2d45-46bd-85fa-64779c12abe8", e.GUID)
	assert.Equal(t, "22", e.InvestigationID)
	assert.Equal(t, "43", e.TaskID)
}

// Round-trip: for any components used to build a token, extracting from
// text that embeds the token yields the same components and the text with
// the token removed exactly once.
func TestNewExtractRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		invID  string
		taskID string
	}{
		{"with task", "9401", "7"},
		{"without task", "9401", ""},
		{"numeric underscore id", "12_34", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := New(tt.invID, tt.taskID)
			text := "approve please " + token + " thanks"

			found := Find(text)
			require.Equal(t, token, found)

			content, e := Extract(found, text)
			assert.Equal(t, "approve please  thanks", content)
			assert.Equal(t, tt.invID, e.InvestigationID)
			assert.Equal(t, tt.taskID, e.TaskID)
			_, err := uuid.Parse(e.GUID)
			assert.NoError(t, err)
		})
	}
}

func TestFind(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "plain token",
			text: "yes 4404dae8-2d45-46bd-85fa-64779c12abe8@22|43 do it",
			want: "4404dae8-2d45-46bd-85fa-64779c12abe8@22|43",
		},
		{
			name: "braced guid",
			text: "{4404dae8-2d45-46bd-85fa-64779c12abe8}@22",
			want: "{4404dae8-2d45-46bd-85fa-64779c12abe8}@22",
		},
		{
			name: "guid target",
			text: "4404dae8-2d45-46bd-85fa-64779c12abe8@4404dae8-2d45-46bd-85fa-64779c12abe8",
			want: "4404dae8-2d45-46bd-85fa-64779c12abe8@4404dae8-2d45-46bd-85fa-64779c12abe8",
		},
		{
			name: "no token",
			text: "just a plain reply",
			want: "",
		},
		{
			name: "guid without target id",
			text: "4404dae8-2d45-46bd-85fa-64779c12abe8 alone",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Find(tt.text))
		})
	}
}
