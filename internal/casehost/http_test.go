package casehost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvestigationDecodesTypedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/investigation", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Investigation{ID: "42", Type: 1})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key-123")
	inv, err := c.Investigation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", inv.ID)
	assert.Equal(t, 1, inv.Type)
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k")
	err := c.UpdateModuleHealth(context.Background(), "degraded")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad mode", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k")
	_, err := c.MirrorInvestigation(context.Background(), "42", "all:both", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad mode")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMirrorInvestigationReturnsUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			InvestigationID string `json:"investigation_id"`
			Mode            string `json:"mode"`
			AutoClose       bool   `json:"auto_close"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "42", req.InvestigationID)
		assert.Equal(t, "all:both", req.Mode)
		assert.True(t, req.AutoClose)

		json.NewEncoder(w).Encode(map[string]any{
			"users": []User{{ID: "u1", Username: "alice", Email: "alice@example.com"}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k")
	users, err := c.MirrorInvestigation(context.Background(), "42", "all:both", true)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}
