package casehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPClient implements Client against the host's REST surface. Transient
// failures (network errors, 5xx) are retried with exponential backoff;
// anything else propagates unchanged.
type HTTPClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewHTTPClient builds a host client for the given base URL and API key.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// transientError marks a response worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return &transientError{err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return &transientError{fmt.Errorf("host returned %s", resp.Status)}
		}
		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("host returned %s: %s", resp.Status, strings.TrimSpace(string(data))))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		} else {
			io.Copy(io.Discard, resp.Body)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

// Investigation implements Client.
func (c *HTTPClient) Investigation(ctx context.Context) (*Investigation, error) {
	var inv Investigation
	if err := c.do(ctx, http.MethodGet, "/investigation", nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateIncidents implements Client.
func (c *HTTPClient) CreateIncidents(ctx context.Context, incidents []Incident, onBehalfOf string) ([]CreatedIncident, error) {
	req := struct {
		Incidents  []Incident `json:"incidents"`
		OnBehalfOf string     `json:"user_id,omitempty"`
	}{incidents, onBehalfOf}

	var created []CreatedIncident
	if err := c.do(ctx, http.MethodPost, "/incidents", req, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// AddEntry implements Client.
func (c *HTTPClient) AddEntry(ctx context.Context, investigationID, text, username, email, footer string) error {
	req := struct {
		InvestigationID string `json:"investigation_id"`
		Entry           string `json:"entry"`
		Username        string `json:"username"`
		Email           string `json:"email"`
		Footer          string `json:"footer"`
	}{investigationID, text, username, email, footer}

	return c.do(ctx, http.MethodPost, "/entries", req, nil)
}

// MirrorInvestigation implements Client.
func (c *HTTPClient) MirrorInvestigation(ctx context.Context, investigationID, mode string, autoClose bool) ([]User, error) {
	req := struct {
		InvestigationID string `json:"investigation_id"`
		Mode            string `json:"mode"`
		AutoClose       bool   `json:"auto_close"`
	}{investigationID, mode, autoClose}

	var resp struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodPost, "/mirrors", req, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// FindUser implements Client.
func (c *HTTPClient) FindUser(ctx context.Context, email, username string) (*User, error) {
	req := struct {
		Email    string `json:"email,omitempty"`
		Username string `json:"username,omitempty"`
	}{email, username}

	var resp struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/find", req, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// HandleEntitlement implements Client.
func (c *HTTPClient) HandleEntitlement(ctx context.Context, investigationID, guid, email, content, taskID string) error {
	req := struct {
		InvestigationID string `json:"investigation_id"`
		GUID            string `json:"guid"`
		Email           string `json:"email"`
		Content         string `json:"content"`
		TaskID          string `json:"task_id,omitempty"`
	}{investigationID, guid, email, content, taskID}

	return c.do(ctx, http.MethodPost, "/entitlements/resolve", req, nil)
}

// DirectMessage implements Client.
func (c *HTTPClient) DirectMessage(ctx context.Context, text, username, email string, allowIncidents bool) (string, error) {
	req := struct {
		Text           string `json:"text"`
		Username       string `json:"username"`
		Email          string `json:"email"`
		AllowIncidents bool   `json:"allow_incidents"`
	}{text, username, email, allowIncidents}

	var resp struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages/direct", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// UpdateModuleHealth implements Client.
func (c *HTTPClient) UpdateModuleHealth(ctx context.Context, message string) error {
	req := struct {
		Message string `json:"message"`
	}{message}

	return c.do(ctx, http.MethodPost, "/health/module", req, nil)
}

// URLs implements Client.
func (c *HTTPClient) URLs(ctx context.Context) (*Links, error) {
	var links Links
	if err := c.do(ctx, http.MethodGet, "/links", nil, &links); err != nil {
		return nil, err
	}
	return &links, nil
}
