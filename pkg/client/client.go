// Package client provides the HTTP client for the noteboard API.
//
// [Client] implements [store.Backend] over REST, so the sync engine in
// pkg/board runs identically against a live service or an in-process store;
// tests swap one for the other without touching engine code.
//
// Authentication mirrors the server's stub: the authenticated user's UUID is
// sent as the bearer token of every request. A real deployment would carry a
// session token here instead.
//
// Server-side refusals map back to the store package's sentinel errors:
// HTTP 403 becomes [store.ErrPermissionDenied] and HTTP 404 becomes
// [store.ErrNotFound], so callers handle both backends with one errors.Is
// check.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/noteboard/noteboard/pkg/models"
	"github.com/noteboard/noteboard/pkg/store"
)

// Client is a REST implementation of store.Backend. Safe for concurrent use
// by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ store.Backend = (*Client)(nil)

// New creates a new noteboard API client. The baseURL should include the
// protocol and host (e.g. "http://localhost:8080") without a trailing slash
// or API path prefix.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with JSON and auth headers.
func (c *Client) doRequest(ctx context.Context, auth models.UserID, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+auth.String())

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into target, mapping error
// statuses to the store sentinel errors where they apply.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		message := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		switch resp.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", store.ErrPermissionDenied, message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", store.ErrNotFound, message)
		default:
			return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, message)
		}
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks the health status of the server.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, models.UserID{}, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	var health map[string]any
	if err := decodeResponse(resp, &health); err != nil {
		return nil, err
	}
	return health, nil
}

// List implements store.Backend.
func (c *Client) List(ctx context.Context, auth models.UserID) ([]models.Note, error) {
	resp, err := c.doRequest(ctx, auth, http.MethodGet, "/api/notes", nil)
	if err != nil {
		return nil, err
	}
	var notes []models.Note
	if err := decodeResponse(resp, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// BulkUpsert implements store.Backend.
func (c *Client) BulkUpsert(ctx context.Context, auth models.UserID, entries []store.UpsertEntry) ([]store.UpsertResult, error) {
	resp, err := c.doRequest(ctx, auth, http.MethodPost, "/api/notes/bulk", entries)
	if err != nil {
		return nil, err
	}
	var results []store.UpsertResult
	if err := decodeResponse(resp, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete implements store.Backend. Returns false without error when the
// note is already gone, matching the in-process stores.
func (c *Client) Delete(ctx context.Context, auth models.UserID, id models.RemoteID) (bool, error) {
	resp, err := c.doRequest(ctx, auth, http.MethodDelete, "/api/notes/"+id.String(), nil)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return false, nil
	}
	if err := decodeResponse(resp, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ClearAll implements store.Backend.
func (c *Client) ClearAll(ctx context.Context, auth models.UserID) (int, error) {
	resp, err := c.doRequest(ctx, auth, http.MethodDelete, "/api/notes", nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := decodeResponse(resp, &result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

// Search performs a server-side diacritic-insensitive search; matching
// notes come back with occurrences wrapped in highlight markup.
func (c *Client) Search(ctx context.Context, auth models.UserID, query string) ([]models.Note, error) {
	path := "/api/notes/search?q=" + url.QueryEscape(query)
	resp, err := c.doRequest(ctx, auth, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var notes []models.Note
	if err := decodeResponse(resp, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// ShareGrant implements store.Backend.
func (c *Client) ShareGrant(ctx context.Context, auth models.UserID, grant models.ShareGrant) (models.ShareGrant, error) {
	path := "/api/notes/" + grant.NoteRemoteID.String() + "/shares"
	resp, err := c.doRequest(ctx, auth, http.MethodPut, path, grant)
	if err != nil {
		return models.ShareGrant{}, err
	}
	var created models.ShareGrant
	if err := decodeResponse(resp, &created); err != nil {
		return models.ShareGrant{}, err
	}
	return created, nil
}

// ShareRevoke implements store.Backend.
func (c *Client) ShareRevoke(ctx context.Context, auth models.UserID, noteID models.RemoteID, targetType models.ShareTargetType, targetID *uuid.UUID) (bool, error) {
	q := url.Values{}
	q.Set("target_type", string(targetType))
	if targetID != nil {
		q.Set("target_id", targetID.String())
	}
	path := "/api/notes/" + noteID.String() + "/shares?" + q.Encode()
	resp, err := c.doRequest(ctx, auth, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return false, nil
	}
	if err := decodeResponse(resp, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ShareList implements store.Backend.
func (c *Client) ShareList(ctx context.Context, auth models.UserID, noteID models.RemoteID) ([]models.ShareGrant, error) {
	resp, err := c.doRequest(ctx, auth, http.MethodGet, "/api/notes/"+noteID.String()+"/shares", nil)
	if err != nil {
		return nil, err
	}
	var grants []models.ShareGrant
	if err := decodeResponse(resp, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// ListShareTargets implements store.Backend.
func (c *Client) ListShareTargets(ctx context.Context, auth models.UserID) ([]models.ShareTarget, error) {
	resp, err := c.doRequest(ctx, auth, http.MethodGet, "/api/share-targets", nil)
	if err != nil {
		return nil, err
	}
	var targets []models.ShareTarget
	if err := decodeResponse(resp, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}
