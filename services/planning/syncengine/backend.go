// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// HTTPBackend talks to the planning persistence service over JSON.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend creates a backend for the given base URL, e.g.
// "http://localhost:8080".
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// syncRequest is the wire shape for a change batch.
type syncRequest struct {
	Changes []datatypes.Change `json:"changes"`
}

// syncResponse carries server-side detection results.
type syncResponse struct {
	Conflicts []datatypes.Conflict `json:"conflicts,omitempty"`
}

// resolveRequest is the wire envelope for acknowledging a conflict
// resolution.
type resolveRequest struct {
	Resolution datatypes.Resolution `json:"resolution"`
	UserID     string               `json:"userId"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// SyncChanges POSTs a batch to /planning/sync.
//
// A 409 means the server found concurrent modifications; the response
// body carries the conflicts and the batch is considered delivered for
// retry purposes. Other failures map onto PersistenceError types so
// the engine can decide whether to retry.
func (b *HTTPBackend) SyncChanges(ctx context.Context, changes []datatypes.Change) ([]datatypes.Conflict, error) {
	body, err := json.Marshal(syncRequest{Changes: changes})
	if err != nil {
		return nil, datatypes.NewValidationError("encode change batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/planning/sync", bytes.NewReader(body))
	if err != nil {
		return nil, datatypes.NewValidationError("build sync request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, datatypes.NewNetworkError("sync request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var out syncResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
			return nil, datatypes.NewServerError("decode sync response", false, err)
		}
		return out.Conflicts, nil

	case resp.StatusCode == http.StatusConflict:
		var out syncResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
			return nil, datatypes.NewServerError("decode conflict response", false, err)
		}
		if len(out.Conflicts) == 0 {
			// The server rejected the batch without details. Surface one
			// conflict covering the whole batch so a planner can react.
			ids := make([]string, 0, len(changes))
			for _, c := range changes {
				ids = append(ids, c.Assignment.ID)
			}
			out.Conflicts = []datatypes.Conflict{
				datatypes.NewConflict(datatypes.ConflictConcurrentModify, ids,
					"the board changed on the server while these edits were pending"),
			}
		}
		return out.Conflicts, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, datatypes.NewValidationError(readErrorMessage(resp), nil)

	default:
		return nil, datatypes.NewServerError(
			fmt.Sprintf("sync rejected with status %d", resp.StatusCode), true, nil)
	}
}

// FetchBoard GETs /planning/data/{date} with the date formatted as
// 2006-01-02.
func (b *HTTPBackend) FetchBoard(ctx context.Context, date time.Time) ([]datatypes.Assignment, error) {
	endpoint := fmt.Sprintf("%s/planning/data/%s", b.baseURL, date.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, datatypes.NewValidationError("build board request", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, datatypes.NewNetworkError("board request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, datatypes.NewServerError(
			fmt.Sprintf("board fetch rejected with status %d", resp.StatusCode), resp.StatusCode >= 500, nil)
	}

	var out struct {
		Assignments []datatypes.Assignment `json:"assignments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, datatypes.NewServerError("decode board response", false, err)
	}
	return out.Assignments, nil
}

// NotifyResolution POSTs /planning/conflicts/{id}/resolve.
func (b *HTTPBackend) NotifyResolution(ctx context.Context, conflictID string, res datatypes.Resolution) error {
	body, err := json.Marshal(resolveRequest{Resolution: res, UserID: res.UserID})
	if err != nil {
		return datatypes.NewValidationError("encode resolution", err)
	}

	endpoint := fmt.Sprintf("%s/planning/conflicts/%s/resolve", b.baseURL, url.PathEscape(conflictID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return datatypes.NewValidationError("build resolution request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return datatypes.NewNetworkError("resolution request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return datatypes.NewServerError(
			fmt.Sprintf("resolution rejected with status %d", resp.StatusCode), resp.StatusCode >= 500, nil)
	}
	return nil
}

func readErrorMessage(resp *http.Response) string {
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request rejected with status %d", resp.StatusCode)
}

var _ Backend = (*HTTPBackend)(nil)
