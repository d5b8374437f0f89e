package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WindState is the response from POST /api/v1/wind.
type WindState struct {
	Base      Velocity `json:"base"`
	Current   Velocity `json:"current"`
	Gustiness float64  `json:"gustiness"`
}

// Actor executes decisions via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
// Returns nil without a key; a nil Actor only logs decisions.
func NewActor(baseURL, adminKey string) *Actor {
	if adminKey == "" {
		return nil
	}
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Act sends the decision's wind plan to POST /api/v1/wind.
func (a *Actor) Act(ctx context.Context, d *Decision) (*WindState, error) {
	if d == nil || d.Wind == nil {
		return nil, fmt.Errorf("nothing to act on")
	}
	body, err := json.Marshal(d.Wind)
	if err != nil {
		return nil, fmt.Errorf("marshal wind plan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/v1/wind", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST wind: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wind change failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var state WindState
	if err := json.Unmarshal(respBody, &state); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &state, nil
}
