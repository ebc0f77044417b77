// Package outbox talks to the remote queue service over HTTP. The queue is
// an opaque store: the only operations are fetching the full pending-alert
// list and clearing it wholesale.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"healthwatch/internal/model"
)

// Client drains the remote alert outbox.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves every pending alert in queue order.
func (c *Client) Fetch(ctx context.Context) ([]model.Alert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/outbox", nil)
	if err != nil {
		return nil, fmt.Errorf("create outbox request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("outbox fetch returned status %d", resp.StatusCode)
	}

	var alerts []model.Alert
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, fmt.Errorf("decode outbox: %w", err)
	}
	return alerts, nil
}

// Clear deletes all pending alerts. The remote service offers no selective
// delete, so this is only called after the whole fetched batch has been
// handled; repeating it is idempotent.
func (c *Client) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/outbox", nil)
	if err != nil {
		return fmt.Errorf("create clear request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clear outbox: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("outbox clear returned status %d", resp.StatusCode)
	}
	return nil
}
