// Package hub pushes door status to the home-automation hub over HTTP.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/settings"
)

// DefaultPort is where the hub listens when the stored address has no port.
const DefaultPort = "39501"

// DefaultTimeout bounds a single status push.
const DefaultTimeout = 5 * time.Second

// Payload is the JSON body sent to the hub.
type Payload struct {
	Status string `json:"status"`
	IsNew  bool   `json:"isNew"`
}

// Client posts status events to the hub address held in the settings store.
// The address is read per event so a /configure takes effect immediately.
type Client struct {
	store   *settings.Store
	http    *http.Client
	timeout time.Duration
}

// New creates a Client. httpClient may be nil.
func New(store *settings.Store, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{store: store, http: httpClient, timeout: DefaultTimeout}
}

// URL returns the endpoint for addr, or "" if addr is empty.
func URL(addr string) string {
	if addr == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	return "http://" + addr
}

// Publish sends event to the hub. It does nothing when no hub is known.
func (c *Client) Publish(event logic.Event) error {
	url := URL(c.store.Current().HubAddress)
	if url == "" {
		return nil
	}

	body, err := json.Marshal(Payload{Status: string(event.Status), IsNew: event.IsNew})
	if err != nil {
		return fmt.Errorf("encode hub payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post to hub %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("hub %s responded %s", url, resp.Status)
	}
	return nil
}
