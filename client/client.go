package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client reads the status API of a running simulation.
type Client struct {
	addr string       // addr is the HTTP address (e.g. "127.0.0.1:9090")
	http *http.Client // http is the underlying HTTP client
}

// Status is the aggregate state of a simulation.
type Status struct {
	Time          int64  `json:"time"`
	Members       int    `json:"members"`
	Completed     int    `json:"completed"`
	PendingEvents int    `json:"pendingEvents"`
	BatchesSent   uint64 `json:"batchesSent"`
	UnitsSent     uint64 `json:"unitsSent"`
	Verifications uint64 `json:"verifications"`
	FirstDone     int64  `json:"firstDone"`
	LastDone      int64  `json:"lastDone"`
	Digest        string `json:"digest"`
}

// Done reports whether every member completed.
func (s *Status) Done() bool {
	return s.Members > 0 && s.Completed == s.Members
}

// Result is the outcome of one member.
type Result struct {
	ID          int   `json:"id"`
	Completed   bool  `json:"completed"`
	CompletedAt int64 `json:"completedAt"`
	Verified    int   `json:"verified"`
	Round       int   `json:"round"`
}

// New creates a client for the status API at addr.
func New(addr string) *Client {
	return &Client{
		addr: addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}

	if err := c.httpGet(ctx, "/health", &resp); err != nil {
		return err
	}

	if resp.Status != "ok" {
		return fmt.Errorf("unhealthy: %q", resp.Status)
	}

	return nil
}

// Status fetches the aggregate state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.httpGet(ctx, "/status", &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Results fetches the outcome of every member.
func (c *Client) Results(ctx context.Context) ([]Result, error) {
	var out []Result
	if err := c.httpGet(ctx, "/results", &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Result fetches the outcome of one member.
func (c *Client) Result(ctx context.Context, id int) (*Result, error) {
	var r Result
	if err := c.httpGet(ctx, fmt.Sprintf("/results/%d", id), &r); err != nil {
		return nil, err
	}

	return &r, nil
}

// WaitDone polls the status every interval until every member completed or ctx ends.
func (c *Client) WaitDone(ctx context.Context, interval time.Duration) (*Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := c.Status(ctx)
		if err == nil && s.Done() {
			return s, nil
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return nil, fmt.Errorf("%w:\n%w", ctx.Err(), err)
			}
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}
