package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(ctx context.Context, path string, result any) error {
	url := "http://" + c.addr + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request:\n%w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)

		return &StatusError{URL: url, Code: resp.StatusCode, Message: body.Error}
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL     string // URL is the requested URL
	Code    int    // Code is the HTTP status code
	Message string // Message is the server's error message, if any
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
	}

	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Message)
}
