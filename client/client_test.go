package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SanFermin/internal/api"
	"SanFermin/internal/committee"
	"SanFermin/internal/config"
)

// newTestServer serves the status API of a finished simulation.
func newTestServer(t *testing.T, publish bool) *Client {
	t.Helper()

	srv := api.New(":0")

	if publish {
		sim, err := committee.New(config.Default())
		if err != nil {
			t.Fatalf("create committee: %v", err)
		}

		if err := sim.Init(); err != nil {
			t.Fatalf("init committee: %v", err)
		}

		if err := sim.RunUntilDone(30_000); err != nil {
			t.Fatalf("run committee: %v", err)
		}

		srv.Publish(sim)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(strings.TrimPrefix(ts.URL, "http://"))
}

func TestStatusAndResults(t *testing.T) {
	c := newTestServer(t, true)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}

	s, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if !s.Done() || s.Members != 100 {
		t.Errorf("expected 100 completed members, got %d/%d", s.Completed, s.Members)
	}

	if len(s.Digest) != 64 {
		t.Errorf("expected hex digest, got %q", s.Digest)
	}

	results, err := c.Results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}

	if len(results) != 100 {
		t.Fatalf("expected 100 results, got %d", len(results))
	}

	r, err := c.Result(ctx, 42)
	if err != nil {
		t.Fatalf("result: %v", err)
	}

	if *r != results[42] {
		t.Errorf("member 42: got %+v, want %+v", *r, results[42])
	}
}

func TestStatusErrors(t *testing.T) {
	c := newTestServer(t, false)

	_, err := c.Status(context.Background())

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got %v", err)
	}

	if se.Message == "" {
		t.Error("expected server message in error")
	}
}

func TestWaitDoneTimesOut(t *testing.T) {
	c := newTestServer(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.WaitDone(ctx, 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitDone(t *testing.T) {
	c := newTestServer(t, true)

	s, err := c.WaitDone(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	if !s.Done() {
		t.Error("expected completed simulation")
	}
}
