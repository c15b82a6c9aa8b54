package integration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SanFermin/client"
	"SanFermin/internal/api"
)

// TestE2EStatusWhileRunning steps a simulation while a client polls its status API.
func TestE2EStatusWhileRunning(t *testing.T) {
	c := NewScenario(t, 256)

	srv := api.New(":0")
	srv.Publish(c)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	errc := make(chan error, 1)
	go func() {
		for c.Done() < c.Size() && c.Now() < runLimit {
			if err := c.RunUntilDone(c.Now() + 25); err != nil {
				errc <- err
				return
			}

			srv.Publish(c)
			time.Sleep(time.Millisecond)
		}
		errc <- nil
	}()

	cl := client.New(strings.TrimPrefix(ts.URL, "http://"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := cl.WaitDone(ctx, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for completion: %v", err)
	}

	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}

	if s.Completed != 256 {
		t.Errorf("expected 256 completed, got %d", s.Completed)
	}

	// The runner publishes its final view before returning
	final, err := cl.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if final.LastDone != c.Stats().LastDone {
		t.Errorf("published last completion %d, simulation %d", final.LastDone, c.Stats().LastDone)
	}

	results, err := cl.Results(ctx)
	if err != nil {
		t.Fatalf("results: %v", err)
	}

	for _, r := range results {
		if !r.Completed {
			t.Errorf("member %d not completed", r.ID)
		}
	}
}
