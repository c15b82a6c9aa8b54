package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SanFermin/internal/committee"
)

// fakeSource is a fixed simulation view.
type fakeSource struct {
	stats   committee.Stats
	results []committee.Result
}

func (f *fakeSource) Stats() committee.Stats { return f.stats }
func (f *fakeSource) Results() []committee.Result { return f.results }
func (f *fakeSource) Digest() [32]byte { return [32]byte{0xab} }

func newPublished() *Server {
	s := New(":0")
	s.Publish(&fakeSource{
		stats: committee.Stats{Time: 500, Members: 2, Completed: 1, FirstDone: 310, LastDone: 310},
		results: []committee.Result{
			{ID: 0, Completed: true, CompletedAt: 310, Verified: 2, Round: 1},
			{ID: 1, Verified: 1, Round: 2},
		},
	})

	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))

	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := get(t, New(":0").Handler(), "/health")

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestStatusBeforePublish(t *testing.T) {
	w := get(t, New(":0").Handler(), "/status")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	w := get(t, newPublished().Handler(), "/status")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["completed"] != float64(1) {
		t.Errorf("expected 1 completed, got %v", resp["completed"])
	}

	if digest, _ := resp["digest"].(string); !strings.HasPrefix(digest, "ab00") {
		t.Errorf("unexpected digest %v", resp["digest"])
	}
}

func TestResultEndpoints(t *testing.T) {
	h := newPublished().Handler()

	var all []resultJSON
	if err := json.Unmarshal(get(t, h, "/results").Body.Bytes(), &all); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if len(all) != 2 || !all[0].Completed || all[1].Completed {
		t.Errorf("unexpected results %+v", all)
	}

	var one resultJSON
	if err := json.Unmarshal(get(t, h, "/results/1").Body.Bytes(), &one); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if one.ID != 1 || one.Round != 2 {
		t.Errorf("unexpected result %+v", one)
	}

	if w := get(t, h, "/results/7"); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	if w := get(t, h, "/results/x"); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(t, newPublished().Handler(), "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	if !strings.Contains(w.Body.String(), "sanfermin_virtual_time_ms 500") {
		t.Errorf("virtual time missing from metrics:\n%s", w.Body.String())
	}
}
