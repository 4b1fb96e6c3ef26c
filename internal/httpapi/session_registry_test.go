package httpapi

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/florianweber/lena/internal/convo"
)

func testConvoSession(id string) *convo.Session {
	return convo.NewSession(id, "de", time.Now().UTC())
}

func TestSessionRegistry_PutGetRemove(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", sr.ActiveCount())
	}

	s := testConvoSession("s1")
	if !sr.Put(s) {
		t.Error("Put() should return true when not draining")
	}
	if sr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", sr.ActiveCount())
	}

	got := sr.Get("s1")
	if got != s {
		t.Error("Get() should return the stored session")
	}
	if sr.Get("missing") != nil {
		t.Error("Get() of unknown ID should return nil")
	}

	sr.Remove("s1")
	if sr.Get("s1") != nil {
		t.Error("session should be gone after Remove()")
	}
	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", sr.ActiveCount())
	}
}

func TestSessionRegistry_Draining(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.IsDraining() {
		t.Error("IsDraining() should be false initially")
	}

	if !sr.Put(testConvoSession("before")) {
		t.Error("Put() should succeed before draining")
	}

	sr.StartDraining()

	if !sr.IsDraining() {
		t.Error("IsDraining() should be true after StartDraining()")
	}

	if sr.Put(testConvoSession("after")) {
		t.Error("Put() should return false when draining")
	}

	// The pre-drain session stays live
	if sr.Get("before") == nil {
		t.Error("existing session should survive draining")
	}
	if sr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", sr.ActiveCount())
	}
}

func TestSessionRegistry_All(t *testing.T) {
	sr := NewSessionRegistry()
	sr.Put(testConvoSession("a"))
	sr.Put(testConvoSession("b"))

	all := sr.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d sessions, want 2", len(all))
	}
	seen := map[string]bool{}
	for _, s := range all {
		seen[s.ID] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("All() = %v, want a and b", seen)
	}
}

func TestSessionRegistry_ConcurrentAccess(t *testing.T) {
	sr := NewSessionRegistry()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		id := string(rune('a'+i%26)) + "-session"
		go func(id string) {
			defer wg.Done()
			if sr.Put(testConvoSession(id)) {
				_ = sr.Get(id)
			}
		}(id)
	}
	wg.Wait()

	if sr.ActiveCount() == 0 {
		t.Error("expected sessions after concurrent puts")
	}
}

func TestReadyzEndpoint(t *testing.T) {
	sr := NewSessionRegistry()
	r := &Router{
		logger:   log.New(io.Discard, "", 0),
		sessions: sr,
	}

	t.Run("returns 200 when not draining", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		r.handleReadyz(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if body := rec.Body.String(); body != "ok" {
			t.Errorf("body = %q, want %q", body, "ok")
		}
	})

	t.Run("returns 503 when draining", func(t *testing.T) {
		sr.StartDraining()

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		r.handleReadyz(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if body := rec.Body.String(); body != "draining" {
			t.Errorf("body = %q, want %q", body, "draining")
		}
	})
}
