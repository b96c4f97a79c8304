package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMiddleware(t *testing.T) {
	l := New(2, time.Minute)
	rejected := 0
	reject := func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	}
	key := func(r *http.Request) string { return r.Header.Get("X-Caller") }
	handler := Middleware(l, key, reject)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if caller != "" {
			req.Header.Set("X-Caller", caller)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("a"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := do("a")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", rec.Code)
	}
	if rejected != 1 {
		t.Errorf("reject called %d times", rejected)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("X-RateLimit-Limit = %q", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	// Another caller has its own bucket; no key skips limiting.
	if rec := do("b"); rec.Code != http.StatusOK {
		t.Errorf("other caller: status = %d", rec.Code)
	}
	for i := 0; i < 5; i++ {
		if rec := do(""); rec.Code != http.StatusOK {
			t.Fatalf("unkeyed request: status = %d", rec.Code)
		}
	}
}
