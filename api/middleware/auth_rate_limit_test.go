package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{counts: map[string]int64{}}
}

func (f *fakeWindowStore) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	count := f.counts[scope]
	return count <= limit, count, nil
}

func postLogin(handler http.Handler, body, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = ip
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthRateLimit_BlocksEmailOverLimit(t *testing.T) {
	store := newFakeWindowStore()
	policy := NewAuthRateLimitPolicy("login", time.Minute, 100, 2)

	var seenBodies []string
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seenBodies = append(seenBodies, string(body))
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"email":"buyer@example.com","password":"x"}`
	for i := 0; i < 2; i++ {
		if rec := postLogin(handler, body, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d (%s)", i+1, rec.Code, rec.Body.String())
		}
	}
	if rec := postLogin(handler, body, "10.0.0.1:1234"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on third attempt, got %d", rec.Code)
	}

	// The middleware reads the body to extract the email; the handler
	// must still see the full payload.
	for i, seen := range seenBodies {
		if seen != body {
			t.Fatalf("attempt %d: handler saw truncated body %q", i+1, seen)
		}
	}
}

func TestAuthRateLimit_BlocksIPOverLimit(t *testing.T) {
	store := newFakeWindowStore()
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 0)

	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if rec := postLogin(handler, `{}`, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Fatalf("first attempt must pass, got %d", rec.Code)
	}
	if rec := postLogin(handler, `{}`, "10.0.0.2:1234"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for repeat IP, got %d", rec.Code)
	}
	if rec := postLogin(handler, `{}`, "10.0.0.3:1234"); rec.Code != http.StatusOK {
		t.Fatalf("other IPs must not be affected, got %d", rec.Code)
	}
}

func TestAuthRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	store := newFakeWindowStore()
	policy := NewAuthRateLimitPolicy("login", 0, 5, 5)

	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 20; i++ {
		if rec := postLogin(handler, `{}`, "10.0.0.4:1234"); rec.Code != http.StatusOK {
			t.Fatalf("disabled policy must not block, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("disabled policy must not touch the store: %v", store.counts)
	}
}
