package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/slye-labs/slye-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func idempotentRequest(userID uuid.UUID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req.WithContext(WithUserID(req.Context(), userID))
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = fmt.Fprintf(w, `{"call":%d}`, h.calls)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusCreated}
	handler := Idempotency(store, time.Hour, testLogger())(next)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(userID, "", `{"type":"general"}`))
	}
	if next.calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", next.calls)
	}
	if len(store.data) != 0 {
		t.Fatal("nothing should be stored without a key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusCreated}
	handler := Idempotency(store, time.Hour, testLogger())(next)
	userID := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest(userID, "abc", `{"type":"general"}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest(userID, "abc", `{"type":"general"}`))

	if next.calls != 1 {
		t.Fatalf("expected single handler call, got %d", next.calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical body, got %q vs %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type replayed, got %q", second.Header().Get("Content-Type"))
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusCreated}
	handler := Idempotency(store, time.Hour, testLogger())(next)
	userID := uuid.New()

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(userID, "abc", `{"type":"general"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(userID, "abc", `{"type":"asmr_video"}`))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var body struct {
		Code pkgerrors.Code `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != pkgerrors.CodeIdempotency {
		t.Fatalf("unexpected code %s", body.Code)
	}
	if next.calls != 1 {
		t.Fatalf("handler should not run for mismatched body")
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusCreated}
	handler := Idempotency(store, time.Hour, testLogger())(next)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "abc", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(uuid.New(), "abc", `{}`))
	if next.calls != 2 {
		t.Fatalf("expected separate users not to share keys, got %d calls", next.calls)
	}
}

func TestIdempotencyDoesNotStoreRetryableResponses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError} {
		store := newFakeStore()
		next := &countingHandler{status: status}
		handler := Idempotency(store, time.Hour, testLogger())(next)
		userID := uuid.New()

		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(userID, "abc", `{}`))
		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(userID, "abc", `{}`))
		if next.calls != 2 {
			t.Fatalf("status %d: expected retry to reach handler, got %d calls", status, next.calls)
		}
	}
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	release := make(chan struct{})
	entered := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	})
	handler := Idempotency(store, time.Hour, testLogger())(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest(userID, "abc", `{}`))
	}()
	<-entered

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, idempotentRequest(userID, "abc", `{}`))
	close(release)
	<-done

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 while first request in flight, got %d", resp.Code)
	}
}
