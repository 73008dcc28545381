package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

type memoryReplays struct {
	mu       sync.Mutex
	stored   map[string]*StoredResponse
	inFlight map[string]bool
	err      error
}

func newMemoryReplays() *memoryReplays {
	return &memoryReplays{stored: map[string]*StoredResponse{}, inFlight: map[string]bool{}}
}

func (m *memoryReplays) Begin(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[key] {
		return false, nil
	}
	m.inFlight[key] = true
	return true, nil
}

func (m *memoryReplays) Lookup(ctx context.Context, key string) (*StoredResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.stored[key], nil
}

func (m *memoryReplays) Finish(ctx context.Context, key string, resp *StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp != nil {
		m.stored[key] = resp
	}
	delete(m.inFlight, key)
	return nil
}

// newReplayRouter counts handler runs and answers with the given status.
func newReplayRouter(store ReplayStore, status *int, calls *int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(callerIDKey, c.GetHeader("X-Test-User"))
		c.Next()
	})
	r.Use(IdempotencyMiddleware(store))
	r.POST("/trips/:id/join", func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls})
	})
	return r
}

func post(r http.Handler, user, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/trips/trip-1/join", nil)
	req.Header.Set("X-Test-User", user)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ──── REPLAY ────

func TestIdempotency_ReplaysStoredReply(t *testing.T) {
	t.Parallel()
	status, calls := http.StatusCreated, 0
	r := newReplayRouter(newMemoryReplays(), &status, &calls)

	first := post(r, "passenger-1", "key-1")
	second := post(r, "passenger-1", "key-1")

	if calls != 1 {
		t.Fatalf("expected the handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("expected replay of %d %s, got %d %s", first.Code, first.Body, second.Code, second.Body)
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Error("expected the replay header")
	}
	if first.Header().Get(replayedHeader) != "" {
		t.Error("first reply must not be marked as replayed")
	}
}

func TestIdempotency_KeysAreScopedToCaller(t *testing.T) {
	t.Parallel()
	status, calls := http.StatusCreated, 0
	r := newReplayRouter(newMemoryReplays(), &status, &calls)

	post(r, "passenger-1", "key-1")
	post(r, "passenger-2", "key-1")

	if calls != 2 {
		t.Errorf("expected both callers to be served, handler ran %d times", calls)
	}
}

func TestIdempotency_ConflictsAreNotReplayed(t *testing.T) {
	t.Parallel()
	status, calls := http.StatusConflict, 0
	r := newReplayRouter(newMemoryReplays(), &status, &calls)

	post(r, "passenger-1", "key-1")
	status = http.StatusCreated
	w := post(r, "passenger-1", "key-1")

	if calls != 2 || w.Code != http.StatusCreated {
		t.Errorf("expected the retry to reach the handler, calls=%d code=%d", calls, w.Code)
	}
}

func TestIdempotency_InFlightKeyIsRejected(t *testing.T) {
	t.Parallel()
	store := newMemoryReplays()
	status, calls := http.StatusCreated, 0
	r := newReplayRouter(store, &status, &calls)

	store.inFlight["idempotency:passenger-1:POST:/trips/trip-1/join:key-1"] = true
	w := post(r, "passenger-1", "key-1")

	if w.Code != http.StatusConflict || calls != 0 {
		t.Errorf("expected 409 without running the handler, got %d (calls=%d)", w.Code, calls)
	}
}

func TestIdempotency_PassThrough(t *testing.T) {
	t.Parallel()

	t.Run("no key", func(t *testing.T) {
		t.Parallel()
		status, calls := http.StatusCreated, 0
		r := newReplayRouter(newMemoryReplays(), &status, &calls)
		post(r, "passenger-1", "")
		post(r, "passenger-1", "")
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})

	t.Run("store down", func(t *testing.T) {
		t.Parallel()
		store := newMemoryReplays()
		store.err = errors.New("connection refused")
		status, calls := http.StatusCreated, 0
		r := newReplayRouter(store, &status, &calls)
		post(r, "passenger-1", "key-1")
		post(r, "passenger-1", "key-1")
		if calls != 2 {
			t.Errorf("expected 2 calls, got %d", calls)
		}
	})
}
