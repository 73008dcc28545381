package middleware

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// StoredResponse is a captured reply kept for replay.
type StoredResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ReplayStore keeps replies per idempotency key.
type ReplayStore interface {
	// Begin claims key for a request in flight. It returns false when
	// another request holds the claim.
	Begin(ctx context.Context, key string) (bool, error)
	// Lookup returns the stored reply for key, or nil.
	Lookup(ctx context.Context, key string) (*StoredResponse, error)
	// Finish stores the reply and drops the claim. A nil reply only drops
	// the claim.
	Finish(ctx context.Context, key string, resp *StoredResponse) error
}

// captureWriter tees the body written by the handler.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored reply for a repeated
// Idempotency-Key. Keys are scoped to the caller, method and path, so it
// must run after Auth. A store error lets the request through unguarded.
func IdempotencyMiddleware(store ReplayStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := fmt.Sprintf("idempotency:%s:%s:%s:%s", CallerID(c), c.Request.Method, c.Request.URL.Path, key)

		stored, err := store.Lookup(ctx, scoped)
		if err != nil {
			c.Next()
			return
		}
		if stored != nil {
			c.Header(replayedHeader, "true")
			c.Data(stored.StatusCode, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		claimed, err := store.Begin(ctx, scoped)
		if err != nil {
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is in progress"})
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// 409 and 5xx replies are retryable and are not replayed.
		var resp *StoredResponse
		if status := w.Status(); status < http.StatusInternalServerError && status != http.StatusConflict {
			resp = &StoredResponse{
				StatusCode:  status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        w.body.Bytes(),
			}
		}
		_ = store.Finish(context.WithoutCancel(ctx), scoped, resp)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
