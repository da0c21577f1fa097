package httpkit

import (
	"bytes"
	"net/http"
	"time"

	"glasswallet_backend/platform/cache"

	"github.com/gin-gonic/gin"
)

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// CacheResponse caches successful GET responses per user and URL.
// A cache error never fails the request.
func CacheResponse(store cache.Store, prefix string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		subject := "anon"
		if id := GetIdentity(c); id.IsAuthenticated() {
			subject = id.UserID().String()
		}
		key := prefix + ":" + subject + ":" + c.Request.URL.RequestURI()

		if cached, err := store.Get(c.Request.Context(), key); err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header("X-Cache", "MISS")
		c.Next()

		if rec.Status() == http.StatusOK && rec.body.Len() > 0 {
			if err := store.Set(c.Request.Context(), key, rec.body.Bytes(), ttl); err != nil {
				logFromContext(c).Warn("response cache write failed", "key", key, "error", err)
			}
		}
	}
}
