package integrate

import (
	"errors"
	"net/http"

	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderAPIKey = "X-API-Key"

	ctxUserID = "integrateUserID"
	ctxKeyID  = "integrateKeyID"
)

// APIKeyAuthMiddleware resolves the X-API-Key header to its owning user and
// enforces the key's allowed domains against Origin, then Referer.
func APIKeyAuthMiddleware(keys KeyStore, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAPIKey)
		if raw == "" {
			httpkit.Abort(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "missing API key")
			return
		}

		key, err := keys.GetByHash(c.Request.Context(), HashKey(raw))
		if err != nil {
			if !errors.Is(err, ErrAPIKeyNotFound) {
				log.Error("api key lookup failed", "error", err)
			}
			httpkit.Abort(c, http.StatusUnauthorized, apperr.CodeUnauthorized, "invalid API key")
			return
		}

		if len(key.AllowedDomains) > 0 {
			origin := c.GetHeader("Origin")
			if origin == "" {
				origin = c.GetHeader("Referer")
			}
			if !isDomainAllowed(origin, key.AllowedDomains) {
				httpkit.Abort(c, http.StatusForbidden, apperr.CodeForbidden, "domain not allowed")
				return
			}
		}

		if err := keys.TouchLastUsed(c.Request.Context(), key.ID); err != nil {
			log.Warn("failed to touch api key", "keyId", key.ID, "error", err)
		}

		c.Set(ctxUserID, key.UserID)
		c.Set(ctxKeyID, key.ID)
		c.Next()
	}
}

func intakeUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
