package integrate

import (
	"net/http"

	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request body"
	msgInvalidKeyID   = "invalid key id"
	msgNoIntakeOwner  = "no API key context"
)

type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.BadRequest(c, msgInvalidRequest)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.ValidationFailed(c, err)
		return false
	}
	return true
}

func (h *Handler) owner(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := intakeUserID(c)
	if !ok {
		httpkit.Abort(c, http.StatusUnauthorized, apperr.CodeUnauthorized, msgNoIntakeOwner)
		return uuid.Nil, false
	}
	return userID, true
}

// POST /api/v1/integrate/widget
func (h *Handler) Widget(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}
	var req WidgetSubmission
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.SubmitWidget(c.Request.Context(), userID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// POST /api/v1/integrate/webhook
func (h *Handler) Webhook(c *gin.Context) {
	userID, ok := h.owner(c)
	if !ok {
		return
	}
	var req WebhookSubmission
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.SubmitWebhook(c.Request.Context(), userID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// GET /api/v1/integrate/health
func (h *Handler) Health(c *gin.Context) {
	httpkit.OK(c, gin.H{"status": "ok", "service": "integrate"})
}

// POST /api/v1/integrate/keys
func (h *Handler) CreateKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	key, err := h.svc.CreateKey(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, key)
}

// GET /api/v1/integrate/keys
func (h *Handler) ListKeys(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	keys, err := h.svc.ListKeys(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, keys)
}

// DELETE /api/v1/integrate/keys/:id
func (h *Handler) RevokeKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, msgInvalidKeyID)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if httpkit.HandleError(c, h.svc.RevokeKey(c.Request.Context(), identity.UserID(), keyID)) {
		return
	}
	httpkit.OK(c, gin.H{"revoked": true})
}
