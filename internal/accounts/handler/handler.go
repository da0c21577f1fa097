package handler

import (
	"glasswallet_backend/internal/accounts/service"
	"glasswallet_backend/internal/accounts/transport"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler handles account HTTP requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new accounts handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Sync creates or refreshes the account behind the bearer token.
// POST /api/v1/accounts/sync
func (h *Handler) Sync(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.Sync(c.Request.Context(), identity.UserID(), identity.Email())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/accounts/me
func (h *Handler) Me(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.Me(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PATCH /api/v1/accounts/me
func (h *Handler) Update(c *gin.Context) {
	var req transport.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.BadRequest(c, "invalid request")
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.ValidationFailed(c, err)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
