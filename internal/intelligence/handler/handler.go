package handler

import (
	"glasswallet_backend/internal/intelligence/service"
	"glasswallet_backend/internal/intelligence/transport"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GET /api/v1/intelligence/leads/:id
func (h *Handler) LeadInsights(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, "invalid lead id")
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	out, err := h.svc.LeadInsights(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}

// GET /api/v1/analytics/dashboard
func (h *Handler) Dashboard(c *gin.Context) {
	var req transport.DashboardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
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

	out, err := h.svc.Dashboard(c.Request.Context(), identity.UserID(), req.Days)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}
