package handler

import (
	"net/http"

	"glasswallet_backend/internal/pixels/service"
	"glasswallet_backend/internal/pixels/transport"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest      = "invalid request"
	msgInvalidConnectionID = "invalid connection id"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
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

func connectionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, msgInvalidConnectionID)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/v1/pixels/connections
func (h *Handler) CreateConnection(c *gin.Context) {
	var req transport.CreateConnectionRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	conn, err := h.svc.CreateConnection(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, conn)
}

// GET /api/v1/pixels/connections
func (h *Handler) ListConnections(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	conns, err := h.svc.ListConnections(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, conns)
}

// PATCH /api/v1/pixels/connections/:id
func (h *Handler) UpdateConnection(c *gin.Context) {
	id, ok := connectionID(c)
	if !ok {
		return
	}
	var req transport.UpdateConnectionRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	conn, err := h.svc.UpdateConnection(c.Request.Context(), identity.UserID(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, conn)
}

// DELETE /api/v1/pixels/connections/:id
func (h *Handler) DeleteConnection(c *gin.Context) {
	id, ok := connectionID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if httpkit.HandleError(c, h.svc.DeleteConnection(c.Request.Context(), identity.UserID(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": true})
}

// POST /api/v1/pixels/connections/:id/test
func (h *Handler) TestConnection(c *gin.Context) {
	id, ok := connectionID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	out, err := h.svc.TestConnection(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}

// POST /api/v1/pixels/sync
func (h *Handler) Sync(c *gin.Context) {
	var req transport.SyncRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	out, err := h.svc.Sync(c.Request.Context(), identity.UserID(), service.SyncInput{
		LeadIDs:       req.LeadIDs,
		ConnectionIDs: req.ConnectionIDs,
		SyncType:      req.SyncType,
		Trigger:       service.TriggerManual,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}

// GET /api/v1/pixels/sync/history
func (h *Handler) SyncHistory(c *gin.Context) {
	var req transport.SyncHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.BadRequest(c, msgInvalidRequest)
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
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}

	logs, total, err := h.svc.SyncHistory(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Paginated(c, logs, httpkit.NewPagination(req.Page, req.Limit, total))
}

// GET /api/v1/pixels/oauth/:platform/connect
func (h *Handler) OAuthConnect(c *gin.Context) {
	var req transport.OAuthConnectRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.BadRequest(c, msgInvalidRequest)
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

	out, err := h.svc.OAuthConnect(c.Request.Context(), identity.UserID(), c.Param("platform"), req.ConnectionName)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, out)
}

// OAuthCallback is the public landing route of the platform consent screen.
// GET /api/v1/pixels/oauth/:platform/callback
func (h *Handler) OAuthCallback(c *gin.Context) {
	target := h.svc.OAuthCallback(c.Request.Context(), c.Param("platform"),
		c.Query("code"), c.Query("state"), c.Query("error"))
	c.Redirect(http.StatusFound, target)
}
