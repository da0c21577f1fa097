package handler

import (
	"net/http"

	"glasswallet_backend/internal/leads/service"
	"glasswallet_backend/internal/leads/transport"
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
	msgInvalidRequest = "invalid request"
	msgInvalidLeadID  = "invalid lead id"
)

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// bind decodes and validates a JSON body. It writes the error response itself.
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

func leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, msgInvalidLeadID)
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/v1/leads
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), identity.UserID(), req, "")
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// GET /api/v1/leads
func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
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

	items, total, err := h.svc.List(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	page, limit := service.PageAndLimit(req.Page, req.Limit)
	httpkit.Paginated(c, items, httpkit.NewPagination(page, limit, total))
}

// GET /api/v1/leads/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.GetByID(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PATCH /api/v1/leads/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	var req transport.UpdateLeadRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), identity.UserID(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DELETE /api/v1/leads/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), identity.UserID(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": true})
}

// CreditPull pulls credit for the lead and auto-tags it unless autoTag is false.
// POST /api/v1/leads/:id/credit-pull
func (h *Handler) CreditPull(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	var req transport.CreditPullRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	autoTag := req.AutoTag == nil || *req.AutoTag
	result, err := h.svc.PullAndQualify(c.Request.Context(), identity.UserID(), id, req.ConsentGiven, autoTag)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/leads/:id/tags
func (h *Handler) ListTags(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.ListTags(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/leads/:id/tag
func (h *Handler) Tag(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	var req transport.TagRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.Tag(c.Request.Context(), identity.UserID(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DELETE /api/v1/leads/:id/tag?tagType=
func (h *Handler) RemoveTag(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	var req transport.RemoveTagRequest
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

	if httpkit.HandleError(c, h.svc.RemoveTag(c.Request.Context(), identity.UserID(), id, req.TagType)) {
		return
	}
	httpkit.OK(c, gin.H{"removed": true, "tagType": req.TagType})
}

// POST /api/v1/leads/:id/auto-tag
func (h *Handler) AutoTag(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.AutoTag(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/leads/:id/tag-and-sync
func (h *Handler) TagAndSync(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	var req transport.TagAndSyncRequest
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.TagAndSync(c.Request.Context(), identity.UserID(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/leads/bulk-tag
func (h *Handler) BulkTag(c *gin.Context) {
	var req transport.BulkTagRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.BulkTag(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// POST /api/v1/leads/batch-qualify
func (h *Handler) BatchQualify(c *gin.Context) {
	var req transport.BatchQualifyRequest
	if !h.bind(c, &req) {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.BatchQualify(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
