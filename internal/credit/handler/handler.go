package handler

import (
	"net/http"

	"glasswallet_backend/internal/credit/service"
	"glasswallet_backend/internal/credit/transport"
	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles credit HTTP requests.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const msgInvalidRequest = "invalid request"

// New creates a new credit handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Pull runs a hard pull against a stored lead.
// POST /api/v1/credit/pull
func (h *Handler) Pull(c *gin.Context) {
	var req transport.PullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	result, err := h.svc.Pull(c.Request.Context(), identity.UserID(), req.LeadID, req.ConsentGiven)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// PreQualify runs a soft check.
// POST /api/v1/credit/pre-qualify
func (h *Handler) PreQualify(c *gin.Context) {
	var req transport.PreQualifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
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

	result, err := h.svc.PreQualify(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GET /api/v1/credit/balance
func (h *Handler) Balance(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.Balance(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Transactions lists the ledger, newest first.
// GET /api/v1/credit/transactions
func (h *Handler) Transactions(c *gin.Context) {
	var req transport.ListTransactionsRequest
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

	items, total, err := h.svc.Transactions(c.Request.Context(), identity.UserID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	httpkit.Paginated(c, items, httpkit.NewPagination(page, limit, total))
}

// Report returns a presigned link to the archived bureau report.
// GET /api/v1/credit/transactions/:id/report
func (h *Handler) Report(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, "invalid transaction id")
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	result, err := h.svc.ReportURL(c.Request.Context(), identity.UserID(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Grant records purchased credits for a user.
// POST /api/v1/admin/credit/grant
func (h *Handler) Grant(c *gin.Context) {
	var req transport.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.BadRequest(c, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.ValidationFailed(c, err)
		return
	}

	result, err := h.svc.Grant(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// POST /api/v1/admin/credit/transactions/:id/refund
func (h *Handler) Refund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, "invalid transaction id")
		return
	}
	var req transport.RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.BadRequest(c, msgInvalidRequest)
			return
		}
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.ValidationFailed(c, err)
		return
	}

	result, err := h.svc.Refund(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}
