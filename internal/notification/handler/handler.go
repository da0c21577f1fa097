package handler

import (
	"context"
	"strconv"
	"time"

	"glasswallet_backend/platform/httpkit"
	"glasswallet_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Delivery is one outbox row as shown to its owner.
type Delivery struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Event       string    `json:"event,omitempty"`
	Destination string    `json:"destination"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   *string   `json:"lastError,omitempty"`
	RunAt       time.Time `json:"runAt"`
}

type DeliveryLister interface {
	ListDeliveries(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]Delivery, int, error)
	Redeliver(ctx context.Context, userID, id uuid.UUID) error
}

type Handler struct {
	svc DeliveryLister
	val *validator.Validator
}

func New(svc DeliveryLister, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GET /api/v1/notifications/deliveries
func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	status := c.Query("status")
	if err := h.val.Var(status, "omitempty,oneof=pending enqueued processing succeeded failed"); err != nil {
		httpkit.BadRequest(c, "invalid status filter")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	items, total, err := h.svc.ListDeliveries(c.Request.Context(), identity.UserID(), status, page, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Paginated(c, items, httpkit.NewPagination(page, limit, total))
}

// POST /api/v1/notifications/deliveries/:id/redeliver
func (h *Handler) Redeliver(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.BadRequest(c, "invalid delivery id")
		return
	}
	if httpkit.HandleError(c, h.svc.Redeliver(c.Request.Context(), identity.UserID(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"requeued": true})
}
