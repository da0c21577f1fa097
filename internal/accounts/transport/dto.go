package transport

import (
	"time"

	"github.com/google/uuid"
)

type AccountResponse struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	SubscriptionPlan    string    `json:"subscriptionPlan"`
	CreditBalance       int64     `json:"creditBalance"`
	WebhookURL          *string   `json:"webhookUrl,omitempty"`
	LowBalanceThreshold int64     `json:"lowBalanceThreshold"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type SyncResponse struct {
	Account AccountResponse `json:"account"`
	Created bool            `json:"created"`
}

// UpdateAccountRequest patches account settings. An empty webhookUrl clears it.
type UpdateAccountRequest struct {
	WebhookURL          *string `json:"webhookUrl" validate:"omitempty,max=2048"`
	LowBalanceThreshold *int64  `json:"lowBalanceThreshold" validate:"omitempty,min=0,max=100000000"`
}
