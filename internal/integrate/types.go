package integrate

import (
	"time"

	"github.com/google/uuid"
)

// MaxWebhookLeads caps one webhook submission.
const MaxWebhookLeads = 100

// IntakeLead is a lead submitted from outside the app.
type IntakeLead struct {
	FirstName    string `json:"firstName" validate:"required,min=1,max=100"`
	LastName     string `json:"lastName" validate:"required,min=1,max=100"`
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	Phone        string `json:"phone" validate:"omitempty,phone"`
	Street       string `json:"street" validate:"omitempty,max=200"`
	City         string `json:"city" validate:"omitempty,max=100"`
	State        string `json:"state" validate:"omitempty,usstate"`
	ZipCode      string `json:"zipCode" validate:"omitempty,max=10"`
	ConsentGiven bool   `json:"consentGiven"`
}

// WidgetSubmission is posted by the embeddable form.
type WidgetSubmission struct {
	IntakeLead
	CallbackURL string `json:"callbackUrl" validate:"omitempty,url,max=2000"`
}

// WebhookSubmission is posted server to server.
type WebhookSubmission struct {
	Leads       []IntakeLead `json:"leads" validate:"required,min=1,max=100,dive"`
	CallbackURL string       `json:"callbackUrl" validate:"omitempty,url,max=2000"`
}

// CreatedLead is what the lead store reports back.
type CreatedLead struct {
	ID        uuid.UUID `json:"leadId"`
	CreatedAt time.Time `json:"createdAt"`
}

type IntakeResponse struct {
	LeadID         uuid.UUID `json:"leadId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	CallbackQueued *bool     `json:"callbackQueued,omitempty"`
}

type IntakeItemResult struct {
	Index  int        `json:"index"`
	LeadID *uuid.UUID `json:"leadId,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type IntakeBatchResponse struct {
	Received int                `json:"received"`
	Created  int                `json:"created"`
	Failed   int                `json:"failed"`
	Results  []IntakeItemResult `json:"results"`

	CallbackQueued *bool `json:"callbackQueued,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name           string   `json:"name" validate:"required,min=1,max=100"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=253"`
}

type APIKeyResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	KeyPrefix      string     `json:"keyPrefix"`
	AllowedDomains []string   `json:"allowedDomains"`
	IsActive       bool       `json:"isActive"`
	LastUsedAt     *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CreateAPIKeyResponse carries the plaintext key, shown only once.
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func toAPIKeyResponse(k APIKey) APIKeyResponse {
	domains := k.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	return APIKeyResponse{
		ID:             k.ID,
		Name:           k.Name,
		KeyPrefix:      k.KeyPrefix,
		AllowedDomains: domains,
		IsActive:       k.IsActive,
		LastUsedAt:     k.LastUsedAt,
		CreatedAt:      k.CreatedAt,
	}
}
