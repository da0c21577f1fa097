package transport

import (
	"time"

	"glasswallet_backend/internal/leads/ports"
	"glasswallet_backend/internal/rules/engine"

	"github.com/google/uuid"
)

// Bulk operation caps.
const (
	MaxBulkTagLeads      = 100
	MaxBatchQualifyLeads = 50
)

type CreateLeadRequest struct {
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

// UpdateLeadRequest patches a lead; absent fields stay unchanged.
type UpdateLeadRequest struct {
	FirstName    *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName     *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	Email        *string `json:"email" validate:"omitempty,email,max=254"`
	Phone        *string `json:"phone" validate:"omitempty,phone"`
	Street       *string `json:"street" validate:"omitempty,max=200"`
	City         *string `json:"city" validate:"omitempty,max=100"`
	State        *string `json:"state" validate:"omitempty,usstate"`
	ZipCode      *string `json:"zipCode" validate:"omitempty,max=10"`
	ConsentGiven *bool   `json:"consentGiven"`
}

type ListLeadsRequest struct {
	Page           int    `form:"page" validate:"omitempty,min=1"`
	Limit          int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Search         string `form:"search" validate:"omitempty,max=100"`
	TagType        string `form:"tagType" validate:"omitempty,oneof=whitelist blacklist qualified unqualified"`
	Processed      *bool  `form:"processed"`
	MinCreditScore *int   `form:"minCreditScore" validate:"omitempty,min=300,max=850"`
	MaxCreditScore *int   `form:"maxCreditScore" validate:"omitempty,min=300,max=850"`
}

type TagResponse struct {
	ID             uuid.UUID  `json:"id"`
	TagType        string     `json:"tagType"`
	Reason         string     `json:"tagReason"`
	RuleID         *uuid.UUID `json:"ruleId,omitempty"`
	SyncedToPixels bool       `json:"syncedToPixels"`
	PixelSyncAt    *time.Time `json:"pixelSyncAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type LeadResponse struct {
	ID                uuid.UUID     `json:"id"`
	FirstName         string        `json:"firstName"`
	LastName          string        `json:"lastName"`
	Email             *string       `json:"email,omitempty"`
	Phone             *string       `json:"phone,omitempty"`
	Street            *string       `json:"street,omitempty"`
	City              *string       `json:"city,omitempty"`
	State             *string       `json:"state,omitempty"`
	ZipCode           *string       `json:"zipCode,omitempty"`
	CreditScore       *int          `json:"creditScore,omitempty"`
	IncomeEstimate    *int64        `json:"incomeEstimate,omitempty"`
	ConsentGiven      bool          `json:"consentGiven"`
	Source            string        `json:"source"`
	ProcessedAt       *time.Time    `json:"processedAt,omitempty"`
	DataRetentionDate time.Time     `json:"dataRetentionDate"`
	Tags              []TagResponse `json:"tags"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

type CreditPullRequest struct {
	ConsentGiven bool  `json:"consentGiven"`
	AutoTag      *bool `json:"autoTag"`
}

// TagRequest applies a manual tag.
type TagRequest struct {
	TagType string `json:"tagType" validate:"required,oneof=whitelist blacklist qualified unqualified"`
	Reason  string `json:"reason" validate:"max=500"`
}

type RemoveTagRequest struct {
	TagType string `form:"tagType" validate:"required,oneof=whitelist blacklist qualified unqualified"`
}

type AutoTagResponse struct {
	LeadID        uuid.UUID         `json:"leadId"`
	Decisions     []engine.Decision `json:"decisions"`
	MatchedRules  []string          `json:"matchedRules"`
	Baseline      bool              `json:"baseline"`
	Signals       ports.Signals     `json:"signals"`
	Tags          []TagResponse     `json:"tags"`
	WebhookEvents []string          `json:"webhookEvents"`
}

type PullAndQualifyResponse struct {
	LeadID  uuid.UUID           `json:"leadId"`
	Credit  ports.CreditOutcome `json:"credit"`
	Tagging *AutoTagResponse    `json:"tagging,omitempty"`
}

type TagAndSyncRequest struct {
	ConnectionIDs []uuid.UUID `json:"connectionIds" validate:"omitempty,max=20"`
}

type TagAndSyncResponse struct {
	Tagging AutoTagResponse          `json:"tagging"`
	Syncs   []ports.PixelSyncSummary `json:"syncs"`
}

type BulkTagRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=100"`
	TagType string      `json:"tagType" validate:"required,oneof=whitelist blacklist qualified unqualified"`
	Reason  string      `json:"reason" validate:"max=500"`
}

type BulkTagResponse struct {
	Tagged  int         `json:"tagged"`
	TagType string      `json:"tagType"`
	LeadIDs []uuid.UUID `json:"leadIds"`
}

type BatchQualifyRequest struct {
	LeadIDs      []uuid.UUID `json:"leadIds" validate:"required,min=1,max=50"`
	ConsentGiven bool        `json:"consentGiven"`
}

type BatchItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BatchQualifyItem struct {
	LeadID  uuid.UUID               `json:"leadId"`
	Success bool                    `json:"success"`
	Result  *PullAndQualifyResponse `json:"result,omitempty"`
	Error   *BatchItemError         `json:"error,omitempty"`
}

type BatchQualifyResponse struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Results   []BatchQualifyItem `json:"results"`
}
