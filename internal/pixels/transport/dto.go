package transport

import (
	"time"

	"github.com/google/uuid"
)

const (
	SyncTypeWhitelist = "whitelist"
	SyncTypeQualified = "qualified"
	MaxSyncLeads      = 1000
)

type SyncSettings struct {
	AutoSync       bool     `json:"autoSync"`
	SyncTypes      []string `json:"syncTypes" validate:"omitempty,dive,oneof=whitelist qualified"`
	MinCreditScore *int     `json:"minCreditScore,omitempty" validate:"omitempty,min=300,max=850"`
	Frequency      string   `json:"frequency,omitempty" validate:"omitempty,oneof=realtime hourly daily"`
}

type CreateConnectionRequest struct {
	Platform     string        `json:"platformType" validate:"required"`
	Name         string        `json:"connectionName" validate:"required,min=1,max=100"`
	AccountID    string        `json:"accountId" validate:"max=100"`
	PixelID      string        `json:"pixelId" validate:"max=100"`
	AccessToken  string        `json:"accessToken" validate:"required"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    *time.Time    `json:"tokenExpiresAt"`
	SyncSettings *SyncSettings `json:"syncSettings"`
}

type UpdateConnectionRequest struct {
	Name         *string       `json:"connectionName" validate:"omitempty,min=1,max=100"`
	AccountID    *string       `json:"accountId" validate:"omitempty,max=100"`
	PixelID      *string       `json:"pixelId" validate:"omitempty,max=100"`
	Status       *string       `json:"connectionStatus" validate:"omitempty,oneof=active inactive"`
	SyncSettings *SyncSettings `json:"syncSettings"`
}

type ConnectionResponse struct {
	ID             uuid.UUID    `json:"id"`
	Platform       string       `json:"platformType"`
	Name           string       `json:"connectionName"`
	AccountID      string       `json:"accountId"`
	PixelID        string       `json:"pixelId"`
	Status         string       `json:"connectionStatus"`
	SyncSettings   SyncSettings `json:"syncSettings"`
	TokenExpiresAt *time.Time   `json:"tokenExpiresAt,omitempty"`
	LastSyncAt     *time.Time   `json:"lastSyncAt,omitempty"`
	LastError      *string      `json:"lastError,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type TestConnectionResponse struct {
	OK       bool      `json:"ok"`
	Status   string    `json:"connectionStatus"`
	Accounts []Account `json:"accounts"`
	Error    string    `json:"error,omitempty"`
}

type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SyncRequest struct {
	LeadIDs       []uuid.UUID `json:"leadIds" validate:"required,min=1,max=1000"`
	ConnectionIDs []uuid.UUID `json:"connectionIds" validate:"required,min=1,max=20"`
	SyncType      string      `json:"syncType" validate:"required,oneof=whitelist qualified"`
}

type ConnectionResult struct {
	ConnectionID   uuid.UUID `json:"connectionId"`
	ConnectionName string    `json:"connectionName"`
	Platform       string    `json:"platformType"`
	Success        bool      `json:"success"`
	SyncedCount    int       `json:"syncedCount"`
	FailedCount    int       `json:"failedCount"`
	Errors         []string  `json:"errors"`
	RetryScheduled bool      `json:"retryScheduled"`
}

type SyncResponse struct {
	SyncType              string             `json:"syncType"`
	TotalLeads            int                `json:"totalLeads"`
	TotalSynced           int                `json:"totalSynced"`
	TotalFailed           int                `json:"totalFailed"`
	Skipped               int                `json:"skipped"`
	SuccessfulConnections int                `json:"successfulConnections"`
	Results               []ConnectionResult `json:"results"`
}

type SyncHistoryRequest struct {
	ConnectionID string `form:"connectionId" validate:"omitempty,uuid"`
	Page         int    `form:"page" validate:"omitempty,min=1"`
	Limit        int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

type SyncLogResponse struct {
	ID           uuid.UUID `json:"id"`
	ConnectionID uuid.UUID `json:"connectionId"`
	SyncType     string    `json:"syncType"`
	Trigger      string    `json:"trigger"`
	LeadCount    int       `json:"leadCount"`
	SyncedCount  int       `json:"syncedCount"`
	FailedCount  int       `json:"failedCount"`
	Errors       []string  `json:"errors"`
	CreatedAt    time.Time `json:"createdAt"`
}

type OAuthConnectRequest struct {
	ConnectionName string `form:"connectionName" validate:"omitempty,max=100"`
}

type OAuthConnectResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}
