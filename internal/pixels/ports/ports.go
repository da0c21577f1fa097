// Package ports defines what the pixel orchestrator needs from other domains.
package ports

import (
	"context"
	"time"

	"glasswallet_backend/internal/pixels/platforms"

	"github.com/google/uuid"
)

// LeadSource supplies tagged leads and records that they were pushed.
type LeadSource interface {
	// SyncCandidates returns the requested leads owned by userID that carry a tag of tagType.
	SyncCandidates(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string) ([]platforms.Lead, error)
	MarkSynced(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string, at time.Time) error
}

// SyncRetry is a deferred re-push of leads to one connection.
type SyncRetry struct {
	UserID       uuid.UUID   `json:"userId"`
	ConnectionID uuid.UUID   `json:"connectionId"`
	LeadIDs      []uuid.UUID `json:"leadIds"`
	SyncType     string      `json:"syncType"`
}

// RetryScheduler enqueues sync retries with backoff.
type RetryScheduler interface {
	EnqueuePixelSyncRetry(ctx context.Context, retry SyncRetry) error
}
