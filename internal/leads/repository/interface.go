package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, userID, id uuid.UUID) (Lead, error)
	GetMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]Lead, error)
	List(ctx context.Context, params ListParams) ([]Lead, int, error)
}

// LeadWriter provides write operations for lead management.
type LeadWriter interface {
	Create(ctx context.Context, params CreateLeadParams) (Lead, error)
	Update(ctx context.Context, userID, id uuid.UUID, params UpdateLeadParams) (Lead, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// TagStore manages qualification tags on leads.
type TagStore interface {
	ApplyTags(ctx context.Context, leadID uuid.UUID, writes []TagWrite, hook TxHook) ([]Tag, error)
	BulkApplyTag(ctx context.Context, leadIDs []uuid.UUID, write TagWrite) (int, error)
	RemoveTag(ctx context.Context, userID, leadID uuid.UUID, tagType string) (int64, error)
	ListTags(ctx context.Context, userID, leadID uuid.UUID) ([]Tag, error)
	ListTagsForLeads(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID) (map[uuid.UUID][]Tag, error)
	MarkTagsSynced(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string, at time.Time) (int64, error)
}

// LeadsRepository is the complete leads data contract.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	TagStore
}

var _ LeadsRepository = (*Repository)(nil)
