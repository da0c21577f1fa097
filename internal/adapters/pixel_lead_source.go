package adapters

import (
	"context"
	"time"

	leadsrepo "glasswallet_backend/internal/leads/repository"
	"glasswallet_backend/internal/pixels/platforms"
	pixelports "glasswallet_backend/internal/pixels/ports"

	"github.com/google/uuid"
)

// LeadTagReader is the slice of the leads repository the pixel orchestrator reads through.
type LeadTagReader interface {
	GetMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]leadsrepo.Lead, error)
	ListTagsForLeads(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID) (map[uuid.UUID][]leadsrepo.Tag, error)
	MarkTagsSynced(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string, at time.Time) (int64, error)
}

// PixelLeadSource serves tagged leads to the pixel orchestrator.
type PixelLeadSource struct {
	repo LeadTagReader
}

func NewPixelLeadSource(repo LeadTagReader) *PixelLeadSource {
	return &PixelLeadSource{repo: repo}
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// SyncCandidates keeps the requested leads that carry a tag of tagType, in request order.
func (a *PixelLeadSource) SyncCandidates(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string) ([]platforms.Lead, error) {
	if len(leadIDs) == 0 {
		return nil, nil
	}
	leads, err := a.repo.GetMany(ctx, userID, leadIDs)
	if err != nil {
		return nil, err
	}
	tags, err := a.repo.ListTagsForLeads(ctx, userID, leadIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]leadsrepo.Lead, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
	}
	out := make([]platforms.Lead, 0, len(leads))
	for _, id := range leadIDs {
		l, ok := byID[id]
		if !ok || !hasTag(tags[id], tagType) {
			continue
		}
		out = append(out, platforms.Lead{
			ID:          l.ID.String(),
			Email:       str(l.Email),
			Phone:       str(l.Phone),
			FirstName:   l.FirstName,
			LastName:    l.LastName,
			State:       str(l.State),
			ZipCode:     str(l.ZipCode),
			CreditScore: l.CreditScore,
		})
	}
	return out, nil
}

func hasTag(tags []leadsrepo.Tag, tagType string) bool {
	for _, t := range tags {
		if t.TagType == tagType {
			return true
		}
	}
	return false
}

func (a *PixelLeadSource) MarkSynced(ctx context.Context, userID uuid.UUID, leadIDs []uuid.UUID, tagType string, at time.Time) error {
	_, err := a.repo.MarkTagsSynced(ctx, userID, leadIDs, tagType, at)
	return err
}

var _ pixelports.LeadSource = (*PixelLeadSource)(nil)
