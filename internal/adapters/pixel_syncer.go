package adapters

import (
	"context"

	"glasswallet_backend/internal/leads/ports"
	pixelservice "glasswallet_backend/internal/pixels/service"

	"github.com/google/uuid"
)

// PixelSyncer hands tagged leads from the leads pipeline to the pixel orchestrator.
type PixelSyncer struct {
	svc *pixelservice.Service
}

func NewPixelSyncer(svc *pixelservice.Service) *PixelSyncer {
	return &PixelSyncer{svc: svc}
}

func (a *PixelSyncer) Sync(ctx context.Context, userID uuid.UUID, req ports.PixelSyncRequest) (ports.PixelSyncSummary, error) {
	resp, err := a.svc.Sync(ctx, userID, pixelservice.SyncInput{
		LeadIDs:       req.LeadIDs,
		ConnectionIDs: req.ConnectionIDs,
		SyncType:      req.SyncType,
		Trigger:       req.Trigger,
	})
	if err != nil {
		return ports.PixelSyncSummary{}, err
	}
	return ports.PixelSyncSummary{SyncType: resp.SyncType, Result: resp}, nil
}

func (a *PixelSyncer) AutoSyncConnections(ctx context.Context, userID uuid.UUID, syncType string) ([]uuid.UUID, error) {
	return a.svc.AutoSyncConnections(ctx, userID, syncType)
}

var _ ports.PixelSyncer = (*PixelSyncer)(nil)
