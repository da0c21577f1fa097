package adapters

import (
	"context"

	"glasswallet_backend/internal/integrate"
	leadsservice "glasswallet_backend/internal/leads/service"
	"glasswallet_backend/internal/leads/transport"

	"github.com/google/uuid"
)

// IntakeLeadCreator stores widget and webhook submissions through the leads service.
type IntakeLeadCreator struct {
	svc *leadsservice.Service
}

func NewIntakeLeadCreator(svc *leadsservice.Service) *IntakeLeadCreator {
	return &IntakeLeadCreator{svc: svc}
}

func (a *IntakeLeadCreator) CreateLead(ctx context.Context, userID uuid.UUID, lead integrate.IntakeLead, source string) (integrate.CreatedLead, error) {
	resp, err := a.svc.Create(ctx, userID, transport.CreateLeadRequest{
		FirstName:    lead.FirstName,
		LastName:     lead.LastName,
		Email:        lead.Email,
		Phone:        lead.Phone,
		Street:       lead.Street,
		City:         lead.City,
		State:        lead.State,
		ZipCode:      lead.ZipCode,
		ConsentGiven: lead.ConsentGiven,
	}, source)
	if err != nil {
		return integrate.CreatedLead{}, err
	}
	return integrate.CreatedLead{ID: resp.ID, CreatedAt: resp.CreatedAt}, nil
}

var _ integrate.LeadCreator = (*IntakeLeadCreator)(nil)
