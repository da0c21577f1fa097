// Package service manages pixel connections and orchestrates lead sync to ad platforms.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glasswallet_backend/internal/events"
	"glasswallet_backend/internal/pixels/platforms"
	"glasswallet_backend/internal/pixels/ports"
	"glasswallet_backend/internal/pixels/repository"
	"glasswallet_backend/internal/pixels/transport"
	"glasswallet_backend/platform/apperr"
	"glasswallet_backend/platform/cache"
	"glasswallet_backend/platform/logger"

	"github.com/google/uuid"
)

// AdapterSource resolves the adapter for a platform.
type AdapterSource interface {
	Get(p platforms.Platform) (platforms.Adapter, error)
}

// Sealer protects tokens at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Deps are the collaborators of the pixels service. Retries may be nil.
type Deps struct {
	Repo       repository.Repository
	Adapters   AdapterSource
	Box        Sealer
	Cache      cache.Store
	Leads      ports.LeadSource
	Retries    ports.RetryScheduler
	Bus        events.Bus
	Log        *logger.Logger
	AppBaseURL string
	APIBaseURL string
}

type Service struct {
	repo       repository.Repository
	adapters   AdapterSource
	box        Sealer
	cache      cache.Store
	leads      ports.LeadSource
	retries    ports.RetryScheduler
	bus        events.Bus
	log        *logger.Logger
	appBaseURL string
	apiBaseURL string
	now        func() time.Time
}

func New(d Deps) *Service {
	return &Service{
		repo:       d.Repo,
		adapters:   d.Adapters,
		box:        d.Box,
		cache:      d.Cache,
		leads:      d.Leads,
		retries:    d.Retries,
		bus:        d.Bus,
		log:        d.Log,
		appBaseURL: strings.TrimRight(d.AppBaseURL, "/"),
		apiBaseURL: strings.TrimRight(d.APIBaseURL, "/"),
		now:        time.Now,
	}
}

// SetRetryScheduler wires the task queue once the scheduler client exists.
func (s *Service) SetRetryScheduler(r ports.RetryScheduler) {
	s.retries = r
}

func toSettings(in *transport.SyncSettings) repository.SyncSettings {
	if in == nil {
		return repository.SyncSettings{AutoSync: false, SyncTypes: []string{transport.SyncTypeQualified}}
	}
	types := in.SyncTypes
	if types == nil {
		types = []string{}
	}
	return repository.SyncSettings{
		AutoSync:       in.AutoSync,
		SyncTypes:      types,
		MinCreditScore: in.MinCreditScore,
		Frequency:      in.Frequency,
	}
}

func toConnectionResponse(c repository.Connection) transport.ConnectionResponse {
	return transport.ConnectionResponse{
		ID:        c.ID,
		Platform:  c.Platform,
		Name:      c.Name,
		AccountID: c.AccountID,
		PixelID:   c.PixelID,
		Status:    c.Status,
		SyncSettings: transport.SyncSettings{
			AutoSync:       c.Settings.AutoSync,
			SyncTypes:      c.Settings.SyncTypes,
			MinCreditScore: c.Settings.MinCreditScore,
			Frequency:      c.Settings.Frequency,
		},
		TokenExpiresAt: c.TokenExpiresAt,
		LastSyncAt:     c.LastSyncAt,
		LastError:      c.LastError,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func parsePlatform(raw string) (platforms.Platform, error) {
	p, err := platforms.ParsePlatform(raw)
	if err != nil {
		return "", apperr.Validation(err.Error()).WithCode("UNSUPPORTED_PLATFORM")
	}
	return p, nil
}

func (s *Service) CreateConnection(ctx context.Context, userID uuid.UUID, req transport.CreateConnectionRequest) (transport.ConnectionResponse, error) {
	p, err := parsePlatform(req.Platform)
	if err != nil {
		return transport.ConnectionResponse{}, err
	}
	access, err := s.box.Seal(req.AccessToken)
	if err != nil {
		return transport.ConnectionResponse{}, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.box.Seal(req.RefreshToken)
	if err != nil {
		return transport.ConnectionResponse{}, fmt.Errorf("seal refresh token: %w", err)
	}

	c, err := s.repo.Create(ctx, repository.Connection{
		UserID:             userID,
		Platform:           string(p),
		Name:               strings.TrimSpace(req.Name),
		AccountID:          strings.TrimSpace(req.AccountID),
		PixelID:            strings.TrimSpace(req.PixelID),
		SealedAccessToken:  access,
		SealedRefreshToken: refresh,
		TokenExpiresAt:     req.ExpiresAt,
		Status:             repository.StatusActive,
		Settings:           toSettings(req.SyncSettings),
	})
	if err != nil {
		return transport.ConnectionResponse{}, err
	}
	return toConnectionResponse(c), nil
}

func (s *Service) ListConnections(ctx context.Context, userID uuid.UUID) ([]transport.ConnectionResponse, error) {
	conns, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, toConnectionResponse(c))
	}
	return out, nil
}

func (s *Service) UpdateConnection(ctx context.Context, userID, id uuid.UUID, req transport.UpdateConnectionRequest) (transport.ConnectionResponse, error) {
	upd := repository.ConnectionUpdate{
		Name:      req.Name,
		AccountID: req.AccountID,
		PixelID:   req.PixelID,
		Status:    req.Status,
	}
	if req.SyncSettings != nil {
		settings := toSettings(req.SyncSettings)
		upd.Settings = &settings
	}
	c, err := s.repo.Update(ctx, userID, id, upd)
	if err != nil {
		return transport.ConnectionResponse{}, err
	}
	return toConnectionResponse(c), nil
}

func (s *Service) DeleteConnection(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}

// credentials unseals the stored tokens of c.
func (s *Service) credentials(c repository.Connection) (platforms.Credentials, error) {
	access, err := s.box.Open(c.SealedAccessToken)
	if err != nil {
		return platforms.Credentials{}, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.box.Open(c.SealedRefreshToken)
	if err != nil {
		return platforms.Credentials{}, fmt.Errorf("open refresh token: %w", err)
	}
	return platforms.Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    c.TokenExpiresAt,
		AccountID:    c.AccountID,
		PixelID:      c.PixelID,
	}, nil
}

// markExpired flips the connection and tells the user to reconnect.
func (s *Service) markExpired(ctx context.Context, c repository.Connection, cause error) {
	msg := cause.Error()
	if err := s.repo.SetStatus(ctx, c.ID, repository.StatusExpired, &msg); err != nil {
		s.log.Error("failed to mark pixel connection expired", "connectionId", c.ID, "error", err)
	}
	err := s.bus.PublishSync(ctx, events.PixelConnectionExpired{
		BaseEvent:      events.NewBaseEvent(),
		UserID:         c.UserID,
		ConnectionID:   c.ID,
		ConnectionName: c.Name,
		Platform:       c.Platform,
	})
	if err != nil {
		s.log.Error("connection expired email not queued", "connectionId", c.ID, "error", err)
	}
}

// TestConnection checks the stored credentials by listing the ad accounts they can see.
func (s *Service) TestConnection(ctx context.Context, userID, id uuid.UUID) (transport.TestConnectionResponse, error) {
	c, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return transport.TestConnectionResponse{}, err
	}
	adapter, err := s.adapters.Get(platforms.Platform(c.Platform))
	if err != nil {
		return transport.TestConnectionResponse{}, apperr.Internal("platform adapter unavailable").WithOp("pixels.TestConnection")
	}
	creds, err := s.credentials(c)
	if err != nil {
		msg := "stored credentials are unreadable, reconnect the platform"
		_ = s.repo.SetStatus(ctx, c.ID, repository.StatusError, &msg)
		return transport.TestConnectionResponse{OK: false, Status: repository.StatusError, Accounts: []transport.Account{}, Error: msg}, nil
	}

	accounts, err := adapter.FetchAccounts(ctx, creds)
	switch {
	case errors.Is(err, platforms.ErrExpiredCredentials):
		s.markExpired(ctx, c, err)
		return transport.TestConnectionResponse{OK: false, Status: repository.StatusExpired, Accounts: []transport.Account{}, Error: err.Error()}, nil
	case err != nil:
		msg := err.Error()
		if serr := s.repo.SetStatus(ctx, c.ID, c.Status, &msg); serr != nil {
			s.log.Error("failed to record pixel connection error", "connectionId", c.ID, "error", serr)
		}
		return transport.TestConnectionResponse{OK: false, Status: c.Status, Accounts: []transport.Account{}, Error: msg}, nil
	}

	status := c.Status
	if status == repository.StatusExpired || status == repository.StatusError {
		status = repository.StatusActive
	}
	if err := s.repo.SetStatus(ctx, c.ID, status, nil); err != nil {
		return transport.TestConnectionResponse{}, err
	}
	out := make([]transport.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, transport.Account{ID: a.ID, Name: a.Name})
	}
	return transport.TestConnectionResponse{OK: true, Status: status, Accounts: out}, nil
}

// AutoSyncConnections lists active connections that opted into automatic sync of syncType.
func (s *Service) AutoSyncConnections(ctx context.Context, userID uuid.UUID, syncType string) ([]uuid.UUID, error) {
	conns, err := s.repo.ListAutoSync(ctx, userID, syncType)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// SyncHistory pages through the per-connection sync log.
func (s *Service) SyncHistory(ctx context.Context, userID uuid.UUID, req transport.SyncHistoryRequest) ([]transport.SyncLogResponse, int, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	params := repository.SyncLogParams{UserID: userID, Offset: (req.Page - 1) * req.Limit, Limit: req.Limit}
	if req.ConnectionID != "" {
		id, err := uuid.Parse(req.ConnectionID)
		if err != nil {
			return nil, 0, apperr.Validation("invalid connectionId")
		}
		params.ConnectionID = &id
	}
	logs, total, err := s.repo.ListSyncLogs(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	out := make([]transport.SyncLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, transport.SyncLogResponse{
			ID:           l.ID,
			ConnectionID: l.ConnectionID,
			SyncType:     l.SyncType,
			Trigger:      l.Trigger,
			LeadCount:    l.LeadCount,
			SyncedCount:  l.SyncedCount,
			FailedCount:  l.FailedCount,
			Errors:       l.Errors,
			CreatedAt:    l.CreatedAt,
		})
	}
	return out, total, nil
}
