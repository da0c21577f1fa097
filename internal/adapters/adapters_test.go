package adapters

import (
	"context"
	"testing"
	"time"

	"glasswallet_backend/internal/intelligence/scoring"
	"glasswallet_backend/internal/leads/ports"
	leadsrepo "glasswallet_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type fakeLeadRepo struct {
	leads  []leadsrepo.Lead
	tags   map[uuid.UUID][]leadsrepo.Tag
	marked []uuid.UUID
}

func (f *fakeLeadRepo) GetMany(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]leadsrepo.Lead, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []leadsrepo.Lead
	for _, l := range f.leads {
		if want[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLeadRepo) ListTagsForLeads(context.Context, uuid.UUID, []uuid.UUID) (map[uuid.UUID][]leadsrepo.Tag, error) {
	return f.tags, nil
}

func (f *fakeLeadRepo) MarkTagsSynced(_ context.Context, _ uuid.UUID, ids []uuid.UUID, _ string, _ time.Time) (int64, error) {
	f.marked = append(f.marked, ids...)
	return int64(len(ids)), nil
}

func TestSyncCandidatesKeepsTaggedLeadsInRequestOrder(t *testing.T) {
	email := "a@example.com"
	state := "TX"
	score := 720
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeLeadRepo{
		leads: []leadsrepo.Lead{
			{ID: a, FirstName: "Ann", Email: &email, State: &state, CreditScore: &score},
			{ID: b, FirstName: "Bo"},
			{ID: c, FirstName: "Cy"},
		},
		tags: map[uuid.UUID][]leadsrepo.Tag{
			a: {{TagType: "qualified"}},
			b: {{TagType: "rejected"}},
			c: {{TagType: "qualified"}},
		},
	}
	src := NewPixelLeadSource(repo)

	got, err := src.SyncCandidates(context.Background(), uuid.New(), []uuid.UUID{c, uuid.New(), b, a}, "qualified")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != c.String() || got[1].ID != a.String() {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if got[1].Email != email || got[1].State != "TX" || *got[1].CreditScore != 720 {
		t.Fatalf("lead fields not mapped: %+v", got[1])
	}

	if err := src.MarkSynced(context.Background(), uuid.New(), []uuid.UUID{a}, "qualified", time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(repo.marked) != 1 {
		t.Fatalf("expected one marked lead")
	}
}

type fixedSignals scoring.Signals

func (f fixedSignals) Signals(scoring.Input) scoring.Signals { return scoring.Signals(f) }

func TestSignalProviderCountsAnomalies(t *testing.T) {
	p := NewSignalProvider(fixedSignals{
		AIScore:               80,
		RiskScore:             15,
		ConversionProbability: 0.42,
		Anomalies:             []scoring.Anomaly{{Code: "a"}, {Code: "b"}},
	})
	got, err := p.Signals(context.Background(), ports.SignalInput{})
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if got.AIScore != 80 || got.RiskScore != 15 || got.AnomalyCount != 2 || got.ConversionProbability != 0.42 {
		t.Fatalf("unexpected signals %+v", got)
	}
}
