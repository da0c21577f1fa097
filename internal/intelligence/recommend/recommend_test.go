package recommend

import (
	"context"
	"errors"
	"iter"
	"testing"

	"glasswallet_backend/internal/intelligence/scoring"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type stubModel struct {
	reply string
	err   error
	got   *model.LLMRequest
}

func (m *stubModel) Name() string { return "stub" }

func (m *stubModel) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	m.got = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if m.err != nil {
			yield(nil, m.err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(m.reply, genai.RoleModel)}, nil)
	}
}

func score(v int) *int { return &v }

func TestHeuristicQualifiedLead(t *testing.T) {
	recs, err := Heuristic{}.Recommend(context.Background(), Context{
		CreditScore: score(760),
		Tags:        []string{"qualified"},
		Signals:     scoring.Signals{AIScore: 80, RiskScore: 10, ConversionProbability: 0.7},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 || recs[0].Action != ActionContactNow || recs[1].Action != ActionSyncToPixels {
		t.Fatalf("unexpected recommendations %+v", recs)
	}
}

func TestHeuristicUnpulledLead(t *testing.T) {
	recs, _ := Heuristic{}.Recommend(context.Background(), Context{
		Signals: scoring.Signals{Anomalies: []scoring.Anomaly{{Code: "NO_CONTACT", Severity: scoring.SeverityHigh, Message: "no contact"}}},
	})
	if len(recs) != 2 || recs[0].Action != ActionReviewData || recs[1].Action != ActionPullCredit {
		t.Fatalf("unexpected recommendations %+v", recs)
	}
}

func TestLLMParsesModelOutput(t *testing.T) {
	m := &stubModel{reply: "```json\n{\"recommendations\":[{\"action\":\"nurture\",\"reason\":\"young lead\",\"priority\":2},{\"action\":\"wire_money\",\"reason\":\"no\",\"priority\":1}]}\n```"}
	recs, err := NewLLM(m).Recommend(context.Background(), Context{CreditScore: score(650)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 || recs[0].Action != ActionNurture {
		t.Fatalf("expected unknown actions dropped, got %+v", recs)
	}
	if m.got == nil || m.got.Config == nil || m.got.Config.SystemInstruction == nil {
		t.Fatalf("expected system instruction on the request")
	}
}

func TestLLMFallsBackOnError(t *testing.T) {
	m := &stubModel{err: errors.New("upstream down")}
	recs, err := NewLLM(m).Recommend(context.Background(), Context{})
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if len(recs) == 0 || recs[0].Action != ActionPullCredit {
		t.Fatalf("expected heuristic output, got %+v", recs)
	}
}
