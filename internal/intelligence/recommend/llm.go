package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const systemPrompt = `You advise a lending sales team on the next step for one consumer lead.
Reply with a JSON object {"recommendations":[{"action":"...","reason":"...","priority":1}]}.
Allowed actions: pull_credit, sync_to_pixels, nurture, review_data, consider_blacklist, contact_now.
Priority 1 is most urgent. Never include personal data in reasons.`

// LLM asks a language model and falls back to Heuristic when the model fails
// or answers with nothing usable.
type LLM struct {
	llm      model.LLM
	fallback Heuristic
}

// NewLLM wraps any adk model.
func NewLLM(llm model.LLM) *LLM {
	return &LLM{llm: llm}
}

func (l *LLM) Name() string { return "llm:" + l.llm.Name() }

var allowedActions = map[string]bool{
	ActionPullCredit: true, ActionSyncToPixels: true, ActionNurture: true,
	ActionReviewData: true, ActionBlacklist: true, ActionContactNow: true,
}

func (l *LLM) Recommend(ctx context.Context, in Context) ([]Recommendation, error) {
	out, err := l.ask(ctx, in)
	if err != nil || len(out) == 0 {
		return l.fallback.Recommend(ctx, in)
	}
	return out, nil
}

func (l *LLM) ask(ctx context.Context, in Context) ([]Recommendation, error) {
	facts := map[string]interface{}{
		"creditScore":           in.CreditScore,
		"tags":                  in.Tags,
		"aiScore":               in.Signals.AIScore,
		"riskScore":             in.Signals.RiskScore,
		"conversionProbability": in.Signals.ConversionProbability,
		"anomalies":             in.Signals.Anomalies,
	}
	raw, err := json.Marshal(facts)
	if err != nil {
		return nil, err
	}

	temp := float32(0.2)
	req := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(string(raw), genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			Temperature:       &temp,
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		},
	}

	var text string
	for resp, err := range l.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, err
		}
		if resp != nil && resp.Content != nil {
			for _, p := range resp.Content.Parts {
				if p != nil {
					text += p.Text
				}
			}
		}
	}
	return parse(text)
}

func parse(text string) ([]Recommendation, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var body struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &body); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	out := make([]Recommendation, 0, len(body.Recommendations))
	for _, r := range body.Recommendations {
		if !allowedActions[r.Action] {
			continue
		}
		if r.Priority < 1 {
			r.Priority = 3
		}
		out = append(out, r)
	}
	return out, nil
}

var _ Recommender = (*LLM)(nil)
