// Package airank reorders NDC candidates with Gemini. The model sees the
// scored candidate list plus the parsed instructions and returns a strict
// JSON ranking; any failure is reported to the caller, which falls back to
// deterministic ordering.
package airank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/verdantrx/dispense-engine/internal/domain/calculation"
	"github.com/verdantrx/dispense-engine/internal/engine"
	"github.com/verdantrx/dispense-engine/internal/ndc"
	"github.com/verdantrx/dispense-engine/internal/sig"
)

const defaultModel = "gemini-2.0-flash"

// Config holds AI ranker configuration
type Config struct {
	APIKey     string
	Model      string
	MaxRetries int
}

// DefaultConfig returns sensible defaults
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     strings.TrimSpace(apiKey),
		Model:      defaultModel,
		MaxRetries: 3,
	}
}

// Client ranks candidates via Gemini
type Client struct {
	config Config
	logger *zap.Logger
}

// New creates an AI ranking client
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{config: cfg, logger: logger}
}

const systemPrompt = `You are a pharmacy fulfillment assistant. You receive a
prescription (drug, parsed dosing instructions, days supply) and a list of NDC
package candidates, each with a deterministic match score. Reorder the
candidates from most to least suitable for dispensing. Prefer active packages
whose size cleanly covers the required quantity. Respond with only JSON:
{"ranked_ndcs": ["..."], "top_ndc": "...", "rationale": "..."}.
Every NDC in your answer must come from the candidate list. Keep the rationale
under two sentences.`

// rankingPayload is what the model sees
type rankingPayload struct {
	DrugToken  string             `json:"drug_token"`
	SigText    string             `json:"sig_text"`
	DaysSupply float64            `json:"days_supply"`
	Sig        *sig.NormalizedSig `json:"parsed_sig,omitempty"`
	Candidates []candidateView    `json:"candidates"`
}

type candidateView struct {
	NDC                string  `json:"ndc"`
	ProductName        string  `json:"product_name"`
	PackageDescription string  `json:"package_description"`
	Strength           string  `json:"strength,omitempty"`
	Active             bool    `json:"active"`
	MatchScore         float64 `json:"match_score"`
}

// rankingReply is the strict JSON shape the model must return
type rankingReply struct {
	RankedNDCs []string `json:"ranked_ndcs"`
	TopNDC     string   `json:"top_ndc"`
	Rationale  string   `json:"rationale"`
}

// Rank implements engine.Ranker
func (c *Client) Rank(ctx context.Context, candidates []ndc.Candidate, s *sig.NormalizedSig, req calculation.Request) (*engine.Ranking, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.config.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.config.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	payload := rankingPayload{
		DrugToken:  req.DrugToken,
		SigText:    req.SigText,
		DaysSupply: req.DaysSupply,
		Sig:        s,
	}
	for _, cand := range candidates {
		view := candidateView{
			NDC:                cand.NDC,
			ProductName:        cand.ProductName,
			PackageDescription: cand.PackageDescription,
			Strength:           cand.Strength,
			Active:             cand.Active,
		}
		if cand.MatchScore != nil {
			view.MatchScore = *cand.MatchScore
		}
		payload.Candidates = append(payload.Candidates, view)
	}

	userJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	parts := []genai.Part{genai.Text("INPUT_JSON:\n" + string(userJSON))}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}

		txt := firstText(resp)
		if txt == "" {
			return nil, errors.New("gemini rank: empty response")
		}
		txt = stripCodeFences(strings.TrimSpace(txt))

		var reply rankingReply
		if err := json.Unmarshal([]byte(txt), &reply); err != nil {
			return nil, fmt.Errorf("gemini rank: bad JSON: %w", err)
		}

		return &engine.Ranking{
			RankedNDCs: reply.RankedNDCs,
			Rationale:  reply.Rationale,
			TopNDC:     reply.TopNDC,
		}, nil
	}
	return nil, lastErr
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func ptrFloat32(v float32) *float32 { return &v }
