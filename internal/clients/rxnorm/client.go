// Package rxnorm resolves free-text drug names to RxCUI identifiers via the
// RxNav REST API. Exact lookup first, approximate match as fallback.
package rxnorm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verdantrx/dispense-engine/internal/domain/calculation"
	"github.com/verdantrx/dispense-engine/pkg/circuitbreaker"
)

const defaultBaseURL = "https://rxnav.nlm.nih.gov/REST"

// Config holds RxNorm client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	// MaxCandidates caps how many approximate matches are considered
	MaxCandidates int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:       defaultBaseURL,
		Timeout:       10 * time.Second,
		MaxCandidates: 5,
	}
}

// Client resolves drug names against RxNav
type Client struct {
	config  Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates an RxNorm client guarded by a circuit breaker
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("rxnorm"), logger)
	if err != nil {
		return nil, fmt.Errorf("create breaker: %w", err)
	}

	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// rxcuiResponse is the shape of /rxcui.json
type rxcuiResponse struct {
	IDGroup struct {
		Name   string   `json:"name"`
		RxCUIs []string `json:"rxnormId"`
	} `json:"idGroup"`
}

// approximateResponse is the shape of /approximateTerm.json
type approximateResponse struct {
	ApproximateGroup struct {
		Candidate []struct {
			RxCUI string `json:"rxcui"`
			Score string `json:"score"`
			Rank  string `json:"rank"`
		} `json:"candidate"`
	} `json:"approximateGroup"`
}

// propertiesResponse is the shape of /rxcui/{id}/properties.json
type propertiesResponse struct {
	Properties struct {
		RxCUI    string `json:"rxcui"`
		Name     string `json:"name"`
		TTY      string `json:"tty"`
		Strength string `json:"strength,omitempty"`
	} `json:"properties"`
}

// Resolve implements engine.NameResolver. A nil resolution with nil error
// means the name is unknown to RxNorm.
func (c *Client) Resolve(ctx context.Context, drugToken string) (*calculation.Resolution, error) {
	drugToken = strings.TrimSpace(drugToken)
	if drugToken == "" {
		return nil, nil
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.resolve(ctx, drugToken)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*calculation.Resolution), nil
}

func (c *Client) resolve(ctx context.Context, drugToken string) (*calculation.Resolution, error) {
	rxcuis, err := c.exactLookup(ctx, drugToken)
	if err != nil {
		return nil, err
	}

	candidateCount := len(rxcuis)
	if candidateCount == 0 {
		rxcuis, err = c.approximateLookup(ctx, drugToken)
		if err != nil {
			return nil, err
		}
		candidateCount = len(rxcuis)
	}

	if candidateCount == 0 {
		c.logger.Debug("no rxnorm match", zap.String("drug", drugToken))
		return nil, nil
	}

	res, err := c.properties(ctx, rxcuis[0])
	if err != nil {
		return nil, err
	}
	res.CandidateCount = candidateCount
	return res, nil
}

func (c *Client) exactLookup(ctx context.Context, name string) ([]string, error) {
	u := fmt.Sprintf("%s/rxcui.json?name=%s&search=2", c.config.BaseURL, url.QueryEscape(name))

	var out rxcuiResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("exact lookup: %w", err)
	}
	return out.IDGroup.RxCUIs, nil
}

func (c *Client) approximateLookup(ctx context.Context, name string) ([]string, error) {
	u := fmt.Sprintf("%s/approximateTerm.json?term=%s&maxEntries=%d",
		c.config.BaseURL, url.QueryEscape(name), c.config.MaxCandidates)

	var out approximateResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("approximate lookup: %w", err)
	}

	seen := make(map[string]struct{})
	var rxcuis []string
	for _, cand := range out.ApproximateGroup.Candidate {
		if cand.RxCUI == "" {
			continue
		}
		if _, dup := seen[cand.RxCUI]; dup {
			continue
		}
		seen[cand.RxCUI] = struct{}{}
		rxcuis = append(rxcuis, cand.RxCUI)
	}
	return rxcuis, nil
}

func (c *Client) properties(ctx context.Context, rxcui string) (*calculation.Resolution, error) {
	u := fmt.Sprintf("%s/rxcui/%s/properties.json", c.config.BaseURL, url.PathEscape(rxcui))

	var out propertiesResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("properties lookup: %w", err)
	}

	if out.Properties.RxCUI == "" {
		return &calculation.Resolution{RxCUI: rxcui}, nil
	}

	return &calculation.Resolution{
		RxCUI:    out.Properties.RxCUI,
		Name:     out.Properties.Name,
		Strength: out.Properties.Strength,
		Form:     out.Properties.TTY,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rxnav returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
