// Package fdadir searches the openFDA National Drug Code directory for
// package records. Each product record fans out into one RawPackage per
// packaging entry.
package fdadir

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

	"github.com/verdantrx/dispense-engine/internal/engine"
	"github.com/verdantrx/dispense-engine/pkg/circuitbreaker"
)

const defaultBaseURL = "https://api.fda.gov/drug/ndc.json"

// Config holds openFDA client configuration
type Config struct {
	BaseURL string
	// APIKey raises the openFDA rate limit when set
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// Client searches the openFDA NDC directory
type Client struct {
	config  Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates an openFDA client guarded by a circuit breaker
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

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("fdadir"), logger)
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

// directoryResponse mirrors the openFDA /drug/ndc.json result shape
type directoryResponse struct {
	Results []productRecord `json:"results"`
}

type productRecord struct {
	ProductNDC        string `json:"product_ndc"`
	GenericName       string `json:"generic_name"`
	BrandName         string `json:"brand_name"`
	LabelerName       string `json:"labeler_name"`
	DosageForm        string `json:"dosage_form"`
	MarketingStart    string `json:"marketing_start_date"`
	MarketingEnd      string `json:"marketing_end_date"`
	ActiveIngredients []struct {
		Name     string `json:"name"`
		Strength string `json:"strength"`
	} `json:"active_ingredients"`
	Packaging []struct {
		PackageNDC  string `json:"package_ndc"`
		Description string `json:"description"`
		StartDate   string `json:"marketing_start_date"`
	} `json:"packaging"`
	OpenFDA struct {
		RxCUIs []string `json:"rxcui"`
	} `json:"openfda"`
}

// Search implements engine.PackageSearcher. RxCUI narrows best; product name
// and NDC are fallbacks for drugs the terminology service could not resolve.
func (c *Client) Search(ctx context.Context, query engine.PackageQuery, limit int) ([]engine.RawPackage, error) {
	search := buildSearch(query)
	if search == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.search(ctx, search, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]engine.RawPackage), nil
}

func buildSearch(query engine.PackageQuery) string {
	switch {
	case query.RxCUI != "":
		return fmt.Sprintf(`openfda.rxcui:"%s"`, query.RxCUI)
	case query.NDC != "":
		return fmt.Sprintf(`product_ndc:"%s"`, query.NDC)
	case query.ProductName != "":
		return fmt.Sprintf(`generic_name:"%s"+brand_name:"%s"`, query.ProductName, query.ProductName)
	default:
		return ""
	}
}

func (c *Client) search(ctx context.Context, search string, limit int) ([]engine.RawPackage, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", fmt.Sprintf("%d", limit))
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}

	u := c.config.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// openFDA answers 404 for zero matches
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openfda returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var packages []engine.RawPackage
	for _, product := range out.Results {
		packages = append(packages, flatten(product)...)
	}
	return packages, nil
}

// flatten turns one product record into one RawPackage per packaging entry
func flatten(product productRecord) []engine.RawPackage {
	name := product.GenericName
	if name == "" {
		name = product.BrandName
	}

	var strength, unit string
	if len(product.ActiveIngredients) > 0 {
		strength = product.ActiveIngredients[0].Strength
	}
	unit = dosageFormUnit(product.DosageForm)

	var rxcui string
	if len(product.OpenFDA.RxCUIs) > 0 {
		rxcui = product.OpenFDA.RxCUIs[0]
	}

	var packages []engine.RawPackage
	for _, pkg := range product.Packaging {
		startDate := pkg.StartDate
		if startDate == "" {
			startDate = product.MarketingStart
		}
		packages = append(packages, engine.RawPackage{
			NDC:                pkg.PackageNDC,
			LabelerName:        product.LabelerName,
			ProductName:        name,
			PackageDescription: pkg.Description,
			Strength:           strength,
			Unit:               unit,
			StartDate:          startDate,
			EndDate:            product.MarketingEnd,
			RxCUI:              rxcui,
		})
	}
	return packages
}

// dosageFormUnit maps the directory's dosage form to a dispensing unit
func dosageFormUnit(form string) string {
	switch strings.ToUpper(strings.TrimSpace(form)) {
	case "TABLET", "TABLET, FILM COATED", "TABLET, EXTENDED RELEASE", "TABLET, CHEWABLE":
		return "tablet"
	case "CAPSULE", "CAPSULE, GELATIN COATED", "CAPSULE, EXTENDED RELEASE":
		return "capsule"
	case "SOLUTION", "SUSPENSION", "SYRUP", "ELIXIR", "LIQUID":
		return "ml"
	case "INJECTION", "INJECTION, SOLUTION", "INJECTION, SUSPENSION":
		return "ml"
	case "AEROSOL", "AEROSOL, METERED", "SPRAY", "SPRAY, METERED":
		return "puff"
	default:
		return ""
	}
}
