package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/config"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/obs"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/search"
)

const maxResponseBytes = 4 << 20

// Client speaks to the hosted Postgres RPC surface. All search ranking,
// pricing and SKU validation logic lives behind these functions; this side
// only marshals arguments and decodes rows. Outbound calls are paced so a
// burst of cache misses cannot hammer the shared backend.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	pace    *rate.Limiter
	metrics *obs.Metrics
}

func NewClient(cfg config.BackendConfig, m *obs.Metrics) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
		metrics: m,
	}
	if cfg.OutboundRPS > 0 {
		burst := cfg.OutboundBurst
		if burst <= 0 {
			burst = 1
		}
		c.pace = rate.NewLimiter(rate.Limit(cfg.OutboundRPS), burst)
	}
	return c
}

func (c *Client) rpc(ctx context.Context, fn string, payload, out any) error {
	if c.pace != nil {
		if err := c.pace.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rpc %s: encode: %w", fn, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+fn, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpc %s: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if c.metrics != nil {
		c.metrics.ObserveRemoteLatency(fn, time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncRemoteError(fn)
		}
		return fmt.Errorf("rpc %s: %w", fn, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if c.metrics != nil {
			c.metrics.IncRemoteError(fn)
		}
		return fmt.Errorf("rpc %s: read: %w", fn, err)
	}
	if resp.StatusCode != http.StatusOK {
		if c.metrics != nil {
			c.metrics.IncRemoteError(fn)
		}
		return fmt.Errorf("rpc %s: status %d", fn, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		if c.metrics != nil {
			c.metrics.IncRemoteError(fn)
		}
		return fmt.Errorf("rpc %s: decode: %w", fn, err)
	}
	return nil
}

type searchPayload struct {
	SearchTerm         string `json:"search_term"`
	CategoryFilter     string `json:"category_filter,omitempty"`
	ManufacturerFilter string `json:"manufacturer_filter,omitempty"`
	ResultLimit        int    `json:"result_limit"`
}

func (c *Client) SearchParts(ctx context.Context, q search.Query) ([]search.Part, error) {
	var parts []search.Part
	err := c.rpc(ctx, "search_parts", searchPayload{
		SearchTerm:         q.Text,
		CategoryFilter:     q.Category,
		ManufacturerFilter: q.Manufacturer,
		ResultLimit:        q.Limit,
	}, &parts)
	return parts, err
}

// SearchPartsSimple is the degraded path: exact-ish matching without
// ranking, used when the full search function fails.
func (c *Client) SearchPartsSimple(ctx context.Context, q search.Query) ([]search.Part, error) {
	var parts []search.Part
	err := c.rpc(ctx, "search_parts_simple", searchPayload{
		SearchTerm:  q.Text,
		ResultLimit: q.Limit,
	}, &parts)
	return parts, err
}

type suggestPayload struct {
	Prefix          string `json:"prefix"`
	SuggestionLimit int    `json:"suggestion_limit"`
}

func (c *Client) Suggest(ctx context.Context, prefix string, limit int) ([]search.Suggestion, error) {
	var suggestions []search.Suggestion
	err := c.rpc(ctx, "get_search_suggestions", suggestPayload{
		Prefix:          prefix,
		SuggestionLimit: limit,
	}, &suggestions)
	return suggestions, err
}

type bulkPayload struct {
	PartNumbers []string `json:"part_numbers"`
	CustomerID  string   `json:"customer_id,omitempty"`
}

func (c *Client) ValidateParts(ctx context.Context, partNumbers []string, customerID string) ([]search.BulkValidation, error) {
	var out []search.BulkValidation
	err := c.rpc(ctx, "validate_bulk_parts", bulkPayload{
		PartNumbers: partNumbers,
		CustomerID:  customerID,
	}, &out)
	return out, err
}
