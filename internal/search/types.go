package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Part struct {
	PartNumber   string          `json:"part_number"`
	Description  string          `json:"part_description"`
	Manufacturer string          `json:"manufacturer"`
	Category     string          `json:"category"`
	ListPrice    decimal.Decimal `json:"list_price"`
	InStock      bool            `json:"in_stock"`
	ImageURL     string          `json:"image_url,omitempty"`
}

// Query is one part search as issued by the storefront.
type Query struct {
	Text         string
	Category     string
	Manufacturer string
	Limit        int
}

// Key is the normalized composite the cache and the dedup registry share.
func (q Query) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(strings.TrimSpace(q.Text)),
		strings.ToLower(strings.TrimSpace(q.Category)),
		strings.ToLower(strings.TrimSpace(q.Manufacturer)),
		q.Limit)
}

type Suggestion struct {
	Value string  `json:"value"`
	Kind  string  `json:"kind"`
	Score float64 `json:"score"`
}

type BulkValidation struct {
	PartNumber string `json:"part_number"`
	Valid      bool   `json:"valid"`
	Matched    *Part  `json:"matched,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Caller identifies who is asking: an authenticated user id when available,
// otherwise the anonymous browser fingerprint.
type Caller struct {
	UserID      string
	Fingerprint string
}

// Backend is the remote RPC surface. Search ranking, secure pricing and bulk
// SKU validation all live server-side; failures are opaque.
type Backend interface {
	SearchParts(ctx context.Context, q Query) ([]Part, error)
	SearchPartsSimple(ctx context.Context, q Query) ([]Part, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]Suggestion, error)
	ValidateParts(ctx context.Context, partNumbers []string, customerID string) ([]BulkValidation, error)
}
