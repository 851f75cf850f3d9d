package models

import (
	"errors"
	"strings"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/validator"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type SearchRequest struct {
	Query        string
	Category     string
	Manufacturer string
	Limit        int
}

// NewSearchRequest parses the raw query params. An empty query is not an
// error here: the service short-circuits short queries to an empty result.
func NewSearchRequest(query, category, manufacturer, limit string) (*SearchRequest, error) {
	limitInt, err := validator.ValidateLimit(limit, DefaultLimit, MaxLimit)
	if err != nil {
		return nil, err
	}
	return &SearchRequest{
		Query:        validator.NormalizeQuery(query),
		Category:     category,
		Manufacturer: manufacturer,
		Limit:        limitInt,
	}, nil
}

func (r *SearchRequest) Validate() error {
	var errs []string

	category, err := validator.ValidateFilter(r.Category)
	if err != nil {
		errs = append(errs, "category: "+err.Error())
	} else {
		r.Category = category
	}

	manufacturer, err := validator.ValidateFilter(r.Manufacturer)
	if err != nil {
		errs = append(errs, "manufacturer: "+err.Error())
	} else {
		r.Manufacturer = manufacturer
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, ", "))
	}
	return nil
}

type BulkRequest struct {
	PartNumbers []string `json:"part_numbers"`
	CustomerID  string   `json:"customer_id"`
}

func (r *BulkRequest) Validate() error {
	if len(r.PartNumbers) == 0 {
		return errors.New("part_numbers is required")
	}
	for i, pn := range r.PartNumbers {
		cleaned, err := validator.ValidatePartNumber(pn)
		if err != nil {
			if strings.TrimSpace(pn) == "" {
				continue // blank lines from pasted spreadsheets are dropped later
			}
			return err
		}
		r.PartNumbers[i] = cleaned
	}
	return nil
}
