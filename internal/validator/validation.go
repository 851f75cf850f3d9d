package validator

import (
	"errors"
	"strconv"
	"strings"
)

const maxFilterLen = 64

func NormalizeQuery(s string) string {
	return strings.TrimSpace(s)
}

// ValidateLimit parses a result-limit query param. Empty means the default;
// anything outside [1, max] is rejected rather than clamped so the UI
// learns about its own bugs.
func ValidateLimit(raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid limit")
	}
	if n < 1 || n > max {
		return 0, errors.New("limit out of range")
	}
	return n, nil
}

func ValidateFilter(s string) (string, error) {
	f := strings.TrimSpace(s)
	if len(f) > maxFilterLen {
		return "", errors.New("filter too long")
	}
	return f, nil
}

func ValidatePartNumber(s string) (string, error) {
	pn := strings.TrimSpace(s)
	if pn == "" {
		return "", errors.New("empty part number")
	}
	if len(pn) > maxFilterLen {
		return "", errors.New("part number too long")
	}
	return pn, nil
}
