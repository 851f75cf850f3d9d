package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/models"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/remote"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/search"
)

type Handler struct {
	svc      *search.Service
	identity *remote.Identity
}

func NewHandler(svc *search.Service, identity *remote.Identity) *Handler {
	return &Handler{svc: svc, identity: identity}
}

func requestID(r *http.Request) string {
	// chi's middleware.RequestID sets X-Request-Id header
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		return rid
	}
	return uuid.New().String()
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestID(r)

	q := r.URL.Query()
	req, err := models.NewSearchRequest(
		q.Get("q"),
		q.Get("category"),
		q.Get("manufacturer"),
		q.Get("limit"),
	)
	if err != nil {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	caller := h.identity.Resolve(r)
	parts, err := h.svc.Search(ctx, caller, search.Query{
		Text:         req.Query,
		Category:     req.Category,
		Manufacturer: req.Manufacturer,
		Limit:        req.Limit,
	})
	if err != nil {
		h.writeServiceError(w, err, reqID)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"query": req.Query,
		"count": len(parts),
		"parts": parts,
		"meta":  map[string]string{"request_id": reqID},
	})
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestID(r)

	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = 8
	}

	caller := h.identity.Resolve(r)
	suggestions, err := h.svc.Suggest(ctx, caller, q.Get("q"), limit)
	if err != nil {
		h.writeServiceError(w, err, reqID)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"suggestions": suggestions,
		"meta":        map[string]string{"request_id": reqID},
	})
}

func (h *Handler) BulkValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestID(r)

	var req models.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body", map[string]string{"request_id": reqID})
		return
	}
	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	caller := h.identity.Resolve(r)
	results, err := h.svc.ValidateBulk(ctx, caller, req.PartNumbers, req.CustomerID)
	if err != nil {
		h.writeServiceError(w, err, reqID)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"meta":    map[string]string{"request_id": reqID},
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, reqID string) {
	var rle *search.RateLimitError
	if errors.As(err, &rle) {
		retryAfter := int(math.Ceil(rle.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		TooManyRequests(w, rle.Error(), map[string]string{
			"request_id":          reqID,
			"category":            rle.Category,
			"retry_after_seconds": strconv.Itoa(retryAfter),
		})
		return
	}

	var te *search.TimeoutError
	if errors.As(err, &te) {
		GatewayTimeout(w, "search timed out, please retry", map[string]string{"request_id": reqID})
		return
	}

	if errors.Is(err, search.ErrQueryTooLong) ||
		errors.Is(err, search.ErrEmptyBatch) ||
		errors.Is(err, search.ErrBatchTooLarge) {
		BadRequest(w, err.Error(), map[string]string{"request_id": reqID})
		return
	}

	BadGateway(w, err.Error(), map[string]string{"request_id": reqID})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
