package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brandspark/api/internal/platform/httpx"
	"github.com/brandspark/api/internal/services"
)

// InternalHandlers exposes operational endpoints for schedulers and tooling.
// The /internal group carries its own authentication middleware.
type InternalHandlers struct {
	ndrs services.NDRService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(ndrs services.NDRService) *InternalHandlers {
	return &InternalHandlers{ndrs: ndrs}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/ndrs:auto-resolve", h.autoResolveNDRs)
}

func (h *InternalHandlers) autoResolveNDRs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ndrs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ndr_service_unavailable", "ndr service unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.ndrs.AutoResolveNDRs(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("auto_resolve_error", "auto-resolution sweep failed", http.StatusInternalServerError))
		return
	}

	payload := autoResolveResponse{
		Processed: result.Processed,
		Skipped:   result.Skipped,
	}
	for _, failure := range result.Failed {
		payload.Failed = append(payload.Failed, autoResolveFailurePayload{
			NDRID:  failure.NDRID,
			Reason: failure.Reason,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type autoResolveResponse struct {
	Processed int                         `json:"processed"`
	Skipped   int                         `json:"skipped"`
	Failed    []autoResolveFailurePayload `json:"failed,omitempty"`
}

type autoResolveFailurePayload struct {
	NDRID  string `json:"ndr_id"`
	Reason string `json:"reason"`
}
