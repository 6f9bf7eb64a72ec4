package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brandspark/api/internal/platform/auth"
	"github.com/brandspark/api/internal/platform/httpx"
	"github.com/brandspark/api/internal/services"
)

const maxNDRBodySize = 16 * 1024

type recordNDRRequest struct {
	OrderID          string  `json:"order_id"`
	Reason           string  `json:"reason"`
	CustomerResponse *string `json:"customer_response"`
}

type resolveNDRRequest struct {
	ResolutionAction string  `json:"resolution_action"`
	CustomerResponse *string `json:"customer_response"`
}

// NDRHandlers exposes the non-delivery report endpoints.
type NDRHandlers struct {
	authn *auth.Authenticator
	ndrs  services.NDRService
}

// NewNDRHandlers constructs a new NDRHandlers instance.
func NewNDRHandlers(authn *auth.Authenticator, ndrs services.NDRService) *NDRHandlers {
	return &NDRHandlers{
		authn: authn,
		ndrs:  ndrs,
	}
}

// Routes registers the /ndrs endpoints.
func (h *NDRHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(read chi.Router) {
		if h.authn != nil {
			read.Use(h.authn.RequireFirebaseAuth())
		}
		read.Get("/", h.listNDRs)
		read.Get("/{ndrID}", h.getNDR)
	})

	r.Group(func(write chi.Router) {
		if h.authn != nil {
			write.Use(h.authn.RequireFirebaseAuth(roleAdmin, roleOps))
		}
		write.Post("/", h.recordNDR)
		write.Post("/{ndrID}:resolve", h.resolveNDR)
	})
}

func (h *NDRHandlers) recordNDR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ndrs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ndr_service_unavailable", "ndr service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req recordNDRRequest
	if !decodeJSONBody(ctx, w, r, maxNDRBodySize, &req) {
		return
	}

	ndr, err := h.ndrs.RecordNDR(ctx, services.RecordNDRCommand{
		OrderID:          strings.TrimSpace(req.OrderID),
		Reason:           strings.TrimSpace(req.Reason),
		CustomerResponse: req.CustomerResponse,
		ActorID:          actorID,
	})
	if err != nil {
		writeNDRError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, ndrResponse{NDR: buildNDRPayload(ndr)})
}

func (h *NDRHandlers) getNDR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ndrs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ndr_service_unavailable", "ndr service unavailable", http.StatusServiceUnavailable))
		return
	}

	ndrID := strings.TrimSpace(chi.URLParam(r, "ndrID"))
	if ndrID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ndr id is required", http.StatusBadRequest))
		return
	}

	ndr, err := h.ndrs.GetNDR(ctx, ndrID)
	if err != nil {
		writeNDRError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ndrResponse{NDR: buildNDRPayload(ndr)})
}

func (h *NDRHandlers) listNDRs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ndrs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ndr_service_unavailable", "ndr service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id query parameter is required", http.StatusBadRequest))
		return
	}

	ndrs, err := h.ndrs.ListByOrder(ctx, orderID)
	if err != nil {
		writeNDRError(ctx, w, err)
		return
	}

	items := make([]ndrPayload, 0, len(ndrs))
	for _, ndr := range ndrs {
		items = append(items, buildNDRPayload(ndr))
	}
	writeJSONResponse(w, http.StatusOK, ndrListResponse{Items: items})
}

func (h *NDRHandlers) resolveNDR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ndrs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ndr_service_unavailable", "ndr service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	ndrID := strings.TrimSpace(chi.URLParam(r, "ndrID"))
	if ndrID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ndr id is required", http.StatusBadRequest))
		return
	}

	var req resolveNDRRequest
	if !decodeJSONBody(ctx, w, r, maxNDRBodySize, &req) {
		return
	}

	ndr, err := h.ndrs.ResolveNDR(ctx, services.ResolveNDRCommand{
		NDRID:            ndrID,
		ResolutionAction: strings.TrimSpace(req.ResolutionAction),
		CustomerResponse: req.CustomerResponse,
		ActorID:          actorID,
	})
	if err != nil {
		writeNDRError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, ndrResponse{NDR: buildNDRPayload(ndr)})
}

type ndrListResponse struct {
	Items []ndrPayload `json:"items"`
}

type ndrResponse struct {
	NDR ndrPayload `json:"ndr"`
}

type ndrPayload struct {
	ID                      string  `json:"id"`
	OrderID                 string  `json:"order_id"`
	Reason                  string  `json:"reason"`
	CustomerResponse        *string `json:"customer_response,omitempty"`
	ResolutionStatus        string  `json:"resolution_status"`
	NextAction              string  `json:"next_action,omitempty"`
	AutoResolutionAttempted bool    `json:"auto_resolution_attempted"`
	CreatedAt               string  `json:"created_at"`
	ResolvedAt              string  `json:"resolved_at,omitempty"`
}

func buildNDRPayload(ndr services.NDR) ndrPayload {
	return ndrPayload{
		ID:                      ndr.ID,
		OrderID:                 ndr.OrderID,
		Reason:                  ndr.Reason,
		CustomerResponse:        cloneStringPointer(ndr.CustomerResponse),
		ResolutionStatus:        string(ndr.ResolutionStatus),
		NextAction:              ndr.NextAction,
		AutoResolutionAttempted: ndr.AutoResolutionAttempted,
		CreatedAt:               formatTime(ndr.CreatedAt),
		ResolvedAt:              formatTime(pointerTime(ndr.ResolvedAt)),
	}
}

func writeNDRError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNDRInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNDRNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("ndr_not_found", "ndr not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNDRAlreadyResolved):
		httpx.WriteError(ctx, w, httpx.NewError("ndr_already_resolved", "ndr is already resolved", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("ndr_error", "failed to process ndr request", http.StatusInternalServerError))
	}
}
