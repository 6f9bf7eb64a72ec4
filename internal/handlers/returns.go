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

const maxReturnBodySize = 16 * 1024

type returnRequestBody struct {
	OrderID  string `json:"order_id"`
	Reason   string `json:"reason"`
	PolicyID string `json:"policy_id"`
}

// ReturnHandlers exposes the return evaluation endpoints.
type ReturnHandlers struct {
	authn   *auth.Authenticator
	returns services.ReturnService
}

// NewReturnHandlers constructs a new ReturnHandlers instance.
func NewReturnHandlers(authn *auth.Authenticator, returns services.ReturnService) *ReturnHandlers {
	return &ReturnHandlers{
		authn:   authn,
		returns: returns,
	}
}

// Routes registers the /returns endpoints.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(read chi.Router) {
		if h.authn != nil {
			read.Use(h.authn.RequireFirebaseAuth())
		}
		read.Get("/", h.listReturns)
		read.Get("/policies", h.listPolicies)
		read.Get("/{returnID}", h.getReturn)
	})

	r.Group(func(write chi.Router) {
		if h.authn != nil {
			write.Use(h.authn.RequireFirebaseAuth(roleAdmin, roleOps))
		}
		write.Post("/", h.requestReturn)
	})
}

func (h *ReturnHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req returnRequestBody
	if !decodeJSONBody(ctx, w, r, maxReturnBodySize, &req) {
		return
	}

	ret, err := h.returns.ProcessReturnRequest(ctx, services.ReturnRequestCommand{
		OrderID:  strings.TrimSpace(req.OrderID),
		Reason:   strings.TrimSpace(req.Reason),
		PolicyID: strings.TrimSpace(req.PolicyID),
		ActorID:  actorID,
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(ret)})
}

func (h *ReturnHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}

	returnID := strings.TrimSpace(chi.URLParam(r, "returnID"))
	if returnID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "return id is required", http.StatusBadRequest))
		return
	}

	ret, err := h.returns.GetReturn(ctx, returnID)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(ret)})
}

func (h *ReturnHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id query parameter is required", http.StatusBadRequest))
		return
	}

	returns, err := h.returns.ListByOrder(ctx, orderID)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}

	items := make([]returnPayload, 0, len(returns))
	for _, ret := range returns {
		items = append(items, buildReturnPayload(ret))
	}
	writeJSONResponse(w, http.StatusOK, returnListResponse{Items: items})
}

func (h *ReturnHandlers) listPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		httpx.WriteError(ctx, w, httpx.NewError("return_service_unavailable", "return service unavailable", http.StatusServiceUnavailable))
		return
	}

	policies, err := h.returns.ListPolicies(ctx)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}

	items := make([]returnPolicyPayload, 0, len(policies))
	for _, policy := range policies {
		items = append(items, returnPolicyPayload{
			ID:                 policy.ID,
			Name:               policy.Name,
			WindowDays:         policy.WindowDays,
			AutoApprove:        policy.AutoApprove,
			RequireQC:          policy.RequireQC,
			RefundPercentage:   policy.RefundPercentage,
			ShippingRefundable: policy.ShippingRefundable,
			Active:             policy.Active,
		})
	}
	writeJSONResponse(w, http.StatusOK, returnPolicyListResponse{Items: items})
}

type returnListResponse struct {
	Items []returnPayload `json:"items"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

type returnPayload struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	PolicyID     string `json:"policy_id"`
	Reason       string `json:"reason"`
	Status       string `json:"status"`
	QCStatus     string `json:"qc_status"`
	RefundAmount int64  `json:"refund_amount"`
	CreatedAt    string `json:"created_at"`
}

type returnPolicyListResponse struct {
	Items []returnPolicyPayload `json:"items"`
}

type returnPolicyPayload struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	WindowDays         int    `json:"window_days"`
	AutoApprove        bool   `json:"auto_approve"`
	RequireQC          bool   `json:"require_qc"`
	RefundPercentage   int    `json:"refund_percentage"`
	ShippingRefundable bool   `json:"shipping_refundable"`
	Active             bool   `json:"active"`
}

func buildReturnPayload(ret services.Return) returnPayload {
	return returnPayload{
		ID:           ret.ID,
		OrderID:      ret.OrderID,
		PolicyID:     ret.PolicyID,
		Reason:       ret.Reason,
		Status:       string(ret.Status),
		QCStatus:     string(ret.QCStatus),
		RefundAmount: ret.RefundAmount,
		CreatedAt:    formatTime(ret.CreatedAt),
	}
}

func writeReturnError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReturnInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReturnNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("return_not_found", "return not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReturnWindowClosed):
		httpx.WriteError(ctx, w, httpx.NewError("return_window_closed", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReturnNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("return_not_eligible", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("return_error", "failed to process return request", http.StatusInternalServerError))
	}
}
