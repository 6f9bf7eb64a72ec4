package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/platform/httpx"
	"github.com/brandspark/api/internal/services"
)

const (
	maxWebhookBodySize = 32 * 1024

	defaultWebhookRateLimit  = 120
	defaultWebhookRateWindow = time.Minute
)

// Courier event names accepted on the tracking webhook.
const (
	courierEventShipped   = "shipped"
	courierEventDelivered = "delivered"
)

type courierNDRWebhookRequest struct {
	OrderID          string  `json:"order_id"`
	Courier          string  `json:"courier"`
	Reason           string  `json:"reason"`
	CustomerResponse *string `json:"customer_response"`
}

type courierTrackingWebhookRequest struct {
	OrderID        string `json:"order_id"`
	Courier        string `json:"courier"`
	Event          string `json:"event"`
	TrackingNumber string `json:"tracking_number"`
}

// WebhookHandlers ingests courier callbacks. Authentication happens in the
// HMAC middleware mounted on the /webhooks group, not here.
type WebhookHandlers struct {
	orders  services.OrderService
	ndrs    services.NDRService
	limiter rateLimiter
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithWebhookRateLimiter overrides the per-courier rate limiter.
func WithWebhookRateLimiter(limiter rateLimiter) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = limiter
	}
}

// WithWebhookRateLimit replaces the per-courier limiter with one allowing the
// given number of deliveries per window. A non-positive limit disables throttling.
func WithWebhookRateLimit(limit int, window time.Duration) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(orders services.OrderService, ndrs services.NDRService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		orders:  orders,
		ndrs:    ndrs,
		limiter: newSimpleRateLimiter(defaultWebhookRateLimit, defaultWebhookRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/courier/ndr", h.courierNDR)
	r.Post("/courier/tracking", h.courierTracking)
}

func (h *WebhookHandlers) courierNDR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ndrs == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ndr_service_unavailable", "ndr service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req courierNDRWebhookRequest
	if !decodeJSONBody(ctx, w, r, maxWebhookBodySize, &req) {
		return
	}

	courier := strings.ToLower(strings.TrimSpace(req.Courier))
	if !h.allow(courier) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries", http.StatusTooManyRequests))
		return
	}

	ndr, err := h.ndrs.RecordNDR(ctx, services.RecordNDRCommand{
		OrderID:          strings.TrimSpace(req.OrderID),
		Reason:           strings.TrimSpace(req.Reason),
		CustomerResponse: req.CustomerResponse,
		ActorID:          courierActor(courier),
	})
	if err != nil {
		writeNDRError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, ndrResponse{NDR: buildNDRPayload(ndr)})
}

func (h *WebhookHandlers) courierTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req courierTrackingWebhookRequest
	if !decodeJSONBody(ctx, w, r, maxWebhookBodySize, &req) {
		return
	}

	courier := strings.ToLower(strings.TrimSpace(req.Courier))
	if !h.allow(courier) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries", http.StatusTooManyRequests))
		return
	}

	orderID := strings.TrimSpace(req.OrderID)
	actor := courierActor(courier)

	var order services.Order
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Event)) {
	case courierEventShipped, "":
		order, err = h.orders.UpdateTrackingInfo(ctx, services.UpdateTrackingCommand{
			OrderID:        orderID,
			TrackingNumber: strings.TrimSpace(req.TrackingNumber),
			CourierPartner: strings.TrimSpace(req.Courier),
			ActorID:        actor,
		})
	case courierEventDelivered:
		order, err = h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
			OrderID:   orderID,
			NewStatus: domain.OrderStatusDelivered,
			Reason:    "courier delivery confirmation",
			ActorID:   actor,
		})
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event must be shipped or delivered", http.StatusBadRequest))
		return
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *WebhookHandlers) allow(courier string) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(courier)
}

func courierActor(courier string) string {
	if courier == "" {
		return "courier"
	}
	return "courier:" + courier
}
