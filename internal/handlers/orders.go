package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/platform/auth"
	"github.com/brandspark/api/internal/platform/httpx"
	"github.com/brandspark/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024

	roleAdmin = auth.RoleAdmin
	roleOps   = auth.RoleOps
)

type createOrderRequest struct {
	CustomerName     string                   `json:"customer_name"`
	CustomerEmail    string                   `json:"customer_email"`
	CustomerPhone    string                   `json:"customer_phone"`
	ShippingAddress  *addressPayload          `json:"shipping_address"`
	ShippingAmount   int64                    `json:"shipping_amount"`
	Source           string                   `json:"source"`
	Priority         int                      `json:"priority"`
	ExpectedDelivery string                   `json:"expected_delivery"`
	Items            []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

type updateStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"tracking_number"`
	CourierPartner *string `json:"courier_partner"`
	Reason         string  `json:"reason"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type updateTrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
	CourierPartner string `json:"courier_partner"`
}

type bulkUpdateStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
}

type flagDuplicateRequest struct {
	DuplicateOf string `json:"duplicate_of"`
}

// OrderHandlers exposes the order lifecycle endpoints for operations staff.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(read chi.Router) {
		if h.authn != nil {
			read.Use(h.authn.RequireFirebaseAuth())
		}
		read.Get("/", h.listOrders)
		read.Get("/{orderID}", h.getOrder)
		read.Get("/{orderID}/timeline", h.getTimeline)
	})

	r.Group(func(write chi.Router) {
		if h.authn != nil {
			write.Use(h.authn.RequireFirebaseAuth(roleAdmin, roleOps))
		}
		write.Post("/", h.createOrder)
		write.Post("/bulk:status", h.bulkUpdateStatus)
		write.Post("/{orderID}:status", h.updateStatus)
		write.Post("/{orderID}:payment-status", h.updatePaymentStatus)
		write.Post("/{orderID}:tracking", h.updateTracking)
		write.Post("/{orderID}:flag-duplicate", h.flagDuplicate)
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		ShippingAmount: req.ShippingAmount,
		Source:         strings.TrimSpace(req.Source),
		Priority:       req.Priority,
		ActorID:        actorID,
	}
	if req.ShippingAddress != nil {
		cmd.ShippingAddress = &services.Address{
			Street:     strings.TrimSpace(req.ShippingAddress.Street),
			City:       strings.TrimSpace(req.ShippingAddress.City),
			State:      strings.TrimSpace(req.ShippingAddress.State),
			PostalCode: strings.TrimSpace(req.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(req.ShippingAddress.Country),
		}
	}
	if raw := strings.TrimSpace(req.ExpectedDelivery); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_delivery must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.ExpectedDelivery = &ts
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CreateOrderItem{
			ProductRef: strings.TrimSpace(item.ProductRef),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := orderListFilterFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	pager, err := paginationFromQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListTimeline(ctx, orderID, pager)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]timelineEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildTimelineEntryPayload(entry))
	}

	writeJSONResponse(w, http.StatusOK, timelineResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID:        orderID,
		NewStatus:      services.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		TrackingNumber: req.TrackingNumber,
		CourierPartner: req.CourierPartner,
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updatePaymentStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:          orderID,
		NewPaymentStatus: services.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus))),
		ActorID:          actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateTrackingRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateTrackingInfo(ctx, services.UpdateTrackingCommand{
		OrderID:        orderID,
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
		CourierPartner: strings.TrimSpace(req.CourierPartner),
		ActorID:        actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req bulkUpdateStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	result, err := h.orders.BulkUpdateStatus(ctx, services.BulkUpdateStatusCommand{
		OrderIDs:  req.OrderIDs,
		NewStatus: services.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:   actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := bulkUpdateResponse{Succeeded: result.Succeeded}
	for _, failure := range result.Failed {
		payload.Failed = append(payload.Failed, bulkUpdateFailurePayload{
			OrderID: failure.OrderID,
			Reason:  failure.Reason,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) flagDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req flagDuplicateRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.FlagDuplicate(ctx, services.FlagDuplicateCommand{
		OrderID:     orderID,
		DuplicateOf: strings.TrimSpace(req.DuplicateOf),
		ActorID:     actorID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// Response payloads --------------------------------------------------------

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	CustomerName  string `json:"customer_name"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	TotalAmount   int64  `json:"total_amount"`
	NDRCount      int    `json:"ndr_count,omitempty"`
	IsDuplicate   bool   `json:"is_duplicate,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	OrderNumber      string             `json:"order_number"`
	CustomerName     string             `json:"customer_name"`
	CustomerEmail    string             `json:"customer_email,omitempty"`
	CustomerPhone    string             `json:"customer_phone,omitempty"`
	ShippingAddress  *addressPayload    `json:"shipping_address,omitempty"`
	TotalAmount      int64              `json:"total_amount"`
	ShippingAmount   int64              `json:"shipping_amount,omitempty"`
	Status           string             `json:"status"`
	PaymentStatus    string             `json:"payment_status"`
	TrackingNumber   *string            `json:"tracking_number,omitempty"`
	CourierPartner   *string            `json:"courier_partner,omitempty"`
	Source           string             `json:"source,omitempty"`
	Priority         int                `json:"priority,omitempty"`
	DeliveryAttempts int                `json:"delivery_attempts,omitempty"`
	NDRCount         int                `json:"ndr_count,omitempty"`
	IsDuplicate      bool               `json:"is_duplicate,omitempty"`
	DuplicateOf      *string            `json:"duplicate_of,omitempty"`
	ExpectedDelivery string             `json:"expected_delivery,omitempty"`
	DeliveredAt      string             `json:"delivered_at,omitempty"`
	CancelReason     *string            `json:"cancel_reason,omitempty"`
	Items            []orderItemPayload `json:"items"`
	Version          int64              `json:"version"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID         string `json:"id"`
	ProductRef string `json:"product_ref"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	TotalPrice int64  `json:"total_price"`
}

type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type timelineResponse struct {
	Items         []timelineEntryPayload `json:"items"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type timelineEntryPayload struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	EventData   map[string]any `json:"event_data,omitempty"`
	Actor       *string        `json:"actor,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

type bulkUpdateResponse struct {
	Succeeded int                        `json:"succeeded"`
	Failed    []bulkUpdateFailurePayload `json:"failed,omitempty"`
}

type bulkUpdateFailurePayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            strings.TrimSpace(order.ID),
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		CustomerName:  strings.TrimSpace(order.CustomerName),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   order.TotalAmount,
		NDRCount:      order.NDRCount,
		IsDuplicate:   order.IsDuplicate,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:               strings.TrimSpace(order.ID),
		OrderNumber:      strings.TrimSpace(order.OrderNumber),
		CustomerName:     strings.TrimSpace(order.CustomerName),
		CustomerEmail:    strings.TrimSpace(order.CustomerEmail),
		CustomerPhone:    strings.TrimSpace(order.CustomerPhone),
		TotalAmount:      order.TotalAmount,
		ShippingAmount:   order.ShippingAmount,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		TrackingNumber:   cloneStringPointer(order.TrackingNumber),
		CourierPartner:   cloneStringPointer(order.CourierPartner),
		Source:           strings.TrimSpace(order.Source),
		Priority:         order.Priority,
		DeliveryAttempts: order.DeliveryAttempts,
		NDRCount:         order.NDRCount,
		IsDuplicate:      order.IsDuplicate,
		DuplicateOf:      cloneStringPointer(order.DuplicateOf),
		ExpectedDelivery: formatTime(pointerTime(order.ExpectedDelivery)),
		DeliveredAt:      formatTime(pointerTime(order.DeliveredAt)),
		CancelReason:     cloneStringPointer(order.CancelReason),
		Items:            make([]orderItemPayload, 0, len(order.Items)),
		Version:          order.Version,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}

	if order.ShippingAddress != nil {
		payload.ShippingAddress = &addressPayload{
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		}
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:         strings.TrimSpace(item.ID),
			ProductRef: strings.TrimSpace(item.ProductRef),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}

	return payload
}

func buildTimelineEntryPayload(entry services.TimelineEntry) timelineEntryPayload {
	return timelineEntryPayload{
		ID:          entry.ID,
		EventType:   entry.EventType,
		Description: entry.Description,
		EventData:   cloneMap(entry.EventData),
		Actor:       cloneStringPointer(entry.Actor),
		CreatedAt:   formatTime(entry.CreatedAt),
	}
}

// Shared request plumbing ---------------------------------------------------

func requireActor(ctx context.Context, w http.ResponseWriter) (string, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func paginationFromQuery(r *http.Request) (services.Pagination, error) {
	query := r.URL.Query()
	pager := services.Pagination{
		PageSize:  defaultOrderPageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return services.Pagination{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pager.PageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pager.PageSize = maxOrderPageSize
		default:
			pager.PageSize = size
		}
	}
	return pager, nil
}

func orderListFilterFromQuery(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()

	pager, err := paginationFromQuery(r)
	if err != nil {
		return services.OrderListFilter{}, err
	}

	filter := services.OrderListFilter{
		Search:         strings.TrimSpace(query.Get("search")),
		CourierPartner: strings.TrimSpace(query.Get("courier_partner")),
		WithNDRsOnly:   query.Get("with_ndrs") == "true",
		DuplicatesOnly: query.Get("duplicates") == "true",
		Pagination:     pager,
	}

	for _, status := range parseFilterValues(query["status"]) {
		parsed := domain.OrderStatus(status)
		if !domain.ValidOrderStatus(parsed) {
			return services.OrderListFilter{}, errors.New("status filter contains an unknown order status")
		}
		filter.Status = append(filter.Status, parsed)
	}
	for _, status := range parseFilterValues(query["payment_status"]) {
		parsed := domain.PaymentStatus(status)
		if !domain.ValidPaymentStatus(parsed) {
			return services.OrderListFilter{}, errors.New("payment_status filter contains an unknown payment status")
		}
		filter.PaymentStatus = append(filter.PaymentStatus, parsed)
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		filter.DateRange.To = &ts
	}

	if raw := strings.TrimSpace(query.Get("min_amount")); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.OrderListFilter{}, errors.New("min_amount must be an integer")
		}
		filter.AmountRange.From = &amount
	}
	if raw := strings.TrimSpace(query.Get("max_amount")); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return services.OrderListFilter{}, errors.New("max_amount must be an integer")
		}
		filter.AmountRange.To = &amount
	}

	return filter, nil
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
