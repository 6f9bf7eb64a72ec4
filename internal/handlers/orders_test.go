package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/platform/auth"
	"github.com/brandspark/api/internal/services"
)

type stubOrderService struct {
	createFn        func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn           func(context.Context, string) (services.Order, error)
	listFn          func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	listTimelineFn  func(context.Context, string, services.Pagination) (domain.CursorPage[services.TimelineEntry], error)
	updateStatusFn  func(context.Context, services.UpdateStatusCommand) (services.Order, error)
	updatePaymentFn func(context.Context, services.UpdatePaymentStatusCommand) (services.Order, error)
	updateTrackFn   func(context.Context, services.UpdateTrackingCommand) (services.Order, error)
	bulkFn          func(context.Context, services.BulkUpdateStatusCommand) (services.BulkUpdateResult, error)
	flagFn          func(context.Context, services.FlagDuplicateCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn == nil {
		return services.Order{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, nil
	}
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) ListTimeline(ctx context.Context, orderID string, pager services.Pagination) (domain.CursorPage[services.TimelineEntry], error) {
	if s.listTimelineFn == nil {
		return domain.CursorPage[services.TimelineEntry]{}, nil
	}
	return s.listTimelineFn(ctx, orderID, pager)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateStatusCommand) (services.Order, error) {
	if s.updateStatusFn == nil {
		return services.Order{}, nil
	}
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error) {
	if s.updatePaymentFn == nil {
		return services.Order{}, nil
	}
	return s.updatePaymentFn(ctx, cmd)
}

func (s *stubOrderService) UpdateTrackingInfo(ctx context.Context, cmd services.UpdateTrackingCommand) (services.Order, error) {
	if s.updateTrackFn == nil {
		return services.Order{}, nil
	}
	return s.updateTrackFn(ctx, cmd)
}

func (s *stubOrderService) BulkUpdateStatus(ctx context.Context, cmd services.BulkUpdateStatusCommand) (services.BulkUpdateResult, error) {
	if s.bulkFn == nil {
		return services.BulkUpdateResult{}, nil
	}
	return s.bulkFn(ctx, cmd)
}

func (s *stubOrderService) FlagDuplicate(ctx context.Context, cmd services.FlagDuplicateCommand) (services.Order, error) {
	if s.flagFn == nil {
		return services.Order{}, nil
	}
	return s.flagFn(ctx, cmd)
}

var _ services.OrderService = (*stubOrderService)(nil)

func authedRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	identity := &auth.Identity{UID: "staff_1", Roles: []string{auth.RoleOps}}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func newOrderRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(nil, svc).Routes(r)
	return r
}

func sampleOrder() services.Order {
	created := time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "ord_123",
		OrderNumber:   "BS-2026-000042",
		CustomerName:  "Asha Rao",
		CustomerEmail: "asha@example.com",
		TotalAmount:   45000,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items: []services.OrderItem{
			{ID: "itm_1", ProductRef: "prod_9", Name: "Mug", Quantity: 3, UnitPrice: 15000, TotalPrice: 45000},
		},
		Version:   1,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	body := `{
		"customer_name": "Asha Rao",
		"customer_email": "asha@example.com",
		"shipping_amount": 5000,
		"source": "shopify",
		"items": [{"product_ref": "prod_9", "name": "Mug", "quantity": 3, "unit_price": 15000}]
	}`
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerName != "Asha Rao" {
		t.Fatalf("expected customer name to reach the service, got %q", captured.CustomerName)
	}
	if captured.ActorID != "staff_1" {
		t.Fatalf("expected actor from identity, got %q", captured.ActorID)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 3 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}

	var response orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Order.OrderNumber != "BS-2026-000042" {
		t.Fatalf("expected order number in payload, got %q", response.Order.OrderNumber)
	}
}

func TestCreateOrderRequiresBody(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, authedRequest(http.MethodPost, "/", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListOrdersParsesFilters(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder()},
				NextPageToken: "tok_next",
			}, nil
		},
	}

	target := "/?status=pending,confirmed&payment_status=paid&courier_partner=bluedart" +
		"&created_after=2026-01-01T00:00:00Z&min_amount=1000&with_ndrs=true&page_size=10&search=asha"
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, target, ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Status) != 2 || captured.Status[0] != domain.OrderStatusPending {
		t.Fatalf("unexpected status filter: %+v", captured.Status)
	}
	if len(captured.PaymentStatus) != 1 || captured.PaymentStatus[0] != domain.PaymentStatusPaid {
		t.Fatalf("unexpected payment filter: %+v", captured.PaymentStatus)
	}
	if captured.CourierPartner != "bluedart" {
		t.Fatalf("unexpected courier filter: %q", captured.CourierPartner)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date range: %+v", captured.DateRange)
	}
	if captured.AmountRange.From == nil || *captured.AmountRange.From != 1000 {
		t.Fatalf("unexpected amount range: %+v", captured.AmountRange)
	}
	if !captured.WithNDRsOnly {
		t.Fatal("expected with_ndrs filter to be set")
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("unexpected page size: %d", captured.Pagination.PageSize)
	}
	if captured.Search != "asha" {
		t.Fatalf("unexpected search: %q", captured.Search)
	}

	var response orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.NextPageToken != "tok_next" {
		t.Fatalf("expected page token, got %q", response.NextPageToken)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, authedRequest(http.MethodGet, "/?status=sideways", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/ord_missing", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestUpdateStatusMapsInvalidTransition(t *testing.T) {
	svc := &stubOrderService{
		updateStatusFn: func(context.Context, services.UpdateStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrInvalidTransition
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ord_123:status", `{"status":"delivered"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if body["error"] != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %v", body["error"])
	}
}

func TestUpdateStatusPassesTrackingFields(t *testing.T) {
	var captured services.UpdateStatusCommand
	svc := &stubOrderService{
		updateStatusFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	body := `{"status":"shipped","tracking_number":"TRK-1","courier_partner":"bluedart","reason":"packed"}`
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ord_123:status", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.NewStatus != domain.OrderStatusShipped {
		t.Fatalf("unexpected status: %q", captured.NewStatus)
	}
	if captured.TrackingNumber == nil || *captured.TrackingNumber != "TRK-1" {
		t.Fatalf("expected tracking number, got %+v", captured.TrackingNumber)
	}
	if captured.CourierPartner == nil || *captured.CourierPartner != "bluedart" {
		t.Fatalf("expected courier partner, got %+v", captured.CourierPartner)
	}
}

func TestBulkUpdateStatusReportsFailures(t *testing.T) {
	svc := &stubOrderService{
		bulkFn: func(_ context.Context, cmd services.BulkUpdateStatusCommand) (services.BulkUpdateResult, error) {
			if len(cmd.OrderIDs) != 3 {
				t.Fatalf("expected 3 order ids, got %d", len(cmd.OrderIDs))
			}
			return services.BulkUpdateResult{
				Succeeded: 2,
				Failed:    []services.BulkUpdateFailure{{OrderID: "ord_3", Reason: "invalid transition"}},
			}, nil
		},
	}

	body := `{"order_ids":["ord_1","ord_2","ord_3"],"status":"confirmed"}`
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/bulk:status", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response bulkUpdateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Succeeded != 2 {
		t.Fatalf("expected 2 succeeded, got %d", response.Succeeded)
	}
	if len(response.Failed) != 1 || response.Failed[0].OrderID != "ord_3" {
		t.Fatalf("unexpected failures: %+v", response.Failed)
	}
}

func TestGetTimelineReturnsEntries(t *testing.T) {
	actor := "staff_1"
	svc := &stubOrderService{
		listTimelineFn: func(_ context.Context, orderID string, pager services.Pagination) (domain.CursorPage[services.TimelineEntry], error) {
			if orderID != "ord_123" {
				t.Fatalf("unexpected order id: %q", orderID)
			}
			if pager.PageSize != defaultOrderPageSize {
				t.Fatalf("expected default page size, got %d", pager.PageSize)
			}
			return domain.CursorPage[services.TimelineEntry]{
				Items: []services.TimelineEntry{{
					ID:          "tle_1",
					OrderID:     "ord_123",
					EventType:   "status_changed",
					Description: "Status changed from pending to confirmed",
					Actor:       &actor,
					CreatedAt:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
				}},
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/ord_123/timeline", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response timelineResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].EventType != "status_changed" {
		t.Fatalf("unexpected timeline payload: %+v", response.Items)
	}
}

func TestFlagDuplicateReturnsUpdatedOrder(t *testing.T) {
	svc := &stubOrderService{
		flagFn: func(_ context.Context, cmd services.FlagDuplicateCommand) (services.Order, error) {
			if cmd.DuplicateOf != "ord_original" {
				t.Fatalf("unexpected duplicate_of: %q", cmd.DuplicateOf)
			}
			order := sampleOrder()
			order.IsDuplicate = true
			dup := cmd.DuplicateOf
			order.DuplicateOf = &dup
			return order, nil
		},
	}

	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ord_123:flag-duplicate", `{"duplicate_of":"ord_original"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !response.Order.IsDuplicate || response.Order.DuplicateOf == nil {
		t.Fatalf("expected duplicate flags in payload: %+v", response.Order)
	}
}
