package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/services"
)

func newWebhookRouter(orders services.OrderService, ndrs services.NDRService, opts ...WebhookOption) chi.Router {
	r := chi.NewRouter()
	NewWebhookHandlers(orders, ndrs, opts...).Routes(r)
	return r
}

func TestCourierNDRWebhookRecordsReport(t *testing.T) {
	var captured services.RecordNDRCommand
	ndrs := &stubNDRService{
		recordFn: func(_ context.Context, cmd services.RecordNDRCommand) (services.NDR, error) {
			captured = cmd
			return sampleNDR(), nil
		},
	}

	body := `{"order_id":"ord_123","courier":"BlueDart","reason":"Address not found"}`
	req := httptest.NewRequest(http.MethodPost, "/courier/ndr", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(nil, ndrs).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "courier:bluedart" {
		t.Fatalf("expected courier actor, got %q", captured.ActorID)
	}
	if captured.Reason != "Address not found" {
		t.Fatalf("unexpected reason: %q", captured.Reason)
	}
}

func TestCourierNDRWebhookUnknownOrderNotFound(t *testing.T) {
	ndrs := &stubNDRService{
		recordFn: func(context.Context, services.RecordNDRCommand) (services.NDR, error) {
			return services.NDR{}, fmt.Errorf("%w: orders/ord_missing", services.ErrOrderNotFound)
		},
	}

	body := `{"order_id":"ord_missing","courier":"bluedart","reason":"Address not found"}`
	req := httptest.NewRequest(http.MethodPost, "/courier/ndr", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(nil, ndrs).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "order_not_found") {
		t.Fatalf("expected the order attributed in the error, got %s", rr.Body.String())
	}
}

func TestCourierTrackingWebhookShippedUpdatesTracking(t *testing.T) {
	var captured services.UpdateTrackingCommand
	orders := &stubOrderService{
		updateTrackFn: func(_ context.Context, cmd services.UpdateTrackingCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	body := `{"order_id":"ord_123","courier":"bluedart","event":"shipped","tracking_number":"TRK-9"}`
	req := httptest.NewRequest(http.MethodPost, "/courier/tracking", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(orders, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TrackingNumber != "TRK-9" || captured.CourierPartner != "bluedart" {
		t.Fatalf("unexpected command: %+v", captured)
	}
}

func TestCourierTrackingWebhookDeliveredUpdatesStatus(t *testing.T) {
	var captured services.UpdateStatusCommand
	orders := &stubOrderService{
		updateStatusFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}

	body := `{"order_id":"ord_123","courier":"bluedart","event":"delivered"}`
	req := httptest.NewRequest(http.MethodPost, "/courier/tracking", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(orders, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.NewStatus != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered status, got %q", captured.NewStatus)
	}
	if captured.ActorID != "courier:bluedart" {
		t.Fatalf("expected courier actor, got %q", captured.ActorID)
	}
}

func TestCourierTrackingWebhookRejectsUnknownEvent(t *testing.T) {
	body := `{"order_id":"ord_123","courier":"bluedart","event":"teleported"}`
	req := httptest.NewRequest(http.MethodPost, "/courier/tracking", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(&stubOrderService{}, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCourierWebhookRateLimited(t *testing.T) {
	ndrs := &stubNDRService{
		recordFn: func(context.Context, services.RecordNDRCommand) (services.NDR, error) {
			return sampleNDR(), nil
		},
	}

	limiter := newSimpleRateLimiter(1, time.Minute, nil)
	router := newWebhookRouter(nil, ndrs, WithWebhookRateLimiter(limiter))

	body := `{"order_id":"ord_123","courier":"bluedart","reason":"Address not found"}`

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/courier/ndr", strings.NewReader(body)))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first delivery to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/courier/ndr", strings.NewReader(body)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}
