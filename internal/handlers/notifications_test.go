package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/services"
)

type stubNotificationSvc struct {
	sendFn    func(context.Context, services.SendNotificationCommand) (services.OrderNotification, error)
	captureFn func(context.Context, services.CaptureResponseCommand) error
	listFn    func(context.Context, string) ([]services.OrderNotification, error)
}

func (s *stubNotificationSvc) Send(ctx context.Context, cmd services.SendNotificationCommand) (services.OrderNotification, error) {
	if s.sendFn == nil {
		return services.OrderNotification{}, nil
	}
	return s.sendFn(ctx, cmd)
}

func (s *stubNotificationSvc) CaptureCustomerResponse(ctx context.Context, cmd services.CaptureResponseCommand) error {
	if s.captureFn == nil {
		return nil
	}
	return s.captureFn(ctx, cmd)
}

func (s *stubNotificationSvc) ListByOrder(ctx context.Context, orderID string) ([]services.OrderNotification, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, orderID)
}

var _ services.NotificationService = (*stubNotificationSvc)(nil)

func newNotificationRouter(svc services.NotificationService) chi.Router {
	r := chi.NewRouter()
	NewNotificationHandlers(nil, svc).Routes(r)
	return r
}

func sampleNotification() services.OrderNotification {
	return services.OrderNotification{
		ID:      "ntf_1",
		OrderID: "ord_123",
		Type:    domain.NotificationTypeDelay,
		Message: "Your order is delayed",
		SentVia: []services.Channel{domain.ChannelEmail, domain.ChannelSMS},
		ChannelStatuses: []services.ChannelStatus{
			{Channel: domain.ChannelEmail, Sent: true},
			{Channel: domain.ChannelSMS, Sent: true},
		},
		DeliveryStatus: "sent",
		SentAt:         time.Date(2026, time.March, 18, 15, 0, 0, 0, time.UTC),
	}
}

func TestSendNotificationReturnsCreated(t *testing.T) {
	var captured services.SendNotificationCommand
	svc := &stubNotificationSvc{
		sendFn: func(_ context.Context, cmd services.SendNotificationCommand) (services.OrderNotification, error) {
			captured = cmd
			return sampleNotification(), nil
		},
	}

	body := `{"order_id":"ord_123","type":"delay","message":"Your order is delayed","channels":["email","sms"]}`
	rr := httptest.NewRecorder()
	newNotificationRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Channels) != 2 || captured.Channels[0] != domain.ChannelEmail {
		t.Fatalf("unexpected channels: %+v", captured.Channels)
	}
	if captured.Type != domain.NotificationTypeDelay {
		t.Fatalf("unexpected type: %q", captured.Type)
	}
}

func TestSendNotificationRejectsUnknownChannel(t *testing.T) {
	svc := &stubNotificationSvc{
		sendFn: func(context.Context, services.SendNotificationCommand) (services.OrderNotification, error) {
			t.Fatal("service should not be called for invalid channels")
			return services.OrderNotification{}, nil
		},
	}

	body := `{"order_id":"ord_123","type":"delay","message":"hi","channels":["pigeon"]}`
	rr := httptest.NewRecorder()
	newNotificationRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSendNotificationPartialFailureAccepted(t *testing.T) {
	svc := &stubNotificationSvc{
		sendFn: func(context.Context, services.SendNotificationCommand) (services.OrderNotification, error) {
			notification := sampleNotification()
			notification.ChannelStatuses[1] = services.ChannelStatus{Channel: domain.ChannelSMS, Sent: false, Error: "gateway timeout"}
			notification.DeliveryStatus = "partial"
			return notification, fmt.Errorf("%w: sms failed", services.ErrNotificationDispatch)
		},
	}

	body := `{"order_id":"ord_123","type":"delay","message":"Your order is delayed","channels":["email","sms"]}`
	rr := httptest.NewRecorder()
	newNotificationRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}

	var response notificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Notification.DeliveryStatus != "partial" {
		t.Fatalf("expected partial delivery status, got %q", response.Notification.DeliveryStatus)
	}
	if len(response.Notification.ChannelStatuses) != 2 {
		t.Fatalf("expected per-channel outcomes, got %+v", response.Notification.ChannelStatuses)
	}
}

func TestListNotificationsRequiresOrderID(t *testing.T) {
	rr := httptest.NewRecorder()
	newNotificationRouter(&stubNotificationSvc{}).ServeHTTP(rr, authedRequest(http.MethodGet, "/", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCaptureResponseNoContent(t *testing.T) {
	var captured services.CaptureResponseCommand
	svc := &stubNotificationSvc{
		captureFn: func(_ context.Context, cmd services.CaptureResponseCommand) error {
			captured = cmd
			return nil
		},
	}

	rr := httptest.NewRecorder()
	newNotificationRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ntf_1:response", `{"response":"Deliver tomorrow"}`))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.NotificationID != "ntf_1" || captured.Response != "Deliver tomorrow" {
		t.Fatalf("unexpected command: %+v", captured)
	}
}

func TestCaptureResponseUnknownNotification(t *testing.T) {
	svc := &stubNotificationSvc{
		captureFn: func(context.Context, services.CaptureResponseCommand) error {
			return services.ErrNotificationNotFound
		},
	}

	rr := httptest.NewRecorder()
	newNotificationRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ntf_missing:response", `{"response":"ok"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
