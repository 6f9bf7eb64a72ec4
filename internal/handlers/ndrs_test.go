package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/services"
)

type stubNDRService struct {
	recordFn      func(context.Context, services.RecordNDRCommand) (services.NDR, error)
	getFn         func(context.Context, string) (services.NDR, error)
	listFn        func(context.Context, string) ([]services.NDR, error)
	resolveFn     func(context.Context, services.ResolveNDRCommand) (services.NDR, error)
	autoResolveFn func(context.Context) (services.AutoResolveResult, error)
}

func (s *stubNDRService) RecordNDR(ctx context.Context, cmd services.RecordNDRCommand) (services.NDR, error) {
	if s.recordFn == nil {
		return services.NDR{}, nil
	}
	return s.recordFn(ctx, cmd)
}

func (s *stubNDRService) GetNDR(ctx context.Context, ndrID string) (services.NDR, error) {
	if s.getFn == nil {
		return services.NDR{}, nil
	}
	return s.getFn(ctx, ndrID)
}

func (s *stubNDRService) ListByOrder(ctx context.Context, orderID string) ([]services.NDR, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, orderID)
}

func (s *stubNDRService) ResolveNDR(ctx context.Context, cmd services.ResolveNDRCommand) (services.NDR, error) {
	if s.resolveFn == nil {
		return services.NDR{}, nil
	}
	return s.resolveFn(ctx, cmd)
}

func (s *stubNDRService) AutoResolveNDRs(ctx context.Context) (services.AutoResolveResult, error) {
	if s.autoResolveFn == nil {
		return services.AutoResolveResult{}, nil
	}
	return s.autoResolveFn(ctx)
}

var _ services.NDRService = (*stubNDRService)(nil)

func newNDRRouter(svc services.NDRService) chi.Router {
	r := chi.NewRouter()
	NewNDRHandlers(nil, svc).Routes(r)
	return r
}

func sampleNDR() services.NDR {
	return services.NDR{
		ID:               "ndr_1",
		OrderID:          "ord_123",
		Reason:           "Customer not available",
		ResolutionStatus: domain.NDRResolutionPending,
		CreatedAt:        time.Date(2026, time.March, 16, 11, 0, 0, 0, time.UTC),
	}
}

func TestRecordNDRReturnsCreated(t *testing.T) {
	var captured services.RecordNDRCommand
	svc := &stubNDRService{
		recordFn: func(_ context.Context, cmd services.RecordNDRCommand) (services.NDR, error) {
			captured = cmd
			return sampleNDR(), nil
		},
	}

	body := `{"order_id":"ord_123","reason":"Customer not available"}`
	rr := httptest.NewRecorder()
	newNDRRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_123" || captured.Reason != "Customer not available" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.ActorID != "staff_1" {
		t.Fatalf("expected actor from identity, got %q", captured.ActorID)
	}
}

func TestListNDRsRequiresOrderID(t *testing.T) {
	rr := httptest.NewRecorder()
	newNDRRouter(&stubNDRService{}).ServeHTTP(rr, authedRequest(http.MethodGet, "/", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListNDRsReturnsReports(t *testing.T) {
	svc := &stubNDRService{
		listFn: func(_ context.Context, orderID string) ([]services.NDR, error) {
			if orderID != "ord_123" {
				t.Fatalf("unexpected order id: %q", orderID)
			}
			return []services.NDR{sampleNDR()}, nil
		},
	}

	rr := httptest.NewRecorder()
	newNDRRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/?order_id=ord_123", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response ndrListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "ndr_1" {
		t.Fatalf("unexpected payload: %+v", response.Items)
	}
}

func TestResolveNDRAlreadyResolvedConflicts(t *testing.T) {
	svc := &stubNDRService{
		resolveFn: func(context.Context, services.ResolveNDRCommand) (services.NDR, error) {
			return services.NDR{}, services.ErrNDRAlreadyResolved
		},
	}

	rr := httptest.NewRecorder()
	newNDRRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ndr_1:resolve", `{"resolution_action":"Reattempt delivery"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestResolveNDRReturnsResolvedReport(t *testing.T) {
	svc := &stubNDRService{
		resolveFn: func(_ context.Context, cmd services.ResolveNDRCommand) (services.NDR, error) {
			if cmd.NDRID != "ndr_1" || cmd.ResolutionAction != "Reattempt delivery" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			ndr := sampleNDR()
			ndr.ResolutionStatus = domain.NDRResolutionResolved
			ndr.NextAction = cmd.ResolutionAction
			resolved := time.Date(2026, time.March, 17, 9, 0, 0, 0, time.UTC)
			ndr.ResolvedAt = &resolved
			return ndr, nil
		},
	}

	rr := httptest.NewRecorder()
	newNDRRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/ndr_1:resolve", `{"resolution_action":"Reattempt delivery"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response ndrResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.NDR.ResolutionStatus != string(domain.NDRResolutionResolved) {
		t.Fatalf("expected resolved status, got %q", response.NDR.ResolutionStatus)
	}
	if response.NDR.ResolvedAt == "" {
		t.Fatal("expected resolved_at to be set")
	}
}
