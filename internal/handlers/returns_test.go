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

type stubReturnService struct {
	processFn      func(context.Context, services.ReturnRequestCommand) (services.Return, error)
	getFn          func(context.Context, string) (services.Return, error)
	listFn         func(context.Context, string) ([]services.Return, error)
	listPoliciesFn func(context.Context) ([]services.ReturnPolicy, error)
}

func (s *stubReturnService) ProcessReturnRequest(ctx context.Context, cmd services.ReturnRequestCommand) (services.Return, error) {
	if s.processFn == nil {
		return services.Return{}, nil
	}
	return s.processFn(ctx, cmd)
}

func (s *stubReturnService) GetReturn(ctx context.Context, returnID string) (services.Return, error) {
	if s.getFn == nil {
		return services.Return{}, nil
	}
	return s.getFn(ctx, returnID)
}

func (s *stubReturnService) ListByOrder(ctx context.Context, orderID string) ([]services.Return, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, orderID)
}

func (s *stubReturnService) ListPolicies(ctx context.Context) ([]services.ReturnPolicy, error) {
	if s.listPoliciesFn == nil {
		return nil, nil
	}
	return s.listPoliciesFn(ctx)
}

var _ services.ReturnService = (*stubReturnService)(nil)

func newReturnRouter(svc services.ReturnService) chi.Router {
	r := chi.NewRouter()
	NewReturnHandlers(nil, svc).Routes(r)
	return r
}

func TestRequestReturnReturnsCreated(t *testing.T) {
	svc := &stubReturnService{
		processFn: func(_ context.Context, cmd services.ReturnRequestCommand) (services.Return, error) {
			if cmd.OrderID != "ord_123" || cmd.Reason != "damaged item" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return services.Return{
				ID:           "ret_1",
				OrderID:      cmd.OrderID,
				PolicyID:     "pol_default",
				Reason:       cmd.Reason,
				Status:       domain.ReturnStatusApproved,
				QCStatus:     domain.QCStatusPending,
				RefundAmount: 45000,
				CreatedAt:    time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	body := `{"order_id":"ord_123","reason":"damaged item"}`
	rr := httptest.NewRecorder()
	newReturnRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var response returnResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Return.Status != string(domain.ReturnStatusApproved) {
		t.Fatalf("expected approved status, got %q", response.Return.Status)
	}
	if response.Return.RefundAmount != 45000 {
		t.Fatalf("expected refund amount, got %d", response.Return.RefundAmount)
	}
}

func TestRequestReturnWindowClosed(t *testing.T) {
	svc := &stubReturnService{
		processFn: func(context.Context, services.ReturnRequestCommand) (services.Return, error) {
			return services.Return{}, services.ErrReturnWindowClosed
		},
	}

	rr := httptest.NewRecorder()
	newReturnRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", `{"order_id":"ord_123","reason":"late"}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequestReturnIneligibleConflicts(t *testing.T) {
	svc := &stubReturnService{
		processFn: func(context.Context, services.ReturnRequestCommand) (services.Return, error) {
			return services.Return{}, services.ErrReturnNotEligible
		},
	}

	rr := httptest.NewRecorder()
	newReturnRouter(svc).ServeHTTP(rr, authedRequest(http.MethodPost, "/", `{"order_id":"ord_123","reason":"changed mind"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListPoliciesReturnsCatalog(t *testing.T) {
	svc := &stubReturnService{
		listPoliciesFn: func(context.Context) ([]services.ReturnPolicy, error) {
			return []services.ReturnPolicy{{
				ID:               "pol_default",
				Name:             "Standard returns",
				WindowDays:       7,
				AutoApprove:      true,
				RefundPercentage: 100,
				Active:           true,
			}}, nil
		},
	}

	rr := httptest.NewRecorder()
	newReturnRouter(svc).ServeHTTP(rr, authedRequest(http.MethodGet, "/policies", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response returnPolicyListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].WindowDays != 7 {
		t.Fatalf("unexpected payload: %+v", response.Items)
	}
}

func TestListReturnsRequiresOrderID(t *testing.T) {
	rr := httptest.NewRecorder()
	newReturnRouter(&stubReturnService{}).ServeHTTP(rr, authedRequest(http.MethodGet, "/", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
