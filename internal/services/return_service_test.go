package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/repositories"
)

var returnClock = time.Date(2026, time.April, 10, 11, 0, 0, 0, time.UTC)

type stubReturnRepo struct {
	insertFn      func(ctx context.Context, ret domain.Return) error
	findByIDFn    func(ctx context.Context, returnID string) (domain.Return, error)
	listByOrderFn func(ctx context.Context, orderID string) ([]domain.Return, error)
}

func (s *stubReturnRepo) Insert(ctx context.Context, ret domain.Return) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, ret)
	}
	return nil
}

func (s *stubReturnRepo) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, returnID)
	}
	return domain.Return{}, stubRepoError{notFound: true}
}

func (s *stubReturnRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Return, error) {
	if s.listByOrderFn != nil {
		return s.listByOrderFn(ctx, orderID)
	}
	return nil, nil
}

type stubPolicyRepo struct {
	findByIDFn func(ctx context.Context, policyID string) (domain.ReturnPolicy, error)
	listFn     func(ctx context.Context) ([]domain.ReturnPolicy, error)
}

func (s *stubPolicyRepo) FindByID(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, policyID)
	}
	return domain.ReturnPolicy{}, stubRepoError{notFound: true}
}

func (s *stubPolicyRepo) List(ctx context.Context) ([]domain.ReturnPolicy, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubPolicyRepo) Upsert(ctx context.Context, policy domain.ReturnPolicy) error {
	return nil
}

func deliveredOrder(deliveredAt time.Time) domain.Order {
	return domain.Order{
		ID:             "ord_1",
		OrderNumber:    "BS-2026-000001",
		Status:         domain.OrderStatusDelivered,
		TotalAmount:    100000,
		ShippingAmount: 5000,
		DeliveredAt:    &deliveredAt,
	}
}

func activePolicy(policyID string) domain.ReturnPolicy {
	return domain.ReturnPolicy{
		ID:               policyID,
		Name:             "Standard Returns",
		WindowDays:       7,
		RequireQC:        true,
		RefundPercentage: 100,
		Active:           true,
	}
}

func newTestReturnService(t *testing.T, deps ReturnServiceDeps) ReturnService {
	t.Helper()
	if deps.Returns == nil {
		deps.Returns = &stubReturnRepo{}
	}
	if deps.Policies == nil {
		deps.Policies = &stubPolicyRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Timeline == nil {
		deps.Timeline = &stubTimelineRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return returnClock }
	}
	svc, err := NewReturnService(deps)
	if err != nil {
		t.Fatalf("failed to build return service: %v", err)
	}
	return svc
}

func TestProcessReturnRequest_AutoApproveComputesRefund(t *testing.T) {
	policy := activePolicy("pol_1")
	policy.AutoApprove = true
	policy.RefundPercentage = 80
	policy.RequireQC = false

	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return policy, nil
		},
	}
	var updatedOrder domain.Order
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -2)), nil
		},
		updateFn: func(ctx context.Context, order domain.Order) error {
			updatedOrder = order
			return nil
		},
	}
	timeline := &stubTimelineRepo{}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies, Orders: orders, Timeline: timeline})

	ret, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Size does not fit",
		PolicyID: "pol_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 80% of the item total of 100000; shipping is excluded by this policy.
	if ret.RefundAmount != 80000 {
		t.Fatalf("expected refund 80000, got %d", ret.RefundAmount)
	}
	if ret.Status != domain.ReturnStatusApproved {
		t.Fatalf("expected auto-approved status, got %s", ret.Status)
	}
	if ret.QCStatus != domain.QCStatusNotRequired {
		t.Fatalf("expected qc waived, got %s", ret.QCStatus)
	}
	if updatedOrder.Status != domain.OrderStatusReturnRequested {
		t.Fatalf("expected order moved to return_requested, got %s", updatedOrder.Status)
	}
	if len(timeline.entries) != 1 || timeline.entries[0].EventType != "return_requested" {
		t.Fatalf("expected return_requested timeline entry, got %+v", timeline.entries)
	}
}

func TestProcessReturnRequest_ShippingRefundable(t *testing.T) {
	policy := activePolicy("pol_1")
	policy.AutoApprove = true
	policy.ShippingRefundable = true

	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return policy, nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -1)), nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies, Orders: orders})

	ret, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Damaged on arrival",
		PolicyID: "pol_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret.RefundAmount != 105000 {
		t.Fatalf("expected refund to include shipping, got %d", ret.RefundAmount)
	}
	if ret.QCStatus != domain.QCStatusPending {
		t.Fatalf("expected qc pending when policy requires it, got %s", ret.QCStatus)
	}
}

func TestProcessReturnRequest_ManualReviewWithoutAutoApprove(t *testing.T) {
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return activePolicy("pol_1"), nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -1)), nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies, Orders: orders})

	ret, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Changed my mind",
		PolicyID: "pol_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret.Status != domain.ReturnStatusRequested {
		t.Fatalf("expected requested status, got %s", ret.Status)
	}
	if ret.RefundAmount != 0 {
		t.Fatalf("expected no refund before approval, got %d", ret.RefundAmount)
	}
}

func TestProcessReturnRequest_InactivePolicyRejected(t *testing.T) {
	policy := activePolicy("pol_1")
	policy.Active = false
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return policy, nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies})

	_, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Changed my mind",
		PolicyID: "pol_1",
	})
	if !errors.Is(err, ErrReturnNotFound) {
		t.Fatalf("expected inactive policy to be treated as missing, got %v", err)
	}
}

func TestProcessReturnRequest_WindowClosed(t *testing.T) {
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return activePolicy("pol_1"), nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -10)), nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies, Orders: orders})

	_, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Too late anyway",
		PolicyID: "pol_1",
	})
	if !errors.Is(err, ErrReturnWindowClosed) {
		t.Fatalf("expected window closed error, got %v", err)
	}
}

func TestProcessReturnRequest_IneligibleOrderState(t *testing.T) {
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return activePolicy("pol_1"), nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, Status: domain.OrderStatusShipped}, nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies, Orders: orders})

	_, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Not delivered yet",
		PolicyID: "pol_1",
	})
	if !errors.Is(err, ErrReturnNotEligible) {
		t.Fatalf("expected eligibility rejection, got %v", err)
	}
}

func TestProcessReturnRequest_AtomicWithOrderTransition(t *testing.T) {
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return activePolicy("pol_1"), nil
		},
	}
	var inserted bool
	returns := &stubReturnRepo{
		insertFn: func(ctx context.Context, ret domain.Return) error {
			inserted = true
			return nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -1)), nil
		},
		updateFn: func(ctx context.Context, order domain.Order) error {
			return stubRepoError{unavailable: true}
		},
	}
	txErr := errors.New("transaction rolled back")
	unit := &stubUnitOfWork{
		runFn: func(ctx context.Context, fn func(context.Context) error) error {
			if err := fn(ctx); err != nil {
				return txErr
			}
			return nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{
		Policies: policies, Returns: returns, Orders: orders, UnitOfWork: unit,
	})

	_, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Damaged",
		PolicyID: "pol_1",
	})
	if !errors.Is(err, txErr) {
		t.Fatalf("expected transaction error to surface, got %v", err)
	}
	if !inserted {
		t.Fatal("expected insert attempted inside the transaction")
	}
}

func TestProcessReturnRequest_NotificationFailureDoesNotFail(t *testing.T) {
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			return activePolicy("pol_1"), nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -1)), nil
		},
	}
	notifications := &stubNotificationService{
		sendFn: func(ctx context.Context, cmd SendNotificationCommand) (OrderNotification, error) {
			return OrderNotification{}, errors.New("gateway down")
		},
	}

	var logged []string
	svc := newTestReturnService(t, ReturnServiceDeps{
		Policies: policies, Orders: orders, Notifications: notifications,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			logged = append(logged, event)
		},
	})

	if _, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID:  "ord_1",
		Reason:   "Damaged",
		PolicyID: "pol_1",
	}); err != nil {
		t.Fatalf("notification failure must not fail the request, got %v", err)
	}
	if len(logged) == 0 || logged[len(logged)-1] != "return.notification.failed" {
		t.Fatalf("expected notification failure to be logged, got %v", logged)
	}
	if len(notifications.sent) != 1 {
		t.Fatalf("expected one dispatch attempt, got %d", len(notifications.sent))
	}
}

func TestProcessReturnRequest_DefaultPolicyFallback(t *testing.T) {
	var requestedPolicy string
	policies := &stubPolicyRepo{
		findByIDFn: func(ctx context.Context, policyID string) (domain.ReturnPolicy, error) {
			requestedPolicy = policyID
			return activePolicy(policyID), nil
		},
	}
	orders := &stubOrderRepo{
		findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			return deliveredOrder(returnClock.AddDate(0, 0, -1)), nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{
		Policies: policies, Orders: orders, DefaultPolicyID: "pol_default",
	})

	if _, err := svc.ProcessReturnRequest(context.Background(), ReturnRequestCommand{
		OrderID: "ord_1",
		Reason:  "Changed my mind",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requestedPolicy != "pol_default" {
		t.Fatalf("expected default policy used, got %s", requestedPolicy)
	}
}

func TestListPolicies_PassesThrough(t *testing.T) {
	policies := &stubPolicyRepo{
		listFn: func(ctx context.Context) ([]domain.ReturnPolicy, error) {
			return []domain.ReturnPolicy{activePolicy("pol_1"), activePolicy("pol_2")}, nil
		},
	}

	svc := newTestReturnService(t, ReturnServiceDeps{Policies: policies})

	list, err := svc.ListPolicies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two policies, got %d", len(list))
	}
}

var _ repositories.ReturnRepository = (*stubReturnRepo)(nil)
var _ repositories.ReturnPolicyRepository = (*stubPolicyRepo)(nil)
