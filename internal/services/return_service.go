package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/repositories"
)

const (
	returnIDPrefix = "ret_"

	returnEventRequested = "return.requested"
	returnEventApproved  = "return.approved"

	defaultReturnWindowDays = 7
)

var (
	// ErrReturnInvalidInput signals the caller provided invalid data.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnNotFound indicates the return or its policy could not be located.
	ErrReturnNotFound = errors.New("return: not found")
	// ErrReturnNotEligible indicates the order's state does not permit a return.
	ErrReturnNotEligible = errors.New("return: order not eligible")
	// ErrReturnWindowClosed indicates the policy's return window has elapsed.
	ErrReturnWindowClosed = errors.New("return: window closed")
)

// returnableStatuses are the order states from which a return may be opened.
var returnableStatuses = []domain.OrderStatus{
	domain.OrderStatusDelivered,
}

// ReturnServiceDeps bundles collaborators required to construct the return service.
type ReturnServiceDeps struct {
	Returns         repositories.ReturnRepository
	Policies        repositories.ReturnPolicyRepository
	Orders          repositories.OrderRepository
	Timeline        repositories.TimelineRepository
	UnitOfWork      repositories.UnitOfWork
	Notifications   NotificationService
	Clock           func() time.Time
	IDGenerator     func() string
	Events          OrderEventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
	DefaultPolicyID string
	WindowDays      int
	ConflictRetries int
}

type returnService struct {
	returns         repositories.ReturnRepository
	policies        repositories.ReturnPolicyRepository
	orders          repositories.OrderRepository
	timeline        repositories.TimelineRepository
	unitOfWork      repositories.UnitOfWork
	notifications   NotificationService
	clock           func() time.Time
	newID           func() string
	events          OrderEventPublisher
	logger          func(context.Context, string, map[string]any)
	defaultPolicyID string
	windowDays      int
	retries         int
}

// NewReturnService wires dependencies into a concrete ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	if deps.Policies == nil {
		return nil, errors.New("return service: policy repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Timeline == nil {
		return nil, errors.New("return service: timeline repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	windowDays := deps.WindowDays
	if windowDays <= 0 {
		windowDays = defaultReturnWindowDays
	}

	retries := deps.ConflictRetries
	if retries <= 0 {
		retries = defaultConflictRetries
	}

	return &returnService{
		returns:       deps.Returns,
		policies:      deps.Policies,
		orders:        deps.Orders,
		timeline:      deps.Timeline,
		unitOfWork:    unit,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:           idGen,
		events:          deps.Events,
		logger:          logger,
		defaultPolicyID: strings.TrimSpace(deps.DefaultPolicyID),
		windowDays:      windowDays,
		retries:         retries,
	}, nil
}

func (s *returnService) ProcessReturnRequest(ctx context.Context, cmd ReturnRequestCommand) (Return, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	reason := strings.TrimSpace(cmd.Reason)

	if orderID == "" {
		return Return{}, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}
	if reason == "" {
		return Return{}, fmt.Errorf("%w: reason is required", ErrReturnInvalidInput)
	}

	policyID := strings.TrimSpace(cmd.PolicyID)
	if policyID == "" {
		policyID = s.defaultPolicyID
	}
	if policyID == "" {
		return Return{}, fmt.Errorf("%w: return policy id is required", ErrReturnInvalidInput)
	}

	policy, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		return Return{}, s.mapRepositoryError(err)
	}
	if !policy.Active {
		return Return{}, fmt.Errorf("%w: policy %s is inactive", ErrReturnNotFound, policyID)
	}

	var created Return
	var orderNumber string

	err = s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if !slices.Contains(returnableStatuses, order.Status) {
				return fmt.Errorf("%w: order is %s", ErrReturnNotEligible, order.Status)
			}

			now := s.clock()
			if err := s.checkReturnWindow(order, policy, now); err != nil {
				return err
			}

			ret := s.evaluate(order, policy, reason, now)
			if err := s.returns.Insert(txCtx, ret); err != nil {
				return s.mapRepositoryError(err)
			}

			order.Status = domain.OrderStatusReturnRequested
			order.UpdatedAt = now
			if err := s.orders.Update(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}

			desc := fmt.Sprintf("Return requested under policy %s", policy.Name)
			if ret.Status == domain.ReturnStatusApproved {
				desc = fmt.Sprintf("Return auto-approved under policy %s, refund %d", policy.Name, ret.RefundAmount)
			}
			entry := domain.TimelineEntry{
				ID:          timelineIDPrefix + s.newID(),
				OrderID:     order.ID,
				EventType:   "return_requested",
				Description: desc,
				EventData: map[string]any{
					"return_id":     ret.ID,
					"policy_id":     policy.ID,
					"status":        string(ret.Status),
					"qc_status":     string(ret.QCStatus),
					"refund_amount": ret.RefundAmount,
				},
				Actor:     optionalString(strings.TrimSpace(cmd.ActorID)),
				CreatedAt: now,
			}
			if err := s.timeline.Append(txCtx, entry); err != nil {
				return s.mapRepositoryError(err)
			}

			created = ret
			orderNumber = order.OrderNumber
			return nil
		})
	})
	if err != nil {
		return Return{}, err
	}

	eventType := returnEventRequested
	if created.Status == domain.ReturnStatusApproved {
		eventType = returnEventApproved
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          eventType,
		OrderID:       created.OrderID,
		OrderNumber:   orderNumber,
		CurrentStatus: string(domain.OrderStatusReturnRequested),
		ActorID:       cmd.ActorID,
		OccurredAt:    created.CreatedAt,
		Metadata: map[string]any{
			"return_id":     created.ID,
			"policy_id":     created.PolicyID,
			"refund_amount": created.RefundAmount,
		},
	})

	s.notifyCustomer(ctx, created)

	return created, nil
}

func (s *returnService) GetReturn(ctx context.Context, returnID string) (Return, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return Return{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}

	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return Return{}, s.mapRepositoryError(err)
	}
	return ret, nil
}

func (s *returnService) ListByOrder(ctx context.Context, orderID string) ([]Return, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}

	returns, err := s.returns.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return returns, nil
}

func (s *returnService) ListPolicies(ctx context.Context) ([]ReturnPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return policies, nil
}

// evaluate applies the policy to produce the return record. The refund base is
// the item total; shipping joins only when the policy says so.
func (s *returnService) evaluate(order Order, policy ReturnPolicy, reason string, now time.Time) Return {
	ret := Return{
		ID:        returnIDPrefix + s.newID(),
		OrderID:   order.ID,
		PolicyID:  policy.ID,
		Reason:    reason,
		Status:    domain.ReturnStatusRequested,
		QCStatus:  domain.QCStatusPending,
		CreatedAt: now,
	}
	if !policy.RequireQC {
		ret.QCStatus = domain.QCStatusNotRequired
	}
	if policy.AutoApprove {
		ret.Status = domain.ReturnStatusApproved
		refund := order.TotalAmount * int64(policy.RefundPercentage) / 100
		if policy.ShippingRefundable {
			refund += order.ShippingAmount
		}
		ret.RefundAmount = refund
	}
	return ret
}

// checkReturnWindow enforces the policy window against the delivery timestamp.
// Orders without a recorded delivery time are never window-rejected.
func (s *returnService) checkReturnWindow(order Order, policy ReturnPolicy, now time.Time) error {
	if order.DeliveredAt == nil {
		return nil
	}
	days := policy.WindowDays
	if days <= 0 {
		days = s.windowDays
	}
	deadline := order.DeliveredAt.AddDate(0, 0, days)
	if now.After(deadline) {
		return fmt.Errorf("%w: delivered %s, window %d days", ErrReturnWindowClosed,
			order.DeliveredAt.Format(time.RFC3339), days)
	}
	return nil
}

func (s *returnService) notifyCustomer(ctx context.Context, ret Return) {
	if s.notifications == nil {
		return
	}

	message := "We received your return request and will review it shortly."
	if ret.Status == domain.ReturnStatusApproved {
		message = "Your return was approved. The refund will be processed once the item reaches us."
	}

	// Best effort; the return record is already durable.
	_, err := s.notifications.Send(ctx, SendNotificationCommand{
		OrderID:  ret.OrderID,
		Type:     domain.NotificationTypeOther,
		Message:  message,
		Channels: []Channel{domain.ChannelEmail},
	})
	if err != nil {
		s.logger(ctx, "return.notification.failed", map[string]any{
			"return": ret.ID,
			"order":  ret.OrderID,
			"error":  err.Error(),
		})
	}
}

func (s *returnService) withConflictRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrOrderConflict) {
			return err
		}
		s.logger(ctx, "return.request.conflict.retry", map[string]any{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return err
}

func (s *returnService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReturnNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("return: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *returnService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *returnService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "return.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
