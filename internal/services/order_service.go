package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status.changed"
	orderEventPaymentChanged   = "order.payment.changed"
	orderEventTrackingUpdated  = "order.tracking.updated"
	orderEventDuplicateFlagged = "order.duplicate.flagged"

	orderIDPrefix    = "ord_"
	timelineIDPrefix = "tle_"
	itemIDPrefix     = "itm_"

	orderNumberCounter = "orders"

	defaultConflictRetries = 3
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidTransition indicates an unrecognised or disallowed status value.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates an optimistic concurrency conflict; callers may retry.
	ErrOrderConflict = errors.New("order: conflict")
)

// orderStateTransitions encodes the lifecycle graph. Cancelled and returned
// are reachable from every non-terminal state; return_requested only follows
// delivered.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:         {domain.OrderStatusConfirmed, domain.OrderStatusCancelled, domain.OrderStatusReturned},
	domain.OrderStatusConfirmed:       {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusReturned},
	domain.OrderStatusProcessing:      {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusReturned},
	domain.OrderStatusShipped:         {domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusReturned},
	domain.OrderStatusDelivered:       {domain.OrderStatusReturnRequested},
	domain.OrderStatusReturnRequested: {domain.OrderStatusReturned, domain.OrderStatusCancelled},
}

// paymentTransitions encodes the independent payment machine.
var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
	domain.PaymentStatusPaid:    {domain.PaymentStatusRefunded, domain.PaymentStatusPartiallyRefunded},
}

// trackingAdvanceStatuses are the states from which tracking assignment
// auto-advances the order to shipped.
var trackingAdvanceStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders            repositories.OrderRepository
	Timeline          repositories.TimelineRepository
	Counters          repositories.CounterRepository
	UnitOfWork        repositories.UnitOfWork
	Clock             func() time.Time
	IDGenerator       func() string
	Events            OrderEventPublisher
	Logger            func(ctx context.Context, event string, fields map[string]any)
	OrderNumberPrefix string
	ConflictRetries   int
}

type orderService struct {
	orders     repositories.OrderRepository
	timeline   repositories.TimelineRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	numPrefix  string
	retries    int
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Timeline == nil {
		return nil, errors.New("order service: timeline repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
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

	prefix := strings.TrimSpace(deps.OrderNumberPrefix)
	if prefix == "" {
		prefix = "BS"
	}

	retries := deps.ConflictRetries
	if retries <= 0 {
		retries = defaultConflictRetries
	}

	return &orderService{
		orders:     deps.Orders,
		timeline:   deps.Timeline,
		counters:   deps.Counters,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		events:    deps.Events,
		logger:    logger,
		numPrefix: prefix,
		retries:   retries,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	name := strings.TrimSpace(cmd.CustomerName)
	if name == "" {
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	now := s.now()
	orderID := orderIDPrefix + s.newID()

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	var itemsTotal int64
	for _, in := range cmd.Items {
		if in.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item quantity must be positive", ErrOrderInvalidInput)
		}
		if in.UnitPrice < 0 {
			return Order{}, fmt.Errorf("%w: item unit price cannot be negative", ErrOrderInvalidInput)
		}
		total := int64(in.Quantity) * in.UnitPrice
		items = append(items, domain.OrderItem{
			ID:         itemIDPrefix + s.newID(),
			OrderID:    orderID,
			ProductRef: strings.TrimSpace(in.ProductRef),
			Name:       strings.TrimSpace(in.Name),
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			TotalPrice: total,
		})
		itemsTotal += total
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:               orderID,
		OrderNumber:      number,
		CustomerName:     name,
		CustomerEmail:    strings.TrimSpace(cmd.CustomerEmail),
		CustomerPhone:    strings.TrimSpace(cmd.CustomerPhone),
		ShippingAddress:  cloneAddress(cmd.ShippingAddress),
		TotalAmount:      itemsTotal,
		ShippingAmount:   cmd.ShippingAmount,
		Status:           domain.OrderStatusPending,
		PaymentStatus:    domain.PaymentStatusPending,
		Source:           strings.TrimSpace(cmd.Source),
		Priority:         cmd.Priority,
		ExpectedDelivery: cmd.ExpectedDelivery,
		Items:            items,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return s.appendTimeline(txCtx, order.ID, "order_created",
			fmt.Sprintf("Order %s created from %s", order.OrderNumber, order.Source),
			map[string]any{"order_number": order.OrderNumber, "total_amount": order.TotalAmount},
			cmd.ActorID, now)
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListTimeline(ctx context.Context, orderID string, pager Pagination) (domain.CursorPage[TimelineEntry], error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.CursorPage[TimelineEntry]{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	page, err := s.timeline.ListByOrder(ctx, orderID, pager)
	if err != nil {
		return domain.CursorPage[TimelineEntry]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.NewStatus) {
		return Order{}, fmt.Errorf("%w: unrecognised status %q", ErrInvalidTransition, cmd.NewStatus)
	}

	var updated Order
	var prev domain.OrderStatus

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}

			prev = order.Status
			now := s.now()

			if cmd.TrackingNumber != nil {
				if trimmed := strings.TrimSpace(*cmd.TrackingNumber); trimmed != "" {
					order.TrackingNumber = &trimmed
				}
			}
			if cmd.CourierPartner != nil {
				if trimmed := strings.TrimSpace(*cmd.CourierPartner); trimmed != "" {
					order.CourierPartner = &trimmed
				}
			}

			if err := s.applyStatusTransition(&order, cmd.NewStatus, now); err != nil {
				return err
			}
			if cmd.NewStatus == domain.OrderStatusCancelled && strings.TrimSpace(cmd.Reason) != "" {
				order.CancelReason = optionalString(strings.TrimSpace(cmd.Reason))
			}

			if err := s.orders.Update(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			order.Version++

			desc := fmt.Sprintf("Status changed from %s to %s", prev, order.Status)
			data := map[string]any{"from": string(prev), "to": string(order.Status)}
			if cmd.Reason != "" {
				data["reason"] = strings.TrimSpace(cmd.Reason)
			}
			if err := s.appendTimeline(txCtx, order.ID, "status_changed", desc, data, cmd.ActorID, now); err != nil {
				return err
			}

			updated = order
			return nil
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     updated.UpdatedAt,
	})

	return updated, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidPaymentStatus(cmd.NewPaymentStatus) {
		return Order{}, fmt.Errorf("%w: unrecognised payment status %q", ErrInvalidTransition, cmd.NewPaymentStatus)
	}

	var updated Order
	var prev domain.PaymentStatus

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}

			prev = order.PaymentStatus
			now := s.now()

			if order.PaymentStatus != cmd.NewPaymentStatus {
				if !slices.Contains(paymentTransitions[order.PaymentStatus], cmd.NewPaymentStatus) {
					return fmt.Errorf("%w: payment %s to %s", ErrInvalidTransition, order.PaymentStatus, cmd.NewPaymentStatus)
				}
				order.PaymentStatus = cmd.NewPaymentStatus
			}
			order.UpdatedAt = now

			if err := s.orders.Update(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			order.Version++

			desc := fmt.Sprintf("Payment status changed from %s to %s", prev, order.PaymentStatus)
			data := map[string]any{"from": string(prev), "to": string(order.PaymentStatus)}
			if err := s.appendTimeline(txCtx, order.ID, "payment_status_changed", desc, data, cmd.ActorID, now); err != nil {
				return err
			}

			updated = order
			return nil
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.PaymentStatus),
		ActorID:        cmd.ActorID,
		OccurredAt:     updated.UpdatedAt,
	})

	return updated, nil
}

func (s *orderService) UpdateTrackingInfo(ctx context.Context, cmd UpdateTrackingCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	courier := strings.TrimSpace(cmd.CourierPartner)

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if tracking == "" {
		return Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}

	var updated Order
	var prev domain.OrderStatus
	var advanced bool

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}

			prev = order.Status
			now := s.now()
			advanced = false

			order.TrackingNumber = &tracking
			if courier != "" {
				order.CourierPartner = &courier
			}

			if courier != "" && slices.Contains(trackingAdvanceStatuses, order.Status) {
				// Tracking assignment jumps any pre-shipment order straight
				// to shipped, skipping the intermediate lifecycle steps.
				order.Status = domain.OrderStatusShipped
				advanced = true
			}
			order.UpdatedAt = now

			if err := s.orders.Update(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			order.Version++

			desc := fmt.Sprintf("Tracking %s assigned via %s", tracking, courier)
			if courier == "" {
				desc = fmt.Sprintf("Tracking %s assigned", tracking)
			}
			data := map[string]any{"tracking_number": tracking}
			if courier != "" {
				data["courier_partner"] = courier
			}
			if advanced {
				desc += "; order marked shipped"
				data["from"] = string(prev)
				data["to"] = string(order.Status)
			}
			if err := s.appendTimeline(txCtx, order.ID, "tracking_updated", desc, data, cmd.ActorID, now); err != nil {
				return err
			}

			updated = order
			return nil
		})
	})
	if err != nil {
		return Order{}, err
	}

	event := OrderEvent{
		Type:          orderEventTrackingUpdated,
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		CurrentStatus: string(updated.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    updated.UpdatedAt,
		Metadata:      map[string]any{"tracking_number": tracking, "courier_partner": courier},
	}
	if advanced {
		event.Type = orderEventStatusChanged
		event.PreviousStatus = string(prev)
	}
	s.publishEvent(ctx, event)

	return updated, nil
}

func (s *orderService) BulkUpdateStatus(ctx context.Context, cmd BulkUpdateStatusCommand) (BulkUpdateResult, error) {
	if len(cmd.OrderIDs) == 0 {
		return BulkUpdateResult{}, fmt.Errorf("%w: at least one order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.NewStatus) {
		return BulkUpdateResult{}, fmt.Errorf("%w: unrecognised status %q", ErrInvalidTransition, cmd.NewStatus)
	}

	result := BulkUpdateResult{}
	for _, orderID := range cmd.OrderIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := s.UpdateStatus(ctx, UpdateStatusCommand{
			OrderID:   orderID,
			NewStatus: cmd.NewStatus,
			ActorID:   cmd.ActorID,
		})
		if err != nil {
			result.Failed = append(result.Failed, BulkUpdateFailure{
				OrderID: strings.TrimSpace(orderID),
				Reason:  err.Error(),
			})
			continue
		}
		result.Succeeded++
	}

	return result, nil
}

func (s *orderService) FlagDuplicate(ctx context.Context, cmd FlagDuplicateCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	duplicateOf := strings.TrimSpace(cmd.DuplicateOf)

	if orderID == "" || duplicateOf == "" {
		return Order{}, fmt.Errorf("%w: order id and duplicate reference are required", ErrOrderInvalidInput)
	}
	if orderID == duplicateOf {
		return Order{}, fmt.Errorf("%w: order cannot duplicate itself", ErrOrderInvalidInput)
	}

	// The back-reference must point at a live order.
	if _, err := s.orders.FindByID(ctx, duplicateOf); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	var updated Order

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapRepositoryError(err)
			}

			now := s.now()
			order.IsDuplicate = true
			order.DuplicateOf = &duplicateOf
			order.UpdatedAt = now

			if err := s.orders.Update(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			order.Version++

			desc := fmt.Sprintf("Flagged as duplicate of %s", duplicateOf)
			if err := s.appendTimeline(txCtx, order.ID, "duplicate_flagged", desc,
				map[string]any{"duplicate_of": duplicateOf}, cmd.ActorID, now); err != nil {
				return err
			}

			updated = order
			return nil
		})
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventDuplicateFlagged,
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		CurrentStatus: string(updated.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    updated.UpdatedAt,
		Metadata:      map[string]any{"duplicate_of": duplicateOf},
	})

	return updated, nil
}

// applyStatusTransition validates and applies one lifecycle step. Shipped
// requires a tracking number, whether reached directly or via auto-advance.
func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if current == target {
		order.UpdatedAt = now
		return nil
	}

	if !slices.Contains(orderStateTransitions[current], target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, target)
	}

	if target == domain.OrderStatusShipped && (order.TrackingNumber == nil || strings.TrimSpace(*order.TrackingNumber) == "") {
		return fmt.Errorf("%w: cannot mark shipped without a tracking number", ErrInvalidTransition)
	}

	order.Status = target
	order.UpdatedAt = now
	if target == domain.OrderStatusDelivered {
		order.DeliveredAt = &now
	}

	return nil
}

func (s *orderService) appendTimeline(ctx context.Context, orderID, eventType, description string, data map[string]any, actorID string, now time.Time) error {
	entry := domain.TimelineEntry{
		ID:          timelineIDPrefix + s.newID(),
		OrderID:     orderID,
		EventType:   eventType,
		Description: description,
		EventData:   data,
		Actor:       optionalString(strings.TrimSpace(actorID)),
		CreatedAt:   now,
	}
	if err := s.timeline.Append(ctx, entry); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// withConflictRetry re-runs fn when the version CAS loses a race, up to the
// configured attempt budget. Each attempt re-reads inside its own transaction.
func (s *orderService) withConflictRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrOrderConflict) {
			return err
		}
		s.logger(ctx, "order.update.conflict.retry", map[string]any{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return err
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%06d", s.numPrefix, now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}
