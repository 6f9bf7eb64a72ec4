package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/repositories"
)

const (
	ndrIDPrefix = "ndr_"

	ndrEventRecorded    = "ndr.recorded"
	ndrEventResolved    = "ndr.resolved"
	ndrEventAutoAttempt = "ndr.auto_resolution.attempted"

	defaultAutoResolveLimit = 50
)

var (
	// ErrNDRInvalidInput signals the caller provided invalid data.
	ErrNDRInvalidInput = errors.New("ndr: invalid input")
	// ErrNDRNotFound indicates the report could not be located.
	ErrNDRNotFound = errors.New("ndr: not found")
	// ErrNDRAlreadyResolved indicates the report was resolved previously and
	// its resolution is immutable.
	ErrNDRAlreadyResolved = errors.New("ndr: already resolved")
)

// NDRServiceDeps bundles collaborators required to construct the NDR service.
type NDRServiceDeps struct {
	NDRs             repositories.NDRRepository
	Orders           repositories.OrderRepository
	Timeline         repositories.TimelineRepository
	UnitOfWork       repositories.UnitOfWork
	Notifications    NotificationService
	Clock            func() time.Time
	IDGenerator      func() string
	Events           OrderEventPublisher
	Logger           func(ctx context.Context, event string, fields map[string]any)
	AutoResolveLimit int
	ConflictRetries  int
}

type ndrService struct {
	ndrs          repositories.NDRRepository
	orders        repositories.OrderRepository
	timeline      repositories.TimelineRepository
	unitOfWork    repositories.UnitOfWork
	notifications NotificationService
	clock         func() time.Time
	newID         func() string
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
	sweepLimit    int
	retries       int
}

// NewNDRService wires dependencies into a concrete NDRService implementation.
func NewNDRService(deps NDRServiceDeps) (NDRService, error) {
	if deps.NDRs == nil {
		return nil, errors.New("ndr service: ndr repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("ndr service: order repository is required")
	}
	if deps.Timeline == nil {
		return nil, errors.New("ndr service: timeline repository is required")
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

	limit := deps.AutoResolveLimit
	if limit <= 0 {
		limit = defaultAutoResolveLimit
	}

	retries := deps.ConflictRetries
	if retries <= 0 {
		retries = defaultConflictRetries
	}

	return &ndrService{
		ndrs:          deps.NDRs,
		orders:        deps.Orders,
		timeline:      deps.Timeline,
		unitOfWork:    unit,
		notifications: deps.Notifications,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		events:     deps.Events,
		logger:     logger,
		sweepLimit: limit,
		retries:    retries,
	}, nil
}

func (s *ndrService) RecordNDR(ctx context.Context, cmd RecordNDRCommand) (NDR, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	reason := strings.TrimSpace(cmd.Reason)

	if orderID == "" {
		return NDR{}, fmt.Errorf("%w: order id is required", ErrNDRInvalidInput)
	}
	if reason == "" {
		return NDR{}, fmt.Errorf("%w: reason is required", ErrNDRInvalidInput)
	}

	var recorded NDR
	var severity domain.NDRSeverity
	var orderNumber string

	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.runInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByID(txCtx, orderID)
			if err != nil {
				return s.mapOrderLookupError(err)
			}

			now := s.clock()
			ndr := domain.NDR{
				ID:               ndrIDPrefix + s.newID(),
				OrderID:          order.ID,
				Reason:           reason,
				CustomerResponse: cmd.CustomerResponse,
				ResolutionStatus: domain.NDRResolutionPending,
				CreatedAt:        now,
			}
			if err := s.ndrs.Insert(txCtx, ndr); err != nil {
				return s.mapRepositoryError(err)
			}

			order.NDRCount++
			order.DeliveryAttempts++
			order.UpdatedAt = now
			if err := s.orders.Update(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}

			severity = domain.ClassifyNDRSeverity(reason, order.NDRCount)
			orderNumber = order.OrderNumber

			entry := domain.TimelineEntry{
				ID:          timelineIDPrefix + s.newID(),
				OrderID:     order.ID,
				EventType:   "ndr_recorded",
				Description: fmt.Sprintf("Delivery attempt %d failed: %s", order.NDRCount, reason),
				EventData: map[string]any{
					"ndr_id":    ndr.ID,
					"reason":    reason,
					"severity":  string(severity),
					"ndr_count": order.NDRCount,
				},
				Actor:     optionalString(strings.TrimSpace(cmd.ActorID)),
				CreatedAt: now,
			}
			if err := s.timeline.Append(txCtx, entry); err != nil {
				return s.mapRepositoryError(err)
			}

			recorded = ndr
			return nil
		})
	})
	if err != nil {
		return NDR{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        ndrEventRecorded,
		OrderID:     recorded.OrderID,
		OrderNumber: orderNumber,
		ActorID:     cmd.ActorID,
		OccurredAt:  recorded.CreatedAt,
		Metadata: map[string]any{
			"ndr_id":   recorded.ID,
			"reason":   recorded.Reason,
			"severity": string(severity),
		},
	})

	return recorded, nil
}

func (s *ndrService) GetNDR(ctx context.Context, ndrID string) (NDR, error) {
	ndrID = strings.TrimSpace(ndrID)
	if ndrID == "" {
		return NDR{}, fmt.Errorf("%w: ndr id is required", ErrNDRInvalidInput)
	}

	ndr, err := s.ndrs.FindByID(ctx, ndrID)
	if err != nil {
		return NDR{}, s.mapRepositoryError(err)
	}
	return ndr, nil
}

func (s *ndrService) ListByOrder(ctx context.Context, orderID string) ([]NDR, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrNDRInvalidInput)
	}

	ndrs, err := s.ndrs.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return ndrs, nil
}

func (s *ndrService) ResolveNDR(ctx context.Context, cmd ResolveNDRCommand) (NDR, error) {
	ndrID := strings.TrimSpace(cmd.NDRID)
	action := strings.TrimSpace(cmd.ResolutionAction)

	if ndrID == "" {
		return NDR{}, fmt.Errorf("%w: ndr id is required", ErrNDRInvalidInput)
	}
	if action == "" {
		return NDR{}, fmt.Errorf("%w: resolution action is required", ErrNDRInvalidInput)
	}

	var resolved NDR

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		ndr, err := s.ndrs.FindByID(txCtx, ndrID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if ndr.ResolutionStatus == domain.NDRResolutionResolved {
			return fmt.Errorf("%w: %s", ErrNDRAlreadyResolved, ndrID)
		}

		now := s.clock()
		ndr.ResolutionStatus = domain.NDRResolutionResolved
		ndr.NextAction = action
		ndr.ResolvedAt = &now
		if cmd.CustomerResponse != nil {
			ndr.CustomerResponse = cmd.CustomerResponse
		}

		if err := s.ndrs.Update(txCtx, ndr); err != nil {
			return s.mapRepositoryError(err)
		}

		entry := domain.TimelineEntry{
			ID:          timelineIDPrefix + s.newID(),
			OrderID:     ndr.OrderID,
			EventType:   "ndr_resolved",
			Description: fmt.Sprintf("Delivery issue resolved: %s", action),
			EventData: map[string]any{
				"ndr_id": ndr.ID,
				"action": action,
			},
			Actor:     optionalString(strings.TrimSpace(cmd.ActorID)),
			CreatedAt: now,
		}
		if err := s.timeline.Append(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}

		resolved = ndr
		return nil
	})
	if err != nil {
		return NDR{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       ndrEventResolved,
		OrderID:    resolved.OrderID,
		ActorID:    cmd.ActorID,
		OccurredAt: *resolved.ResolvedAt,
		Metadata: map[string]any{
			"ndr_id": resolved.ID,
			"action": resolved.NextAction,
		},
	})

	return resolved, nil
}

// AutoResolveNDRs sweeps every pending report that has not been through
// auto-resolution, paging by report id so one run covers the whole backlog
// even when skipped reports pile up ahead of actionable ones. For each
// report with a known reason it records the recommended action, marks the
// report attempted, and sends the rule's customer message. Reports stay
// pending; a human still closes them. A failed dispatch fails that report
// only and never unwinds the attempt marker.
func (s *ndrService) AutoResolveNDRs(ctx context.Context) (AutoResolveResult, error) {
	result := AutoResolveResult{}

	afterID := ""
	for {
		page, err := s.ndrs.ListUnattempted(ctx, afterID, s.sweepLimit)
		if err != nil {
			return result, s.mapRepositoryError(err)
		}
		if len(page) == 0 {
			return result, nil
		}

		for _, ndr := range page {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			rule, ok := domain.AutoResolutionRuleFor(ndr.Reason)
			if !ok {
				result.Skipped++
				continue
			}

			if err := s.applyAutoResolution(ctx, ndr, rule); err != nil {
				result.Failed = append(result.Failed, AutoResolveFailure{
					NDRID:  ndr.ID,
					Reason: err.Error(),
				})
				continue
			}
			result.Processed++
		}

		if len(page) < s.sweepLimit {
			return result, nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *ndrService) applyAutoResolution(ctx context.Context, ndr NDR, rule domain.AutoResolutionRule) error {
	now := s.clock()

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		ndr.AutoResolutionAttempted = true
		ndr.NextAction = rule.Action
		if err := s.ndrs.Update(txCtx, ndr); err != nil {
			return s.mapRepositoryError(err)
		}

		entry := domain.TimelineEntry{
			ID:          timelineIDPrefix + s.newID(),
			OrderID:     ndr.OrderID,
			EventType:   "ndr_auto_resolution",
			Description: fmt.Sprintf("Automatic follow-up for %q: %s", ndr.Reason, rule.Action),
			EventData: map[string]any{
				"ndr_id": ndr.ID,
				"action": rule.Action,
			},
			CreatedAt: now,
		}
		return s.mapRepositoryError(s.timeline.Append(txCtx, entry))
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       ndrEventAutoAttempt,
		OrderID:    ndr.OrderID,
		OccurredAt: now,
		Metadata: map[string]any{
			"ndr_id": ndr.ID,
			"action": rule.Action,
		},
	})

	if s.notifications == nil {
		return nil
	}

	// The attempt marker above is durable at this point. Dispatch failures
	// surface as sweep failures but leave the marker in place.
	_, err = s.notifications.Send(ctx, SendNotificationCommand{
		OrderID:  ndr.OrderID,
		Type:     domain.NotificationTypeNDR,
		Message:  rule.Message,
		Channels: rule.Channels,
	})
	if err != nil {
		s.logger(ctx, "ndr.auto_resolution.dispatch.failed", map[string]any{
			"ndr":   ndr.ID,
			"order": ndr.OrderID,
			"error": err.Error(),
		})
		return fmt.Errorf("dispatch: %w", err)
	}

	return nil
}

func (s *ndrService) withConflictRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < s.retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrOrderConflict) {
			return err
		}
		s.logger(ctx, "ndr.record.conflict.retry", map[string]any{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return err
}

// mapOrderLookupError attributes a missing order to the order itself rather
// than the report being recorded against it.
func (s *ndrService) mapOrderLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	}
	return s.mapRepositoryError(err)
}

func (s *ndrService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNDRNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("ndr: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *ndrService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *ndrService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "ndr.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
