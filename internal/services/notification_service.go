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
	notificationIDPrefix = "ntf_"

	notificationEventSent = "notification.sent"

	deliveryStatusSent    = "sent"
	deliveryStatusPartial = "partial"
	deliveryStatusFailed  = "failed"
)

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrNotificationDispatch indicates one or more channels rejected the
	// message. The notification record is still persisted with per-channel
	// outcomes.
	ErrNotificationDispatch = errors.New("notification: dispatch failed")
)

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Orders        repositories.OrderRepository
	Timeline      repositories.TimelineRepository
	Dispatcher    NotificationDispatcher
	Clock         func() time.Time
	IDGenerator   func() string
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	notifications repositories.NotificationRepository
	orders        repositories.OrderRepository
	timeline      repositories.TimelineRepository
	dispatcher    NotificationDispatcher
	clock         func() time.Time
	newID         func() string
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("notification service: order repository is required")
	}
	if deps.Timeline == nil {
		return nil, errors.New("notification service: timeline repository is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("notification service: dispatcher is required")
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

	return &notificationService{
		notifications: deps.Notifications,
		orders:        deps.Orders,
		timeline:      deps.Timeline,
		dispatcher:    deps.Dispatcher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *notificationService) Send(ctx context.Context, cmd SendNotificationCommand) (OrderNotification, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	message := strings.TrimSpace(cmd.Message)

	if orderID == "" {
		return OrderNotification{}, fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}
	if message == "" {
		return OrderNotification{}, fmt.Errorf("%w: message is required", ErrNotificationInvalidInput)
	}
	if len(cmd.Channels) == 0 {
		return OrderNotification{}, fmt.Errorf("%w: at least one channel is required", ErrNotificationInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderNotification{}, s.mapRepositoryError(err)
	}

	result, err := s.dispatcher.Dispatch(ctx, Dispatch{
		OrderID:  order.ID,
		Type:     cmd.Type,
		Message:  message,
		Channels: cmd.Channels,
	})
	if err != nil {
		// A dispatcher error with no per-channel statuses means nothing
		// left the building; there is no outcome worth recording.
		if len(result.Statuses) == 0 {
			return OrderNotification{}, fmt.Errorf("%w: %v", ErrNotificationDispatch, err)
		}
	}

	now := s.clock()
	notification := OrderNotification{
		ID:              notificationIDPrefix + s.newID(),
		OrderID:         order.ID,
		Type:            cmd.Type,
		Message:         message,
		SentVia:         append([]Channel(nil), cmd.Channels...),
		ChannelStatuses: result.Statuses,
		DeliveryStatus:  summariseDelivery(result),
		SentAt:          now,
	}

	if err := s.notifications.Insert(ctx, notification); err != nil {
		return OrderNotification{}, s.mapRepositoryError(err)
	}

	entry := domain.TimelineEntry{
		ID:          timelineIDPrefix + s.newID(),
		OrderID:     order.ID,
		EventType:   "notification_sent",
		Description: fmt.Sprintf("%s notification sent via %s", cmd.Type, joinChannels(notification.SentVia)),
		EventData: map[string]any{
			"notification_id": notification.ID,
			"type":            string(cmd.Type),
			"delivery_status": notification.DeliveryStatus,
		},
		Actor:     optionalString(strings.TrimSpace(cmd.ActorID)),
		CreatedAt: now,
	}
	if err := s.timeline.Append(ctx, entry); err != nil {
		s.logger(ctx, "notification.timeline.failed", map[string]any{
			"notification": notification.ID,
			"order":        order.ID,
			"error":        err.Error(),
		})
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        notificationEventSent,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ActorID:     cmd.ActorID,
		OccurredAt:  now,
		Metadata: map[string]any{
			"notification_id": notification.ID,
			"delivery_status": notification.DeliveryStatus,
		},
	})

	if failed := result.FailedChannels(); len(failed) > 0 {
		return notification, fmt.Errorf("%w: channels %s", ErrNotificationDispatch, joinChannels(failed))
	}

	return notification, nil
}

func (s *notificationService) CaptureCustomerResponse(ctx context.Context, cmd CaptureResponseCommand) error {
	notificationID := strings.TrimSpace(cmd.NotificationID)
	response := strings.TrimSpace(cmd.Response)

	if notificationID == "" {
		return fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}
	if response == "" {
		return fmt.Errorf("%w: response is required", ErrNotificationInvalidInput)
	}

	if err := s.notifications.SetCustomerResponse(ctx, notificationID, response, s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *notificationService) ListByOrder(ctx context.Context, orderID string) ([]OrderNotification, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}

	notifications, err := s.notifications.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return notifications, nil
}

func summariseDelivery(result DispatchResult) string {
	sent := len(result.SentChannels())
	switch {
	case sent == len(result.Statuses) && sent > 0:
		return deliveryStatusSent
	case sent > 0:
		return deliveryStatusPartial
	default:
		return deliveryStatusFailed
	}
}

func joinChannels(channels []Channel) string {
	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, string(ch))
	}
	return strings.Join(parts, ", ")
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *notificationService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "notification.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
