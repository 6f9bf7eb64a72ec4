package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brandspark/api/internal/domain"
	pfirestore "github.com/brandspark/api/internal/platform/firestore"
	"github.com/brandspark/api/internal/repositories"
)

const notificationsCollection = "order_notifications"

type channelStatusDocument struct {
	Channel string `firestore:"channel"`
	Sent    bool   `firestore:"sent"`
	Error   string `firestore:"error,omitempty"`
}

type notificationDocument struct {
	OrderID          string                  `firestore:"orderId"`
	Type             string                  `firestore:"type"`
	Message          string                  `firestore:"message"`
	SentVia          []string                `firestore:"sentVia"`
	ChannelStatuses  []channelStatusDocument `firestore:"channelStatuses"`
	DeliveryStatus   string                  `firestore:"deliveryStatus"`
	CustomerResponse *string                 `firestore:"customerResponse,omitempty"`
	SentAt           time.Time               `firestore:"sentAt"`
}

// NotificationRepository persists outbound communication records.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{base: base}, nil
}

// Insert creates the notification record.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.OrderNotification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification id is required")
	}

	_, err := r.base.Create(ctx, notification.ID, fromDomainNotification(notification))
	return err
}

// FindByID loads the notification by id.
func (r *NotificationRepository) FindByID(ctx context.Context, notificationID string) (domain.OrderNotification, error) {
	if r == nil || r.base == nil {
		return domain.OrderNotification{}, errors.New("notification repository not initialised")
	}

	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return domain.OrderNotification{}, err
	}
	return toDomainNotification(doc.ID, doc.Data), nil
}

// ListByOrder returns all notifications for the order, newest first.
func (r *NotificationRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderNotification, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("notification repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("orderId", "==", strings.TrimSpace(orderID)).
			OrderBy("sentAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.OrderNotification, 0, len(docs))
	for _, doc := range docs {
		notifications = append(notifications, toDomainNotification(doc.ID, doc.Data))
	}
	return notifications, nil
}

// SetCustomerResponse records the asynchronous customer reply on the record.
func (r *NotificationRepository) SetCustomerResponse(ctx context.Context, notificationID string, response string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}

	_, err := r.base.Update(ctx, notificationID, []firestore.Update{
		{Path: "customerResponse", Value: response},
		{Path: "customerRespondedAt", Value: at.UTC()},
	})
	return err
}

func fromDomainNotification(notification domain.OrderNotification) notificationDocument {
	doc := notificationDocument{
		OrderID:          notification.OrderID,
		Type:             string(notification.Type),
		Message:          notification.Message,
		DeliveryStatus:   notification.DeliveryStatus,
		CustomerResponse: notification.CustomerResponse,
		SentAt:           notification.SentAt,
	}
	for _, ch := range notification.SentVia {
		doc.SentVia = append(doc.SentVia, string(ch))
	}
	for _, st := range notification.ChannelStatuses {
		doc.ChannelStatuses = append(doc.ChannelStatuses, channelStatusDocument{
			Channel: string(st.Channel),
			Sent:    st.Sent,
			Error:   st.Error,
		})
	}
	return doc
}

func toDomainNotification(id string, doc notificationDocument) domain.OrderNotification {
	notification := domain.OrderNotification{
		ID:               id,
		OrderID:          doc.OrderID,
		Type:             domain.NotificationType(doc.Type),
		Message:          doc.Message,
		DeliveryStatus:   doc.DeliveryStatus,
		CustomerResponse: doc.CustomerResponse,
		SentAt:           doc.SentAt,
	}
	for _, ch := range doc.SentVia {
		notification.SentVia = append(notification.SentVia, domain.Channel(ch))
	}
	for _, st := range doc.ChannelStatuses {
		notification.ChannelStatuses = append(notification.ChannelStatuses, domain.ChannelStatus{
			Channel: domain.Channel(st.Channel),
			Sent:    st.Sent,
			Error:   st.Error,
		})
	}
	return notification
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
