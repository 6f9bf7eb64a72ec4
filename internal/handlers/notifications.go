package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/platform/auth"
	"github.com/brandspark/api/internal/platform/httpx"
	"github.com/brandspark/api/internal/services"
)

const maxNotificationBodySize = 16 * 1024

var knownChannels = map[domain.Channel]struct{}{
	domain.ChannelEmail:    {},
	domain.ChannelSMS:      {},
	domain.ChannelWhatsApp: {},
}

type sendNotificationRequest struct {
	OrderID  string   `json:"order_id"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Channels []string `json:"channels"`
}

type captureResponseRequest struct {
	Response string `json:"response"`
}

// NotificationHandlers exposes the customer notification endpoints.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs a new NotificationHandlers instance.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes registers the /notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(read chi.Router) {
		if h.authn != nil {
			read.Use(h.authn.RequireFirebaseAuth())
		}
		read.Get("/", h.listNotifications)
	})

	r.Group(func(write chi.Router) {
		if h.authn != nil {
			write.Use(h.authn.RequireFirebaseAuth(roleAdmin, roleOps))
		}
		write.Post("/", h.sendNotification)
		write.Post("/{notificationID}:response", h.captureResponse)
	})
}

func (h *NotificationHandlers) sendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req sendNotificationRequest
	if !decodeJSONBody(ctx, w, r, maxNotificationBodySize, &req) {
		return
	}

	channels := make([]services.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		channel := domain.Channel(strings.ToLower(strings.TrimSpace(raw)))
		if _, known := knownChannels[channel]; !known {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "channels must be email, sms, or whatsapp", http.StatusBadRequest))
			return
		}
		channels = append(channels, channel)
	}

	notification, err := h.notifications.Send(ctx, services.SendNotificationCommand{
		OrderID:  strings.TrimSpace(req.OrderID),
		Type:     services.NotificationType(strings.ToLower(strings.TrimSpace(req.Type))),
		Message:  req.Message,
		Channels: channels,
		ActorID:  actorID,
	})
	if err != nil && !errors.Is(err, services.ErrNotificationDispatch) {
		writeNotificationError(ctx, w, err)
		return
	}

	// Partial delivery still answers with the persisted record so callers can
	// inspect per-channel outcomes.
	status := http.StatusCreated
	if err != nil {
		status = http.StatusAccepted
	}
	writeJSONResponse(w, status, notificationResponse{Notification: buildNotificationPayload(notification)})
}

func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id query parameter is required", http.StatusBadRequest))
		return
	}

	notifications, err := h.notifications.ListByOrder(ctx, orderID)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]notificationPayload, 0, len(notifications))
	for _, notification := range notifications {
		items = append(items, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, notificationListResponse{Items: items})
}

func (h *NotificationHandlers) captureResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}

	var req captureResponseRequest
	if !decodeJSONBody(ctx, w, r, maxNotificationBodySize, &req) {
		return
	}

	err := h.notifications.CaptureCustomerResponse(ctx, services.CaptureResponseCommand{
		NotificationID: notificationID,
		Response:       strings.TrimSpace(req.Response),
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notificationListResponse struct {
	Items []notificationPayload `json:"items"`
}

type notificationResponse struct {
	Notification notificationPayload `json:"notification"`
}

type notificationPayload struct {
	ID               string                 `json:"id"`
	OrderID          string                 `json:"order_id"`
	Type             string                 `json:"type"`
	Message          string                 `json:"message"`
	SentVia          []string               `json:"sent_via,omitempty"`
	ChannelStatuses  []channelStatusPayload `json:"channel_statuses"`
	DeliveryStatus   string                 `json:"delivery_status"`
	CustomerResponse *string                `json:"customer_response,omitempty"`
	SentAt           string                 `json:"sent_at"`
}

type channelStatusPayload struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

func buildNotificationPayload(notification services.OrderNotification) notificationPayload {
	payload := notificationPayload{
		ID:               notification.ID,
		OrderID:          notification.OrderID,
		Type:             string(notification.Type),
		Message:          notification.Message,
		DeliveryStatus:   notification.DeliveryStatus,
		CustomerResponse: cloneStringPointer(notification.CustomerResponse),
		SentAt:           formatTime(notification.SentAt),
	}
	for _, channel := range notification.SentVia {
		payload.SentVia = append(payload.SentVia, string(channel))
	}
	for _, st := range notification.ChannelStatuses {
		payload.ChannelStatuses = append(payload.ChannelStatuses, channelStatusPayload{
			Channel: string(st.Channel),
			Sent:    st.Sent,
			Error:   st.Error,
		})
	}
	return payload
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification or order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNotificationDispatch):
		httpx.WriteError(ctx, w, httpx.NewError("notification_dispatch_failed", "notification could not be delivered", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "failed to process notification request", http.StatusInternalServerError))
	}
}
