package services

import (
	"context"
	"io"
	"time"

	domain "github.com/brandspark/api/internal/domain"
	"github.com/brandspark/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination        = domain.Pagination
	Order             = domain.Order
	OrderItem         = domain.OrderItem
	OrderStatus       = domain.OrderStatus
	PaymentStatus     = domain.PaymentStatus
	Address           = domain.Address
	NDR               = domain.NDR
	NDRSeverity       = domain.NDRSeverity
	OrderNotification = domain.OrderNotification
	NotificationType  = domain.NotificationType
	Channel           = domain.Channel
	ChannelStatus     = domain.ChannelStatus
	TimelineEntry     = domain.TimelineEntry
	ReturnPolicy      = domain.ReturnPolicy
	Return            = domain.Return
)

// OrderListFilter mirrors the repository filter surface consumed by list views and exports.
type OrderListFilter = repositories.OrderListFilter

// OrderService owns the order lifecycle: status, payment, and tracking
// transitions, bulk updates, intake, and duplicate flagging. Every mutation
// appends exactly one timeline entry.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListTimeline(ctx context.Context, orderID string, pager Pagination) (domain.CursorPage[TimelineEntry], error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
	UpdateTrackingInfo(ctx context.Context, cmd UpdateTrackingCommand) (Order, error)
	BulkUpdateStatus(ctx context.Context, cmd BulkUpdateStatusCommand) (BulkUpdateResult, error)
	FlagDuplicate(ctx context.Context, cmd FlagDuplicateCommand) (Order, error)
}

// NDRService tracks failed delivery attempts and routes them to manual or
// automatic resolution.
type NDRService interface {
	RecordNDR(ctx context.Context, cmd RecordNDRCommand) (NDR, error)
	GetNDR(ctx context.Context, ndrID string) (NDR, error)
	ListByOrder(ctx context.Context, orderID string) ([]NDR, error)
	ResolveNDR(ctx context.Context, cmd ResolveNDRCommand) (NDR, error)
	AutoResolveNDRs(ctx context.Context) (AutoResolveResult, error)
}

// ReturnService evaluates return requests against return policies.
type ReturnService interface {
	ProcessReturnRequest(ctx context.Context, cmd ReturnRequestCommand) (Return, error)
	GetReturn(ctx context.Context, returnID string) (Return, error)
	ListByOrder(ctx context.Context, orderID string) ([]Return, error)
	ListPolicies(ctx context.Context) ([]ReturnPolicy, error)
}

// ExportService flattens orders and NDRs into delimited tabular exports.
// Read-only; no mutation.
type ExportService interface {
	ExportOrders(ctx context.Context, w io.Writer, filter OrderListFilter, fields []string) error
	ExportNDRs(ctx context.Context, w io.Writer, filter OrderListFilter) error
}

// NotificationService sends customer communications through the dispatcher and
// records one immutable notification per dispatch.
type NotificationService interface {
	Send(ctx context.Context, cmd SendNotificationCommand) (OrderNotification, error)
	CaptureCustomerResponse(ctx context.Context, cmd CaptureResponseCommand) error
	ListByOrder(ctx context.Context, orderID string) ([]OrderNotification, error)
}

// NotificationDispatcher hands a customer message to the delivery channels.
// Implementations report per-channel success or failure, never just an
// aggregate outcome.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, d Dispatch) (DispatchResult, error)
}

// Dispatch is one outbound message across one or more channels.
type Dispatch struct {
	OrderID  string
	Type     NotificationType
	Message  string
	Channels []Channel
}

// DispatchResult carries the per-channel outcomes of one dispatch.
type DispatchResult struct {
	Statuses []ChannelStatus
}

// SentChannels returns the channels that accepted the message.
func (r DispatchResult) SentChannels() []Channel {
	sent := make([]Channel, 0, len(r.Statuses))
	for _, st := range r.Statuses {
		if st.Sent {
			sent = append(sent, st.Channel)
		}
	}
	return sent
}

// FailedChannels returns the channels that rejected the message.
func (r DispatchResult) FailedChannels() []Channel {
	failed := make([]Channel, 0, len(r.Statuses))
	for _, st := range r.Statuses {
		if !st.Sent {
			failed = append(failed, st.Channel)
		}
	}
	return failed
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand is the intake payload for orders arriving from sales
// channels or imports. Item totals are computed by the service.
type CreateOrderCommand struct {
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	ShippingAddress  *Address
	ShippingAmount   int64
	Source           string
	Priority         int
	ExpectedDelivery *time.Time
	Items            []CreateOrderItem
	ActorID          string
}

// CreateOrderItem is one order line at intake.
type CreateOrderItem struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  int64
}

type UpdateStatusCommand struct {
	OrderID        string
	NewStatus      OrderStatus
	TrackingNumber *string
	CourierPartner *string
	Reason         string
	ActorID        string
}

type UpdatePaymentStatusCommand struct {
	OrderID          string
	NewPaymentStatus PaymentStatus
	ActorID          string
}

type UpdateTrackingCommand struct {
	OrderID        string
	TrackingNumber string
	CourierPartner string
	ActorID        string
}

type BulkUpdateStatusCommand struct {
	OrderIDs  []string
	NewStatus OrderStatus
	ActorID   string
}

// BulkUpdateResult reports per-item outcomes of a bulk status update. Failures
// never abort the batch and successes are never rolled back.
type BulkUpdateResult struct {
	Succeeded int
	Failed    []BulkUpdateFailure
}

// BulkUpdateFailure names one order that could not be updated and why.
type BulkUpdateFailure struct {
	OrderID string
	Reason  string
}

type FlagDuplicateCommand struct {
	OrderID     string
	DuplicateOf string
	ActorID     string
}

type RecordNDRCommand struct {
	OrderID          string
	Reason           string
	CustomerResponse *string
	ActorID          string
}

type ResolveNDRCommand struct {
	NDRID            string
	ResolutionAction string
	CustomerResponse *string
	ActorID          string
}

// AutoResolveResult summarises one auto-resolution sweep. Skipped counts
// reports with reasons outside the known taxonomy, which stay pending and
// unattempted for a human to handle.
type AutoResolveResult struct {
	Processed int
	Skipped   int
	Failed    []AutoResolveFailure
}

// AutoResolveFailure names one report whose notification dispatch failed. The
// report itself keeps its attempted marker and recommended action.
type AutoResolveFailure struct {
	NDRID  string
	Reason string
}

type ReturnRequestCommand struct {
	OrderID  string
	Reason   string
	PolicyID string
	ActorID  string
}

type SendNotificationCommand struct {
	OrderID  string
	Type     NotificationType
	Message  string
	Channels []Channel
	ActorID  string
}

type CaptureResponseCommand struct {
	NotificationID string
	Response       string
}
