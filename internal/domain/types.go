package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed but not yet confirmed by the seller.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the seller accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being picked and packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order was handed to a courier. Requires a tracking number.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the courier confirmed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusReturnRequested indicates the customer opened a return after delivery.
	OrderStatusReturnRequested OrderStatus = "return_requested"
	// OrderStatusReturned indicates the returned shipment reached the seller.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates the payment machine, which evolves independently of OrderStatus.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not been captured yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway captured the full amount.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the capture attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the full amount was returned to the customer.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusPartiallyRefunded indicates a partial amount was returned.
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Address is a structured shipping destination.
type Address struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Order is one customer purchase. Orders are append-only: cancellation is a
// status value, never a deletion. All monetary amounts are in minor units.
type Order struct {
	ID               string
	OrderNumber      string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	ShippingAddress  *Address
	TotalAmount      int64
	ShippingAmount   int64
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	TrackingNumber   *string
	CourierPartner   *string
	Source           string
	Priority         int
	DeliveryAttempts int
	NDRCount         int
	IsDuplicate      bool
	DuplicateOf      *string
	ExpectedDelivery *time.Time
	DeliveredAt      *time.Time
	CancelReason     *string
	Items            []OrderItem
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem is owned exclusively by one order. TotalPrice always equals
// Quantity multiplied by UnitPrice.
type OrderItem struct {
	ID         string
	OrderID    string
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  int64
	TotalPrice int64
}

// NDRResolutionStatus tracks whether a non-delivery report still needs attention.
type NDRResolutionStatus string

const (
	// NDRResolutionPending indicates the report awaits a resolving action.
	NDRResolutionPending NDRResolutionStatus = "pending"
	// NDRResolutionResolved indicates a resolving action was recorded.
	NDRResolutionResolved NDRResolutionStatus = "resolved"
)

// NDR records one failed delivery attempt for an order. NDRs are never deleted;
// ResolvedAt is set exactly when ResolutionStatus is resolved.
type NDR struct {
	ID                      string
	OrderID                 string
	Reason                  string
	CustomerResponse        *string
	ResolutionStatus        NDRResolutionStatus
	NextAction              string
	AutoResolutionAttempted bool
	CreatedAt               time.Time
	ResolvedAt              *time.Time
}

// NotificationType categorises outbound customer communications.
type NotificationType string

const (
	// NotificationTypeDelay informs the customer about a delayed delivery.
	NotificationTypeDelay NotificationType = "delay"
	// NotificationTypeNDR follows up on a failed delivery attempt.
	NotificationTypeNDR NotificationType = "ndr"
	// NotificationTypeDelivery confirms a completed delivery.
	NotificationTypeDelivery NotificationType = "delivery"
	// NotificationTypeOther covers all remaining communications.
	NotificationTypeOther NotificationType = "other"
)

// Channel identifies a customer communication channel.
type Channel string

const (
	// ChannelEmail delivers via email.
	ChannelEmail Channel = "email"
	// ChannelSMS delivers via SMS.
	ChannelSMS Channel = "sms"
	// ChannelWhatsApp delivers via WhatsApp.
	ChannelWhatsApp Channel = "whatsapp"
)

// ChannelStatus reports the per-channel outcome of one dispatch.
type ChannelStatus struct {
	Channel Channel
	Sent    bool
	Error   string
}

// OrderNotification records one outbound customer communication. The record is
// immutable after creation except for the asynchronous CustomerResponse.
type OrderNotification struct {
	ID               string
	OrderID          string
	Type             NotificationType
	Message          string
	SentVia          []Channel
	ChannelStatuses  []ChannelStatus
	DeliveryStatus   string
	CustomerResponse *string
	SentAt           time.Time
}

// TimelineEntry is one record of the append-only per-order audit log. Entries
// are never mutated or deleted.
type TimelineEntry struct {
	ID          string
	OrderID     string
	EventType   string
	Description string
	EventData   map[string]any
	Actor       *string
	CreatedAt   time.Time
}

// ReturnPolicy is a named, reusable ruleset governing return handling. The
// return evaluator treats policies as immutable inputs.
type ReturnPolicy struct {
	ID                 string
	Name               string
	WindowDays         int
	AutoApprove        bool
	RequireQC          bool
	RefundPercentage   int
	ShippingRefundable bool
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReturnStatus enumerates the states of a return record.
type ReturnStatus string

const (
	// ReturnStatusRequested indicates the return was opened and awaits review.
	ReturnStatusRequested ReturnStatus = "requested"
	// ReturnStatusApproved indicates the return was approved for refund.
	ReturnStatusApproved ReturnStatus = "approved"
)

// QCStatus enumerates quality-check states for returned items.
type QCStatus string

const (
	// QCStatusPending indicates the returned item awaits inspection.
	QCStatusPending QCStatus = "pending"
	// QCStatusNotRequired indicates the policy waived inspection.
	QCStatusNotRequired QCStatus = "not_required"
)

// Return references one order and the policy it was evaluated against.
type Return struct {
	ID           string
	OrderID      string
	PolicyID     string
	Reason       string
	Status       ReturnStatus
	QCStatus     QCStatus
	RefundAmount int64
	CreatedAt    time.Time
}

// ValidOrderStatus reports whether the value is a recognised order status.
// Unrecognised values are rejected by the lifecycle engine, not coerced.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusReturnRequested,
		OrderStatusReturned, OrderStatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether the value is a recognised payment status.
func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

// TerminalOrderStatus reports whether no further lifecycle transitions are allowed.
func TerminalOrderStatus(s OrderStatus) bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusReturned
}
