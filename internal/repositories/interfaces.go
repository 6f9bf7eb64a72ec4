package repositories

import (
	"context"
	"time"

	domain "github.com/brandspark/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	NDRs() NDRRepository
	Notifications() NotificationRepository
	Timeline() TimelineRepository
	ReturnPolicies() ReturnPolicyRepository
	Returns() ReturnRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers together with their items.
//
// Update performs a compare-and-swap on the order's Version field and must
// return a conflicting RepositoryError when the stored version differs from
// order.Version; the write increments the version. This is what the lifecycle
// engine's lost-update protection is built on.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// NDRRepository persists non-delivery reports. Reports are never deleted.
type NDRRepository interface {
	Insert(ctx context.Context, ndr domain.NDR) error
	Update(ctx context.Context, ndr domain.NDR) error
	FindByID(ctx context.Context, ndrID string) (domain.NDR, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.NDR, error)
	// ListUnattempted returns pending reports that have not been through
	// auto-resolution yet, in report-id order (ids are time-ordered, so this
	// is creation order). A non-empty afterID resumes past that report.
	ListUnattempted(ctx context.Context, afterID string, limit int) ([]domain.NDR, error)
}

// NotificationRepository persists outbound communication records.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.OrderNotification) error
	FindByID(ctx context.Context, notificationID string) (domain.OrderNotification, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderNotification, error)
	// SetCustomerResponse records the asynchronous customer reply, the only
	// mutation permitted on a notification record.
	SetCustomerResponse(ctx context.Context, notificationID string, response string, at time.Time) error
}

// TimelineRepository appends to the per-order audit log. Entries are immutable.
type TimelineRepository interface {
	Append(ctx context.Context, entry domain.TimelineEntry) error
	ListByOrder(ctx context.Context, orderID string, pager domain.Pagination) (domain.CursorPage[domain.TimelineEntry], error)
}

// ReturnPolicyRepository reads the mostly-static return policy reference data.
type ReturnPolicyRepository interface {
	FindByID(ctx context.Context, policyID string) (domain.ReturnPolicy, error)
	List(ctx context.Context) ([]domain.ReturnPolicy, error)
	Upsert(ctx context.Context, policy domain.ReturnPolicy) error
}

// ReturnRepository persists return records.
type ReturnRepository interface {
	Insert(ctx context.Context, ret domain.Return) error
	FindByID(ctx context.Context, returnID string) (domain.Return, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Return, error)
}

// CounterRepository provides monotonic sequences for human-readable numbering.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises counter behaviour.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository probes the process's backing dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter mirrors the filter predicate surface consumed by list views
// and the export facade. All populated filters are AND-combined; zero values
// match everything.
type OrderListFilter struct {
	// Search matches case-insensitively against customer name, customer
	// email, and tracking number.
	Search         string
	Status         []domain.OrderStatus
	PaymentStatus  []domain.PaymentStatus
	CourierPartner string
	DateRange      domain.RangeQuery[time.Time]
	AmountRange    domain.RangeQuery[int64]
	WithNDRsOnly   bool
	DuplicatesOnly bool
	Pagination     domain.Pagination
}
