package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/brandspark/api/internal/platform/firestore"
	"github.com/brandspark/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the accessor
// surface consumed by the service layer. RunInTx groups repository calls in a
// single Firestore transaction; repositories join it through the context.
type Registry struct {
	provider *pfirestore.Provider

	orders         *OrderRepository
	ndrs           *NDRRepository
	notifications  *NotificationRepository
	timeline       *TimelineRepository
	returnPolicies *ReturnPolicyRepository
	returns        *ReturnRepository
	counters       *CounterRepository
	health         repositories.HealthRepository
}

// NewRegistry constructs every repository against the shared provider. The
// health repository is injected because its probe set spans dependencies the
// registry does not own.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if health == nil {
		return nil, errors.New("registry requires health repository")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	ndrs, err := NewNDRRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	timeline, err := NewTimelineRepository(provider)
	if err != nil {
		return nil, err
	}
	returnPolicies, err := NewReturnPolicyRepository(provider)
	if err != nil {
		return nil, err
	}
	returns, err := NewReturnRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:       provider,
		orders:         orders,
		ndrs:           ndrs,
		notifications:  notifications,
		timeline:       timeline,
		returnPolicies: returnPolicies,
		returns:        returns,
		counters:       counters,
		health:         health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction. The transaction handle
// travels via the context so nested repository calls attach to it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTx(txCtx, tx))
	})
}

func (r *Registry) Orders() repositories.OrderRepository                 { return r.orders }
func (r *Registry) NDRs() repositories.NDRRepository                     { return r.ndrs }
func (r *Registry) Notifications() repositories.NotificationRepository   { return r.notifications }
func (r *Registry) Timeline() repositories.TimelineRepository            { return r.timeline }
func (r *Registry) ReturnPolicies() repositories.ReturnPolicyRepository  { return r.returnPolicies }
func (r *Registry) Returns() repositories.ReturnRepository               { return r.returns }
func (r *Registry) Counters() repositories.CounterRepository             { return r.counters }
func (r *Registry) Health() repositories.HealthRepository                { return r.health }

var _ repositories.Registry = (*Registry)(nil)
