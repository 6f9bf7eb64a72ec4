package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/brandspark/api/internal/platform/config"
	"github.com/brandspark/api/internal/repositories"
	"github.com/brandspark/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	NDRs          services.NDRService
	Returns       services.ReturnService
	Notifications services.NotificationService
	Exports       services.ExportService
}

// Deps carries the external collaborators that cannot be derived from the
// repository registry, such as the outbound notification transport.
type Deps struct {
	Registry   repositories.Registry
	Dispatcher services.NotificationDispatcher
	Events     services.OrderEventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
	Clock      func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry and Pub/Sub transports, while tests can supply in-memory fakes.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGenerator := func() string { return ulid.Make().String() }

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Orders:        reg.Orders(),
		Timeline:      reg.Timeline(),
		Dispatcher:    deps.Dispatcher,
		Clock:         clock,
		IDGenerator:   idGenerator,
		Events:        deps.Events,
		Logger:        deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            reg.Orders(),
		Timeline:          reg.Timeline(),
		Counters:          reg.Counters(),
		UnitOfWork:        reg,
		Clock:             clock,
		IDGenerator:       idGenerator,
		Events:            deps.Events,
		Logger:            deps.Logger,
		OrderNumberPrefix: cfg.Orders.NumberPrefix,
		ConflictRetries:   cfg.Orders.ConcurrencyRetry,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	ndrSvc, err := services.NewNDRService(services.NDRServiceDeps{
		NDRs:             reg.NDRs(),
		Orders:           reg.Orders(),
		Timeline:         reg.Timeline(),
		UnitOfWork:       reg,
		Notifications:    notificationSvc,
		Clock:            clock,
		IDGenerator:      idGenerator,
		Events:           deps.Events,
		Logger:           deps.Logger,
		AutoResolveLimit: cfg.Orders.AutoResolveLimit,
		ConflictRetries:  cfg.Orders.ConcurrencyRetry,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build ndr service: %w", err)
	}
	svc.NDRs = ndrSvc

	returnSvc, err := services.NewReturnService(services.ReturnServiceDeps{
		Returns:         reg.Returns(),
		Policies:        reg.ReturnPolicies(),
		Orders:          reg.Orders(),
		Timeline:        reg.Timeline(),
		UnitOfWork:      reg,
		Notifications:   notificationSvc,
		Clock:           clock,
		IDGenerator:     idGenerator,
		Events:          deps.Events,
		Logger:          deps.Logger,
		DefaultPolicyID: cfg.Orders.DefaultPolicyID,
		WindowDays:      cfg.Orders.ReturnWindowDays,
		ConflictRetries: cfg.Orders.ConcurrencyRetry,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returnSvc

	exportSvc, err := services.NewExportService(services.ExportServiceDeps{
		Orders: reg.Orders(),
		NDRs:   reg.NDRs(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build export service: %w", err)
	}
	svc.Exports = exportSvc

	return svc, nil
}
