package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/renewtech/api/internal/payments"
	"github.com/renewtech/api/internal/platform/config"
	"github.com/renewtech/api/internal/platform/observability"
	"github.com/renewtech/api/internal/repositories"
	"github.com/renewtech/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Users    services.UserService
	Reviews  services.ReviewService
	Requests services.RequestService
	System   services.SystemService
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	events  services.EventPublisher
	charger payments.Charger
	logger  *zap.Logger
	version string
}

// WithEventPublisher wires the publisher carrying storefront lifecycle events.
func WithEventPublisher(pub services.EventPublisher) Option {
	return func(o *containerOptions) {
		o.events = pub
	}
}

// WithCharger wires the payment provider used for card checkouts.
func WithCharger(charger payments.Charger) Option {
	return func(o *containerOptions) {
		o.charger = charger
	}
}

// WithLogger sets the structured logger used by the services layer.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithVersion stamps the build version onto health reports.
func WithVersion(version string) Option {
	return func(o *containerOptions) {
		o.version = version
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	svc, err := buildServices(cfg, reg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, options containerOptions) (Services, error) {
	var svc Services

	logger := serviceLogger(options.logger)

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: reg.Catalog(),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Catalog:         reg.Catalog(),
		Events:          options.events,
		Clock:           time.Now,
		DefaultCurrency: cfg.Catalog.Currency,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:           reg.Carts(),
		Orders:          reg.Orders(),
		Addresses:       reg.Addresses(),
		Catalog:         reg.Catalog(),
		Users:           reg.Users(),
		Charger:         options.charger,
		Events:          options.events,
		Clock:           time.Now,
		DefaultCurrency: cfg.Catalog.Currency,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders: reg.Orders(),
		Events: options.events,
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:     reg.Users(),
		Addresses: reg.Addresses(),
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews: reg.Reviews(),
		Catalog: reg.Catalog(),
		Clock:   time.Now,
		Logger:  logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	requestSvc, err := services.NewRequestService(services.RequestServiceDeps{
		Services: reg.Services(),
		Requests: reg.ServiceRequests(),
		Users:    reg.Users(),
		Events:   options.events,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build request service: %w", err)
	}
	svc.Requests = requestSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		Health:      reg.Health(),
		Clock:       time.Now,
		Version:     options.version,
		Environment: cfg.Security.Environment,
		StartedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

// serviceLogger adapts the zap logger to the lightweight event logger the
// services accept. Request-scoped loggers from context win over the base one.
func serviceLogger(base *zap.Logger) func(context.Context, string, map[string]any) {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, msg string, fields map[string]any) {
		logger := base
		if scoped := observability.FromContext(ctx); scoped.Core().Enabled(zap.InfoLevel) {
			logger = scoped
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(msg, zapFields...)
	}
}
