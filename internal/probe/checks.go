package probe

import (
	"context"
	"fmt"

	"opswatch/internal/upstream"
)

// Metric names contributed by the default checks.
const (
	MetricCatalogItems       = "catalog_items"
	MetricOpenOrders         = "open_orders"
	MetricReadyWithoutDriver = "ready_without_driver"
	MetricActiveRiders       = "active_riders"
	MetricOrdersToday        = "orders_today"
)

// Outcome is what a successful check reports besides its timing.
type Outcome struct {
	Metrics map[string]float64
	Detail  string
}

// Check is one named, read-only probe.
type Check struct {
	ID     string
	Title  string
	Target string
	Run    func(ctx context.Context) (Outcome, error)
}

// Source is the slice of the upstream client the default checks call.
type Source interface {
	Endpoint(path string) string
	Paths() upstream.Options
	Health(ctx context.Context) error
	Products(ctx context.Context) ([]upstream.Product, error)
	Orders(ctx context.Context) ([]upstream.Order, error)
	Riders(ctx context.Context) ([]upstream.Rider, error)
	Digest(ctx context.Context) (upstream.Digest, error)
}

// DefaultChecks returns the five standard probes against src.
func DefaultChecks(src Source) []Check {
	paths := src.Paths()
	return []Check{
		{
			ID:     "health",
			Title:  "API health",
			Target: src.Endpoint(paths.HealthPath),
			Run: func(ctx context.Context) (Outcome, error) {
				return Outcome{}, src.Health(ctx)
			},
		},
		{
			ID:     "catalog",
			Title:  "Catalog listing",
			Target: src.Endpoint(paths.ProductsPath),
			Run: func(ctx context.Context) (Outcome, error) {
				products, err := src.Products(ctx)
				if err != nil {
					return Outcome{}, err
				}
				n := float64(len(products))
				return Outcome{
					Metrics: map[string]float64{MetricCatalogItems: n},
					Detail:  fmt.Sprintf("%d items", len(products)),
				}, nil
			},
		},
		{
			ID:     "orders",
			Title:  "Admin order listing",
			Target: src.Endpoint(paths.OrdersPath),
			Run: func(ctx context.Context) (Outcome, error) {
				orders, err := src.Orders(ctx)
				if err != nil {
					return Outcome{}, err
				}
				var open, ready float64
				for _, o := range orders {
					if o.Open() {
						open++
					}
					if o.ReadyWithoutDriver() {
						ready++
					}
				}
				return Outcome{
					Metrics: map[string]float64{MetricOpenOrders: open, MetricReadyWithoutDriver: ready},
					Detail:  fmt.Sprintf("%.0f open, %.0f ready without driver", open, ready),
				}, nil
			},
		},
		{
			ID:     "riders",
			Title:  "Active riders",
			Target: src.Endpoint(paths.RidersPath),
			Run: func(ctx context.Context) (Outcome, error) {
				riders, err := src.Riders(ctx)
				if err != nil {
					return Outcome{}, err
				}
				var active float64
				for _, r := range riders {
					if r.Active {
						active++
					}
				}
				return Outcome{
					Metrics: map[string]float64{MetricActiveRiders: active},
					Detail:  fmt.Sprintf("%.0f of %d active", active, len(riders)),
				}, nil
			},
		},
		{
			ID:     "digest",
			Title:  "KPI digest",
			Target: src.Endpoint(paths.DigestPath),
			Run: func(ctx context.Context) (Outcome, error) {
				d, err := src.Digest(ctx)
				if err != nil {
					return Outcome{}, err
				}
				return Outcome{
					Metrics: map[string]float64{MetricOrdersToday: d.OrdersToday},
					Detail:  fmt.Sprintf("%.0f orders today", d.OrdersToday),
				}, nil
			},
		},
	}
}
