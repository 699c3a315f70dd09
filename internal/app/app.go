package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"opswatch/internal/alerting"
	"opswatch/internal/api"
	"opswatch/internal/config"
	"opswatch/internal/decisionlog"
	"opswatch/internal/metrics"
	"opswatch/internal/service"
	"opswatch/internal/storage"
	"opswatch/internal/upstream"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newClient() *upstream.Client {
	u := a.Config.Upstream
	return upstream.New(upstream.Options{
		BaseURL:      u.BaseURL,
		Token:        u.Token,
		Timeout:      u.Timeout,
		UserAgent:    u.UserAgent,
		HealthPath:   u.HealthPath,
		ProductsPath: u.ProductsPath,
		OrdersPath:   u.OrdersPath,
		RidersPath:   u.RidersPath,
		DigestPath:   u.DigestPath,
	}, a.Logger)
}

// newDispatcher returns nil when alerting is off or no channel is enabled.
func (a *App) newDispatcher() (*alerting.Dispatcher, func()) {
	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return nil, func() {}
	}

	var notifiers []alerting.Notifier
	var kafkaNotifier *alerting.KafkaNotifier
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg.Kafka.Enabled {
		kafkaNotifier = alerting.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		notifiers = append(notifiers, kafkaNotifier)
	}
	if len(notifiers) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
		return nil, func() {}
	}

	d := alerting.NewDispatcher(notifiers, decisionlog.ParseSeverity(cfg.MinSeverity), cfg.Timeout, a.Logger)
	return d, func() {
		d.Wait()
		if kafkaNotifier != nil {
			if err := kafkaNotifier.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close kafka writer")
			}
		}
	}
}

// engine bundles what one command needs.
type engine struct {
	svc     *service.Service
	metrics *metrics.Recorder
	close   func()
}

func (a *App) openEngine(ctx context.Context) (*engine, error) {
	kv, closeStore, err := storage.Open(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, err
	}

	dispatcher, closeDispatcher := a.newDispatcher()
	var listeners []decisionlog.Listener
	if dispatcher != nil {
		listeners = append(listeners, dispatcher.Handle)
	}

	rec := metrics.New()
	svc, err := service.Build(ctx, a.Config, kv, a.newClient(), rec, listeners, a.Logger)
	if err != nil {
		closeDispatcher()
		closeStore()
		return nil, err
	}

	return &engine{
		svc:     svc,
		metrics: rec,
		close: func() {
			svc.Close()
			closeDispatcher()
			closeStore()
		},
	}, nil
}

// Run executes the long-running engine together with its HTTP surface.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	router := api.NewRouter(api.NewHandlers(eng.svc, eng.metrics.Handler(), a.Logger))

	a.Logger.Info().Str("upstream", a.Config.Upstream.BaseURL).
		Dur("interval", a.Config.Scheduler.Interval).
		Str("storage", a.Config.Storage.Backend).
		Msg("starting opswatch engine")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.svc.Run(gctx) })
	g.Go(func() error { return api.Serve(gctx, a.Config.Server.Addr, router, a.Logger) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("opswatch engine stopped")
	return nil
}
