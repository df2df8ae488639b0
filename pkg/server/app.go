package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PriceAgent/internal/usecase"
	"PriceAgent/pkg/config"
	xhttp "PriceAgent/pkg/http"
	pkgkafka "PriceAgent/pkg/kafka"
	applogger "PriceAgent/pkg/logger"
)

// App owns the agent, the HTTP server and the optional command consumer.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	agent      *usecase.Agent
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	commands   pkgkafka.MessageHandler
}

// New creates a new App instance with all dependencies. consumer may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	agent *usecase.Agent,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	commands pkgkafka.MessageHandler,
) *App {
	return &App{
		cfg:        cfg,
		l:          l.Component("app"),
		agent:      agent,
		httpServer: httpServer,
		consumer:   consumer,
		commands:   commands,
	}
}

// Run starts everything and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches the agent, the consumer and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if err := a.agent.Start(ctx); err != nil {
		a.l.Error("agent start error", applogger.Error(err))
		return err
	}

	if a.consumer != nil && a.commands != nil {
		a.consumer.RegisterHandler(a.commands)
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("application started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("store", a.cfg.Store.Type),
		applogger.String("model", a.cfg.Model.Type),
		applogger.Int("port", a.cfg.Server.Port),
	)
	return nil
}

// Shutdown stops intake first, then waits for an in-flight training cycle
// up to the shutdown timeout.
func (a *App) Shutdown(ctx context.Context) error {
	a.l.Info("shutting down")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.agent.Stop()
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.agent.Wait(waitCtx); err != nil {
		a.l.Warn("training still in flight at exit", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}
