package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/rental-billing/internal/domain/balance"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/rental"
	"github.com/xenking/rental-billing/internal/handler"
	"github.com/xenking/rental-billing/internal/jobs"
	"github.com/xenking/rental-billing/pkg/health"
	"github.com/xenking/rental-billing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the scheduler, and
// handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	st, err := openStores(ctx, lg, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.close()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage.Driver, 5*time.Second, st.ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Domain services.
	reconciler := balance.NewReconciler(st.rentals, st.payments, st.customers)
	rentalService, err := rental.NewService(
		st.rentals, st.products, st.customers, st.cars, st.payments, reconciler,
		rental.WithMeterProvider(m.MeterProvider()),
		rental.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create rental service")
	}
	paymentService := payment.NewService(st.payments, st.customers, rentalService, reconciler)

	// Scheduled jobs.
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(zctx.Base(ctx, lg.Named("jobs")), rentalService, cfg.Jobs.RefreshTimeout)
		if err := scheduler.Register(cfg.Jobs.RefreshSchedule); err != nil {
			return err
		}
		scheduler.Start()
		lg.Info("Scheduler started", zap.String("refresh_schedule", cfg.Jobs.RefreshSchedule))
	}

	// Router: health endpoints + API routes on one server.
	router := mux.NewRouter()
	router.HandleFunc("/livez", healthSvc.LiveEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthSvc.ReadyEndpoint).Methods(http.MethodGet)
	handler.NewHandler(rentalService, paymentService, reconciler).Register(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("rental-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		if scheduler != nil {
			scheduler.Stop()
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
