package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nkosimano/ChartedArt-sub003/internal/app"
	"github.com/nkosimano/ChartedArt-sub003/internal/clock"
	"github.com/nkosimano/ChartedArt-sub003/internal/config"
	"github.com/nkosimano/ChartedArt-sub003/internal/payments"
	"github.com/nkosimano/ChartedArt-sub003/internal/storage/postgres"
	transporthttp "github.com/nkosimano/ChartedArt-sub003/internal/transport/http"
	"github.com/nkosimano/ChartedArt-sub003/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, payment intents will fail")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook signatures will be rejected")
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Error("db ping", "error", err)
		os.Exit(1)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	clk := clock.NewSystem()
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey)
	verifier := payments.NewStripeVerifier(cfg.StripeWebhookSecret)

	pieceRepo := postgres.NewPieceRepository(pool)
	purchaseRepo := postgres.NewPurchaseRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	donationRepo := postgres.NewDonationRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	eventRepo := postgres.NewWebhookEventRepository(pool)

	reservationSvc := app.NewReservationService(pieceRepo, clk,
		app.WithReservationTTL(cfg.ReservationTTL))
	paymentSvc := app.NewPaymentService(pieceRepo, purchaseRepo, orderRepo, donationRepo, gateway, clk,
		app.WithMaxCharge(cfg.MaxChargeCents))
	finalizeSvc := app.NewFinalizeService(pieceRepo, purchaseRepo, gateway, clk)
	webhookSvc := app.NewWebhookService(eventRepo, purchaseRepo, orderRepo, donationRepo, pieceRepo, clk, logger)
	catalogSvc := app.NewCatalogService(catalogRepo, clk)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/pieces/", transporthttp.HandlePieces(reservationSvc, paymentSvc, finalizeSvc))
	mux.Handle("/orders", transporthttp.HandleOrders(paymentSvc))
	mux.Handle("/donations", transporthttp.HandleDonations(paymentSvc))
	mux.Handle("/webhooks/payment", transporthttp.HandleWebhook(verifier, webhookSvc, logger))
	mux.Handle("/admin/movements", transporthttp.HandleAdminMovements(catalogSvc))
	mux.Handle("/admin/movements/", transporthttp.HandleAdminPieces(catalogSvc))
	mux.Handle("/admin/products", transporthttp.HandleAdminProducts(catalogSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SweepInterval > 0 {
		go runSweeper(stopCtx, reservationSvc, cfg.SweepInterval, logger)
	}

	logger.Info("api listening", "port", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// runSweeper periodically clears expired claims so the partial index over
// reserved pieces stays small. Claim correctness does not depend on it.
func runSweeper(ctx context.Context, svc *app.ReservationService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepExpired(ctx)
			if err != nil {
				logger.Warn("sweep expired reservations", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("swept expired reservations", "count", n)
			}
		}
	}
}
