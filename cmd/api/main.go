package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GO-Commerce-Platform/fulfillment/internal/app"
	"github.com/GO-Commerce-Platform/fulfillment/internal/clock"
	"github.com/GO-Commerce-Platform/fulfillment/internal/config"
	"github.com/GO-Commerce-Platform/fulfillment/internal/eventbus"
	"github.com/GO-Commerce-Platform/fulfillment/internal/storage/postgres"
	transporthttp "github.com/GO-Commerce-Platform/fulfillment/internal/transport/http"
	"github.com/GO-Commerce-Platform/fulfillment/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "fulfillment-api").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	var events *eventbus.Publisher
	if cfg.AMQPURL != "" {
		events, err = eventbus.NewPublisher(cfg.AMQPURL, cfg.EventsTopic, cfg.ConfirmTotal, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to event bus")
		}
		defer events.Close()
	} else {
		logger.Warn().Msg("AMQP_URL not set, event publishing disabled")
	}

	clk := clock.NewSystem()

	stockRepo := postgres.NewStockRepository(pool)
	stockSvc := app.NewStockService(stockRepo, clk, events, logger)

	reservationRepo := postgres.NewReservationRepository(pool)
	reservationSvc := app.NewReservationService(reservationRepo, clk,
		app.WithReservationTTL(cfg.ReservationTTL()))

	cartRepo := postgres.NewCartRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	fulfillmentSvc := app.NewFulfillmentService(
		cartRepo, catalogRepo, stockSvc, reservationSvc, orderRepo, events, clk, logger)
	orderSvc := app.NewOrderService(orderRepo, stockSvc, clk, logger)
	refundSvc := app.NewRefundService(postgres.NewRefundRepository(pool), clk)

	sweeper := app.NewSweeper(reservationSvc, cfg.SweepInterval(), cfg.SweepBatchLimit, logger)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweeper.Run(sweepCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/orders", transporthttp.HandleCreateOrder(fulfillmentSvc))
	mux.Handle("/orders/", transporthttp.HandleOrderActions(orderSvc))
	mux.Handle("/refunds", transporthttp.HandleCreateRefund(refundSvc))
	mux.Handle("/products/", transporthttp.HandleAvailability(availabilityReader{stockSvc, reservationSvc}))
	mux.Handle("/admin/products", transporthttp.HandleProducts(catalogRepo))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOriginList(), mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	logger.Info().Str("port", cfg.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	stopSweep()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}

// availabilityReader pairs stock availability with the reservation total for
// the availability endpoint.
type availabilityReader struct {
	stock        *app.StockService
	reservations *app.ReservationService
}

func (a availabilityReader) Availability(ctx context.Context, storeID, productID string) (int, error) {
	return a.stock.Availability(ctx, storeID, productID)
}

func (a availabilityReader) TotalReserved(ctx context.Context, storeID, productID string) (int, error) {
	return a.reservations.TotalReserved(ctx, storeID, productID)
}
