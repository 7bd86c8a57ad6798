package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rentora/rentora/api"
	"github.com/rentora/rentora/config"
	"github.com/rentora/rentora/internal/repository"
	"github.com/rentora/rentora/internal/service/booking"
	"github.com/rentora/rentora/internal/service/payments"
)

// Run assembles the HTTP API and blocks until the context is canceled or the
// server fails.
func Run(ctx context.Context, cfg *config.Config, bookingSvc booking.BookingUseCase, reconciler *payments.Reconciler, listings repository.ListingRepository, loc *time.Location, log zerolog.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	root := router.Group("/api")
	api.NewBookingHandler(bookingSvc).Register(root.Group("/bookings"))
	api.NewListingHandler(bookingSvc, listings, loc).Register(root.Group("/listings"))
	api.NewPaymentHandler(reconciler).Register(root.Group("/payments"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("address", cfg.HTTP.Address).Msg("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
