package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carpool/internal/domain"
	"carpool/internal/handler"
	"carpool/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TripHandler         *handler.TripHandler
	ReservationHandler  *handler.ReservationHandler
	PaymentHandler      *handler.PaymentHandler
	NotificationHandler *handler.NotificationHandler
	WebhookHandler      *handler.WebhookHandler
	WSHandler           *handler.WSHandler
	JWTSecret           []byte
	AllowOrigins        []string
	Replays             middleware.ReplayStore
	NewRelicApp         *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(corsConfig(deps.AllowOrigins)))
	router.Use(middleware.Metrics())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stripe authenticates webhooks by signature, not by bearer token.
	router.POST("/v1/webhooks/stripe", deps.WebhookHandler.Stripe)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(deps.JWTSecret))
	if deps.Replays != nil {
		v1.Use(middleware.IdempotencyMiddleware(deps.Replays))
	}
	{
		v1.GET("/ws", deps.WSHandler.Connect)

		// Trip routes.
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("", deps.TripHandler.ListTrips)
			trips.GET("/search", deps.TripHandler.SearchTrips)
			trips.GET("/popular", deps.TripHandler.PopularTrips)
			trips.GET("/driver", deps.TripHandler.ListDriverTrips)
			trips.GET("/passenger", deps.TripHandler.ListPassengerTrips)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.PATCH("/:id", deps.TripHandler.UpdateTrip)
			trips.DELETE("/:id", deps.TripHandler.RemoveTrip)
			trips.POST("/:id/join", deps.TripHandler.JoinTrip)
			trips.POST("/:id/leave", deps.TripHandler.LeaveTrip)
			trips.PATCH("/:id/confirm", deps.TripHandler.UpdateStatus(domain.TripStatusConfirmed))
			trips.PATCH("/:id/start", deps.TripHandler.UpdateStatus(domain.TripStatusInProgress))
			trips.PATCH("/:id/complete", deps.TripHandler.UpdateStatus(domain.TripStatusCompleted))
			trips.PATCH("/:id/cancel", deps.TripHandler.UpdateStatus(domain.TripStatusCancelled))
			trips.GET("/:id/reservations", deps.ReservationHandler.ListTripReservations)
		}

		// Reservation routes.
		reservations := v1.Group("/reservations")
		{
			reservations.GET("/mine", deps.ReservationHandler.ListMine)
			reservations.GET("/:id", deps.ReservationHandler.GetReservation)
			reservations.GET("/:id/payment", deps.ReservationHandler.GetPayment)
		}

		// Payment routes.
		payments := v1.Group("/payments")
		{
			payments.GET("/mine", deps.PaymentHandler.ListMine)
			payments.GET("/:id", deps.PaymentHandler.GetPayment)
			payments.POST("/:id/intent", deps.PaymentHandler.CreateIntent)
		}

		// Notification routes.
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", deps.NotificationHandler.List)
			notifications.GET("/recent", deps.NotificationHandler.Recent)
			notifications.GET("/unread-count", deps.NotificationHandler.UnreadCount)
			notifications.PATCH("/:id/read", deps.NotificationHandler.MarkRead)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "Idempotency-Key")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
