package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"device-reservation-backend/internal/booking"
	"device-reservation-backend/internal/mw"
	"device-reservation-backend/internal/store"
	"device-reservation-backend/internal/timeutil"
)

// RouterOptions bundles the tunables for NewRouter.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, svc *booking.Service, n *timeutil.Normalizer, webpushOptions *webpush.Options, opts RouterOptions) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, svc, n, webpushOptions)

	if opts.RateLimitPerSec <= 0 {
		opts.RateLimitPerSec = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 5
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	// Short cache on read endpoints; availability changes on every booking
	// so the TTL stays small.
	cacheStore := cache.New(opts.CacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/devices", caching, handler.ListDevices)
		api.GET("/devices/availability", handler.GetAvailability)

		api.POST("/reservations", handler.CreateReservation)
		api.GET("/reservations", handler.ListReservations)
		api.POST("/reservations/:id/cancel", handler.CancelReservation)
		api.POST("/reservations/:id/start", handler.StartUsage)
		api.POST("/reservations/:id/end", handler.EndUsage)

		api.GET("/usage", handler.ListUsage)
		api.DELETE("/usage/:id", handler.DeleteUsage)
		api.POST("/usage/terminate", handler.TerminateSessions)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
