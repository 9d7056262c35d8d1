package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"frontdesk-backend/internal/mw"
)

// RouterOptions configures the middleware chain.
type RouterOptions struct {
	OperatorHeader  string
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(h.log))

	if opts.OperatorHeader == "" {
		opts.OperatorHeader = "X-Operator-ID"
	}

	// API group
	api := r.Group("/api")
	api.Use(mw.Operator(opts.OperatorHeader), mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst))
	{
		api.POST("/stays/lookup", h.LookupStay)
		api.POST("/stays/checkout-lookup", h.FindForCheckOut)
		api.GET("/stays/:stay_id", h.GetStay)
		api.POST("/stays/:stay_id/steps", h.AdvanceStay)
		api.GET("/stays/:stay_id/history", h.GetHistory)

		api.GET("/stays/:stay_id/folio", h.GetFolio)
		api.POST("/stays/:stay_id/folio/lines", h.PostLine)
		api.POST("/stays/:stay_id/folio/lines/:line_id/adjustments", h.AdjustLine)
		api.POST("/stays/:stay_id/folio/lines/:line_id/void", h.VoidLine)
		api.GET("/stays/:stay_id/settlement", h.GetSettlement)

		if h.payments != nil {
			api.GET("/stays/:stay_id/payments", h.GetPayments)
		}

		if h.store != nil {
			api.GET("/rooms", h.GetRooms)
			api.PUT("/rooms", h.PutRooms)
			api.PUT("/reservations", h.PutReservations)

			api.GET("/subscriptions", h.GetSubscription)
			api.PUT("/subscriptions", h.PutSubscription)
			api.DELETE("/subscriptions", h.DeleteSubscription)
		}
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
