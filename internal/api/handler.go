package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/internal/apperr"
	"frontdesk-backend/internal/mw"
	"frontdesk-backend/internal/stay"
	"frontdesk-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine       *stay.Engine
	store        store.Store
	reservations ReservationInvalidator
	payments     PaymentLister
	webpush      *webpush.Options
	log          logrus.FieldLogger
}

// NewHandler creates a new API handler. The store backs push subscriptions
// and the room and reservation imports; it may be nil when those routes are
// not mounted.
func NewHandler(engine *stay.Engine, s store.Store, webpushOptions *webpush.Options, log logrus.FieldLogger) *Handler {
	return &Handler{
		engine:  engine,
		store:   s,
		webpush: webpushOptions,
		log:     log,
	}
}

func actor(c *gin.Context) string {
	return c.GetString(mw.OperatorKey)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindGuard:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{"module": "api", "path": c.FullPath(), "code": apperr.CodeOf(err)}).Error(err.Error())
	}
	body := gin.H{"error": err.Error()}
	if code := apperr.CodeOf(err); code != "" {
		body["code"] = code
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidRequest"})
}
