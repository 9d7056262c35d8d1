package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/internal/folio"
	"frontdesk-backend/internal/model"
	"frontdesk-backend/internal/stay"
)

// ReservationInvalidator drops cached lookups of re-imported bookings.
type ReservationInvalidator interface {
	Invalidate(r stay.Reservation)
}

// PaymentLister lists the payments taken at the desk for a stay.
type PaymentLister interface {
	ForStay(ctx context.Context, stayID string) ([]model.PaymentRecord, error)
}

// WithReservationCache makes reservation imports evict stale cached lookups.
func (h *Handler) WithReservationCache(c ReservationInvalidator) *Handler {
	h.reservations = c
	return h
}

// WithPayments mounts the payment listing of a stay.
func (h *Handler) WithPayments(p PaymentLister) *Handler {
	h.payments = p
	return h
}

type roomRequest struct {
	Number     string `json:"number" binding:"required"`
	Class      string `json:"class" binding:"required"`
	Floor      int    `json:"floor"`
	OutOfOrder bool   `json:"out_of_order"`
}

type roomView struct {
	Number     string     `json:"number"`
	Class      string     `json:"class"`
	Floor      int        `json:"floor"`
	OutOfOrder bool       `json:"out_of_order"`
	HeldBy     string     `json:"held_by,omitempty"`
	HeldAt     *time.Time `json:"held_at,omitempty"`
}

type reservationRequest struct {
	Reference   string          `json:"reference" binding:"required"`
	GuestName   string          `json:"guest_name" binding:"required"`
	GuestPhone  string          `json:"guest_phone"`
	GuestEmail  string          `json:"guest_email" binding:"omitempty,email"`
	RoomClass   string          `json:"room_class" binding:"required"`
	RoomNumber  string          `json:"room_number" binding:"required"`
	CheckIn     time.Time       `json:"check_in" binding:"required"`
	CheckOut    time.Time       `json:"check_out" binding:"required"`
	NightlyRate decimal.Decimal `json:"nightly_rate"`
	Deposit     decimal.Decimal `json:"deposit"`
	Channel     string          `json:"channel"`
}

type paymentView struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reason    string          `json:"reason,omitempty"`
	Terminal  string          `json:"terminal,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// GetRooms lists the room inventory with current holds.
func (h *Handler) GetRooms(c *gin.Context) {
	rooms, err := h.store.Rooms(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, roomView{Number: r.Number, Class: r.Class, Floor: r.Floor, OutOfOrder: r.OutOfOrder, HeldBy: r.HeldBy, HeldAt: r.HeldAt})
	}
	c.JSON(http.StatusOK, views)
}

// PutRooms loads the room list. Holds on existing rooms are kept.
func (h *Handler) PutRooms(c *gin.Context) {
	var req []roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rooms := make([]model.Room, 0, len(req))
	for _, r := range req {
		if err := binding.Validator.ValidateStruct(r); err != nil {
			badRequest(c, err)
			return
		}
		rooms = append(rooms, model.Room{Number: r.Number, Class: r.Class, Floor: r.Floor, OutOfOrder: r.OutOfOrder})
	}

	if err := h.store.UpsertRooms(c.Request.Context(), rooms); err != nil {
		h.writeError(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"module": "api", "actor": actor(c), "count": len(rooms)}).Info("rooms imported")
	c.JSON(http.StatusOK, gin.H{"imported": len(rooms)})
}

// PutReservations imports bookings from the channels.
func (h *Handler) PutReservations(c *gin.Context) {
	var req []reservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rs := make([]stay.Reservation, 0, len(req))
	for _, r := range req {
		if err := binding.Validator.ValidateStruct(r); err != nil {
			badRequest(c, err)
			return
		}
		if !r.CheckOut.After(r.CheckIn) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reservation " + r.Reference + " checks out before it checks in", "code": "InvalidRequest"})
			return
		}
		if r.NightlyRate.IsNegative() || r.Deposit.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reservation " + r.Reference + " has a negative amount", "code": "InvalidRequest"})
			return
		}
		channel := folio.Source(r.Channel)
		if channel == "" {
			channel = folio.SourceFrontDesk
		}
		if !channel.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel " + r.Channel, "code": "InvalidRequest"})
			return
		}
		rs = append(rs, stay.Reservation{
			Reference:   r.Reference,
			Guest:       stay.Guest{Name: r.GuestName, Phone: r.GuestPhone, Email: r.GuestEmail},
			RoomClass:   r.RoomClass,
			RoomNumber:  r.RoomNumber,
			CheckIn:     r.CheckIn,
			CheckOut:    r.CheckOut,
			NightlyRate: r.NightlyRate,
			Deposit:     r.Deposit,
			Channel:     channel,
		})
	}

	if err := h.store.UpsertReservations(c.Request.Context(), rs); err != nil {
		h.writeError(c, err)
		return
	}
	if h.reservations != nil {
		for _, r := range rs {
			h.reservations.Invalidate(r)
		}
	}
	h.log.WithFields(logrus.Fields{"module": "api", "actor": actor(c), "count": len(rs)}).Info("reservations imported")
	c.JSON(http.StatusOK, gin.H{"imported": len(rs)})
}

// GetPayments lists the collections and refund requests of a stay.
func (h *Handler) GetPayments(c *gin.Context) {
	recs, err := h.payments.ForStay(c.Request.Context(), c.Param("stay_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]paymentView, 0, len(recs))
	for _, r := range recs {
		views = append(views, paymentView{ID: r.ID, Kind: r.Kind, Amount: r.Amount, Method: r.Method, Reason: r.Reason, Terminal: r.Terminal, CreatedAt: r.CreatedAt})
	}
	c.JSON(http.StatusOK, views)
}
