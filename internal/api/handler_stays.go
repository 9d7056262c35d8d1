package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"frontdesk-backend/internal/stay"
)

// LookupStay finds a reservation and returns its stay, creating it on first lookup.
func (h *Handler) LookupStay(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, err := h.engine.Lookup(c.Request.Context(), stay.Query{Reference: req.Reference, RoomNumber: req.RoomNumber})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStayView(s))
}

// FindForCheckOut resumes the in-house stay of a reservation or room.
func (h *Handler) FindForCheckOut(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, err := h.engine.FindForCheckOut(c.Request.Context(), stay.Query{Reference: req.Reference, RoomNumber: req.RoomNumber})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStayView(s))
}

func (h *Handler) GetStay(c *gin.Context) {
	s, err := h.engine.Get(c.Request.Context(), c.Param("stay_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStayView(s))
}

// AdvanceStay runs one lifecycle step. A failed guard answers 422 with the
// unchanged state and the guard reason.
func (h *Handler) AdvanceStay(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.engine.Advance(c.Request.Context(), c.Param("stay_id"), req.toInput(actor(c)))
	if err != nil {
		if res.Decision != nil {
			// Payment went through but the stay was not saved.
			h.log.WithFields(logrus.Fields{"module": "api", "stay_id": res.StayID}).Error(err.Error())
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "code": "SettlementNotPersisted", "result": newResultView(res)})
			return
		}
		h.writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.Guard != nil {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, newResultView(res))
}

func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.engine.History(c.Request.Context(), c.Param("stay_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	views := make([]transitionView, 0, len(history))
	for _, t := range history {
		views = append(views, transitionView{
			From:   string(t.From),
			To:     string(t.To),
			Step:   string(t.Step),
			Actor:  t.Actor,
			Reason: t.Reason,
			At:     t.At,
		})
	}
	c.JSON(http.StatusOK, gin.H{"transitions": views})
}
