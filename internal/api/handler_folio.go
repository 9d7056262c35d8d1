package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"frontdesk-backend/internal/folio"
)

// GetFolio returns the ledger as presented to operators, adjusted lines flagged.
func (h *Handler) GetFolio(c *gin.Context) {
	s, err := h.engine.Get(c.Request.Context(), c.Param("stay_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFolioView(s.Ledger.Snapshot(), s.Ledger.Sealed()))
}

func (h *Handler) PostLine(c *gin.Context) {
	var req postLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := h.engine.PostLine(c.Request.Context(), c.Param("stay_id"), folio.PostInput{
		Kind:        folio.Kind(req.Kind),
		Description: req.Description,
		Source:      folio.Source(req.Source),
		UnitAmount:  req.UnitAmount,
		Quantity:    req.Quantity,
		Entry:       folio.Entry{Actor: actor(c)},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLineView(line))
}

func (h *Handler) AdjustLine(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := h.engine.Adjust(c.Request.Context(), c.Param("stay_id"), folio.AdjustInput{
		TargetID: c.Param("line_id"),
		Delta:    req.Delta,
		Reason:   req.Reason,
		Source:   folio.Source(req.Source),
		Entry:    folio.Entry{Actor: actor(c)},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLineView(line))
}

func (h *Handler) VoidLine(c *gin.Context) {
	var req voidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := h.engine.Void(c.Request.Context(), c.Param("stay_id"), folio.VoidInput{
		TargetID: c.Param("line_id"),
		Reason:   req.Reason,
		Entry:    folio.Entry{Actor: actor(c)},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLineView(line))
}

// GetSettlement returns the frozen decision of a settled stay, otherwise a
// preview computed from the current folio.
func (h *Handler) GetSettlement(c *gin.Context) {
	d, err := h.engine.Settlement(c.Request.Context(), c.Param("stay_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDecisionView(d))
}
