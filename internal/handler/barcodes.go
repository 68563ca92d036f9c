package handler

import (
	"net/http"
	"strconv"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

// LedgerHandler serves barcode history, availability and sequence lookups.
type LedgerHandler struct{ svc service.LedgerService }

func NewLedgerHandler(svc service.LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

// Availability godoc
// @Summary      Can this barcode be added?
// @Description  Reports presence, the ledger decision and whether a request is processing the barcode right now.
// @Tags         barcodes
// @Produce      json
// @Security     BearerAuth
// @Param        barcode path string true "Item barcode"
// @Success      200  {object} dto.AvailabilityResponse
// @Router       /v1/barcodes/{barcode}/availability [get]
func (h *LedgerHandler) Availability(c *gin.Context) {
	resp, err := h.svc.Availability(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LedgerHandler) History(c *gin.Context) {
	resp, err := h.svc.History(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h *LedgerHandler) List(c *gin.Context) {
	var filter dto.LedgerFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.KindInvalidInput, err.Error()))
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// NextSequence returns highest/next for a box; ?n= also lists the items under n.
func (h *LedgerHandler) NextSequence(c *gin.Context) {
	n := 0
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, apierror.New(apierror.KindInvalidInput, "n must be a positive integer"))
			return
		}
		n = v
	}
	resp, err := h.svc.Sequence(c.Request.Context(), c.Param("box"), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
