package handler

import (
	"context"
	"net/http"

	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

// ReconcileQueue schedules aggregate reconciliation in the background.
type ReconcileQueue interface {
	EnqueueReconcile(ctx context.Context, box string) error
}

type StockHandler struct {
	svc   service.StockService
	queue ReconcileQueue
}

// NewStockHandler builds the handler. With a nil queue reconcile runs inline.
func NewStockHandler(svc service.StockService, queue ReconcileQueue) *StockHandler {
	return &StockHandler{svc: svc, queue: queue}
}

// Add godoc
// @Summary      Add stock
// @Description  Adds one serialized item (item_barcode) or a bulk quantity to a box.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.AddStockRequest true "Addition"
// @Success      201  {object} dto.StockSnapshot
// @Failure      400  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/stock/add [post]
func (h *StockHandler) Add(c *gin.Context) {
	var req dto.AddStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddStock(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// AddBulk godoc
// @Summary      Add many serialized items
// @Description  All-or-nothing: one unavailable barcode rejects the batch. Paired products are grouped into pairs.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.BulkAddRequest true "Barcodes"
// @Success      201  {object} dto.StockSnapshot
// @Failure      400  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/stock/add-bulk [post]
func (h *StockHandler) AddBulk(c *gin.Context) {
	var req dto.BulkAddRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddStockBulk(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *StockHandler) Remove(c *gin.Context) {
	var req dto.RemoveStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RemoveStock(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Move godoc
// @Summary      Move stock to sales, a loan or breakage
// @Description  Items currently on loan are converted from their loan. Pairs move together unless split_pair.
// @Tags         stock
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.MoveStockRequest true "Movement"
// @Success      200  {object} dto.StockSnapshot
// @Failure      400  {object} apierror.APIError
// @Failure      404  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/stock/move [post]
func (h *StockHandler) Move(c *gin.Context) {
	var req dto.MoveStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.MoveStock(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StockHandler) ReturnLent(c *gin.Context) {
	var req dto.ReturnLentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ReturnLentItem(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StockHandler) ReturnSold(c *gin.Context) {
	var req dto.ReturnSoldRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ReturnSoldItem(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StockHandler) Recombine(c *gin.Context) {
	var req dto.RecombineRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Recombine(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StockHandler) Get(c *gin.Context) {
	resp, err := h.svc.GetStock(c.Request.Context(), c.Param("box"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StockHandler) Presence(c *gin.Context) {
	resp, err := h.svc.ListPresence(c.Request.Context(), c.Param("box"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// Reconcile schedules a reconcile pass (one box with ?box=, else all).
func (h *StockHandler) Reconcile(c *gin.Context) {
	box := c.Query("box")
	if h.queue != nil {
		if err := h.queue.EnqueueReconcile(c.Request.Context(), box); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "box": box})
		return
	}
	if box != "" {
		resp, err := h.svc.SyncAggregate(c.Request.Context(), box)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}
	report, err := h.svc.ReconcileAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
