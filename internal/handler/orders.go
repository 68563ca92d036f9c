package handler

import (
	"context"
	"net/http"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

// ── Loan orders ───────────────────────────────────────────────────────────────

// RecomputeQueue schedules a loan order status recompute in the background.
type RecomputeQueue interface {
	EnqueueRecompute(ctx context.Context, orderID string) error
}

type LoanOrdersHandler struct {
	svc   service.LoanOrderService
	queue RecomputeQueue
}

// NewLoanOrdersHandler builds the handler. With a nil queue recompute runs inline.
func NewLoanOrdersHandler(svc service.LoanOrderService, queue RecomputeQueue) *LoanOrdersHandler {
	return &LoanOrdersHandler{svc: svc, queue: queue}
}

// Create godoc
// @Summary      Create a loan order
// @Description  Lends every line atomically. Lines may also be sold or returned straight away.
// @Tags         loan-orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateLoanOrderRequest true "Order"
// @Success      201  {object} dto.LoanOrderResponse
// @Failure      400  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/loan-orders [post]
func (h *LoanOrdersHandler) Create(c *gin.Context) {
	var req dto.CreateLoanOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.CreateLoanOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *LoanOrdersHandler) Get(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Batch godoc
// @Summary      Process lines of a loan order
// @Description  Each line runs on its own; failures are listed in the result and do not stop other lines.
// @Tags         loan-orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string           true "Loan order id"
// @Param        body body dto.BatchRequest true "Lines"
// @Success      200  {object} dto.BatchResult
// @Failure      404  {object} apierror.APIError
// @Router       /v1/loan-orders/{id}/batch [post]
func (h *LoanOrdersHandler) Batch(c *gin.Context) {
	var req dto.BatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.ProcessBatch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Recompute re-derives the order status from its lines.
func (h *LoanOrdersHandler) Recompute(c *gin.Context) {
	id := c.Param("id")
	if h.queue != nil {
		if err := h.queue.EnqueueRecompute(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "order_id": id})
		return
	}
	status, err := h.svc.RecomputeStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": status})
}

// ── Sale orders ───────────────────────────────────────────────────────────────

type SaleOrdersHandler struct{ svc service.SaleOrderService }

func NewSaleOrdersHandler(svc service.SaleOrderService) *SaleOrdersHandler {
	return &SaleOrdersHandler{svc: svc}
}

func (h *SaleOrdersHandler) Create(c *gin.Context) {
	var req dto.CreateSaleOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.CreateSaleOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *SaleOrdersHandler) Get(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SaleOrdersHandler) AddItems(c *gin.Context) {
	var req dto.AddSaleItemsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.AddItems(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RemoveItem returns an item (or ?quantity= of a bulk box) to stock.
func (h *SaleOrdersHandler) RemoveItem(c *gin.Context) {
	var req dto.RemoveSaleItemRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.KindInvalidInput, err.Error()))
		return
	}
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("barcode"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SaleOrdersHandler) UpdateNote(c *gin.Context) {
	var req dto.UpdateNoteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.UpdateNote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ── Breakage orders ───────────────────────────────────────────────────────────

type BreakageOrdersHandler struct{ svc service.BreakageOrderService }

func NewBreakageOrdersHandler(svc service.BreakageOrderService) *BreakageOrdersHandler {
	return &BreakageOrdersHandler{svc: svc}
}

func (h *BreakageOrdersHandler) Create(c *gin.Context) {
	var req dto.CreateBreakageOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.EmployeeID = employeeOr(c, req.EmployeeID)
	resp, err := h.svc.CreateBreakageOrder(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *BreakageOrdersHandler) Get(c *gin.Context) {
	resp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
