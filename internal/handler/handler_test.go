package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/middleware"
	"github.com/PnGunchai/MAinventory-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeStock struct {
	service.StockService
	addErr   error
	lastAdd  dto.AddStockRequest
	lastMove dto.MoveStockRequest
	synced   string
}

func (f *fakeStock) AddStock(_ context.Context, req dto.AddStockRequest) (*dto.StockSnapshot, error) {
	f.lastAdd = req
	if f.addErr != nil {
		return nil, f.addErr
	}
	return &dto.StockSnapshot{BoxBarcode: req.BoxBarcode, Quantity: req.Quantity}, nil
}

func (f *fakeStock) MoveStock(_ context.Context, req dto.MoveStockRequest) (*dto.StockSnapshot, error) {
	f.lastMove = req
	return &dto.StockSnapshot{BoxBarcode: req.BoxBarcode}, nil
}

func (f *fakeStock) SyncAggregate(_ context.Context, box string) (*dto.StockSnapshot, error) {
	f.synced = box
	return &dto.StockSnapshot{BoxBarcode: box, Quantity: 3}, nil
}

type fakeLoans struct {
	service.LoanOrderService
	recomputed string
}

func (f *fakeLoans) RecomputeStatus(_ context.Context, orderID string) (string, error) {
	f.recomputed = orderID
	return "completed", nil
}

type fakeQueue struct{ reconcile, recompute []string }

func (q *fakeQueue) EnqueueReconcile(_ context.Context, box string) error {
	q.reconcile = append(q.reconcile, box)
	return nil
}

func (q *fakeQueue) EnqueueRecompute(_ context.Context, orderID string) error {
	q.recompute = append(q.recompute, orderID)
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func withClaims(employee string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ClaimsKey, &middleware.JWTClaims{EmployeeID: employee, Role: middleware.RoleStaff})
		c.Next()
	}
}

func serve(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func stockRouter(svc service.StockService, q ReconcileQueue) *gin.Engine {
	h := NewStockHandler(svc, q)
	r := gin.New()
	r.Use(withClaims("E9"))
	r.POST("/stock/add", h.Add)
	r.POST("/stock/move", h.Move)
	r.POST("/stock/recombine", h.Recombine)
	r.POST("/stock/reconcile", h.Reconcile)
	return r
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestStockAdd_Created(t *testing.T) {
	svc := &fakeStock{}
	w := serve(stockRouter(svc, nil), http.MethodPost, "/stock/add", dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 4})

	require.Equal(t, http.StatusCreated, w.Code)
	var snap dto.StockSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "BOX1", snap.BoxBarcode)
	assert.Equal(t, 4, snap.Quantity)
}

func TestStockAdd_BadRequests(t *testing.T) {
	r := stockRouter(&fakeStock{}, nil)

	w := serve(r, http.MethodPost, "/stock/add", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodPost, "/stock/add", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var verr apierror.ValidationError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
	assert.Equal(t, "required", verr.Fields["box_barcode"])

	w = serve(r, http.MethodPost, "/stock/recombine", dto.RecombineRequest{TargetBox: "BOXP", Item1: "A", Item2: "A"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStockAdd_ErrorEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		kind      apierror.Kind
		retryable bool
	}{
		{"invalid", apierror.InvalidInput("barcode SN1 is not available").WithBarcode("SN1"), http.StatusBadRequest, apierror.KindInvalidInput, false},
		{"missing", apierror.NotFound("product BOX9 not found").WithBox("BOX9"), http.StatusNotFound, apierror.KindNotFound, false},
		{"conflict", apierror.Conflict("barcode SN1 is being processed").WithBarcode("SN1"), http.StatusConflict, apierror.KindConcurrencyConflict, true},
		{"inconsistent", apierror.Inconsistent("order L1 has lines but no header"), http.StatusInternalServerError, apierror.KindInconsistentState, false},
		{"foreign", errors.New("pq: connection refused"), http.StatusInternalServerError, apierror.KindInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := stockRouter(&fakeStock{addErr: tt.err}, nil)
			w := serve(r, http.MethodPost, "/stock/add", dto.AddStockRequest{BoxBarcode: "BOX1", ItemBarcode: "SN1"})

			assert.Equal(t, tt.status, w.Code)
			var env apierror.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.kind, env.Kind)
			assert.Equal(t, tt.retryable, env.Retryable)
			assert.NotContains(t, env.Detail, "pq:", "driver errors never reach clients")
		})
	}
}

func TestStockMove_EmployeeFromToken(t *testing.T) {
	svc := &fakeStock{}
	r := stockRouter(svc, nil)

	w := serve(r, http.MethodPost, "/stock/move", map[string]any{"box_barcode": "BOX1", "destination": "sales", "order_id": "SO-1", "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E9", svc.lastMove.EmployeeID)

	w = serve(r, http.MethodPost, "/stock/move", map[string]any{"box_barcode": "BOX1", "destination": "sales", "order_id": "SO-1", "employee_id": "E2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E2", svc.lastMove.EmployeeID)
}

func TestStockReconcile(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		q := &fakeQueue{}
		w := serve(stockRouter(&fakeStock{}, q), http.MethodPost, "/stock/reconcile?box=BOX1", nil)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"BOX1"}, q.reconcile)
	})
	t.Run("inline", func(t *testing.T) {
		svc := &fakeStock{}
		w := serve(stockRouter(svc, nil), http.MethodPost, "/stock/reconcile?box=BOX1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "BOX1", svc.synced)
	})
}

func TestLoanRecompute(t *testing.T) {
	build := func(svc service.LoanOrderService, q RecomputeQueue) *gin.Engine {
		h := NewLoanOrdersHandler(svc, q)
		r := gin.New()
		r.POST("/loan-orders/:id/recompute", h.Recompute)
		return r
	}

	q := &fakeQueue{}
	w := serve(build(&fakeLoans{}, q), http.MethodPost, "/loan-orders/L1/recompute", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"L1"}, q.recompute)

	svc := &fakeLoans{}
	w = serve(build(svc, nil), http.MethodPost, "/loan-orders/L2/recompute", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "L2", svc.recomputed)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)
}
