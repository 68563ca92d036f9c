package service

import (
	"context"
	"testing"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoan(orderID string, lines ...dto.OrderLine) dto.CreateLoanOrderRequest {
	return dto.CreateLoanOrderRequest{OrderID: orderID, EmployeeID: "E1", Counterparty: "ACME", Lines: lines}
}

func statusesOf(o *dto.LoanOrderResponse) map[string]int {
	out := map[string]int{}
	for _, l := range o.Lines {
		out[l.Status] += l.Quantity
	}
	return out
}

func TestCreateLoanOrder_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	line := dto.OrderLine{Identifier: "BOX1:1"}

	tests := []struct {
		name string
		req  dto.CreateLoanOrderRequest
	}{
		{"missing order id", dto.CreateLoanOrderRequest{EmployeeID: "E1", Counterparty: "ACME", Lines: []dto.OrderLine{line}}},
		{"missing employee", dto.CreateLoanOrderRequest{OrderID: "L1", Counterparty: "ACME", Lines: []dto.OrderLine{line}}},
		{"missing counterparty", dto.CreateLoanOrderRequest{OrderID: "L1", EmployeeID: "E1", Lines: []dto.OrderLine{line}}},
		{"no lines", dto.CreateLoanOrderRequest{OrderID: "L1", EmployeeID: "E1", Counterparty: "ACME"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.loans.CreateLoanOrder(ctx, tt.req)
			assert.True(t, apierror.IsKind(err, apierror.KindInvalidInput), "got %v", err)
		})
	}
}

func TestCreateLoanOrder_DuplicateID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 5})
	require.NoError(t, err)

	_, err = f.loans.CreateLoanOrder(ctx, newLoan("L1", dto.OrderLine{Identifier: "BOX1:1"}))
	require.NoError(t, err)
	_, err = f.loans.CreateLoanOrder(ctx, newLoan("L1", dto.OrderLine{Identifier: "BOX1:1"}))
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidInput))
}

func TestLoanOrder_CompletesOnlyWhenEverythingIsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 10})
	require.NoError(t, err)

	order, err := f.loans.CreateLoanOrder(ctx, newLoan("L1", dto.OrderLine{Identifier: "BOX1:3"}))
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderActive), order.Status)
	snap, err := f.stock.GetStock(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Quantity)

	res, err := f.loans.ProcessBatch(ctx, "L1", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "BOX1", Destination: "return", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, res.Processed, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, string(model.OrderActive), res.Status, "two units are still out")

	res, err = f.loans.ProcessBatch(ctx, "L1", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "BOX1", Destination: "sales", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, res.Processed, 1)
	assert.Equal(t, string(model.OrderCompleted), res.Status)

	snap, err = f.stock.GetStock(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Quantity)

	sale, err := f.sales.Get(ctx, "SALES-FROM-LENT-L1")
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, 2, sale.Lines[0].Quantity)
	assert.False(t, sale.Lines[0].IsDirectSale)

	order, err = f.loans.Get(ctx, "L1")
	require.NoError(t, err)
	got := statusesOf(order)
	assert.Equal(t, 1, got[string(model.LoanReturned)])
	assert.Equal(t, 2, got[string(model.LoanLentToSales)])
	assert.Zero(t, got[string(model.LoanLent)])
}

func TestProcessBatch_SplitDrainsOpenLine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 10})
	require.NoError(t, err)
	_, err = f.loans.CreateLoanOrder(ctx, newLoan("L2", dto.OrderLine{Identifier: "BOX1:6"}))
	require.NoError(t, err)

	res, err := f.loans.ProcessBatch(ctx, "L2", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "BOX1", Split: map[string]int{"return": 3, "sales": 2, "broken": 1}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Processed, 1)
	assert.Equal(t, 6, res.Processed[0].Quantity)
	assert.Equal(t, "split", res.Processed[0].Destination)
	assert.Equal(t, string(model.OrderCompleted), res.Status)

	order, err := f.loans.Get(ctx, "L2")
	require.NoError(t, err)
	got := statusesOf(order)
	assert.Equal(t, 3, got[string(model.LoanReturned)])
	assert.Equal(t, 2, got[string(model.LoanLentToSales)])
	assert.Equal(t, 1, got[string(model.LoanBroken)])
	assert.Contains(t, got, string(model.LoanProcessed))
	assert.Zero(t, got[string(model.LoanProcessed)])

	broken, err := f.breakage.Get(ctx, "BROKEN-FROM-LENT-L2")
	require.NoError(t, err)
	require.Len(t, broken.Lines, 1)
	assert.Equal(t, 1, broken.Lines[0].Quantity)

	snap, err := f.stock.GetStock(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Quantity)
}

func TestProcessBatch_FailedLinesDoNotStopOthers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXS", "Scanner", 1)
	for _, sn := range []string{"SN1", "SN2"} {
		f.add(t, "BOXS", sn)
	}
	_, err := f.loans.CreateLoanOrder(ctx, newLoan("L3",
		dto.OrderLine{Identifier: "SN1"}, dto.OrderLine{Identifier: "SN2"}))
	require.NoError(t, err)

	res, err := f.loans.ProcessBatch(ctx, "L3", dto.BatchRequest{
		Lines: []dto.BatchLine{
			{Identifier: "SN1", Destination: "return"},
			{Identifier: "GHOST", Destination: "return"},
			{Identifier: "SN2", Destination: "lent"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Processed, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "GHOST", res.Failed[0].Identifier)
	assert.Equal(t, string(apierror.KindNotFound), res.Failed[0].Kind)
	assert.Equal(t, string(model.OrderActive), res.Status, "SN2 stays out")

	res, err = f.loans.ProcessBatch(ctx, "L3", dto.BatchRequest{
		SalesOrderID: "SO-77",
		Lines:        []dto.BatchLine{{Identifier: "SN2", Destination: "sales"}},
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderCompleted), res.Status)

	sale, err := f.sales.Get(ctx, "SO-77")
	require.NoError(t, err)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, "ACME", sale.Counterparty)
}

func TestProcessBatch_OverdrawIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 5})
	require.NoError(t, err)
	_, err = f.loans.CreateLoanOrder(ctx, newLoan("L4", dto.OrderLine{Identifier: "BOX1:2"}))
	require.NoError(t, err)

	res, err := f.loans.ProcessBatch(ctx, "L4", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "BOX1", Destination: "return", Quantity: 3}},
	})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, string(apierror.KindInvalidInput), res.Failed[0].Kind)
	assert.Equal(t, string(model.OrderActive), res.Status)
}

func TestProcessBatch_UnknownOrder(t *testing.T) {
	f := newFixture()
	_, err := f.loans.ProcessBatch(context.Background(), "NOPE", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "X", Destination: "return"}},
	})
	assert.True(t, apierror.IsKind(err, apierror.KindNotFound))
}

func TestCreateLoanOrder_LineDestinations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXS", "Scanner", 1)
	for _, sn := range []string{"SN1", "SN2", "SN3"} {
		f.add(t, "BOXS", sn)
	}

	order, err := f.loans.CreateLoanOrder(ctx, newLoan("L5",
		dto.OrderLine{Identifier: "SN1"},
		dto.OrderLine{Identifier: "SN2", Destination: "return"},
		dto.OrderLine{Identifier: "SN3", Destination: "sales"},
	))
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderActive), order.Status)

	byItem := map[string]string{}
	for _, l := range order.Lines {
		byItem[*l.ItemBarcode] = l.Status
	}
	assert.Equal(t, string(model.LoanLent), byItem["SN1"])
	assert.Equal(t, string(model.LoanReturned), byItem["SN2"])
	assert.Equal(t, string(model.LoanLentToSales), byItem["SN3"])

	presence, err := f.stock.ListPresence(ctx, "BOXS")
	require.NoError(t, err)
	require.Len(t, presence, 1)
	assert.Equal(t, "SN2", presence[0].ItemBarcode)

	_, err = f.sales.Get(ctx, "SALES-FROM-LENT-L5")
	assert.NoError(t, err)
}

func TestRecomputeStatus_IsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXS", "Scanner", 1)
	f.add(t, "BOXS", "SN1")
	_, err := f.loans.CreateLoanOrder(ctx, newLoan("L6", dto.OrderLine{Identifier: "SN1"}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		status, err := f.loans.RecomputeStatus(ctx, "L6")
		require.NoError(t, err)
		assert.Equal(t, string(model.OrderActive), status)
	}

	_, err = f.loans.RecomputeStatus(ctx, "MISSING")
	assert.True(t, apierror.IsKind(err, apierror.KindInconsistentState))
}

func TestProcessBatch_PairHalvesListedTogether(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXP", "Earbuds", 2)
	_, err := f.stock.AddStockBulk(ctx, dto.BulkAddRequest{BoxBarcode: "BOXP", ItemBarcodes: []string{"P001", "P002"}})
	require.NoError(t, err)
	_, err = f.loans.CreateLoanOrder(ctx, newLoan("L1", dto.OrderLine{Identifier: "P001"}))
	require.NoError(t, err)

	res, err := f.loans.ProcessBatch(ctx, "L1", dto.BatchRequest{
		Lines: []dto.BatchLine{
			{Identifier: "P001", Destination: "return"},
			{Identifier: "P002", Destination: "return"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Processed, 2)
	assert.Empty(t, res.Failed)
	assert.Equal(t, string(model.OrderCompleted), res.Status)

	snap, err := f.stock.GetStock(ctx, "BOXP")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Quantity)
	assert.False(t, f.engine.guard.InFlight("P001"))
	assert.False(t, f.engine.guard.InFlight("P002"))
}

func TestProcessBatch_BulkLendsUnderOneOrderShareALine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 10})
	require.NoError(t, err)

	for _, q := range []int{2, 3} {
		mv := lend("BOX1", "", "L9")
		mv.Quantity = q
		_, err = f.stock.MoveStock(ctx, mv)
		require.NoError(t, err)
	}
	order, err := f.loans.Get(ctx, "L9")
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 5, order.Lines[0].Quantity)

	res, err := f.loans.ProcessBatch(ctx, "L9", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "BOX1", Destination: "return", Quantity: 5}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Processed, 1)
	assert.Empty(t, res.Failed)
	assert.Equal(t, string(model.OrderCompleted), res.Status)

	snap, err := f.stock.GetStock(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Quantity)
}

func TestProcessBatch_ClaimsPairSibling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXP", "Earbuds", 2)
	_, err := f.stock.AddStockBulk(ctx, dto.BulkAddRequest{BoxBarcode: "BOXP", ItemBarcodes: []string{"P001", "P002"}})
	require.NoError(t, err)
	_, err = f.loans.CreateLoanOrder(ctx, newLoan("L1", dto.OrderLine{Identifier: "P001"}))
	require.NoError(t, err)

	release, err := f.engine.guard.Claim(ctx, "P002")
	require.NoError(t, err)
	res, err := f.loans.ProcessBatch(ctx, "L1", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "P001", Destination: "return"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, string(apierror.KindConcurrencyConflict), res.Failed[0].Kind)
	assert.False(t, f.engine.guard.InFlight("P001"), "line claim released after the conflict")
	release()

	res, err = f.loans.ProcessBatch(ctx, "L1", dto.BatchRequest{
		Lines: []dto.BatchLine{{Identifier: "P001", Destination: "return"}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Processed, 1)
	assert.Equal(t, string(model.OrderCompleted), res.Status)
}
