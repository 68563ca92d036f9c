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

func TestCreateSaleOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	f.product(t, "BOXS", "Scanner", 1)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 5})
	require.NoError(t, err)
	f.add(t, "BOXS", "SN1")

	order, err := f.sales.CreateSaleOrder(ctx, dto.CreateSaleOrderRequest{
		OrderID: "SO-1", EmployeeID: "E1", Counterparty: "Shop",
		Lines: []dto.SaleLine{{Identifier: "BOX1:2"}, {Identifier: "SN1"}},
	})
	require.NoError(t, err)
	assert.Len(t, order.Lines, 2)
	assert.Zero(t, order.EditCount)
	assert.Empty(t, order.EditHistory)

	snap, err := f.stock.GetStock(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Quantity)
	ok, err := f.stock.IsAvailable(ctx, "SN1")
	require.NoError(t, err)
	assert.True(t, ok, "sold barcodes are reusable")
}

func TestCreateSaleOrder_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	lines := []dto.SaleLine{{Identifier: "BOX1:1"}}

	_, err := f.sales.CreateSaleOrder(ctx, dto.CreateSaleOrderRequest{EmployeeID: "E1", Lines: lines})
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidInput))
	_, err = f.sales.CreateSaleOrder(ctx, dto.CreateSaleOrderRequest{OrderID: "SO-1", Lines: lines})
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidInput))
}

func TestCreateSaleOrder_ConvertsLentItem(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXS", "Scanner", 1)
	f.add(t, "BOXS", "SN1")
	_, err := f.stock.MoveStock(ctx, lend("BOXS", "SN1", "L-1"))
	require.NoError(t, err)

	order, err := f.sales.CreateSaleOrder(ctx, dto.CreateSaleOrderRequest{
		OrderID: "SO-2", EmployeeID: "E1", Lines: []dto.SaleLine{{Identifier: "SN1"}},
	})
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.False(t, order.Lines[0].IsDirectSale)

	loan, err := f.loans.Get(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderCompleted), loan.Status)
}

func TestSaleOrder_EditsAreRecorded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOXS", "Scanner", 1)
	for _, sn := range []string{"SN1", "SN2"} {
		f.add(t, "BOXS", sn)
	}
	_, err := f.sales.CreateSaleOrder(ctx, dto.CreateSaleOrderRequest{
		OrderID: "SO-3", EmployeeID: "E1", Note: "first", Lines: []dto.SaleLine{{Identifier: "SN1"}},
	})
	require.NoError(t, err)

	order, err := f.sales.AddItems(ctx, "SO-3", dto.AddSaleItemsRequest{EmployeeID: "E2", Lines: []dto.SaleLine{{Identifier: "SN2"}}})
	require.NoError(t, err)
	assert.Len(t, order.Lines, 2)

	order, err = f.sales.RemoveItem(ctx, "SO-3", "SN1", dto.RemoveSaleItemRequest{})
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "SN2", *order.Lines[0].ItemBarcode)

	order, err = f.sales.UpdateNote(ctx, "SO-3", dto.UpdateNoteRequest{Note: "customer called"})
	require.NoError(t, err)

	assert.Equal(t, 3, order.EditCount)
	require.Len(t, order.EditHistory, 3)
	assert.Equal(t, model.EditAddItems, order.EditHistory[0].Action)
	assert.Equal(t, "E2", order.EditHistory[0].EmployeeID)
	assert.Equal(t, model.EditRemoveItem, order.EditHistory[1].Action)
	assert.Equal(t, "E1", order.EditHistory[1].EmployeeID, "falls back to the order's employee")
	assert.Equal(t, model.EditUpdateNotes, order.EditHistory[2].Action)
	require.NotNil(t, order.Note)
	assert.Contains(t, *order.Note, "first\n[")
	assert.Contains(t, *order.Note, "customer called")
	require.NotNil(t, order.LastModified)

	presence, err := f.stock.ListPresence(ctx, "BOXS")
	require.NoError(t, err)
	require.Len(t, presence, 1)
	assert.Equal(t, "SN1", presence[0].ItemBarcode)
}

func TestSaleOrder_RemovePartialBulk(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.product(t, "BOX1", "Widget", 0)
	_, err := f.stock.AddStock(ctx, dto.AddStockRequest{BoxBarcode: "BOX1", Quantity: 5})
	require.NoError(t, err)
	_, err = f.sales.CreateSaleOrder(ctx, dto.CreateSaleOrderRequest{
		OrderID: "SO-4", EmployeeID: "E1", Lines: []dto.SaleLine{{Identifier: "BOX1:4"}},
	})
	require.NoError(t, err)

	order, err := f.sales.RemoveItem(ctx, "SO-4", "BOX1", dto.RemoveSaleItemRequest{Quantity: 1})
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 3, order.Lines[0].Quantity)

	_, err = f.sales.RemoveItem(ctx, "SO-4", "BOX1", dto.RemoveSaleItemRequest{Quantity: 9})
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidInput))

	snap, err := f.stock.GetStock(ctx, "BOX1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Quantity)
}

func TestSaleOrder_UnknownOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.sales.Get(ctx, "NOPE")
	assert.True(t, apierror.IsKind(err, apierror.KindNotFound))
	_, err = f.sales.UpdateNote(ctx, "NOPE", dto.UpdateNoteRequest{Note: "x"})
	assert.True(t, apierror.IsKind(err, apierror.KindNotFound))
	_, err = f.sales.UpdateNote(ctx, "NOPE", dto.UpdateNoteRequest{Note: "  "})
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidInput))
}
