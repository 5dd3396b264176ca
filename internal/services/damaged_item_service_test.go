package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
)

func TestDamagedItemServiceMarkAsDamaged(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	item := rig.store.addItem("Circular Saw", "3000", 10)
	ctx := context.Background()

	damaged, err := rig.damaged.MarkAsDamaged(ctx, MarkDamagedCommand{
		ItemID:         item.ID,
		Quantity:       3,
		DiscountAmount: decimal.NewFromInt(750),
		Status:         domain.DamagedItemStatusResellable,
		Remarks:        "<b>Dented</b> casing",
	})
	require.NoError(t, err)
	assert.True(t, damaged.DiscountedPrice.Equal(decimal.NewFromInt(2250)))
	assert.True(t, damaged.DiscountPercentage.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "Dented casing", damaged.Remarks)
	assert.Equal(t, 7, rig.store.itemQty(item.ID))

	_, err = rig.damaged.MarkAsDamaged(ctx, MarkDamagedCommand{ItemID: item.ID, Quantity: 8})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 7, rig.store.itemQty(item.ID))
	assert.Len(t, rig.store.damaged, 1)
}

func TestDamagedItemServiceDiscountBounds(t *testing.T) {
	t.Parallel()

	price, pct := discountFor(decimal.NewFromInt(300), decimal.NewFromInt(500))
	assert.True(t, price.IsZero())
	assert.Equal(t, "166.67", pct.StringFixed(2))

	price, pct = discountFor(decimal.Zero, decimal.NewFromInt(10))
	assert.True(t, price.IsZero())
	assert.True(t, pct.IsZero())

	_, pct = discountFor(decimal.RequireFromString("99.99"), decimal.RequireFromString("33.33"))
	assert.Equal(t, "33.33", pct.StringFixed(2))
}

func TestDamagedItemServiceUpdateAndDelete(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	item := rig.store.addItem("Ladder", "1800", 6)
	ctx := context.Background()

	damaged, err := rig.damaged.MarkAsDamaged(ctx, MarkDamagedCommand{ItemID: item.ID, Quantity: 2, DiscountAmount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	assert.Equal(t, domain.DamagedItemStatusDamaged, damaged.Status)

	resellable := domain.DamagedItemStatusResellable
	remarks := "Cosmetic scratches only"
	updated, err := rig.damaged.UpdateDamagedItem(ctx, UpdateDamagedItemCommand{DamagedItemID: damaged.ID, Status: &resellable, Remarks: &remarks})
	require.NoError(t, err)
	assert.Equal(t, resellable, updated.Status)
	assert.Equal(t, remarks, updated.Remarks)

	invalid := domain.DamagedItemStatus("melted")
	_, err = rig.damaged.UpdateDamagedItem(ctx, UpdateDamagedItemCommand{DamagedItemID: damaged.ID, Status: &invalid})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, rig.damaged.DeleteDamagedItem(ctx, damaged.ID))
	assert.Equal(t, 6, rig.store.itemQty(item.ID), "deleting the pool returns its units to the item")
	assert.Empty(t, rig.store.damaged)

	require.ErrorIs(t, rig.damaged.DeleteDamagedItem(ctx, damaged.ID), ErrDamagedItemNotFound)
}

func TestDamagedItemServiceMissingItem(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	_, err := rig.damaged.MarkAsDamaged(context.Background(), MarkDamagedCommand{ItemID: 404, Quantity: 1})
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = rig.damaged.MarkAsDamaged(context.Background(), MarkDamagedCommand{ItemID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidInput)
}
