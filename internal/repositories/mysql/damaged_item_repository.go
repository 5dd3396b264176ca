package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const damagedItemColumns = `id, item_id, quantity, discounted_price, discount_percentage, status, remarks, created_at, updated_at`

// DamagedItemRepository stores the discounted damaged-stock pools.
type DamagedItemRepository struct {
	db *sqlx.DB
}

var _ repositories.DamagedItemRepository = (*DamagedItemRepository)(nil)

type damagedItemRow struct {
	ID                 int64           `db:"id"`
	ItemID             int64           `db:"item_id"`
	Quantity           int             `db:"quantity"`
	DiscountedPrice    decimal.Decimal `db:"discounted_price"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage"`
	Status             string          `db:"status"`
	Remarks            sql.NullString  `db:"remarks"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (r damagedItemRow) toDomain() domain.DamagedItem {
	return domain.DamagedItem{
		ID:                 r.ID,
		ItemID:             r.ItemID,
		Quantity:           r.Quantity,
		DiscountedPrice:    r.DiscountedPrice,
		DiscountPercentage: r.DiscountPercentage,
		Status:             domain.DamagedItemStatus(r.Status),
		Remarks:            r.Remarks.String,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func (r *DamagedItemRepository) FindByID(ctx context.Context, damagedItemID int64) (domain.DamagedItem, error) {
	return r.find(ctx, "damaged_items.find", `SELECT `+damagedItemColumns+` FROM damaged_items WHERE id = ?`, damagedItemID)
}

func (r *DamagedItemRepository) FindForUpdate(ctx context.Context, damagedItemID int64) (domain.DamagedItem, error) {
	return r.find(ctx, "damaged_items.find_for_update", `SELECT `+damagedItemColumns+` FROM damaged_items WHERE id = ? FOR UPDATE`, damagedItemID)
}

func (r *DamagedItemRepository) find(ctx context.Context, op, query string, id int64) (domain.DamagedItem, error) {
	var row damagedItemRow
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &row, query, id); err != nil {
		return domain.DamagedItem{}, database.WrapError(op, err)
	}
	return row.toDomain(), nil
}

func (r *DamagedItemRepository) Insert(ctx context.Context, damaged domain.DamagedItem) (domain.DamagedItem, error) {
	now := damaged.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	damaged.CreatedAt, damaged.UpdatedAt = now, now

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `INSERT INTO damaged_items
		(item_id, quantity, discounted_price, discount_percentage, status, remarks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		damaged.ItemID, damaged.Quantity, damaged.DiscountedPrice, damaged.DiscountPercentage,
		string(damaged.Status), nullString(damaged.Remarks), damaged.CreatedAt, damaged.UpdatedAt)
	if err != nil {
		return domain.DamagedItem{}, database.WrapError("damaged_items.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.DamagedItem{}, database.WrapError("damaged_items.insert", err)
	}
	damaged.ID = id
	return damaged, nil
}

func (r *DamagedItemRepository) Update(ctx context.Context, damaged domain.DamagedItem) error {
	updatedAt := damaged.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `UPDATE damaged_items
		SET status = ?, remarks = ?, discounted_price = ?, discount_percentage = ?, updated_at = ?
		WHERE id = ?`,
		string(damaged.Status), nullString(damaged.Remarks), damaged.DiscountedPrice, damaged.DiscountPercentage,
		updatedAt, damaged.ID)
	return expectRow(res, err, "damaged_items.update", fmt.Sprintf("damaged item %d not found", damaged.ID))
}

func (r *DamagedItemRepository) Delete(ctx context.Context, damagedItemID int64) error {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM damaged_items WHERE id = ?`, damagedItemID)
	return expectRow(res, err, "damaged_items.delete", fmt.Sprintf("damaged item %d not found", damagedItemID))
}

func (r *DamagedItemRepository) DecrementStock(ctx context.Context, damagedItemID int64, qty int) error {
	return decrement(ctx, database.Executor(ctx, r.db), "damaged_items.decrement_stock", "damaged_items", damagedItemID, qty)
}

func (r *DamagedItemRepository) IncrementStock(ctx context.Context, damagedItemID int64, qty int) error {
	return increment(ctx, database.Executor(ctx, r.db), "damaged_items.increment_stock", "damaged_items", damagedItemID, qty)
}

// expectRow converts an exec result that touched no rows into a not-found error.
func expectRow(res sql.Result, err error, op, message string) error {
	if err != nil {
		return database.WrapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return database.WrapError(op, err)
	}
	if affected == 0 {
		return database.NotFound(op, message)
	}
	return nil
}
