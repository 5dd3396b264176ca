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

const itemColumns = `id, item_code, item_name, brand_name, category, description, unit_price, quantity,
	restock_threshold, created_at, updated_at`

// ItemRepository stores the catalogue and its regular stock counts. Stock changes are
// conditional updates, so quantities never go negative.
type ItemRepository struct {
	db *sqlx.DB
}

var _ repositories.ItemRepository = (*ItemRepository)(nil)

type itemRow struct {
	ID               int64           `db:"id"`
	Code             string          `db:"item_code"`
	Name             string          `db:"item_name"`
	Brand            string          `db:"brand_name"`
	Category         string          `db:"category"`
	Description      sql.NullString  `db:"description"`
	UnitPrice        decimal.Decimal `db:"unit_price"`
	Quantity         int             `db:"quantity"`
	RestockThreshold int             `db:"restock_threshold"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r itemRow) toDomain() domain.Item {
	return domain.Item{
		ID:               r.ID,
		Code:             r.Code,
		Name:             r.Name,
		Brand:            r.Brand,
		Category:         r.Category,
		Description:      r.Description.String,
		UnitPrice:        r.UnitPrice,
		Quantity:         r.Quantity,
		RestockThreshold: r.RestockThreshold,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r *ItemRepository) FindByID(ctx context.Context, itemID int64) (domain.Item, error) {
	return r.find(ctx, "items.find", `SELECT `+itemColumns+` FROM items WHERE id = ?`, itemID)
}

// FindForUpdate locks the item row until the surrounding transaction ends.
func (r *ItemRepository) FindForUpdate(ctx context.Context, itemID int64) (domain.Item, error) {
	return r.find(ctx, "items.find_for_update", `SELECT `+itemColumns+` FROM items WHERE id = ? FOR UPDATE`, itemID)
}

func (r *ItemRepository) find(ctx context.Context, op, query string, args ...any) (domain.Item, error) {
	var row itemRow
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &row, query, args...); err != nil {
		return domain.Item{}, database.WrapError(op, err)
	}
	return row.toDomain(), nil
}

func (r *ItemRepository) Insert(ctx context.Context, item domain.Item) (domain.Item, error) {
	now := item.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	item.CreatedAt, item.UpdatedAt = now, now

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `INSERT INTO items
		(item_code, item_name, brand_name, category, description, unit_price, quantity, restock_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Code, item.Name, item.Brand, item.Category, nullString(item.Description), item.UnitPrice,
		item.Quantity, item.RestockThreshold, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return domain.Item{}, database.WrapError("items.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Item{}, database.WrapError("items.insert", err)
	}
	item.ID = id
	return item, nil
}

func (r *ItemRepository) LatestByCategory(ctx context.Context, category string) (domain.Item, error) {
	return r.find(ctx, "items.latest_by_category",
		`SELECT `+itemColumns+` FROM items WHERE category = ? ORDER BY id DESC LIMIT 1`, category)
}

func (r *ItemRepository) ListLowStock(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []itemRow
	err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &rows,
		`SELECT `+itemColumns+` FROM items WHERE quantity <= restock_threshold ORDER BY quantity ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, database.WrapError("items.list_low_stock", err)
	}
	items := make([]domain.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

func (r *ItemRepository) DecrementStock(ctx context.Context, itemID int64, qty int) error {
	return decrement(ctx, database.Executor(ctx, r.db), "items.decrement_stock", "items", itemID, qty)
}

func (r *ItemRepository) IncrementStock(ctx context.Context, itemID int64, qty int) error {
	return increment(ctx, database.Executor(ctx, r.db), "items.increment_stock", "items", itemID, qty)
}

// decrement applies the conditional update; zero affected rows means the row is missing or short.
func decrement(ctx context.Context, exec sqlx.ExtContext, op, table string, id int64, qty int) error {
	if qty <= 0 {
		return repositories.NewStockError(op, repositories.StockErrorInvalidQuantity, fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	res, err := exec.ExecContext(ctx,
		`UPDATE `+table+` SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?`,
		qty, time.Now().UTC(), id, qty)
	if err != nil {
		return database.WrapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return database.WrapError(op, err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = sqlx.GetContext(ctx, exec, &exists, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return database.WrapError(op, err)
	}
	if exists == 0 {
		return database.NotFound(op, fmt.Sprintf("%s %d not found", table, id))
	}
	return repositories.NewStockError(op, repositories.StockErrorInsufficient, fmt.Sprintf("%s %d has fewer than %d units", table, id, qty))
}

func increment(ctx context.Context, exec sqlx.ExtContext, op, table string, id int64, qty int) error {
	if qty <= 0 {
		return repositories.NewStockError(op, repositories.StockErrorInvalidQuantity, fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	res, err := exec.ExecContext(ctx,
		`UPDATE `+table+` SET quantity = quantity + ?, updated_at = ? WHERE id = ?`,
		qty, time.Now().UTC(), id)
	if err != nil {
		return database.WrapError(op, err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return database.WrapError(op, err)
	} else if affected == 0 {
		return database.NotFound(op, fmt.Sprintf("%s %d not found", table, id))
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
