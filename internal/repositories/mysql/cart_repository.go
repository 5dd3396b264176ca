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

const cartSelect = `SELECT c.id, c.user_id, c.item_id, c.damaged_item_id, i.item_name, c.quantity, c.price,
	c.is_selected, c.created_at, c.updated_at
	FROM carts c JOIN items i ON i.id = c.item_id`

// CartRepository stores cart lines in the carts table. Reads join items for the display name;
// every query is scoped to the owning user.
type CartRepository struct {
	db *sqlx.DB
}

var _ repositories.CartRepository = (*CartRepository)(nil)

type cartRow struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	ItemID        int64           `db:"item_id"`
	DamagedItemID sql.NullInt64   `db:"damaged_item_id"`
	ItemName      string          `db:"item_name"`
	Quantity      int             `db:"quantity"`
	Price         decimal.Decimal `db:"price"`
	Selected      bool            `db:"is_selected"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r cartRow) toDomain() domain.CartLine {
	return domain.CartLine{
		ID:            r.ID,
		UserID:        r.UserID,
		ItemID:        r.ItemID,
		DamagedItemID: int64Ptr(r.DamagedItemID),
		ItemName:      r.ItemName,
		Quantity:      r.Quantity,
		Price:         r.Price,
		Selected:      r.Selected,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (r *CartRepository) ListByUser(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return r.list(ctx, "carts.list", cartSelect+` WHERE c.user_id = ? ORDER BY c.id`, userID)
}

func (r *CartRepository) ListSelected(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	return r.list(ctx, "carts.list_selected", cartSelect+` WHERE c.user_id = ? AND c.is_selected = 1 ORDER BY c.id`, userID)
}

func (r *CartRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.CartLine, error) {
	var rows []cartRow
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &rows, query, args...); err != nil {
		return nil, database.WrapError(op, err)
	}
	lines := make([]domain.CartLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toDomain())
	}
	return lines, nil
}

func (r *CartRepository) FindByID(ctx context.Context, userID, lineID int64) (domain.CartLine, error) {
	return r.find(ctx, "carts.find", cartSelect+` WHERE c.id = ? AND c.user_id = ?`, lineID, userID)
}

func (r *CartRepository) FindMatching(ctx context.Context, userID, itemID int64, damagedItemID *int64) (domain.CartLine, error) {
	return r.find(ctx, "carts.find_matching",
		cartSelect+` WHERE c.user_id = ? AND c.item_id = ? AND c.damaged_item_key = ?`,
		userID, itemID, damagedKey(damagedItemID))
}

func (r *CartRepository) find(ctx context.Context, op, query string, args ...any) (domain.CartLine, error) {
	var row cartRow
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &row, query, args...); err != nil {
		return domain.CartLine{}, database.WrapError(op, err)
	}
	return row.toDomain(), nil
}

func (r *CartRepository) Insert(ctx context.Context, line domain.CartLine) (domain.CartLine, error) {
	now := line.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	line.CreatedAt, line.UpdatedAt = now, now

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `INSERT INTO carts
		(user_id, item_id, damaged_item_id, quantity, price, is_selected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		line.UserID, line.ItemID, nullInt64(line.DamagedItemID), line.Quantity, line.Price, line.Selected,
		line.CreatedAt, line.UpdatedAt)
	if err != nil {
		return domain.CartLine{}, database.WrapError("carts.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.CartLine{}, database.WrapError("carts.insert", err)
	}
	line.ID = id
	return line, nil
}

func (r *CartRepository) Update(ctx context.Context, line domain.CartLine) error {
	updatedAt := line.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE carts SET quantity = ?, price = ?, is_selected = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		line.Quantity, line.Price, line.Selected, updatedAt, line.ID, line.UserID)
	return expectRow(res, err, "carts.update", fmt.Sprintf("cart line %d not found", line.ID))
}

func (r *CartRepository) Delete(ctx context.Context, userID, lineID int64) error {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM carts WHERE id = ? AND user_id = ?`, lineID, userID)
	return expectRow(res, err, "carts.delete", fmt.Sprintf("cart line %d not found", lineID))
}

func (r *CartRepository) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM carts WHERE user_id = ?`, userID); err != nil {
		return database.WrapError("carts.delete_by_user", err)
	}
	return nil
}

// DeleteLines removes exactly the given lines, leaving anything added since they were read.
func (r *CartRepository) DeleteLines(ctx context.Context, userID int64, lineIDs []int64) (int64, error) {
	if len(lineIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM carts WHERE user_id = ? AND id IN (?)`, userID, lineIDs)
	if err != nil {
		return 0, database.WrapError("carts.delete_lines", err)
	}
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, database.WrapError("carts.delete_lines", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, database.WrapError("carts.delete_lines", err)
	}
	return affected, nil
}

func (r *CartRepository) SetSelectedAll(ctx context.Context, userID int64, selected bool) error {
	_, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE carts SET is_selected = ?, updated_at = ? WHERE user_id = ?`, selected, time.Now().UTC(), userID)
	if err != nil {
		return database.WrapError("carts.set_selected_all", err)
	}
	return nil
}

func damagedKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func nullInt64(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
