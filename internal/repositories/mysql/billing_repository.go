package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const billingColumns = `id, order_id, billing_number, amount, status, paid_at, created_at, updated_at`

// BillingRepository stores billings in the billings table. Numbers are unique per row.
type BillingRepository struct {
	db *sqlx.DB
}

var _ repositories.BillingRepository = (*BillingRepository)(nil)

type billingRow struct {
	ID        int64           `db:"id"`
	OrderID   int64           `db:"order_id"`
	Number    string          `db:"billing_number"`
	Amount    decimal.Decimal `db:"amount"`
	Status    string          `db:"status"`
	PaidAt    sql.NullTime    `db:"paid_at"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r billingRow) toDomain() domain.Billing {
	return domain.Billing{
		ID:        r.ID,
		OrderID:   r.OrderID,
		Number:    r.Number,
		Amount:    r.Amount,
		Status:    domain.BillingStatus(r.Status),
		PaidAt:    timePtr(r.PaidAt),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (r *BillingRepository) FindByOrderID(ctx context.Context, orderID int64) (domain.Billing, error) {
	var row billingRow
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &row,
		`SELECT `+billingColumns+` FROM billings WHERE order_id = ?`, orderID)
	if err != nil {
		return domain.Billing{}, database.WrapError("billings.find_by_order", err)
	}
	return row.toDomain(), nil
}

func (r *BillingRepository) Insert(ctx context.Context, billing domain.Billing) (domain.Billing, error) {
	now := billing.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	billing.CreatedAt, billing.UpdatedAt = now, now

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `INSERT INTO billings
		(order_id, billing_number, amount, status, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		billing.OrderID, billing.Number, billing.Amount, string(billing.Status), nullTime(billing.PaidAt),
		billing.CreatedAt, billing.UpdatedAt)
	if err != nil {
		return domain.Billing{}, database.WrapError("billings.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Billing{}, database.WrapError("billings.insert", err)
	}
	billing.ID = id
	return billing, nil
}

func (r *BillingRepository) Update(ctx context.Context, billing domain.Billing) error {
	updatedAt := billing.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE billings SET amount = ?, status = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		billing.Amount, string(billing.Status), nullTime(billing.PaidAt), updatedAt, billing.ID)
	return expectRow(res, err, "billings.update", fmt.Sprintf("billing %d not found", billing.ID))
}

// LatestNumberOn returns "" when no billing was created on day. It is a locking read: inside a
// transaction it sees the newest committed number and holds the day's index range until commit.
func (r *BillingRepository) LatestNumberOn(ctx context.Context, day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).UTC()
	end := start.AddDate(0, 0, 1)

	var number string
	err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &number,
		`SELECT billing_number FROM billings WHERE created_at >= ? AND created_at < ? ORDER BY id DESC LIMIT 1 FOR UPDATE`,
		start, end)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", database.WrapError("billings.latest_number", err)
	}
	return number, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
