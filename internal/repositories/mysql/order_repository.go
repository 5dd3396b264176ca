package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/platform/pagination"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const orderColumns = `id, user_id, customer_email, status, payment_method, delivery_method, delivery_address,
	total_amount, paymongo_session_id, paymongo_payment_id, created_at, updated_at`

// OrderRepository stores orders and their order_items snapshots.
type OrderRepository struct {
	db *sqlx.DB
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

type orderRow struct {
	ID               int64           `db:"id"`
	UserID           int64           `db:"user_id"`
	CustomerEmail    string          `db:"customer_email"`
	Status           string          `db:"status"`
	PaymentMethod    string          `db:"payment_method"`
	DeliveryMethod   string          `db:"delivery_method"`
	DeliveryAddress  sql.NullString  `db:"delivery_address"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	PaymentSessionID sql.NullString  `db:"paymongo_session_id"`
	PaymentID        sql.NullString  `db:"paymongo_payment_id"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:               r.ID,
		UserID:           r.UserID,
		CustomerEmail:    r.CustomerEmail,
		Status:           domain.OrderStatus(r.Status),
		PaymentMethod:    domain.PaymentMethod(r.PaymentMethod),
		DeliveryMethod:   domain.DeliveryMethod(r.DeliveryMethod),
		DeliveryAddress:  r.DeliveryAddress.String,
		TotalAmount:      r.TotalAmount,
		PaymentSessionID: r.PaymentSessionID.String,
		PaymentID:        r.PaymentID.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type orderItemRow struct {
	ID            int64           `db:"id"`
	OrderID       int64           `db:"order_id"`
	ItemID        int64           `db:"item_id"`
	DamagedItemID sql.NullInt64   `db:"damaged_item_id"`
	ItemName      string          `db:"item_name"`
	Quantity      int             `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
}

func (r orderItemRow) toDomain() domain.OrderItem {
	return domain.OrderItem{
		ID:            r.ID,
		OrderID:       r.OrderID,
		ItemID:        r.ItemID,
		DamagedItemID: int64Ptr(r.DamagedItemID),
		ItemName:      r.ItemName,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice,
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	exec := database.Executor(ctx, r.db)
	now := order.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	order.CreatedAt, order.UpdatedAt = now, now

	res, err := exec.ExecContext(ctx, `INSERT INTO orders
		(user_id, customer_email, status, payment_method, delivery_method, delivery_address, total_amount,
		 paymongo_session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.CustomerEmail, string(order.Status), string(order.PaymentMethod),
		string(order.DeliveryMethod), nullString(order.DeliveryAddress), order.TotalAmount,
		nullString(order.PaymentSessionID), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return domain.Order{}, database.WrapError("orders.insert", err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return domain.Order{}, database.WrapError("orders.insert", err)
	}
	order.ID = orderID

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = orderID
		res, err := exec.ExecContext(ctx, `INSERT INTO order_items
			(order_id, item_id, damaged_item_id, item_name, quantity, unit_price, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, item.ItemID, nullInt64(item.DamagedItemID), item.ItemName, item.Quantity, item.UnitPrice, now)
		if err != nil {
			return domain.Order{}, database.WrapError("order_items.insert", err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return domain.Order{}, database.WrapError("order_items.insert", err)
		}
	}
	return order, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	return r.find(ctx, "orders.find", `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
}

func (r *OrderRepository) FindForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	return r.find(ctx, "orders.find_for_update", `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, orderID)
}

func (r *OrderRepository) find(ctx context.Context, op, query string, orderID int64) (domain.Order, error) {
	exec := database.Executor(ctx, r.db)
	var row orderRow
	if err := sqlx.GetContext(ctx, exec, &row, query, orderID); err != nil {
		return domain.Order{}, database.WrapError(op, err)
	}
	order := row.toDomain()

	var items []orderItemRow
	err := sqlx.SelectContext(ctx, exec, &items, `SELECT id, order_id, item_id, damaged_item_id, item_name, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return domain.Order{}, database.WrapError(op, err)
	}
	order.Items = make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, item.toDomain())
	}
	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus, updatedAt time.Time) error {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, string(status), updatedAt.UTC(), orderID)
	return expectRow(res, err, "orders.update_status", fmt.Sprintf("order %d not found", orderID))
}

func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET paymongo_session_id = ?, updated_at = ? WHERE id = ?`, sessionID, time.Now().UTC(), orderID)
	return expectRow(res, err, "orders.set_payment_session", fmt.Sprintf("order %d not found", orderID))
}

func (r *OrderRepository) SetPaymentID(ctx context.Context, orderID int64, paymentID string) error {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx,
		`UPDATE orders SET paymongo_payment_id = ?, updated_at = ? WHERE id = ?`, paymentID, time.Now().UTC(), orderID)
	return expectRow(res, err, "orders.set_payment_id", fmt.Sprintf("order %d not found", orderID))
}

// List pages newest first using the order id as the keyset position. Items are not loaded.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.PaymentMethod != nil {
		where = append(where, "payment_method = ?")
		args = append(args, string(*filter.PaymentMethod))
	}
	if filter.DeliveryMethod != nil {
		where = append(where, "delivery_method = ?")
		args = append(args, string(*filter.DeliveryMethod))
	}
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if cursor.AfterID > 0 {
		where = append(where, "id < ?")
		args = append(args, cursor.AfterID)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, pageSize+1)

	var rows []orderRow
	if err := sqlx.SelectContext(ctx, database.Executor(ctx, r.db), &rows, query, args...); err != nil {
		return domain.CursorPage[domain.Order]{}, database.WrapError("orders.list", err)
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(rows), pageSize))}
	for i, row := range rows {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{AfterID: rows[i-1].ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, row.toDomain())
	}
	return page, nil
}
