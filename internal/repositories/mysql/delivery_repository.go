package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const deliveryColumns = `id, order_id, status, scheduled_date, actual_delivery_date, driver_name, remarks,
	proof_of_delivery, created_at, updated_at`

// DeliveryRepository stores one delivery row per delivery-method order.
type DeliveryRepository struct {
	db *sqlx.DB
}

var _ repositories.DeliveryRepository = (*DeliveryRepository)(nil)

type deliveryRow struct {
	ID                 int64          `db:"id"`
	OrderID            int64          `db:"order_id"`
	Status             string         `db:"status"`
	ScheduledDate      time.Time      `db:"scheduled_date"`
	ActualDeliveryDate sql.NullTime   `db:"actual_delivery_date"`
	DriverName         sql.NullString `db:"driver_name"`
	Remarks            sql.NullString `db:"remarks"`
	ProofOfDelivery    sql.NullString `db:"proof_of_delivery"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r deliveryRow) toDomain() domain.Delivery {
	return domain.Delivery{
		ID:                 r.ID,
		OrderID:            r.OrderID,
		Status:             domain.DeliveryStatus(r.Status),
		ScheduledDate:      r.ScheduledDate.UTC(),
		ActualDeliveryDate: timePtr(r.ActualDeliveryDate),
		DriverName:         r.DriverName.String,
		Remarks:            r.Remarks.String,
		ProofOfDelivery:    r.ProofOfDelivery.String,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func (r *DeliveryRepository) FindByID(ctx context.Context, deliveryID int64) (domain.Delivery, error) {
	return r.find(ctx, "deliveries.find", `SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, deliveryID)
}

func (r *DeliveryRepository) FindByOrderID(ctx context.Context, orderID int64) (domain.Delivery, error) {
	return r.find(ctx, "deliveries.find_by_order", `SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = ?`, orderID)
}

func (r *DeliveryRepository) find(ctx context.Context, op, query string, id int64) (domain.Delivery, error) {
	var row deliveryRow
	if err := sqlx.GetContext(ctx, database.Executor(ctx, r.db), &row, query, id); err != nil {
		return domain.Delivery{}, database.WrapError(op, err)
	}
	return row.toDomain(), nil
}

func (r *DeliveryRepository) Insert(ctx context.Context, delivery domain.Delivery) (domain.Delivery, error) {
	now := delivery.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	delivery.CreatedAt, delivery.UpdatedAt = now, now

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `INSERT INTO deliveries
		(order_id, status, scheduled_date, actual_delivery_date, driver_name, remarks, proof_of_delivery, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.OrderID, string(delivery.Status), delivery.ScheduledDate.UTC(), nullTime(delivery.ActualDeliveryDate),
		nullString(delivery.DriverName), nullString(delivery.Remarks), nullString(delivery.ProofOfDelivery),
		delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		return domain.Delivery{}, database.WrapError("deliveries.insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Delivery{}, database.WrapError("deliveries.insert", err)
	}
	delivery.ID = id
	return delivery, nil
}

func (r *DeliveryRepository) Update(ctx context.Context, delivery domain.Delivery) error {
	updatedAt := delivery.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, `UPDATE deliveries
		SET status = ?, scheduled_date = ?, actual_delivery_date = ?, driver_name = ?, remarks = ?,
		    proof_of_delivery = ?, updated_at = ?
		WHERE id = ?`,
		string(delivery.Status), delivery.ScheduledDate.UTC(), nullTime(delivery.ActualDeliveryDate),
		nullString(delivery.DriverName), nullString(delivery.Remarks), nullString(delivery.ProofOfDelivery),
		updatedAt, delivery.ID)
	return expectRow(res, err, "deliveries.update", fmt.Sprintf("delivery %d not found", delivery.ID))
}
