package mysql

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/RLASH18/abg-prime-v2/internal/platform/database"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

// Registry wires every MySQL repository to a shared pool and unit of work.
type Registry struct {
	db     *sqlx.DB
	uow    *database.UnitOfWork
	health repositories.HealthRepository

	items      *ItemRepository
	damaged    *DamagedItemRepository
	carts      *CartRepository
	orders     *OrderRepository
	billings   *BillingRepository
	deliveries *DeliveryRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repositories. health may be nil, in which case a database ping is used.
func NewRegistry(db *sqlx.DB, health repositories.HealthRepository, opts ...database.TxOption) (*Registry, error) {
	if db == nil {
		return nil, errors.New("mysql registry: database is required")
	}
	if health == nil {
		var err error
		health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{Name: "mysql", Check: func(ctx context.Context) error { return database.Ping(ctx, db) }},
		})
		if err != nil {
			return nil, err
		}
	}
	return &Registry{
		db:         db,
		uow:        database.NewUnitOfWork(db, opts...),
		health:     health,
		items:      &ItemRepository{db: db},
		damaged:    &DamagedItemRepository{db: db},
		carts:      &CartRepository{db: db},
		orders:     &OrderRepository{db: db},
		billings:   &BillingRepository{db: db},
		deliveries: &DeliveryRepository{db: db},
	}, nil
}

// Close releases the pool.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// RunInTx runs fn in a transaction that every repository of the registry joins through ctx.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Items() repositories.ItemRepository               { return r.items }
func (r *Registry) DamagedItems() repositories.DamagedItemRepository { return r.damaged }
func (r *Registry) Carts() repositories.CartRepository               { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Billings() repositories.BillingRepository         { return r.billings }
func (r *Registry) Deliveries() repositories.DeliveryRepository      { return r.deliveries }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }
