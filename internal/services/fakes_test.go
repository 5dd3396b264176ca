package services

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/payments"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

type fakeRepoError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *fakeRepoError) Error() string       { return e.msg }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return e.conflict }
func (e *fakeRepoError) IsUnavailable() bool { return false }

func errNotFound(what string) error { return &fakeRepoError{msg: what + " not found", notFound: true} }
func errConflict(what string) error { return &fakeRepoError{msg: what + " conflict", conflict: true} }

// memoryStore backs every repository with maps. RunInTx snapshots the maps and restores them when
// fn fails, which is enough to observe rollback behaviour in service tests.
type memoryStore struct {
	mu sync.Mutex

	items      map[int64]domain.Item
	damaged    map[int64]domain.DamagedItem
	carts      map[int64]domain.CartLine
	orders     map[int64]domain.Order
	billings   map[int64]domain.Billing
	deliveries map[int64]domain.Delivery
	nextID     int64

	txDepth      int
	commits      int
	rollbacks    int
	billingTaken map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:        map[int64]domain.Item{},
		damaged:      map[int64]domain.DamagedItem{},
		carts:        map[int64]domain.CartLine{},
		orders:       map[int64]domain.Order{},
		billings:     map[int64]domain.Billing{},
		deliveries:   map[int64]domain.Delivery{},
		billingTaken: map[string]bool{},
	}
}

func (m *memoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

type storeSnapshot struct {
	items      map[int64]domain.Item
	damaged    map[int64]domain.DamagedItem
	carts      map[int64]domain.CartLine
	orders     map[int64]domain.Order
	billings   map[int64]domain.Billing
	deliveries map[int64]domain.Delivery
	taken      map[string]bool
}

func (m *memoryStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	depth := m.txDepth
	m.txDepth++
	var snap storeSnapshot
	if depth == 0 {
		snap = storeSnapshot{
			items:      maps.Clone(m.items),
			damaged:    maps.Clone(m.damaged),
			carts:      maps.Clone(m.carts),
			orders:     maps.Clone(m.orders),
			billings:   maps.Clone(m.billings),
			deliveries: maps.Clone(m.deliveries),
			taken:      maps.Clone(m.billingTaken),
		}
	}
	m.mu.Unlock()

	err := fn(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.txDepth--
	if depth > 0 {
		return err
	}
	if err != nil {
		m.items, m.damaged, m.carts = snap.items, snap.damaged, snap.carts
		m.orders, m.billings, m.deliveries = snap.orders, snap.billings, snap.deliveries
		m.billingTaken = snap.taken
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func (m *memoryStore) addItem(name string, price string, qty int) domain.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := domain.Item{ID: m.id(), Name: name, UnitPrice: decimal.RequireFromString(price), Quantity: qty, RestockThreshold: 10}
	m.items[item.ID] = item
	return item
}

func (m *memoryStore) addDamaged(itemID int64, price string, qty int, status domain.DamagedItemStatus) domain.DamagedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := domain.DamagedItem{ID: m.id(), ItemID: itemID, DiscountedPrice: decimal.RequireFromString(price), Quantity: qty, Status: status}
	m.damaged[d.ID] = d
	return d
}

func (m *memoryStore) itemQty(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Quantity
}

func (m *memoryStore) damagedQty(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.damaged[id].Quantity
}

func (m *memoryStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memoryStore) cartLines(userID int64) []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linesLocked(userID, false)
}

func (m *memoryStore) linesLocked(userID int64, selectedOnly bool) []domain.CartLine {
	var out []domain.CartLine
	for _, line := range m.carts {
		if line.UserID != userID || (selectedOnly && !line.Selected) {
			continue
		}
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryStore) Items() repositories.ItemRepository               { return memoryItems{m} }
func (m *memoryStore) DamagedItems() repositories.DamagedItemRepository { return memoryDamaged{m} }
func (m *memoryStore) Carts() repositories.CartRepository               { return memoryCarts{m} }
func (m *memoryStore) Orders() repositories.OrderRepository             { return memoryOrders{m} }
func (m *memoryStore) Billings() repositories.BillingRepository         { return memoryBillings{m} }
func (m *memoryStore) Deliveries() repositories.DeliveryRepository      { return memoryDeliveries{m} }

type memoryItems struct{ m *memoryStore }

func (r memoryItems) FindByID(_ context.Context, id int64) (domain.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.items[id]
	if !ok {
		return domain.Item{}, errNotFound("item")
	}
	return item, nil
}

func (r memoryItems) FindForUpdate(ctx context.Context, id int64) (domain.Item, error) {
	return r.FindByID(ctx, id)
}

func (r memoryItems) Insert(_ context.Context, item domain.Item) (domain.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.items {
		if existing.Code != "" && existing.Code == item.Code {
			return domain.Item{}, errConflict("item code")
		}
	}
	item.ID = r.m.id()
	r.m.items[item.ID] = item
	return item, nil
}

func (r memoryItems) LatestByCategory(_ context.Context, category string) (domain.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var latest domain.Item
	for _, item := range r.m.items {
		if item.Category == category && item.ID > latest.ID {
			latest = item
		}
	}
	if latest.ID == 0 {
		return domain.Item{}, errNotFound("item")
	}
	return latest, nil
}

func (r memoryItems) ListLowStock(_ context.Context, limit int) ([]domain.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Item
	for _, item := range r.m.items {
		if item.IsLowStock() {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryItems) DecrementStock(_ context.Context, id int64, qty int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.items[id]
	if !ok {
		return errNotFound("item")
	}
	if item.Quantity < qty {
		return repositories.NewStockError("items.decrement", repositories.StockErrorInsufficient, "")
	}
	item.Quantity -= qty
	r.m.items[id] = item
	return nil
}

func (r memoryItems) IncrementStock(_ context.Context, id int64, qty int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	item, ok := r.m.items[id]
	if !ok {
		return errNotFound("item")
	}
	item.Quantity += qty
	r.m.items[id] = item
	return nil
}

type memoryDamaged struct{ m *memoryStore }

func (r memoryDamaged) FindByID(_ context.Context, id int64) (domain.DamagedItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.damaged[id]
	if !ok {
		return domain.DamagedItem{}, errNotFound("damaged item")
	}
	return d, nil
}

func (r memoryDamaged) FindForUpdate(ctx context.Context, id int64) (domain.DamagedItem, error) {
	return r.FindByID(ctx, id)
}

func (r memoryDamaged) Insert(_ context.Context, d domain.DamagedItem) (domain.DamagedItem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d.ID = r.m.id()
	r.m.damaged[d.ID] = d
	return d, nil
}

func (r memoryDamaged) Update(_ context.Context, d domain.DamagedItem) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.damaged[d.ID]; !ok {
		return errNotFound("damaged item")
	}
	r.m.damaged[d.ID] = d
	return nil
}

func (r memoryDamaged) Delete(_ context.Context, id int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.damaged[id]; !ok {
		return errNotFound("damaged item")
	}
	delete(r.m.damaged, id)
	return nil
}

func (r memoryDamaged) DecrementStock(_ context.Context, id int64, qty int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.damaged[id]
	if !ok {
		return errNotFound("damaged item")
	}
	if d.Quantity < qty {
		return repositories.NewStockError("damaged_items.decrement", repositories.StockErrorInsufficient, "")
	}
	d.Quantity -= qty
	r.m.damaged[id] = d
	return nil
}

func (r memoryDamaged) IncrementStock(_ context.Context, id int64, qty int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.damaged[id]
	if !ok {
		return errNotFound("damaged item")
	}
	d.Quantity += qty
	r.m.damaged[id] = d
	return nil
}

type memoryCarts struct{ m *memoryStore }

func (r memoryCarts) ListByUser(_ context.Context, userID int64) ([]domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.linesLocked(userID, false), nil
}

func (r memoryCarts) ListSelected(_ context.Context, userID int64) ([]domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.linesLocked(userID, true), nil
}

func (r memoryCarts) FindByID(_ context.Context, userID, lineID int64) (domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	line, ok := r.m.carts[lineID]
	if !ok || line.UserID != userID {
		return domain.CartLine{}, errNotFound("cart line")
	}
	return line, nil
}

func (r memoryCarts) FindMatching(_ context.Context, userID, itemID int64, damagedItemID *int64) (domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, line := range r.m.linesLocked(userID, false) {
		if line.ItemID != itemID {
			continue
		}
		if (line.DamagedItemID == nil) != (damagedItemID == nil) {
			continue
		}
		if damagedItemID != nil && *line.DamagedItemID != *damagedItemID {
			continue
		}
		return line, nil
	}
	return domain.CartLine{}, errNotFound("cart line")
}

func (r memoryCarts) Insert(_ context.Context, line domain.CartLine) (domain.CartLine, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	line.ID = r.m.id()
	r.m.carts[line.ID] = line
	return line, nil
}

func (r memoryCarts) Update(_ context.Context, line domain.CartLine) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.carts[line.ID]; !ok {
		return errNotFound("cart line")
	}
	r.m.carts[line.ID] = line
	return nil
}

func (r memoryCarts) Delete(_ context.Context, userID, lineID int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	line, ok := r.m.carts[lineID]
	if !ok || line.UserID != userID {
		return errNotFound("cart line")
	}
	delete(r.m.carts, lineID)
	return nil
}

func (r memoryCarts) DeleteByUser(_ context.Context, userID int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	maps.DeleteFunc(r.m.carts, func(_ int64, line domain.CartLine) bool { return line.UserID == userID })
	return nil
}

func (r memoryCarts) DeleteLines(_ context.Context, userID int64, lineIDs []int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	maps.DeleteFunc(r.m.carts, func(id int64, line domain.CartLine) bool {
		if line.UserID == userID && slices.Contains(lineIDs, id) {
			n++
			return true
		}
		return false
	})
	return n, nil
}

func (r memoryCarts) SetSelectedAll(_ context.Context, userID int64, selected bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, line := range r.m.carts {
		if line.UserID == userID {
			line.Selected = selected
			r.m.carts[id] = line
		}
	}
	return nil
}

type memoryOrders struct{ m *memoryStore }

func (r memoryOrders) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order.ID = r.m.id()
	items := slices.Clone(order.Items)
	for i := range items {
		items[i].ID = r.m.id()
		items[i].OrderID = order.ID
	}
	order.Items = items
	r.m.orders[order.ID] = order
	return order, nil
}

func (r memoryOrders) FindByID(_ context.Context, id int64) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[id]
	if !ok {
		return domain.Order{}, errNotFound("order")
	}
	return order, nil
}

func (r memoryOrders) FindForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memoryOrders) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus, at time.Time) error {
	return r.mutate(id, func(o *domain.Order) { o.Status, o.UpdatedAt = status, at })
}

func (r memoryOrders) SetPaymentSession(_ context.Context, id int64, sessionID string) error {
	return r.mutate(id, func(o *domain.Order) { o.PaymentSessionID = sessionID })
}

func (r memoryOrders) SetPaymentID(_ context.Context, id int64, paymentID string) error {
	return r.mutate(id, func(o *domain.Order) { o.PaymentID = paymentID })
}

func (r memoryOrders) mutate(id int64, fn func(*domain.Order)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[id]
	if !ok {
		return errNotFound("order")
	}
	fn(&order)
	r.m.orders[id] = order
	return nil
}

func (r memoryOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Order
	for _, order := range r.m.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.Pagination.PageSize {
		out = out[:filter.Pagination.PageSize]
	}
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

type memoryBillings struct{ m *memoryStore }

func (r memoryBillings) FindByOrderID(_ context.Context, orderID int64) (domain.Billing, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, b := range r.m.billings {
		if b.OrderID == orderID {
			return b, nil
		}
	}
	return domain.Billing{}, errNotFound("billing")
}

func (r memoryBillings) Insert(_ context.Context, b domain.Billing) (domain.Billing, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.billingTaken[b.Number] {
		return domain.Billing{}, errConflict("billing number")
	}
	for _, existing := range r.m.billings {
		if existing.OrderID == b.OrderID {
			return domain.Billing{}, errConflict("billing order")
		}
	}
	b.ID = r.m.id()
	r.m.billings[b.ID] = b
	r.m.billingTaken[b.Number] = true
	return b, nil
}

func (r memoryBillings) Update(_ context.Context, b domain.Billing) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.billings[b.ID]; !ok {
		return errNotFound("billing")
	}
	r.m.billings[b.ID] = b
	return nil
}

func (r memoryBillings) LatestNumberOn(_ context.Context, day time.Time) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	prefix := "BL-" + day.Format("20060102") + "-"
	latest := ""
	for _, b := range r.m.billings {
		if strings.HasPrefix(b.Number, prefix) && b.Number > latest {
			latest = b.Number
		}
	}
	return latest, nil
}

type memoryDeliveries struct{ m *memoryStore }

func (r memoryDeliveries) FindByID(_ context.Context, id int64) (domain.Delivery, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.deliveries[id]
	if !ok {
		return domain.Delivery{}, errNotFound("delivery")
	}
	return d, nil
}

func (r memoryDeliveries) FindByOrderID(_ context.Context, orderID int64) (domain.Delivery, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, d := range r.m.deliveries {
		if d.OrderID == orderID {
			return d, nil
		}
	}
	return domain.Delivery{}, errNotFound("delivery")
}

func (r memoryDeliveries) Insert(_ context.Context, d domain.Delivery) (domain.Delivery, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.deliveries {
		if existing.OrderID == d.OrderID {
			return domain.Delivery{}, errConflict("delivery order")
		}
	}
	d.ID = r.m.id()
	r.m.deliveries[d.ID] = d
	return d, nil
}

func (r memoryDeliveries) Update(_ context.Context, d domain.Delivery) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.deliveries[d.ID]; !ok {
		return errNotFound("delivery")
	}
	r.m.deliveries[d.ID] = d
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// testRig wires every service over one memoryStore.
type testRig struct {
	store      *memoryStore
	ledger     StockLedger
	carts      CartService
	billing    BillingService
	deliveries DeliveryService
	orders     OrderService
	checkout   CheckoutService
	damaged    DamagedItemService
	inventory  InventoryService
	payments   *stubSessionManager
	notifier   *recordingNotifier
	events     *recordingEvents
	now        time.Time
}

type stubSessionManager struct {
	calls       int
	keys        []string
	lastPayment payments.PaymentContext
	lastRequest payments.CheckoutSessionRequest
	err         error
}

func (s *stubSessionManager) CreateCheckoutSession(_ context.Context, pc payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.calls++
	s.lastPayment = pc
	s.lastRequest = req
	s.keys = append(s.keys, req.IdempotencyKey)
	if s.err != nil {
		return payments.CheckoutSession{}, s.err
	}
	return payments.CheckoutSession{
		ID:          "cs_test_" + req.Metadata["order_id"],
		Provider:    payments.ProviderPayMongo,
		RedirectURL: "https://checkout.paymongo.com/cs_test_" + req.Metadata["order_id"],
	}, nil
}

func newTestRig(t testing.TB) *testRig {
	t.Helper()
	now := time.Date(2025, time.December, 14, 9, 30, 0, 0, time.UTC)
	store := newMemoryStore()
	rig := &testRig{
		store:    store,
		payments: &stubSessionManager{},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		now:      now,
	}
	must := func(err error) {
		if err != nil {
			t.Fatalf("wire services: %v", err)
		}
	}
	var err error
	rig.ledger, err = NewStockLedger(StockLedgerDeps{Items: store.Items(), DamagedItems: store.DamagedItems()})
	must(err)
	rig.carts, err = NewCartService(CartServiceDeps{Carts: store.Carts(), Stock: rig.ledger, UnitOfWork: store, Clock: fixedClock(now)})
	must(err)
	rig.billing, err = NewBillingService(BillingServiceDeps{Billings: store.Billings(), Clock: fixedClock(now)})
	must(err)
	rig.deliveries, err = NewDeliveryService(DeliveryServiceDeps{Deliveries: store.Deliveries(), Orders: store.Orders(), UnitOfWork: store, Events: rig.events, Clock: fixedClock(now)})
	must(err)
	rig.orders, err = NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Billing:    rig.billing,
		Deliveries: rig.deliveries,
		UnitOfWork: store,
		Notifier:   rig.notifier,
		Events:     rig.events,
		Clock:      fixedClock(now),
	})
	must(err)
	rig.checkout, err = NewCheckoutService(CheckoutServiceDeps{
		Carts:      store.Carts(),
		Orders:     store.Orders(),
		Stock:      rig.ledger,
		Payments:   rig.payments,
		OrderFlow:  rig.orders,
		UnitOfWork: store,
		SuccessURL: "https://shop.test/payment/success",
		CancelURL:  "https://shop.test/payment/failed",
		Clock:      fixedClock(now),
	})
	must(err)
	rig.damaged, err = NewDamagedItemService(DamagedItemServiceDeps{Items: store.Items(), DamagedItems: store.DamagedItems(), Stock: rig.ledger, UnitOfWork: store, Clock: fixedClock(now)})
	must(err)
	rig.inventory, err = NewInventoryService(InventoryServiceDeps{Items: store.Items(), UnitOfWork: store, Clock: fixedClock(now)})
	must(err)
	return rig
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []OrderConfirmation
	err  error
}

func (n *recordingNotifier) NotifyOrderConfirmation(_ context.Context, c OrderConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return n.err
}

type recordingEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (e *recordingEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}
