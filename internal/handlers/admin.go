package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/platform/httpx"
	"github.com/RLASH18/abg-prime-v2/internal/platform/observability"
	"github.com/RLASH18/abg-prime-v2/internal/platform/pagination"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

const defaultLowStockLimit = 50

// AdminServices groups the back-office services. Nil members disable their routes' handlers with a 503.
type AdminServices struct {
	Orders       services.OrderService
	Billings     services.BillingService
	Deliveries   services.DeliveryService
	DamagedItems services.DamagedItemService
	Inventory    services.InventoryService
}

// AdminHandlers exposes order, delivery, and stock administration for staff.
type AdminHandlers struct {
	authn *auth.Authenticator
	svc   AdminServices
}

func NewAdminHandlers(authn *auth.Authenticator, svc AdminServices) *AdminHandlers {
	return &AdminHandlers{authn: authn, svc: svc}
}

// Routes registers endpoints under /admin. Every route requires the admin or staff role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleStaff), observability.IdentityLogMiddleware)

	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/status", h.updateOrderStatus)
	r.Get("/orders/{orderID}/billing", h.getBilling)

	r.Get("/deliveries/{deliveryID}", h.getDelivery)
	r.Put("/deliveries/{deliveryID}/status", h.updateDeliveryStatus)

	r.Post("/damaged-items", h.markDamaged)
	r.Patch("/damaged-items/{damagedItemID}", h.updateDamaged)
	r.Delete("/damaged-items/{damagedItemID}", h.deleteDamaged)

	r.Post("/items", h.createItem)
	r.Get("/items/low-stock", h.lowStock)
}

type orderItemPayload struct {
	ID            int64  `json:"id"`
	ItemID        int64  `json:"item_id"`
	DamagedItemID *int64 `json:"damaged_item_id,omitempty"`
	ItemName      string `json:"item_name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	Subtotal      string `json:"subtotal"`
}

type orderPayload struct {
	ID              int64              `json:"id"`
	Number          string             `json:"number"`
	UserID          int64              `json:"user_id"`
	Status          string             `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	DeliveryMethod  string             `json:"delivery_method"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
	TotalAmount     string             `json:"total_amount"`
	PaymentID       string             `json:"payment_id,omitempty"`
	NextStatuses    []string           `json:"next_statuses"`
	Items           []orderItemPayload `json:"items,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

type orderListPayload struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type billingPayload struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	Number    string `json:"number"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	PaidAt    string `json:"paid_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

type deliveryPayload struct {
	ID                 int64  `json:"id"`
	OrderID            int64  `json:"order_id"`
	Status             string `json:"status"`
	ScheduledDate      string `json:"scheduled_date"`
	ActualDeliveryDate string `json:"actual_delivery_date,omitempty"`
	DriverName         string `json:"driver_name,omitempty"`
	Remarks            string `json:"remarks,omitempty"`
	ProofURL           string `json:"proof_url,omitempty"`
	ProofExpiresAt     string `json:"proof_expires_at,omitempty"`
	UpdatedAt          string `json:"updated_at"`
}

type damagedItemPayload struct {
	ID                 int64  `json:"id"`
	ItemID             int64  `json:"item_id"`
	Quantity           int    `json:"quantity"`
	DiscountedPrice    string `json:"discounted_price"`
	DiscountPercentage string `json:"discount_percentage"`
	Status             string `json:"status"`
	Remarks            string `json:"remarks,omitempty"`
}

type itemPayload struct {
	ID               int64  `json:"id"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	Brand            string `json:"brand,omitempty"`
	Category         string `json:"category"`
	UnitPrice        string `json:"unit_price"`
	Quantity         int    `json:"quantity"`
	RestockThreshold int    `json:"restock_threshold"`
	LowStock         bool   `json:"low_stock"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type updateDeliveryRequest struct {
	Status          string  `json:"status"`
	DriverName      string  `json:"driver_name"`
	ScheduledDate   *string `json:"scheduled_date"`
	Remarks         string  `json:"remarks"`
	ProofOfDelivery string  `json:"proof_of_delivery"`
}

type markDamagedRequest struct {
	ItemID         int64           `json:"item_id"`
	Quantity       int             `json:"quantity"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Status         string          `json:"status"`
	Remarks        string          `json:"remarks"`
}

type updateDamagedRequest struct {
	Status  *string `json:"status"`
	Remarks *string `json:"remarks"`
}

type createItemRequest struct {
	Name             string          `json:"name"`
	Brand            string          `json:"brand"`
	Category         string          `json:"category"`
	Description      string          `json:"description"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Quantity         int             `json:"quantity"`
	RestockThreshold *int            `json:"restock_threshold"`
}

var orderListFilters = []string{"status", "payment_method", "delivery_method", "user_id"}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Orders == nil {
		writeUnavailable(w, r, "orders")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{AllowedFilters: orderListFilters})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter, err := orderFilterFromParams(params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.svc.Orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := orderListPayload{Orders: make([]orderPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func orderFilterFromParams(params pagination.Params) (repositories.OrderListFilter, error) {
	filter := repositories.OrderListFilter{
		Pagination: domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken},
	}
	if raw, ok := params.Filters["status"]; ok {
		status, valid := domain.ParseOrderStatus(raw)
		if !valid {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = &status
	}
	if raw, ok := params.Filters["payment_method"]; ok {
		method := domain.PaymentMethod(raw)
		if !method.Valid() {
			return filter, fmt.Errorf("unknown payment_method %q", raw)
		}
		filter.PaymentMethod = &method
	}
	if raw, ok := params.Filters["delivery_method"]; ok {
		method := domain.DeliveryMethod(raw)
		if !method.Valid() {
			return filter, fmt.Errorf("unknown delivery_method %q", raw)
		}
		filter.DeliveryMethod = &method
	}
	if raw, ok := params.Filters["user_id"]; ok {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			return filter, fmt.Errorf("user_id must be a positive integer")
		}
		filter.UserID = &userID
	}
	return filter, nil
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.svc.Orders == nil {
		writeUnavailable(w, r, "orders")
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.svc.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.svc.Orders == nil {
		writeUnavailable(w, r, "orders")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	status, valid := domain.ParseOrderStatus(req.Status)
	if !valid {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest))
		return
	}

	order, err := h.svc.Orders.UpdateStatus(r.Context(), services.UpdateOrderStatusCommand{
		OrderID: orderID,
		Status:  status,
		ActorID: identity.UserID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) getBilling(w http.ResponseWriter, r *http.Request) {
	if h.svc.Billings == nil {
		writeUnavailable(w, r, "billing")
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	billing, err := h.svc.Billings.GetByOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := billingPayload{
		ID:        billing.ID,
		OrderID:   billing.OrderID,
		Number:    billing.Number,
		Amount:    formatAmount(billing.Amount),
		Status:    string(billing.Status),
		CreatedAt: formatTime(billing.CreatedAt),
	}
	if billing.PaidAt != nil {
		payload.PaidAt = formatTime(*billing.PaidAt)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) getDelivery(w http.ResponseWriter, r *http.Request) {
	if h.svc.Deliveries == nil {
		writeUnavailable(w, r, "deliveries")
		return
	}
	deliveryID, ok := pathID(w, r, "deliveryID")
	if !ok {
		return
	}
	view, err := h.svc.Deliveries.GetDelivery(r.Context(), deliveryID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDeliveryPayload(view))
}

func (h *AdminHandlers) updateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	if h.svc.Deliveries == nil {
		writeUnavailable(w, r, "deliveries")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	deliveryID, ok := pathID(w, r, "deliveryID")
	if !ok {
		return
	}
	var req updateDeliveryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	cmd := services.UpdateDeliveryCommand{
		DeliveryID:      deliveryID,
		Status:          domain.DeliveryStatus(req.Status),
		DriverName:      req.DriverName,
		Remarks:         req.Remarks,
		ProofOfDelivery: req.ProofOfDelivery,
		ActorID:         identity.UserID,
	}
	if req.ScheduledDate != nil && strings.TrimSpace(*req.ScheduledDate) != "" {
		scheduled, err := parseDate(*req.ScheduledDate)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "scheduled_date must be YYYY-MM-DD or RFC 3339", http.StatusBadRequest))
			return
		}
		cmd.ScheduledDate = &scheduled
	}

	delivery, err := h.svc.Deliveries.UpdateStatus(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDeliveryPayload(services.DeliveryView{Delivery: delivery}))
}

func (h *AdminHandlers) markDamaged(w http.ResponseWriter, r *http.Request) {
	if h.svc.DamagedItems == nil {
		writeUnavailable(w, r, "damaged items")
		return
	}
	var req markDamagedRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	damaged, err := h.svc.DamagedItems.MarkAsDamaged(r.Context(), services.MarkDamagedCommand{
		ItemID:         req.ItemID,
		Quantity:       req.Quantity,
		DiscountAmount: req.DiscountAmount,
		Status:         domain.DamagedItemStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Remarks:        req.Remarks,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildDamagedItemPayload(damaged))
}

func (h *AdminHandlers) updateDamaged(w http.ResponseWriter, r *http.Request) {
	if h.svc.DamagedItems == nil {
		writeUnavailable(w, r, "damaged items")
		return
	}
	damagedItemID, ok := pathID(w, r, "damagedItemID")
	if !ok {
		return
	}
	var req updateDamagedRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	cmd := services.UpdateDamagedItemCommand{DamagedItemID: damagedItemID, Remarks: req.Remarks}
	if req.Status != nil {
		status := domain.DamagedItemStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		cmd.Status = &status
	}
	damaged, err := h.svc.DamagedItems.UpdateDamagedItem(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDamagedItemPayload(damaged))
}

func (h *AdminHandlers) deleteDamaged(w http.ResponseWriter, r *http.Request) {
	if h.svc.DamagedItems == nil {
		writeUnavailable(w, r, "damaged items")
		return
	}
	damagedItemID, ok := pathID(w, r, "damagedItemID")
	if !ok {
		return
	}
	if err := h.svc.DamagedItems.DeleteDamagedItem(r.Context(), damagedItemID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) createItem(w http.ResponseWriter, r *http.Request) {
	if h.svc.Inventory == nil {
		writeUnavailable(w, r, "inventory")
		return
	}
	var req createItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	item, err := h.svc.Inventory.CreateItem(r.Context(), services.CreateItemCommand{
		Name:             req.Name,
		Brand:            req.Brand,
		Category:         req.Category,
		Description:      req.Description,
		UnitPrice:        req.UnitPrice,
		Quantity:         req.Quantity,
		RestockThreshold: req.RestockThreshold,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildItemPayload(item))
}

func (h *AdminHandlers) lowStock(w http.ResponseWriter, r *http.Request) {
	if h.svc.Inventory == nil {
		writeUnavailable(w, r, "inventory")
		return
	}
	limit := defaultLowStockLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, pagination.DefaultMaxPageSize)
	}
	items, err := h.svc.Inventory.ListLowStock(r.Context(), limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	payload := make([]itemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": payload})
}

func writeUnavailable(w http.ResponseWriter, r *http.Request, name string) {
	httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

var errInvalidDate = errors.New("invalid date")

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidDate
}

func buildOrderPayload(order domain.Order) orderPayload {
	next := domain.NextOrderStatuses(order.Status)
	payload := orderPayload{
		ID:              order.ID,
		Number:          order.Number(),
		UserID:          order.UserID,
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		DeliveryMethod:  string(order.DeliveryMethod),
		DeliveryAddress: order.DeliveryAddress,
		TotalAmount:     formatAmount(order.TotalAmount),
		PaymentID:       order.PaymentID,
		NextStatuses:    make([]string, 0, len(next)),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	for _, status := range next {
		payload.NextStatuses = append(payload.NextStatuses, string(status))
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:            item.ID,
			ItemID:        item.ItemID,
			DamagedItemID: item.DamagedItemID,
			ItemName:      item.ItemName,
			Quantity:      item.Quantity,
			UnitPrice:     formatAmount(item.UnitPrice),
			Subtotal:      formatAmount(item.Subtotal()),
		})
	}
	return payload
}

func buildDeliveryPayload(view services.DeliveryView) deliveryPayload {
	delivery := view.Delivery
	payload := deliveryPayload{
		ID:            delivery.ID,
		OrderID:       delivery.OrderID,
		Status:        string(delivery.Status),
		ScheduledDate: delivery.ScheduledDate.Format("2006-01-02"),
		DriverName:    delivery.DriverName,
		Remarks:       delivery.Remarks,
		ProofURL:      view.ProofURL,
		UpdatedAt:     formatTime(delivery.UpdatedAt),
	}
	if delivery.ActualDeliveryDate != nil {
		payload.ActualDeliveryDate = delivery.ActualDeliveryDate.Format("2006-01-02")
	}
	if !view.ProofExpiresAt.IsZero() {
		payload.ProofExpiresAt = formatTime(view.ProofExpiresAt)
	}
	return payload
}

func buildDamagedItemPayload(damaged domain.DamagedItem) damagedItemPayload {
	return damagedItemPayload{
		ID:                 damaged.ID,
		ItemID:             damaged.ItemID,
		Quantity:           damaged.Quantity,
		DiscountedPrice:    formatAmount(damaged.DiscountedPrice),
		DiscountPercentage: damaged.DiscountPercentage.StringFixed(2),
		Status:             string(damaged.Status),
		Remarks:            damaged.Remarks,
	}
}

func buildItemPayload(item domain.Item) itemPayload {
	return itemPayload{
		ID:               item.ID,
		Code:             item.Code,
		Name:             item.Name,
		Brand:            item.Brand,
		Category:         item.Category,
		UnitPrice:        formatAmount(item.UnitPrice),
		Quantity:         item.Quantity,
		RestockThreshold: item.RestockThreshold,
		LowStock:         item.IsLowStock(),
	}
}
