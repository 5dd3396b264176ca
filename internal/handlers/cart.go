package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/platform/httpx"
	"github.com/RLASH18/abg-prime-v2/internal/platform/observability"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

// CartHandlers exposes the authenticated customer's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.authn.RequireAuth(), observability.IdentityLogMiddleware)
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{lineID}", h.updateItem)
	r.Delete("/items/{lineID}", h.removeItem)
	r.Post("/items/{lineID}/toggle", h.toggleItem)
	r.Post("/toggle-all", h.toggleAll)
}

type cartLinePayload struct {
	ID            int64  `json:"id"`
	ItemID        int64  `json:"item_id"`
	DamagedItemID *int64 `json:"damaged_item_id,omitempty"`
	ItemName      string `json:"item_name"`
	Quantity      int    `json:"quantity"`
	Price         string `json:"price"`
	Subtotal      string `json:"subtotal"`
	Selected      bool   `json:"selected"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type cartPayload struct {
	Lines         []cartLinePayload `json:"lines"`
	Total         string            `json:"total"`
	SelectedTotal string            `json:"selected_total"`
	Count         int               `json:"count"`
}

type addCartItemRequest struct {
	ItemID        int64  `json:"item_id"`
	Quantity      int    `json:"quantity"`
	DamagedItemID *int64 `json:"damaged_item_id"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type toggleAllRequest struct {
	Selected *bool `json:"selected"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	view, err := h.carts.GetCart(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.carts.ClearCart(r.Context(), identity.UserID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "item_id is required", http.StatusBadRequest))
		return
	}
	line, err := h.carts.AddToCart(r.Context(), services.AddToCartCommand{
		UserID:        identity.UserID,
		ItemID:        req.ItemID,
		Quantity:      req.Quantity,
		DamagedItemID: req.DamagedItemID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartLinePayload(line))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	line, err := h.carts.UpdateQuantity(r.Context(), services.UpdateCartQuantityCommand{
		UserID:   identity.UserID,
		LineID:   lineID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartLinePayload(line))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	if err := h.carts.RemoveFromCart(r.Context(), identity.UserID, lineID); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) toggleItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	line, err := h.carts.ToggleSelection(r.Context(), identity.UserID, lineID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartLinePayload(line))
}

func (h *CartHandlers) toggleAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req toggleAllRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Selected == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "selected is required", http.StatusBadRequest))
		return
	}
	if err := h.carts.ToggleAllSelection(r.Context(), identity.UserID, *req.Selected); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	view, err := h.carts.GetCart(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func buildCartPayload(view services.CartView) cartPayload {
	lines := make([]cartLinePayload, 0, len(view.Lines))
	for _, line := range view.Lines {
		lines = append(lines, buildCartLinePayload(line))
	}
	return cartPayload{
		Lines:         lines,
		Total:         formatAmount(view.Total),
		SelectedTotal: formatAmount(view.SelectedTotal),
		Count:         view.Count,
	}
}

func buildCartLinePayload(line domain.CartLine) cartLinePayload {
	return cartLinePayload{
		ID:            line.ID,
		ItemID:        line.ItemID,
		DamagedItemID: line.DamagedItemID,
		ItemName:      line.ItemName,
		Quantity:      line.Quantity,
		Price:         formatAmount(line.Price),
		Subtotal:      formatAmount(line.Subtotal()),
		Selected:      line.Selected,
		UpdatedAt:     formatTime(line.UpdatedAt),
	}
}
