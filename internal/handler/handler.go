// Package handler содержит HTTP-обработчики API кассы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storybook-pos/internal/cart"
	"github.com/mmeshcher/storybook-pos/internal/middleware"
	"github.com/mmeshcher/storybook-pos/internal/model"
	"github.com/mmeshcher/storybook-pos/internal/repository"
	"github.com/mmeshcher/storybook-pos/internal/service"
	"github.com/mmeshcher/storybook-pos/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	OpenSession(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
	GetCart(ctx context.Context, sessionID string, method model.PaymentMethod) (*service.CartView, error)
	AddItem(ctx context.Context, sessionID, itemID string) (cart.Line, error)
	SetQuantity(ctx context.Context, sessionID, itemID string, quantity float64) (cart.QuantityResult, error)
	RemoveItem(ctx context.Context, sessionID, itemID string) error
	ClearCart(ctx context.Context, sessionID string) error
	SetDiscount(ctx context.Context, sessionID string, discount *model.DiscountSpec) error
	Checkout(ctx context.Context, sessionID string, method model.PaymentMethod) (*model.SaleRecord, error)
	ListInventory(ctx context.Context) ([]model.InventoryItem, error)
	UpsertItem(ctx context.Context, item model.InventoryItem) error
	ListSales(ctx context.Context, limit int) ([]model.SaleSummary, error)
}

// Handler реализует HTTP-обработчики API кассы.
type Handler struct {
	service  Service
	logger   *zap.Logger
	sessions *middleware.SessionMiddleware
	validate *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, sessions *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode читает JSON-тело запроса и проверяет его по тегам validate.
func (h *Handler) decode(r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false
	}
	return h.validate.Struct(dst) == nil
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetSessionIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

type shortageResponse struct {
	ItemID    string `json:"item_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type stockErrorResponse struct {
	Error string             `json:"error"`
	Items []shortageResponse `json:"items"`
}

// writeError сопоставляет доменные ошибки кодам ответа; остальные логируются как внутренние.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var stockErr *cart.StockError
	switch {
	case errors.As(err, &stockErr):
		resp := stockErrorResponse{Error: stockErr.Err.Error()}
		for _, s := range stockErr.Shortages {
			resp.Items = append(resp.Items, shortageResponse(s))
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, repository.ErrStockConflict):
		writeJSON(w, http.StatusConflict, stockErrorResponse{Error: repository.ErrStockConflict.Error()})
	case errors.Is(err, session.ErrLocked):
		writeJSON(w, http.StatusConflict, stockErrorResponse{Error: session.ErrLocked.Error()})
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, cart.ErrUnknownItem):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, cart.ErrEmptyCart):
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrInvalidPaymentMethod), errors.Is(err, service.ErrInvalidItem):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// OpenSession открывает кассовую сессию и выдаёт cookie.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.OpenSession(r.Context())
	if err != nil {
		h.logger.Error("open session error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.sessions.SetSessionCookie(w, id)
	w.WriteHeader(http.StatusCreated)
}

// CloseSession завершает кассовую сессию и удаляет cookie.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.CloseSession(r.Context(), sid); err != nil {
		h.writeError(w, err, "close session error", zap.String("session", sid))
		return
	}

	h.sessions.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type lineResponse struct {
	ItemID    string  `json:"item_id"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

func newLineResponse(l cart.Line) lineResponse {
	return lineResponse{
		ItemID:    l.ItemID,
		Title:     l.Title,
		UnitPrice: money(l.UnitPrice),
		Quantity:  l.Quantity,
	}
}

type totalsResponse struct {
	Subtotal       float64 `json:"subtotal"`
	DiscountAmount float64 `json:"discount_amount"`
	AfterDiscount  float64 `json:"after_discount"`
	Surcharge      float64 `json:"surcharge"`
	GrandTotal     float64 `json:"grand_total"`
}

func newTotalsResponse(t model.Totals) totalsResponse {
	return totalsResponse{
		Subtotal:       money(t.Subtotal),
		DiscountAmount: money(t.DiscountAmount),
		AfterDiscount:  money(t.AfterDiscount),
		Surcharge:      money(t.Surcharge),
		GrandTotal:     money(t.GrandTotal),
	}
}

type discountResponse struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

type cartResponse struct {
	Lines         []lineResponse    `json:"lines"`
	Discount      *discountResponse `json:"discount,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	Totals        totalsResponse    `json:"totals"`
}

// GetCart возвращает корзину сессии с итогами для указанного способа оплаты (по умолчанию наличные).
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	method := model.PaymentMethod(r.URL.Query().Get("payment_method"))
	if method == "" {
		method = model.PaymentCash
	}

	view, err := h.service.GetCart(r.Context(), sid, method)
	if err != nil {
		h.writeError(w, err, "get cart error", zap.String("session", sid))
		return
	}

	resp := cartResponse{
		Lines:         make([]lineResponse, 0, len(view.Lines)),
		PaymentMethod: string(view.PaymentMethod),
		Totals:        newTotalsResponse(view.Totals),
	}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, newLineResponse(l))
	}
	if view.Discount != nil {
		resp.Discount = &discountResponse{
			Kind:  string(view.Discount.Kind),
			Value: money(view.Discount.Value),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type addItemRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// AddItem добавляет в корзину одну единицу товара.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if !h.decode(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	line, err := h.service.AddItem(r.Context(), sid, req.ItemID)
	if err != nil {
		h.writeError(w, err, "add item error", zap.String("session", sid), zap.String("item", req.ItemID))
		return
	}

	writeJSON(w, http.StatusOK, newLineResponse(line))
}

type setQuantityRequest struct {
	Quantity *float64 `json:"quantity" validate:"required"`
}

type setQuantityResponse struct {
	Line      *lineResponse `json:"line,omitempty"`
	Removed   bool          `json:"removed"`
	Available int           `json:"available"`
	Notice    string        `json:"notice,omitempty"`
}

// SetQuantity устанавливает количество товара в корзине.
// Превышение остатка не ошибка: количество урезается, а в ответе появляется уведомление.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	itemID := urlParam(r, "itemID")

	var req setQuantityRequest
	if !h.decode(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.SetQuantity(r.Context(), sid, itemID, *req.Quantity)
	if err != nil {
		h.writeError(w, err, "set quantity error", zap.String("session", sid), zap.String("item", itemID))
		return
	}

	resp := setQuantityResponse{
		Removed:   res.Removed,
		Available: res.Available,
	}
	if !res.Removed {
		line := newLineResponse(res.Line)
		resp.Line = &line
	}
	if res.Clamped {
		resp.Notice = "only " + strconv.Itoa(res.Available) + " available"
	}

	writeJSON(w, http.StatusOK, resp)
}

// RemoveItem удаляет позицию из корзины.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	itemID := urlParam(r, "itemID")
	if err := h.service.RemoveItem(r.Context(), sid, itemID); err != nil {
		h.writeError(w, err, "remove item error", zap.String("session", sid), zap.String("item", itemID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearCart(r.Context(), sid); err != nil {
		h.writeError(w, err, "clear cart error", zap.String("session", sid))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type discountRequest struct {
	Kind  string  `json:"kind" validate:"omitempty,oneof=percentage fixed"`
	Value float64 `json:"value"`
}

// SetDiscount задаёт скидку на корзину. Пустой kind снимает скидку.
// Значения вне диапазона не отклоняются, а ограничиваются при расчёте.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req discountRequest
	if !h.decode(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var discount *model.DiscountSpec
	if req.Kind != "" {
		discount = &model.DiscountSpec{
			Kind:  model.DiscountKind(req.Kind),
			Value: decimal.NewFromFloat(req.Value),
		}
	}

	if err := h.service.SetDiscount(r.Context(), sid, discount); err != nil {
		h.writeError(w, err, "set discount error", zap.String("session", sid))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash card transfer"`
}

type saleLineResponse struct {
	ItemID    string  `json:"item_id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
}

type saleResponse struct {
	ID            string             `json:"id"`
	Lines         []saleLineResponse `json:"lines"`
	PaymentMethod string             `json:"payment_method"`
	Totals        totalsResponse     `json:"totals"`
	Timestamp     string             `json:"timestamp"`
}

// Checkout завершает продажу по корзине текущей сессии.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !h.decode(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	sale, err := h.service.Checkout(r.Context(), sid, model.PaymentMethod(req.PaymentMethod))
	if err != nil {
		if sale != nil && errors.Is(err, service.ErrSessionNotReset) {
			h.logger.Warn("sale recorded, cart not reset", zap.Error(err), zap.String("session", sid), zap.String("sale", sale.ID))
		} else {
			h.writeError(w, err, "checkout error", zap.String("session", sid))
			return
		}
	}

	resp := saleResponse{
		ID:            sale.ID,
		Lines:         make([]saleLineResponse, 0, len(sale.Lines)),
		PaymentMethod: string(sale.PaymentMethod),
		Totals:        newTotalsResponse(sale.Totals),
		Timestamp:     sale.Timestamp.Format(time.RFC3339),
	}
	for _, l := range sale.Lines {
		resp.Lines = append(resp.Lines, saleLineResponse{
			ItemID:    l.ItemID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			LineTotal: money(l.LineTotal),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type inventoryItemResponse struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Category          string  `json:"category"`
	SellingPrice      float64 `json:"selling_price"`
	QuantityAvailable int     `json:"quantity_available"`
}

// GetInventory возвращает список товаров склада.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListInventory(r.Context())
	if err != nil {
		h.logger.Error("list inventory error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]inventoryItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, inventoryItemResponse{
			ID:                it.ID,
			Title:             it.Title,
			Category:          string(it.Category),
			SellingPrice:      money(it.SellingPrice),
			QuantityAvailable: it.QuantityAvailable,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

type upsertItemRequest struct {
	Title             string  `json:"title" validate:"required"`
	Category          string  `json:"category" validate:"required,oneof=Books Crafts Puzzles Gifts"`
	SellingPrice      float64 `json:"selling_price" validate:"gte=0"`
	QuantityAvailable int     `json:"quantity_available" validate:"gte=0"`
}

// UpsertItem создаёт или обновляет товар.
func (h *Handler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	itemID := urlParam(r, "itemID")

	var req upsertItemRequest
	if !h.decode(r, &req) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpsertItem(r.Context(), model.InventoryItem{
		ID:                itemID,
		Title:             req.Title,
		Category:          model.Category(req.Category),
		SellingPrice:      decimal.NewFromFloat(req.SellingPrice).Round(2),
		QuantityAvailable: req.QuantityAvailable,
	})
	if err != nil {
		h.writeError(w, err, "upsert item error", zap.String("item", itemID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type saleSummaryResponse struct {
	ID            string  `json:"id"`
	PaymentMethod string  `json:"payment_method"`
	Items         int     `json:"items"`
	GrandTotal    float64 `json:"grand_total"`
	CreatedAt     string  `json:"created_at"`
}

// GetSales возвращает последние продажи для панели администратора.
func (h *Handler) GetSales(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	sales, err := h.service.ListSales(r.Context(), limit)
	if err != nil {
		h.logger.Error("list sales error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(sales) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]saleSummaryResponse, 0, len(sales))
	for _, s := range sales {
		resp = append(resp, saleSummaryResponse{
			ID:            s.ID,
			PaymentMethod: string(s.PaymentMethod),
			Items:         s.Items,
			GrandTotal:    money(s.GrandTotal),
			CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
