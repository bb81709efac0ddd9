// Package cart реализует корзину кассы и расчёт итогов продажи.
//
// Корзина не выполняет ввода-вывода: снимок склада, генератор идентификаторов
// и часы передаются вызывающей стороной.
package cart

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storybook-pos/internal/model"
)

// Snapshot содержит снимок склада на момент запроса, индексированный по идентификатору товара.
// Корзина только читает снимок.
type Snapshot map[string]model.InventoryItem

// IDGenerator выдаёт идентификатор новой продажи.
type IDGenerator func() string

// Clock возвращает текущее время.
type Clock func() time.Time

// DefaultCardFeeRate задаёт надбавку за оплату картой по умолчанию, 3%.
var DefaultCardFeeRate = decimal.New(3, -2)

const maxLineQuantity = math.MaxInt32

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Line описывает позицию корзины. Название и цена копируются из снимка в момент добавления.
type Line struct {
	ItemID    string          `json:"item_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// QuantityResult описывает результат изменения количества в позиции.
// Clamped означает, что запрошено больше, чем есть на складе, и количество урезано до Available.
type QuantityResult struct {
	Line      Line
	Removed   bool
	Clamped   bool
	Available int
}

// Option настраивает корзину.
type Option func(*Cart)

// WithCardFeeRate задаёт долю надбавки за оплату картой (0.03 = 3%).
func WithCardFeeRate(rate decimal.Decimal) Option {
	return func(c *Cart) {
		if rate.IsNegative() {
			return
		}
		c.cardFeeRate = rate
	}
}

// Cart хранит рабочую корзину одной кассовой сессии. Не предназначена для конкурентного использования.
type Cart struct {
	lines       []Line
	discount    *model.DiscountSpec
	cardFeeRate decimal.Decimal
}

// New создаёт пустую корзину.
func New(opts ...Option) *Cart {
	c := &Cart{cardFeeRate: DefaultCardFeeRate}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lines возвращает копию позиций корзины.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len возвращает число позиций.
func (c *Cart) Len() int {
	return len(c.lines)
}

// AddItem добавляет одну единицу товара. Если позиция уже есть, её количество увеличивается.
// При нехватке остатка корзина не меняется.
func (c *Cart) AddItem(snap Snapshot, itemID string) (Line, error) {
	item, ok := snap[itemID]
	if !ok {
		return Line{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}

	idx := c.indexOf(itemID)
	inCart := 0
	if idx >= 0 {
		inCart = c.lines[idx].Quantity
	}

	if inCart+1 > item.QuantityAvailable {
		return Line{}, &StockError{
			Err: ErrOutOfStock,
			Shortages: []Shortage{{
				ItemID:    itemID,
				Requested: inCart + 1,
				Available: max(item.QuantityAvailable, 0),
			}},
		}
	}

	if idx >= 0 {
		c.lines[idx].Quantity++
		return c.lines[idx], nil
	}

	line := newLine(item, 1)
	c.lines = append(c.lines, line)
	return line, nil
}

// SetLineQuantity устанавливает количество товара в корзине.
// Запрошенное значение округляется до ближайшего неотрицательного целого и
// ограничивается остатком. Ноль удаляет позицию.
func (c *Cart) SetLineQuantity(snap Snapshot, itemID string, requested float64) QuantityResult {
	want := normalizeQuantity(requested)

	available := 0
	item, ok := snap[itemID]
	if ok {
		available = max(item.QuantityAvailable, 0)
	}

	qty := min(want, available)
	res := QuantityResult{
		Clamped:   want > available,
		Available: available,
	}

	idx := c.indexOf(itemID)
	if qty == 0 {
		if idx >= 0 {
			c.removeAt(idx)
		}
		res.Removed = true
		return res
	}

	if idx < 0 {
		c.lines = append(c.lines, newLine(item, qty))
		idx = len(c.lines) - 1
	} else {
		c.lines[idx].Quantity = qty
	}

	res.Line = c.lines[idx]
	return res
}

// RemoveItem удаляет позицию. Отсутствие позиции не ошибка.
func (c *Cart) RemoveItem(itemID string) {
	if idx := c.indexOf(itemID); idx >= 0 {
		c.removeAt(idx)
	}
}

// Clear очищает корзину и сбрасывает скидку.
func (c *Cart) Clear() {
	c.lines = nil
	c.discount = nil
}

// SetDiscount задаёт активную скидку сессии; nil снимает скидку.
func (c *Cart) SetDiscount(d *model.DiscountSpec) {
	if d == nil {
		c.discount = nil
		return
	}
	cp := *d
	c.discount = &cp
}

// Discount возвращает копию активной скидки или nil.
func (c *Cart) Discount() *model.DiscountSpec {
	if c.discount == nil {
		return nil
	}
	cp := *c.discount
	return &cp
}

// Clone возвращает независимую копию корзины.
func (c *Cart) Clone() *Cart {
	return &Cart{
		lines:       c.Lines(),
		discount:    c.Discount(),
		cardFeeRate: c.cardFeeRate,
	}
}

func (c *Cart) indexOf(itemID string) int {
	for i, l := range c.lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func newLine(item model.InventoryItem, qty int) Line {
	return Line{
		ItemID:    item.ID,
		Title:     item.Title,
		UnitPrice: item.SellingPrice,
		Quantity:  qty,
	}
}

func normalizeQuantity(requested float64) int {
	if math.IsNaN(requested) || requested <= 0 {
		return 0
	}
	rounded := math.Round(requested)
	if rounded > maxLineQuantity {
		return maxLineQuantity
	}
	return int(rounded)
}
