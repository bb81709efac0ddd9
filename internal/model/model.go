// Package model содержит доменные сущности кассы книжного магазина.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category описывает товарную категорию.
type Category string

const (
	CategoryBooks   Category = "Books"
	CategoryCrafts  Category = "Crafts"
	CategoryPuzzles Category = "Puzzles"
	CategoryGifts   Category = "Gifts"
)

// Valid сообщает, входит ли категория в закрытый список.
func (c Category) Valid() bool {
	switch c {
	case CategoryBooks, CategoryCrafts, CategoryPuzzles, CategoryGifts:
		return true
	}
	return false
}

// InventoryItem описывает товар на складе на момент чтения снимка.
type InventoryItem struct {
	ID                string
	Title             string
	Category          Category
	SellingPrice      decimal.Decimal
	QuantityAvailable int
}

// PaymentMethod описывает способ оплаты продажи.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer:
		return true
	}
	return false
}

// DiscountKind описывает тип скидки на весь чек.
type DiscountKind string

const (
	DiscountPercentage  DiscountKind = "percentage"
	DiscountFixedAmount DiscountKind = "fixed"
)

// DiscountSpec описывает скидку, применяемую ко всей корзине.
type DiscountSpec struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Totals содержит итоговые суммы корзины.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	AfterDiscount  decimal.Decimal
	Surcharge      decimal.Decimal
	GrandTotal     decimal.Decimal
}

// SaleLine описывает позицию завершённой продажи.
type SaleLine struct {
	ItemID    string
	Title     string
	Quantity  int
	LineTotal decimal.Decimal
}

// SaleRecord описывает завершённую продажу, готовую к сохранению.
type SaleRecord struct {
	ID            string
	Lines         []SaleLine
	PaymentMethod PaymentMethod
	Totals        Totals
	Timestamp     time.Time
}

// StockUpdate описывает изменение остатка товара после продажи.
type StockUpdate struct {
	ItemID           string
	ExpectedQuantity int
	NewQuantity      int
}

// SaleSummary содержит краткую запись о продаже для отчётов.
type SaleSummary struct {
	ID            string
	PaymentMethod PaymentMethod
	Items         int
	GrandTotal    decimal.Decimal
	CreatedAt     time.Time
}
