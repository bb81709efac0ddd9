package cart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfStock возвращается, если добавление единицы товара превышает остаток.
	ErrOutOfStock = errors.New("out of stock")
	// ErrInsufficientStock возвращается при проверке остатков перед завершением продажи.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEmptyCart возвращается при попытке завершить продажу пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrUnknownItem возвращается, если товара нет в снимке склада.
	ErrUnknownItem = errors.New("unknown inventory item")
)

// Shortage описывает нехватку конкретного товара.
type Shortage struct {
	ItemID    string
	Requested int
	Available int
}

// StockError перечисляет товары, которых не хватает на складе.
// Разворачивается в ErrOutOfStock или ErrInsufficientStock.
type StockError struct {
	Err       error
	Shortages []Shortage
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ItemID, s.Requested, s.Available))
	}
	return e.Err.Error() + ": " + strings.Join(parts, ", ")
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// ItemIDs возвращает идентификаторы товаров с нехваткой в исходном порядке корзины.
func (e *StockError) ItemIDs() []string {
	ids := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		ids = append(ids, s.ItemID)
	}
	return ids
}
