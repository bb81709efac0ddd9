package cart

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storybook-pos/internal/model"
)

// ComputeTotals рассчитывает итоги по текущему состоянию корзины. Корзину не меняет.
// Суммы округляются до центов, половина округляется от нуля.
func (c *Cart) ComputeTotals(discount *model.DiscountSpec, method model.PaymentMethod) model.Totals {
	subtotal := c.subtotal()
	discountAmount := discountFor(subtotal, discount)

	afterDiscount := subtotal.Sub(discountAmount)
	if afterDiscount.IsNegative() {
		afterDiscount = decimal.Zero
	}

	surcharge := decimal.Zero
	if method == model.PaymentCard {
		surcharge = afterDiscount.Mul(c.cardFeeRate).Round(2)
	}

	return model.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		AfterDiscount:  afterDiscount,
		Surcharge:      surcharge,
		GrandTotal:     afterDiscount.Add(surcharge).Round(2),
	}
}

// FinalizeSale превращает корзину в запись о продаже и очищает корзину.
//
// Остатки перепроверяются по переданному снимку: при нехватке возвращается
// *StockError с ErrInsufficientStock и корзина остаётся без изменений.
// Скидка распределяется по позициям пропорционально их доле в сумме.
func (c *Cart) FinalizeSale(
	snap Snapshot,
	discount *model.DiscountSpec,
	method model.PaymentMethod,
	newID IDGenerator,
	now Clock,
) (model.SaleRecord, error) {
	if len(c.lines) == 0 {
		return model.SaleRecord{}, ErrEmptyCart
	}

	if shortages := c.shortages(snap); len(shortages) > 0 {
		return model.SaleRecord{}, &StockError{Err: ErrInsufficientStock, Shortages: shortages}
	}

	totals := c.ComputeTotals(discount, method)

	ratio := one
	if totals.Subtotal.IsPositive() {
		ratio = totals.AfterDiscount.Div(totals.Subtotal)
	}

	fee := one
	if method == model.PaymentCard {
		fee = one.Add(c.cardFeeRate)
	}

	lines := make([]model.SaleLine, 0, len(c.lines))
	for _, l := range c.lines {
		gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		lines = append(lines, model.SaleLine{
			ItemID:    l.ItemID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			LineTotal: gross.Mul(ratio).Mul(fee).Round(2),
		})
	}

	record := model.SaleRecord{
		ID:            newID(),
		Lines:         lines,
		PaymentMethod: method,
		Totals:        totals,
		Timestamp:     now(),
	}

	c.Clear()

	return record, nil
}

func (c *Cart) subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func (c *Cart) shortages(snap Snapshot) []Shortage {
	var res []Shortage
	for _, l := range c.lines {
		available := 0
		if item, ok := snap[l.ItemID]; ok {
			available = max(item.QuantityAvailable, 0)
		}
		if l.Quantity > available {
			res = append(res, Shortage{
				ItemID:    l.ItemID,
				Requested: l.Quantity,
				Available: available,
			})
		}
	}
	return res
}

func discountFor(subtotal decimal.Decimal, d *model.DiscountSpec) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}

	value := d.Value
	if value.IsNegative() {
		value = decimal.Zero
	}

	switch d.Kind {
	case model.DiscountPercentage:
		pct := decimal.Min(value, hundred)
		return subtotal.Mul(pct).Div(hundred).Round(2)
	case model.DiscountFixedAmount:
		return decimal.Min(subtotal, value).Round(2)
	default:
		return decimal.Zero
	}
}
