package cart

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storybook-pos/internal/model"
)

func TestComputeTotals(t *testing.T) {
	type want struct {
		subtotal  string
		discount  string
		after     string
		surcharge string
		grand     string
	}

	tests := []struct {
		name     string
		discount *model.DiscountSpec
		method   model.PaymentMethod
		want     want
	}{
		{
			name:   "no discount cash",
			method: model.PaymentCash,
			want:   want{"50.00", "0", "50.00", "0", "50.00"},
		},
		{
			name:   "card surcharge",
			method: model.PaymentCard,
			want:   want{"50.00", "0", "50.00", "1.50", "51.50"},
		},
		{
			name:     "fixed discount",
			discount: &model.DiscountSpec{Kind: model.DiscountFixedAmount, Value: price("10")},
			method:   model.PaymentCash,
			want:     want{"50.00", "10.00", "40.00", "0", "40.00"},
		},
		{
			name:     "fixed discount above subtotal is clamped",
			discount: &model.DiscountSpec{Kind: model.DiscountFixedAmount, Value: price("80")},
			method:   model.PaymentCard,
			want:     want{"50.00", "50.00", "0", "0", "0"},
		},
		{
			name:     "negative fixed discount is ignored",
			discount: &model.DiscountSpec{Kind: model.DiscountFixedAmount, Value: price("-5")},
			method:   model.PaymentTransfer,
			want:     want{"50.00", "0", "50.00", "0", "50.00"},
		},
		{
			name:     "percentage discount with card",
			discount: &model.DiscountSpec{Kind: model.DiscountPercentage, Value: price("15")},
			method:   model.PaymentCard,
			want:     want{"50.00", "7.50", "42.50", "1.28", "43.78"},
		},
		{
			name:     "percentage above hundred is clamped",
			discount: &model.DiscountSpec{Kind: model.DiscountPercentage, Value: price("150")},
			method:   model.PaymentCash,
			want:     want{"50.00", "50.00", "0", "0", "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := twoLineCart(t)

			got := c.ComputeTotals(tt.discount, tt.method)

			assertMoney(t, tt.want.subtotal, got.Subtotal, "subtotal")
			assertMoney(t, tt.want.discount, got.DiscountAmount, "discount")
			assertMoney(t, tt.want.after, got.AfterDiscount, "after discount")
			assertMoney(t, tt.want.surcharge, got.Surcharge, "surcharge")
			assertMoney(t, tt.want.grand, got.GrandTotal, "grand total")
		})
	}
}

func TestComputeTotals_PercentageClampOnHundred(t *testing.T) {
	snap := snapshotOf(item("A", "25.00", 10))
	c := New()
	c.SetLineQuantity(snap, "A", 4)

	got := c.ComputeTotals(&model.DiscountSpec{Kind: model.DiscountPercentage, Value: price("150")}, model.PaymentCash)

	assertMoney(t, "100.00", got.Subtotal, "subtotal")
	assertMoney(t, "100.00", got.DiscountAmount, "discount")
}

func TestComputeTotals_IsPure(t *testing.T) {
	c, _ := twoLineCart(t)
	d := &model.DiscountSpec{Kind: model.DiscountPercentage, Value: price("12.5")}
	before := c.Lines()

	first := c.ComputeTotals(d, model.PaymentCard)
	second := c.ComputeTotals(d, model.PaymentCard)

	assert.Equal(t, first, second)
	assert.Equal(t, before, c.Lines())
}

func TestComputeTotals_RoundsHalfAwayFromZero(t *testing.T) {
	snap := snapshotOf(item("A", "0.50", 10))
	c := New()
	c.SetLineQuantity(snap, "A", 1)

	// 0.50 * 3% = 0.015
	got := c.ComputeTotals(nil, model.PaymentCard)
	assertMoney(t, "0.02", got.Surcharge, "surcharge")
	assertMoney(t, "0.52", got.GrandTotal, "grand total")
}

func TestComputeTotals_CustomCardFee(t *testing.T) {
	snap := snapshotOf(item("A", "100.00", 1))
	c := New(WithCardFeeRate(decimal.New(5, -2)))
	c.SetLineQuantity(snap, "A", 1)

	got := c.ComputeTotals(nil, model.PaymentCard)
	assertMoney(t, "5.00", got.Surcharge, "surcharge")
	assertMoney(t, "105.00", got.GrandTotal, "grand total")
}

func TestFinalizeSale_ProportionalDiscount(t *testing.T) {
	c, snap := twoLineCart(t)

	sale, err := c.FinalizeSale(snap,
		&model.DiscountSpec{Kind: model.DiscountFixedAmount, Value: price("10.00")},
		model.PaymentCash, fixedID, fixedNow)
	require.NoError(t, err)

	require.Len(t, sale.Lines, 2)
	assert.Equal(t, "A", sale.Lines[0].ItemID)
	assert.Equal(t, 2, sale.Lines[0].Quantity)
	assertMoney(t, "16.00", sale.Lines[0].LineTotal, "line A")
	assertMoney(t, "24.00", sale.Lines[1].LineTotal, "line B")
	assertMoney(t, "40.00", sale.Totals.GrandTotal, "grand total")

	assert.Equal(t, "sale-1", sale.ID)
	assert.Equal(t, fixedTime, sale.Timestamp)
	assert.Equal(t, model.PaymentCash, sale.PaymentMethod)
	assert.Equal(t, 0, c.Len())
}

func TestFinalizeSale_CardFeeAllocatedToLines(t *testing.T) {
	c, snap := twoLineCart(t)

	sale, err := c.FinalizeSale(snap, nil, model.PaymentCard, fixedID, fixedNow)
	require.NoError(t, err)

	assertMoney(t, "20.60", sale.Lines[0].LineTotal, "line A")
	assertMoney(t, "30.90", sale.Lines[1].LineTotal, "line B")
	assertMoney(t, "1.50", sale.Totals.Surcharge, "surcharge")
	assertMoney(t, "51.50", sale.Totals.GrandTotal, "grand total")
}

func TestFinalizeSale_StaleSnapshot(t *testing.T) {
	snap := snapshotOf(item("A", "3.00", 5))
	c := New()
	c.SetLineQuantity(snap, "A", 2)
	before := c.Lines()

	stale := snapshotOf(item("A", "3.00", 1))
	_, err := c.FinalizeSale(stale, nil, model.PaymentCash, fixedID, fixedNow)

	require.ErrorIs(t, err, ErrInsufficientStock)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []Shortage{{ItemID: "A", Requested: 2, Available: 1}}, stockErr.Shortages)
	assert.Equal(t, before, c.Lines())
}

func TestFinalizeSale_NamesEveryShortItem(t *testing.T) {
	c, _ := twoLineCart(t)
	c.SetDiscount(&model.DiscountSpec{Kind: model.DiscountPercentage, Value: price("5")})

	_, err := c.FinalizeSale(snapshotOf(item("A", "10.00", 1)), nil, model.PaymentCash, fixedID, fixedNow)

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []string{"A", "B"}, stockErr.ItemIDs())
	assert.Equal(t, 2, c.Len())
	assert.NotNil(t, c.Discount())
}

func TestFinalizeSale_EmptyCart(t *testing.T) {
	discounts := []*model.DiscountSpec{
		nil,
		{Kind: model.DiscountPercentage, Value: price("10")},
		{Kind: model.DiscountFixedAmount, Value: price("3")},
	}
	methods := []model.PaymentMethod{model.PaymentCash, model.PaymentCard, model.PaymentTransfer}

	for _, d := range discounts {
		for _, m := range methods {
			c := New()
			_, err := c.FinalizeSale(Snapshot{}, d, m, fixedID, fixedNow)
			require.ErrorIs(t, err, ErrEmptyCart)
		}
	}
}

func TestFinalizeSale_RoundingBound(t *testing.T) {
	prices := []string{"0.33", "1.99", "7.77", "0.01", "13.37", "2.49"}
	discounts := []*model.DiscountSpec{
		nil,
		{Kind: model.DiscountPercentage, Value: price("33.3")},
		{Kind: model.DiscountFixedAmount, Value: price("1.01")},
		{Kind: model.DiscountFixedAmount, Value: price("7")},
	}
	methods := []model.PaymentMethod{model.PaymentCash, model.PaymentCard}

	for n := 1; n <= len(prices); n++ {
		for di, d := range discounts {
			for _, m := range methods {
				t.Run(fmt.Sprintf("lines=%d_discount=%d_%s", n, di, m), func(t *testing.T) {
					snap := Snapshot{}
					c := New()
					for i := 0; i < n; i++ {
						id := fmt.Sprintf("I%d", i)
						snap[id] = item(id, prices[i], 10)
						c.SetLineQuantity(snap, id, float64(i+1))
					}

					totals := c.ComputeTotals(d, m)
					sale, err := c.FinalizeSale(snap, d, m, fixedID, fixedNow)
					require.NoError(t, err)

					sum := decimal.Zero
					for _, l := range sale.Lines {
						sum = sum.Add(l.LineTotal)
					}

					diff := sum.Sub(totals.GrandTotal).Abs()
					bound := decimal.New(1, -2).Mul(decimal.NewFromInt(int64(len(sale.Lines))))
					assert.Truef(t, diff.LessThanOrEqual(bound), "sum %s vs grand %s", sum, totals.GrandTotal)
				})
			}
		}
	}
}
