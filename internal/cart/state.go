package cart

import "github.com/mmeshcher/storybook-pos/internal/model"

// State описывает сериализуемое состояние корзины для хранилища сессий.
type State struct {
	Lines    []Line              `json:"lines"`
	Discount *model.DiscountSpec `json:"discount,omitempty"`
}

// State возвращает копию состояния корзины.
func (c *Cart) State() State {
	return State{
		Lines:    c.Lines(),
		Discount: c.Discount(),
	}
}

// FromState восстанавливает корзину из сохранённого состояния.
// Позиции с неположительным количеством отбрасываются.
func FromState(s State, opts ...Option) *Cart {
	c := New(opts...)
	for _, l := range s.Lines {
		if l.Quantity <= 0 {
			continue
		}
		c.lines = append(c.lines, l)
	}
	c.SetDiscount(s.Discount)
	return c
}
