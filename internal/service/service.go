// Package service реализует бизнес-логику кассы книжного магазина.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storybook-pos/internal/cart"
	"github.com/mmeshcher/storybook-pos/internal/metrics"
	"github.com/mmeshcher/storybook-pos/internal/model"
	"github.com/mmeshcher/storybook-pos/internal/repository"
	"github.com/mmeshcher/storybook-pos/internal/session"
	"github.com/mmeshcher/storybook-pos/internal/validation"
)

var (
	// ErrInvalidItem возвращается при попытке сохранить некорректную карточку товара.
	ErrInvalidItem = errors.New("invalid inventory item")
	// ErrInvalidPaymentMethod возвращается для неизвестного способа оплаты.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrSessionNotReset возвращается вместе с записью о продаже, если продажа сохранена,
	// а очищенную корзину записать в хранилище сессий не удалось.
	ErrSessionNotReset = errors.New("sale recorded but cart session was not reset")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetInventorySnapshot(ctx context.Context, ids []string) (map[string]model.InventoryItem, error)
	ListInventory(ctx context.Context) ([]model.InventoryItem, error)
	UpsertItem(ctx context.Context, item model.InventoryItem) error
	RecordSale(ctx context.Context, sale model.SaleRecord, updates []model.StockUpdate) error
	ListSales(ctx context.Context, limit int) ([]model.SaleSummary, error)
}

// Locker сериализует операции над одной кассовой сессией.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// Options содержит настройки сервиса.
type Options struct {
	// CardFeeRate задаёт долю надбавки за оплату картой; nil означает ставку по умолчанию.
	CardFeeRate *decimal.Decimal
	// DemoMode отключает запись продаж и списание остатков.
	DemoMode bool
	NewID    cart.IDGenerator
	Now      cart.Clock
	Metrics  *metrics.Metrics
	// Locker по умолчанию блокирует сессии в пределах процесса.
	Locker Locker
}

// CartView содержит корзину сессии вместе с рассчитанными итогами.
type CartView struct {
	Lines         []cart.Line
	Discount      *model.DiscountSpec
	PaymentMethod model.PaymentMethod
	Totals        model.Totals
}

// Service содержит бизнес-логику кассы.
type Service struct {
	repo     Repository
	sessions session.Store
	cartOpts []cart.Option
	demoMode bool
	newID    cart.IDGenerator
	now      cart.Clock
	metrics  *metrics.Metrics
	locker   Locker
}

// NewService создаёт новый сервис с указанным репозиторием и хранилищем сессий.
func NewService(repo Repository, sessions session.Store, opts Options) *Service {
	s := &Service{
		repo:     repo,
		sessions: sessions,
		demoMode: opts.DemoMode,
		newID:    opts.NewID,
		now:      opts.Now,
		metrics:  opts.Metrics,
		locker:   opts.Locker,
	}
	if s.locker == nil {
		s.locker = newSessionLocks()
	}
	if opts.CardFeeRate != nil {
		s.cartOpts = append(s.cartOpts, cart.WithCardFeeRate(*opts.CardFeeRate))
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// OpenSession открывает новую кассовую сессию с пустой корзиной.
func (s *Service) OpenSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.sessions.Save(ctx, id, cart.State{}); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	return id, nil
}

// CloseSession завершает кассовую сессию и удаляет её корзину.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// GetCart возвращает корзину сессии и итоги для указанного способа оплаты.
func (s *Service) GetCart(ctx context.Context, sessionID string, method model.PaymentMethod) (*CartView, error) {
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	var view *CartView
	err := s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		view = &CartView{
			Lines:         c.Lines(),
			Discount:      c.Discount(),
			PaymentMethod: method,
			Totals:        c.ComputeTotals(c.Discount(), method),
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AddItem добавляет в корзину одну единицу товара, сверяясь со свежим остатком.
func (s *Service) AddItem(ctx context.Context, sessionID, itemID string) (cart.Line, error) {
	var line cart.Line
	err := s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		snap, err := s.snapshot(ctx, []string{itemID})
		if err != nil {
			return false, err
		}

		line, err = c.AddItem(snap, itemID)
		if err != nil {
			if errors.Is(err, cart.ErrOutOfStock) {
				s.metrics.ObserveStockRejection("add")
			}
			return false, err
		}
		return true, nil
	})
	return line, err
}

// SetQuantity устанавливает количество товара; превышение остатка урезается, а не отклоняется.
func (s *Service) SetQuantity(ctx context.Context, sessionID, itemID string, quantity float64) (cart.QuantityResult, error) {
	var res cart.QuantityResult
	err := s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		snap, err := s.snapshot(ctx, []string{itemID})
		if err != nil {
			return false, err
		}

		res = c.SetLineQuantity(snap, itemID, quantity)
		if res.Clamped {
			s.metrics.ObserveStockRejection("set_quantity")
		}
		return true, nil
	})
	return res, err
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	return s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		c.RemoveItem(itemID)
		return true, nil
	})
}

// ClearCart очищает корзину и снимает скидку.
func (s *Service) ClearCart(ctx context.Context, sessionID string) error {
	return s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		c.Clear()
		return true, nil
	})
}

// SetDiscount задаёт скидку на корзину; nil снимает скидку.
func (s *Service) SetDiscount(ctx context.Context, sessionID string, discount *model.DiscountSpec) error {
	return s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		c.SetDiscount(discount)
		return true, nil
	})
}

// Checkout завершает продажу.
//
// Остатки перечитываются непосредственно перед расчётом. Продажа и списание
// остатков записываются одной транзакцией; корзина очищается только после
// успешной записи, поэтому при ошибке оператор может повторить попытку.
func (s *Service) Checkout(ctx context.Context, sessionID string, method model.PaymentMethod) (*model.SaleRecord, error) {
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	var record *model.SaleRecord
	err := s.withCart(ctx, sessionID, func(c *cart.Cart) (bool, error) {
		snap := cart.Snapshot{}
		if c.Len() > 0 {
			var err error
			snap, err = s.snapshot(ctx, lineItemIDs(c))
			if err != nil {
				return false, err
			}
		}

		working := c.Clone()
		sale, err := working.FinalizeSale(snap, working.Discount(), method, s.newID, s.now)
		if err != nil {
			if errors.Is(err, cart.ErrInsufficientStock) {
				s.metrics.ObserveStockRejection("checkout")
			}
			return false, err
		}

		if !s.demoMode {
			if err := s.repo.RecordSale(ctx, sale, stockUpdates(sale, snap)); err != nil {
				s.metrics.ObserveCheckoutError()
				if errors.Is(err, repository.ErrStockConflict) {
					s.metrics.ObserveStockRejection("checkout")
				}
				return false, fmt.Errorf("record sale: %w", err)
			}
			s.metrics.ObserveSale(sale.PaymentMethod, sale.Totals.GrandTotal)
		}

		record = &sale
		c.Clear()
		return true, nil
	})

	if err != nil && record != nil {
		return record, fmt.Errorf("%w: %v", ErrSessionNotReset, err)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListInventory возвращает весь склад.
func (s *Service) ListInventory(ctx context.Context) ([]model.InventoryItem, error) {
	return s.repo.ListInventory(ctx)
}

// UpsertItem создаёт или обновляет карточку товара.
func (s *Service) UpsertItem(ctx context.Context, item model.InventoryItem) error {
	if !validation.IsValidItemID(item.ID) || item.Title == "" || !item.Category.Valid() {
		return ErrInvalidItem
	}
	if item.SellingPrice.IsNegative() || item.QuantityAvailable < 0 {
		return ErrInvalidItem
	}
	return s.repo.UpsertItem(ctx, item)
}

// ListSales возвращает последние продажи.
func (s *Service) ListSales(ctx context.Context, limit int) ([]model.SaleSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) withCart(ctx context.Context, sessionID string, fn func(c *cart.Cart) (bool, error)) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	c := cart.FromState(state, s.cartOpts...)
	save, err := fn(c)
	if err != nil || !save {
		return err
	}

	if err := s.sessions.Save(ctx, sessionID, c.State()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Service) snapshot(ctx context.Context, ids []string) (cart.Snapshot, error) {
	snap, err := s.repo.GetInventorySnapshot(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load inventory snapshot: %w", err)
	}
	return snap, nil
}

func lineItemIDs(c *cart.Cart) []string {
	lines := c.Lines()
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	return ids
}

func stockUpdates(sale model.SaleRecord, snap cart.Snapshot) []model.StockUpdate {
	updates := make([]model.StockUpdate, 0, len(sale.Lines))
	for _, l := range sale.Lines {
		available := snap[l.ItemID].QuantityAvailable
		updates = append(updates, model.StockUpdate{
			ItemID:           l.ItemID,
			ExpectedQuantity: available,
			NewQuantity:      available - l.Quantity,
		})
	}
	return updates
}
