// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storybook-pos/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrStockConflict возвращается, если остаток товара изменился между чтением снимка и записью продажи.
	ErrStockConflict = errors.New("stock changed concurrently")
	// ErrSaleExists возвращается при повторной записи продажи с тем же идентификатором.
	ErrSaleExists = errors.New("sale already recorded")
)

var defaultRetryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository предоставляет доступ к складу и продажам в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, retryDelays: defaultRetryDelays}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	return retry(ctx, r.retryDelays, fn)
}

func retry(ctx context.Context, delays []time.Duration, fn func() error) error {
	var err error

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isRetryable(err) || i == len(delays) {
			return err
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Повторяем только конфликты сериализации и взаимоблокировки.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// GetInventorySnapshot возвращает текущие остатки указанных товаров.
// Отсутствующие в БД идентификаторы в снимок не попадают.
func (r *PostgresRepository) GetInventorySnapshot(ctx context.Context, ids []string) (map[string]model.InventoryItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, category, selling_price, quantity_available
		 FROM inventory_items
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	defer rows.Close()

	snap := make(map[string]model.InventoryItem, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		snap[item.ID] = item
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return snap, nil
}

// ListInventory возвращает весь склад, упорядоченный по категории и названию.
func (r *PostgresRepository) ListInventory(ctx context.Context) ([]model.InventoryItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, category, selling_price, quantity_available
		 FROM inventory_items
		 ORDER BY category, title`,
	)
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func scanItem(rows pgx.Rows) (model.InventoryItem, error) {
	var (
		item     model.InventoryItem
		category string
		cents    int64
	)
	if err := rows.Scan(&item.ID, &item.Title, &category, &cents, &item.QuantityAvailable); err != nil {
		return model.InventoryItem{}, fmt.Errorf("scan item: %w", err)
	}
	item.Category = model.Category(category)
	item.SellingPrice = fromCents(cents)
	return item, nil
}

// UpsertItem создаёт товар или обновляет его карточку и остаток.
func (r *PostgresRepository) UpsertItem(ctx context.Context, item model.InventoryItem) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO inventory_items (id, title, category, selling_price, quantity_available)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title,
		     category = EXCLUDED.category,
		     selling_price = EXCLUDED.selling_price,
		     quantity_available = EXCLUDED.quantity_available,
		     updated_at = now()`,
		item.ID, item.Title, string(item.Category), toCents(item.SellingPrice), item.QuantityAvailable,
	)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// RecordSale атомарно сохраняет продажу и списывает остатки.
// Остаток обновляется только если он не изменился с момента чтения снимка,
// иначе транзакция откатывается с ErrStockConflict.
func (r *PostgresRepository) RecordSale(ctx context.Context, sale model.SaleRecord, updates []model.StockUpdate) error {
	return r.withRetry(ctx, saleAttempt(func() error {
		return r.recordSaleTx(ctx, sale, updates)
	}))
}

// saleAttempt делает запись продажи идемпотентной по её идентификатору.
// Если повторная попытка находит продажу уже записанной, значит предыдущий
// коммит прошёл, а потерялся только ответ сервера.
func saleAttempt(record func() error) func() error {
	attempt := 0
	return func() error {
		attempt++
		err := record()
		if attempt > 1 && errors.Is(err, ErrSaleExists) {
			return nil
		}
		return err
	}
}

func (r *PostgresRepository) recordSaleTx(ctx context.Context, sale model.SaleRecord, updates []model.StockUpdate) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sales (id, payment_method, subtotal, discount, surcharge, grand_total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID,
		string(sale.PaymentMethod),
		toCents(sale.Totals.Subtotal),
		toCents(sale.Totals.DiscountAmount),
		toCents(sale.Totals.Surcharge),
		toCents(sale.Totals.GrandTotal),
		sale.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrSaleExists, sale.ID)
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	for _, u := range updates {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE inventory_items
			 SET quantity_available = $3, updated_at = now()
			 WHERE id = $1 AND quantity_available = $2`,
			u.ItemID, u.ExpectedQuantity, u.NewQuantity,
		)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}
		if cmdTag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrStockConflict, u.ItemID)
		}
	}

	batch := &pgx.Batch{}
	for i, l := range sale.Lines {
		batch.Queue(
			`INSERT INTO sale_lines (sale_id, position, item_id, title, quantity, line_total)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sale.ID, i, l.ItemID, l.Title, l.Quantity, toCents(l.LineTotal),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert sale lines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ListSales возвращает последние продажи для отчётов.
func (r *PostgresRepository) ListSales(ctx context.Context, limit int) ([]model.SaleSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.payment_method, s.grand_total, s.created_at,
		        COALESCE(SUM(l.quantity), 0)
		 FROM sales s
		 LEFT JOIN sale_lines l ON l.sale_id = s.id
		 GROUP BY s.id
		 ORDER BY s.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	var res []model.SaleSummary
	for rows.Next() {
		var (
			summary model.SaleSummary
			method  string
			cents   int64
		)
		if err := rows.Scan(&summary.ID, &method, &cents, &summary.CreatedAt, &summary.Items); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		summary.PaymentMethod = model.PaymentMethod(method)
		summary.GrandTotal = fromCents(cents)
		res = append(res, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
