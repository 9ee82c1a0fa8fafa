package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config tunes the engine.
type Config struct {
	VATPercent     decimal.Decimal
	PersistTimeout time.Duration
	MaxRetries     uint64
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Engine bundles the order lifecycle services. They share one per-order
// lock, so a line edit and a settlement on the same order never interleave.
type Engine struct {
	Orders     *OrderService
	Promotions *PromotionService
	Payments   *PaymentService
	Tables     *TableSync
}

// NewEngine wires the services. store serves reads outside a transaction;
// newStore binds a Store to each transaction started on pool.
func NewEngine(pool TxBeginner, store Store, newStore NewStore, notify *Fanout, cfg Config) *Engine {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &core{
		pool:       pool,
		store:      store,
		newStore:   newStore,
		orderLocks: NewKeyedLock[int64](),
		tableLocks: NewKeyedLock[int64](),
		notify:     notify,
		cfg:        cfg,
		log:        cfg.Logger,
	}
	return &Engine{
		Orders:     &OrderService{c},
		Promotions: &PromotionService{c},
		Payments:   &PaymentService{c},
		Tables:     &TableSync{c},
	}
}

type core struct {
	pool       TxBeginner
	store      Store
	newStore   NewStore
	orderLocks *KeyedLock[int64]
	tableLocks *KeyedLock[int64] // guards opening an order on a table
	notify     *Fanout
	cfg        Config
	log        zerolog.Logger
}

func (c *core) now() time.Time { return c.cfg.Now() }

// lockOrder waits for exclusive access to orderID. Cancelling ctx only
// matters while waiting.
func (c *core) lockOrder(ctx context.Context, orderID int64) (func(), error) {
	unlock, err := c.orderLocks.Lock(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("wait for order %d: %w", orderID, err)
	}
	return unlock, nil
}

// inTx runs fn inside a transaction. The transaction runs on a context
// detached from the caller's cancellation and bounded by PersistTimeout.
// When idempotent is set, transient failures re-run the whole transaction;
// fn must then reset any state it captures.
func (c *core) inTx(ctx context.Context, op string, idempotent bool, fn func(ctx context.Context, s Store) error) error {
	base := context.WithoutCancel(ctx)
	attempt := func() error {
		tctx, cancel := context.WithTimeout(base, c.cfg.PersistTimeout)
		defer cancel()

		tx, err := c.pool.Begin(tctx)
		if err != nil {
			return wrapPersistence(op, fmt.Errorf("begin tx: %w", err))
		}
		defer tx.Rollback(tctx) //nolint:errcheck

		if err := fn(tctx, c.newStore(tx)); err != nil {
			return wrapPersistence(op, err)
		}
		if err := tx.Commit(tctx); err != nil {
			return wrapPersistence(op, fmt.Errorf("commit tx: %w", err))
		}
		return nil
	}

	if !idempotent {
		return attempt()
	}
	return retry(base, c.log, op, c.cfg.MaxRetries, attempt)
}

// read runs fn against the non-transactional store, retrying transient
// failures. Reads honour the caller's cancellation.
func (c *core) read(ctx context.Context, op string, fn func(ctx context.Context, s Store) error) error {
	return retry(ctx, c.log, op, c.cfg.MaxRetries, func() error {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
		defer cancel()
		return wrapPersistence(op, fn(rctx, c.store))
	})
}

// afterCommit returns a context for notifications that outlives the request.
func afterCommit(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// --- Shared loaders ---

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	return err
}

// loadOrder reads an order and its lines. forUpdate takes the row lock.
func loadOrder(ctx context.Context, s Store, id int64, forUpdate bool) (*models.Order, error) {
	var (
		row database.Order
		err error
	)
	if forUpdate {
		row, err = s.GetOrderForUpdate(ctx, id)
	} else {
		row, err = s.GetOrder(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", notFound(err, "order", id))
	}
	lines, err := s.ListOrderLines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	return orderFromRow(row, lines), nil
}

func loadPromotion(ctx context.Context, s Store, id int64) (models.Promotion, error) {
	row, err := s.GetPromotion(ctx, id)
	if err != nil {
		return models.Promotion{}, fmt.Errorf("get promotion: %w", notFound(err, "promotion", id))
	}
	return promotionFromRow(row), nil
}

// saveTotals writes the derived totals and promotion link of o.
func saveTotals(ctx context.Context, s Store, o *models.Order) error {
	_, err := s.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:             o.ID,
		Subtotal:       decimalToNumeric(o.Subtotal),
		DiscountAmount: decimalToNumeric(o.DiscountAmount),
		TaxAmount:      decimalToNumeric(o.TaxAmount),
		FinalAmount:    decimalToNumeric(o.FinalAmount),
		PromotionID:    ptrInt8(o.PromotionID),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.StateTransitionError{Entity: "order", From: o.PaymentStatus, Action: "update totals of"}
		}
		return fmt.Errorf("update order totals: %w", err)
	}
	return nil
}

func (c *core) emitTables(ctx context.Context, changes []tableChange) {
	for _, ch := range changes {
		c.log.Info().
			Int64("table_id", ch.table.ID).
			Str("from", ch.from).
			Str("to", ch.to).
			Msg("table status changed")
		c.notify.OnTableStatusChanged(ctx, ch.table, ch.from, ch.to)
	}
}
