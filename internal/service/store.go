package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kopi-pos/api/internal/database"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the persistence gateway used by the engine.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	// Orders
	GetNextOrderNumber(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id int64) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error)
	GetOpenOrderByTable(ctx context.Context, tableID int64) (database.Order, error)
	CountOpenOrdersByTable(ctx context.Context, tableID int64) (int64, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Order, error)
	MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error)
	AppendOrderNote(ctx context.Context, arg database.AppendOrderNoteParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)

	// Lines
	ListOrderLines(ctx context.Context, orderID int64) ([]database.OrderLine, error)
	UpsertOrderLine(ctx context.Context, arg database.UpsertOrderLineParams) (database.OrderLine, error)
	DeleteOrderLine(ctx context.Context, arg database.DeleteOrderLineParams) error
	GetProductForOrder(ctx context.Context, id int64) (database.Product, error)

	// Promotions
	GetPromotion(ctx context.Context, id int64) (database.Promotion, error)
	ListActivePromotions(ctx context.Context) ([]database.Promotion, error)
	CreatePromotion(ctx context.Context, arg database.CreatePromotionParams) (database.Promotion, error)
	DeactivatePromotion(ctx context.Context, id int64) (database.Promotion, error)
	IncrementPromotionUsageIfAvailable(ctx context.Context, arg database.IncrementPromotionUsageIfAvailableParams) (database.Promotion, error)
	CreatePromotionUsage(ctx context.Context, arg database.CreatePromotionUsageParams) (database.PromotionUsage, error)
	GetPromotionUsageStats(ctx context.Context, promotionID int64) (database.GetPromotionUsageStatsRow, error)

	// Tables
	GetTable(ctx context.Context, id int64) (database.CafeTable, error)
	GetTableForUpdate(ctx context.Context, id int64) (database.CafeTable, error)
	ListTables(ctx context.Context) ([]database.CafeTable, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.CafeTable, error)

	// Settlements
	CreateSettlement(ctx context.Context, arg database.CreateSettlementParams) (database.Settlement, error)
	GetSettlementByOrder(ctx context.Context, orderID int64) (database.Settlement, error)
	GetPaymentStatistics(ctx context.Context, arg database.GetPaymentStatisticsParams) ([]database.GetPaymentStatisticsRow, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
// This allows the engine to create store instances from transactions.
type NewStore func(db database.DBTX) Store

// QueriesStore is the production NewStore.
func QueriesStore(db database.DBTX) Store {
	return database.New(db)
}
