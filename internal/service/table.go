package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/models"
)

// TableSync is the only writer of table status. Every move goes through
// moveTable, which takes the table row lock, so moves on one table are
// serialized even across processes.
type TableSync struct {
	*core
}

// Get returns a table by id.
func (t *TableSync) Get(ctx context.Context, id int64) (models.Table, error) {
	var out models.Table
	err := t.read(ctx, "get table", func(ctx context.Context, s Store) error {
		row, err := s.GetTable(ctx, id)
		if err != nil {
			return notFound(err, "table", id)
		}
		out = tableFromRow(row)
		return nil
	})
	return out, err
}

// List returns every active table.
func (t *TableSync) List(ctx context.Context) ([]models.Table, error) {
	var out []models.Table
	err := t.read(ctx, "list tables", func(ctx context.Context, s Store) error {
		rows, err := s.ListTables(ctx)
		if err != nil {
			return err
		}
		out = make([]models.Table, 0, len(rows))
		for _, r := range rows {
			out = append(out, tableFromRow(r))
		}
		return nil
	})
	return out, err
}

// FinishCleaning marks a cleaned table available again. Only valid while the
// table is cleaning and no order still holds it.
func (t *TableSync) FinishCleaning(ctx context.Context, op models.Operator, tableID int64) (models.Table, error) {
	return t.explicitMove(ctx, op, "finish cleaning", tableID, enum.TableStatusCleaning, enum.TableStatusAvailable, requireNoOpenOrders)
}

// Reserve holds an available table.
func (t *TableSync) Reserve(ctx context.Context, op models.Operator, tableID int64) (models.Table, error) {
	return t.explicitMove(ctx, op, "reserve table", tableID, enum.TableStatusAvailable, enum.TableStatusReserved, nil)
}

// Release frees a reserved table.
func (t *TableSync) Release(ctx context.Context, op models.Operator, tableID int64) (models.Table, error) {
	return t.explicitMove(ctx, op, "release table", tableID, enum.TableStatusReserved, enum.TableStatusAvailable, nil)
}

// explicitMove runs guard, when set, after the table row is locked.
func (t *TableSync) explicitMove(
	ctx context.Context,
	op models.Operator,
	name string,
	tableID int64,
	from, to string,
	guard func(ctx context.Context, s Store, tableID int64) error,
) (models.Table, error) {
	var (
		out    models.Table
		change *tableChange
	)
	err := t.inTx(ctx, name, false, func(ctx context.Context, s Store) error {
		row, err := s.GetTableForUpdate(ctx, tableID)
		if err != nil {
			return fmt.Errorf("get table: %w", notFound(err, "table", tableID))
		}
		if row.Status != from {
			return &models.StateTransitionError{Entity: "table", From: row.Status, To: to}
		}
		if guard != nil {
			if err := guard(ctx, s, tableID); err != nil {
				return err
			}
		}
		change, err = moveTable(ctx, s, tableID, to, from)
		if err != nil {
			return err
		}
		out = change.table
		return nil
	})
	if err != nil {
		return models.Table{}, err
	}

	t.log.Info().Int64("operator_id", op.UserID).Str("action", name).Int64("table_id", tableID).Msg("table updated")
	t.emitTables(afterCommit(ctx), []tableChange{*change})
	return out, nil
}

// moveTable moves the table to `to` if its current status is one of
// allowedFrom. A table already at `to`, or in a status outside allowedFrom,
// is left alone and nil is returned. Must run inside a transaction.
func moveTable(ctx context.Context, s Store, tableID int64, to string, allowedFrom ...string) (*tableChange, error) {
	row, err := s.GetTableForUpdate(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("get table for update: %w", notFound(err, "table", tableID))
	}
	if row.Status == to {
		return nil, nil
	}
	allowed := false
	for _, f := range allowedFrom {
		if row.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil
	}
	if err := models.CheckTableTransition(row.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
		ID:         tableID,
		Status:     to,
		FromStatus: row.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &models.StateTransitionError{Entity: "table", From: row.Status, To: to}
		}
		return nil, fmt.Errorf("update table status: %w", err)
	}
	return &tableChange{table: tableFromRow(updated), from: row.Status, to: to}, nil
}

// Order lifecycle hooks. Each runs inside the transaction that changed the
// order, so the table and the order commit together.

func onFirstLine(ctx context.Context, s Store, tableID int64) (*tableChange, error) {
	return moveTable(ctx, s, tableID, enum.TableStatusOccupied, enum.TableStatusAvailable, enum.TableStatusReserved)
}

// onOrderPaid runs after the order is marked paid, so that order no longer
// counts as holding the table.
func onOrderPaid(ctx context.Context, s Store, tableID int64) (*tableChange, error) {
	open, err := s.CountOpenOrdersByTable(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("count open orders: %w", err)
	}
	if open > 0 {
		return nil, nil
	}
	return moveTable(ctx, s, tableID, enum.TableStatusCleaning, enum.TableStatusOccupied)
}

func onOrderCancelled(ctx context.Context, s Store, tableID int64) (*tableChange, error) {
	open, err := s.CountOpenOrdersByTable(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("count open orders: %w", err)
	}
	if open > 0 {
		return nil, nil
	}
	return moveTable(ctx, s, tableID, enum.TableStatusAvailable, enum.TableStatusOccupied)
}

func requireNoOpenOrders(ctx context.Context, s Store, tableID int64) error {
	open, err := s.CountOpenOrdersByTable(ctx, tableID)
	if err != nil {
		return fmt.Errorf("count open orders: %w", err)
	}
	if open > 0 {
		return &models.StateTransitionError{Entity: "table", From: enum.TableStatusCleaning, To: enum.TableStatusAvailable}
	}
	return nil
}

func changes(cs ...*tableChange) []tableChange {
	out := make([]tableChange, 0, len(cs))
	for _, c := range cs {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}
