package models

import (
	"time"

	"github.com/kopi-pos/api/internal/enum"
)

// Table is a physical café table.
type Table struct {
	ID        int64
	Name      string
	Capacity  int32
	Status    string
	Active    bool
	UpdatedAt time.Time
}

// CanOpenOrder reports whether a new order may be started at the table.
func (t *Table) CanOpenOrder() error {
	if !t.Active {
		return NewValidationError("table_id", "table is inactive")
	}
	if t.Status == enum.TableStatusCleaning {
		return &StateTransitionError{Entity: "table", From: t.Status, Action: "open an order on"}
	}
	return nil
}

// tableTransitions lists the status moves the synchronizer may perform.
var tableTransitions = map[string][]string{
	enum.TableStatusAvailable: {enum.TableStatusOccupied, enum.TableStatusReserved},
	enum.TableStatusReserved:  {enum.TableStatusOccupied, enum.TableStatusAvailable},
	enum.TableStatusOccupied:  {enum.TableStatusCleaning, enum.TableStatusAvailable},
	enum.TableStatusCleaning:  {enum.TableStatusAvailable},
}

// CheckTableTransition validates a move from one table status to another.
func CheckTableTransition(from, to string) error {
	if !enum.IsTableStatus(to) {
		return NewValidationError("status", "unknown table status "+to)
	}
	for _, s := range tableTransitions[from] {
		if s == to {
			return nil
		}
	}
	return &StateTransitionError{Entity: "table", From: from, To: to}
}
