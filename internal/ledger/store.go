// internal/ledger/store.go
package ledger

import (
	"context"
	"errors"

	"mcp-calorie-log/internal/models"
)

// ErrPersistence wraps any failure of the underlying Store. Callers should
// treat it as a server-side error; the ledger did not change.
var ErrPersistence = errors.New("ledger persistence failed")

// State is the persisted payload for one identity. It is always written as a
// whole, replacing whatever was stored before.
type State struct {
	Meals []models.Meal `json:"meals"`
	Date  string        `json:"date"`
}

// Store defines persistence behaviour for daily ledgers.
type Store interface {
	// LoadLedger returns nil, nil when nothing is stored for identity.
	LoadLedger(ctx context.Context, identity string) (*State, error)
	SaveLedger(ctx context.Context, identity string, state State) error
	ClearLedger(ctx context.Context, identity string) error
}
