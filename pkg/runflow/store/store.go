// Package store provides graph and run ledger storage for runflow.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/randalmurphal/runflow/pkg/runflow"
	"github.com/randalmurphal/runflow/pkg/runflow/config"
)

// Store holds graph specs and run records. Implementations must be safe for
// concurrent use.
type Store interface {
	runflow.GraphStore
	runflow.Ledger

	// Close releases any resources (connections, files).
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("store closed")

// ErrStateEncoding indicates a state holds a value the store cannot
// serialize, such as NaN or a channel.
var ErrStateEncoding = errors.New("encode state")

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open returns the store selected by settings.
func Open(s config.Settings) (Store, error) {
	switch s.Store {
	case config.StoreMemory, "":
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return NewSQLiteStore(s.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store %q", s.Store)
	}
}

// newID returns a random 32-character hex identifier.
func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func graphNotFound(id string) error {
	return fmt.Errorf("%w: %s", runflow.ErrGraphNotFound, id)
}

func runNotFound(id string) error {
	return fmt.Errorf("%w: %s", runflow.ErrRunNotFound, id)
}
