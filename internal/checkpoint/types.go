package checkpoint

import (
	"context"
	"time"
)

// Store is the persisted resume state: a set of finished job names.
type Store interface {
	// Load returns the saved names. A missing checkpoint yields (nil, nil).
	Load(ctx context.Context) ([]string, error)
	// Save replaces the saved names.
	Save(ctx context.Context, names []string) error
	// Clear forgets every saved name.
	Clear(ctx context.Context) error
	Close() error
}

// Config configures the checkpoint store.
//
// Driver values: "file" (default when Path is set), "sqlite", "none".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
