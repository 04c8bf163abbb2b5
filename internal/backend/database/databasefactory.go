package database

import (
	"fmt"
)

// NewStore creates a store for the configured database type. The schema is
// created lazily on Open, not here, so callers control initialization timing.
func NewStore(databaseType, connectionString string) (StoreService, error) {
	switch databaseType {
	case "sqlite":
		return NewSQLiteStore(connectionString), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}
}
