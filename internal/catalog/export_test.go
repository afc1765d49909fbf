package catalog

import (
	"context"
	"time"
)

// SetClock replaces the time source used by Record.
func (c *Catalog) SetClock(now func() time.Time) {
	c.now = now
}

// JournalMode reports the journal mode of the open connection.
func (c *Catalog) JournalMode(ctx context.Context) (string, error) {
	var mode string
	err := c.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
	return mode, err
}

var DataSourceName = dataSourceName
