// Package dbtest provides a migrated in-memory database for package tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"faimport/internal/database"
)

// Prefix is the table prefix used by test databases.
const Prefix = "0_"

// New returns a migrated in-memory SQLite gateway closed at the end of the test.
func New(t testing.TB) database.Gateway {
	t.Helper()

	gw, err := database.Open(context.Background(), database.Options{
		Driver:      string(database.SQLite),
		Path:        ":memory:",
		TablePrefix: Prefix,
	})
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	require.NoError(t, database.Migrate(context.Background(), gw))
	return gw
}

// AddStock inserts a stock_master row.
func AddStock(t testing.TB, gw database.Gateway, stockID, description string, inactive bool) {
	t.Helper()
	_, err := gw.Exec(context.Background(),
		"INSERT INTO "+gw.Table(database.TableStock)+" (stock_id, description, inactive) VALUES (?, ?, ?)",
		stockID, description, inactive)
	require.NoError(t, err)
}

// Count returns the number of rows in table matching where, or all rows when where is empty.
func Count(t testing.TB, gw database.Gateway, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + gw.Table(table)
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	require.NoError(t, gw.QueryRow(context.Background(), q, args...).Scan(&n))
	return n
}
