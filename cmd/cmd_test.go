package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args against the database configured in the environment.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupDB(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "faimport.db"))
	t.Setenv("DB_TABLE_PREFIX", "0_")
	t.Setenv("DEFAULT_ACTOR", "cli-test")

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestCLI_ImportAndReview(t *testing.T) {
	setupDB(t)

	out, err := run(t, "rules", "add", "--type", "asin", "--value", "B004YAVF8I", "--stock", "MOUSE-M185", "--priority", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 1 added")

	out, err = run(t, "import", "sample", "--count", "3", "--start", "2024-03-01", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "3 imported, 0 duplicate, 0 duplicate invoice number, 0 failed")

	out, err = run(t, "import", "sample", "--count", "3", "--start", "2024-03-01", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "0 imported, 0 duplicate, 3 duplicate invoice number, 0 failed")

	out, err = run(t, "invoices", "list", "--status", "", "--json")
	require.NoError(t, err)
	var listed struct {
		Invoices []struct {
			ID            int64  `json:"id"`
			InvoiceNumber string `json:"invoice_number"`
		} `json:"invoices"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, 3, listed.Total)
	require.Len(t, listed.Invoices, 3)

	out, err = run(t, "invoices", "mark-processed", "1", "--trans-no", "77", "--notes", "posted")
	require.NoError(t, err)
	assert.Contains(t, out, "Invoice 1 completed")

	out, err = run(t, "invoices", "show", "1", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   completed")
	assert.Contains(t, out, "FA trans: 77")
	assert.Contains(t, out, "Marked as processed, FA transaction 77")

	out, err = run(t, "invoices", "stats", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestCLI_RulesLifecycle(t *testing.T) {
	setupDB(t)

	_, err := run(t, "rules", "add", "--type", "keyword", "--value", "toner", "--stock", "TONER", "--priority", "50")
	require.NoError(t, err)

	out, err := run(t, "match", "find", "--asin", "", "--sku", "", "--name", "Brother TN2420 Toner Cartridge")
	require.NoError(t, err)
	assert.Contains(t, out, "TONER (rule #1, keyword)")

	out, err = run(t, "rules", "disable", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 1 disabled")

	out, err = run(t, "rules", "list", "--all=false", "--json=false")
	require.NoError(t, err)
	assert.NotContains(t, out, "toner")

	out, err = run(t, "rules", "list", "--all", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "toner")

	_, err = run(t, "rules", "delete", "1")
	require.NoError(t, err)

	_, err = run(t, "rules", "enable", "1")
	assert.ErrorIs(t, err, errNotFound)
}

func TestCLI_RejectsBadInput(t *testing.T) {
	setupDB(t)

	_, err := run(t, "rules", "add", "--type", "color", "--value", "red", "--stock", "X", "--priority", "10")
	assert.ErrorContains(t, err, "invalid --type")

	_, err = run(t, "invoices", "show", "abc", "--json=false")
	assert.ErrorContains(t, err, "invalid id")

	_, err = run(t, "invoices", "list", "--status", "archived", "--json=false")
	assert.Error(t, err)

	_, err = run(t, "invoices", "delete", "99")
	assert.ErrorIs(t, err, errNotFound)
}
