package importer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faimport/internal/importer"
)

func TestSQLDuplicateFinder(t *testing.T) {
	f := setup(t)
	saved, err := f.repo.Save(f.ctx, invoice("AMZ-1", "111-2223334-5556667", "2024-02-10", "42.50"))
	require.NoError(t, err)

	finder := importer.NewSQLDuplicateFinder(f.gw)

	tests := []struct {
		name       string
		order      string
		date       string
		total      string
		confidence float64
		found      bool
	}{
		{"same order total and date", "111-2223334-5556667", "2024-02-10", "42.50", 1.0, true},
		{"order normalized", " 111-2223334-5556667 ", "2024-02-10", "42.5", 1.0, true},
		{"other date", "111-2223334-5556667", "2024-02-11", "42.50", 0.75, true},
		{"other total", "111-2223334-5556667", "2024-02-10", "42.51", 0, false},
		{"other order", "111-0000000-5556667", "2024-02-10", "42.50", 0, false},
		{"no order number", "", "2024-02-10", "42.50", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, err := finder.FindDuplicate(f.ctx, invoice("AMZ-2", tt.order, tt.date, tt.total))
			require.NoError(t, err)
			if !tt.found {
				assert.Nil(t, dup)
				return
			}
			require.NotNil(t, dup)
			assert.Equal(t, saved.ID, dup.InvoiceID)
			assert.Equal(t, "AMZ-1", dup.InvoiceNumber)
			assert.InDelta(t, tt.confidence, dup.Confidence, 1e-9)
		})
	}
}
