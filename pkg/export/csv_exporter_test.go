package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func statementFixture() Table {
	return Table{
		Headers: []string{"payment_id", "mentor_commission"},
		Rows: []map[string]string{
			{"payment_id": "pay-1", "mentor_commission": "222.00"},
			{"payment_id": "pay-2", "mentor_commission": "148.00"},
		},
		Footer: map[string]string{"payment_id": "TOTAL", "mentor_commission": "370.00"},
	}
}

func TestCSVExporterRendersFooterLast(t *testing.T) {
	data, err := NewCSVExporter().Render(statementFixture())

	require.NoError(t, err)
	require.Equal(t,
		"payment_id,mentor_commission\npay-1,222.00\npay-2,148.00\nTOTAL,370.00\n",
		string(data))
}

func TestCSVExporterMissingCellsRenderEmpty(t *testing.T) {
	table := Table{
		Headers: []string{"payment_id", "paid_at"},
		Rows:    []map[string]string{{"payment_id": "pay-1"}},
	}

	data, err := NewCSVExporter().Render(table)

	require.NoError(t, err)
	require.Equal(t, "payment_id,paid_at\npay-1,\n", string(data))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Table{})
	require.Error(t, err)
}

func TestPDFExporterRendersDocument(t *testing.T) {
	data, err := NewPDFExporter().Render(statementFixture(), "Payout statement men-1 2026-03")

	require.NoError(t, err)
	require.True(t, len(data) > 0)
	require.Equal(t, "%PDF", string(data[:4]))
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Table{}, "")
	require.Error(t, err)
}
