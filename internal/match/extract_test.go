package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

func testIndex(invoices ...model.Invoice) *Index {
	return NewIndex(invoices, "SINV-RET-")
}

func openInvoice(id, customer string, total float64) model.Invoice {
	return model.Invoice{
		ID:          id,
		Customer:    customer,
		Status:      model.InvoiceOpen,
		GrandTotal:  total,
		Outstanding: total,
	}
}

func TestNewExtractor(t *testing.T) {
	t.Run("rejects empty series", func(t *testing.T) {
		_, err := NewExtractor("", "SINV-")
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrInvalidConfig))
	})

	t.Run("series without placeholders gets digits appended", func(t *testing.T) {
		ex, err := NewExtractor("SINV-", "SINV-")
		require.NoError(t, err)
		idx := testIndex(openInvoice("SINV-123456", "CUST-0001", 10))
		assert.Equal(t, []string{"SINV-123456"}, ex.Strict("Zahlung SINV-123456", idx))
	})
}

func TestExtractorStrict(t *testing.T) {
	ex, err := NewExtractor("SINV-.#####", "SINV-")
	require.NoError(t, err)

	idx := testIndex(
		openInvoice("SINV-00042", "CUST-0001", 119.00),
		openInvoice("SINV-00043", "CUST-0001", 238.00),
	)

	tests := []struct {
		name    string
		purpose string
		want    []string
	}{
		{
			name:    "single reference",
			purpose: "RECHNUNG SINV-00042 DANKE",
			want:    []string{"SINV-00042"},
		},
		{
			name:    "multiple references deduplicated in order",
			purpose: "SINV-00043 und SINV-00042 und SINV-00043",
			want:    []string{"SINV-00043", "SINV-00042"},
		},
		{
			name:    "unknown invoice filtered out",
			purpose: "SINV-00042 SINV-99999",
			want:    []string{"SINV-00042"},
		},
		{
			name:    "spacing inside the identifier breaks strict",
			purpose: "SINV- 00042",
			want:    nil,
		},
		{
			name:    "no reference",
			purpose: "Miete April",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Strict(tt.purpose, idx))
		})
	}
}

func TestExtractorLoose(t *testing.T) {
	ex, err := NewExtractor("SINV-.#####", "SINV-")
	require.NoError(t, err)

	idx := testIndex(
		openInvoice("SINV-00042", "CUST-0001", 119.00),
		openInvoice("SINV-01042", "CUST-0002", 50.00),
	)

	tests := []struct {
		name    string
		purpose string
		want    []string
	}{
		{
			name:    "spaced reference found after stripping",
			purpose: "SINV- 000 42",
			want:    []string{"SINV-00042"},
		},
		{
			name:    "bare number without leading zeros",
			purpose: "Rechnung 42 bezahlt",
			want:    []string{"SINV-00042"},
		},
		{
			name:    "longer token wins over its suffix",
			purpose: "Zahlung 1042",
			want:    []string{"SINV-01042"},
		},
		{
			name:    "both references in one purpose",
			purpose: "RG 00042 und RG 01042",
			want:    []string{"SINV-00042", "SINV-01042"},
		},
		{
			name:    "empty purpose",
			purpose: "   ",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Loose(tt.purpose, idx))
		})
	}

	t.Run("no unpaid invoices", func(t *testing.T) {
		assert.Nil(t, ex.Loose("Rechnung 42", testIndex()))
	})
}

func TestExtractorCustomerMatch(t *testing.T) {
	ex, err := NewExtractor("SINV-.#####", "SINV-")
	require.NoError(t, err)

	idx := testIndex(
		openInvoice("SINV-00001", "CUST-0007", 10),
		openInvoice("SINV-00002", "CUST-0009", 20),
	)

	t.Run("single customer token", func(t *testing.T) {
		got, err := ex.CustomerMatch("Zahlung von cust-0007 danke", idx)
		require.NoError(t, err)
		assert.Equal(t, "CUST-0007", got)
	})

	t.Run("token survives spacing", func(t *testing.T) {
		got, err := ex.CustomerMatch("CUST- 0007", idx)
		require.NoError(t, err)
		assert.Equal(t, "CUST-0007", got)
	})

	t.Run("no customer", func(t *testing.T) {
		got, err := ex.CustomerMatch("Miete April", idx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("two customers is ambiguous", func(t *testing.T) {
		_, err := ex.CustomerMatch("CUST-0007 im Auftrag von CUST-0009", idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrAmbiguousCustomer))
	})
}

func TestIndexExcludesUnmatchable(t *testing.T) {
	paid := openInvoice("SINV-00010", "CUST-0001", 10)
	paid.Status = model.InvoicePaid
	returned := openInvoice("SINV-00011", "CUST-0001", 10)
	returned.Status = model.InvoiceReturned
	credit := openInvoice("SINV-RET-00012", "CUST-0001", 10)

	idx := testIndex(paid, returned, credit, openInvoice("SINV-00013", "CUST-0001", 10))

	assert.Equal(t, 1, idx.Len())
	assert.True(t, idx.Has("SINV-00013"))
	assert.False(t, idx.Has("SINV-00010"))
	assert.False(t, idx.Has("SINV-RET-00012"))
}
