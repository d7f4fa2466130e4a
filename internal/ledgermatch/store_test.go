package ledgermatch

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mleitner/bankmatch/internal/common"
)

// newLedgerDB creates a throwaway database shaped like the external system's
// ledger tables.
func newLedgerDB(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE ledger_payments (
			id INTEGER PRIMARY KEY,
			customer_lot INTEGER,
			booking_nr INTEGER,
			payment_date TEXT,
			item_nr TEXT,
			order_ref TEXT,
			trans_id TEXT,
			amount REAL
		);
		CREATE TABLE ledger_customers (
			lot_nr INTEGER PRIMARY KEY,
			first_name TEXT,
			last_name TEXT,
			email TEXT,
			phone TEXT,
			nation TEXT
		);
		CREATE TABLE ledger_reservations (
			booking_nr INTEGER PRIMARY KEY,
			date_from TEXT,
			date_to TEXT,
			site_nr TEXT,
			status TEXT
		);`)
	require.NoError(t, err)
	return NewSQLStore(db)
}

func TestSQLStorePaymentEntries(t *testing.T) {
	store := newLedgerDB(t)
	ctx := context.Background()

	_, err := store.db.Exec(`
		INSERT INTO ledger_payments (id, customer_lot, booking_nr, payment_date, item_nr, order_ref, trans_id, amount) VALUES
			(2, 1234567, 654321, '2026-03-12 10:00:00', '200', 'ORD-2', 'T2', 150.00),
			(1, 1234567, 654321, '2026-03-10 09:30:00', '100', 'ORD-1', 'T1', 100.00),
			(3, 7654321, 111111, '2026-03-11', '300', 'ORD-3', 'T3', 42.00)`)
	require.NoError(t, err)

	entries, err := store.PaymentEntries(ctx, 1234567, 654321)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Oldest first, regardless of insert order.
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, 100.00, entries[0].Amount)
	assert.Equal(t, "ORD-1", entries[0].Order)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), entries[0].Timestamp)
	assert.Equal(t, int64(2), entries[1].ID)

	none, err := store.PaymentEntries(ctx, 1234567, 999999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStoreCustomer(t *testing.T) {
	store := newLedgerDB(t)
	ctx := context.Background()

	_, err := store.db.Exec(`
		INSERT INTO ledger_customers (lot_nr, first_name, last_name, email, phone, nation)
		VALUES (1234567, 'Erika', 'Muster', 'erika@example.com', '', 'DE')`)
	require.NoError(t, err)

	c, err := store.Customer(ctx, 1234567)
	require.NoError(t, err)
	assert.Equal(t, "Erika", c.FirstName)
	assert.Equal(t, "Muster", c.LastName)

	_, err = store.Customer(ctx, 1)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSQLStoreReservation(t *testing.T) {
	store := newLedgerDB(t)
	ctx := context.Background()

	_, err := store.db.Exec(`
		INSERT INTO ledger_reservations (booking_nr, date_from, date_to, site_nr, status)
		VALUES (654321, '2026-07-01', '2026-07-14', 'A12', 'CONFIRMED')`)
	require.NoError(t, err)

	r, err := store.Reservation(ctx, 654321)
	require.NoError(t, err)
	assert.Equal(t, "A12", r.SiteNr)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC), r.To)

	_, err = store.Reservation(ctx, 1)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestParseLedgerTime(t *testing.T) {
	assert.Equal(t, time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC), parseLedgerTime("2026-03-10 09:30:00"))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), parseLedgerTime("2026-03-10"))
	assert.True(t, parseLedgerTime("garbage").IsZero())
}
