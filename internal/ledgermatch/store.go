package ledgermatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// SQLStore reads the reservation system's payments ledger over database/sql.
// The ledger is owned by the external system; this store only ever selects.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore connects to the external ledger database. The driver must be
// registered by the caller's import set.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(time.Minute)
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an existing connection, used by tests.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the ledger database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger database unreachable: %w", err)
	}
	return nil
}

// PaymentEntries returns all ledger payment rows for a customer lot and
// booking number pair, oldest first.
func (s *SQLStore) PaymentEntries(ctx context.Context, customerLot, bookingNr int64) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_date, item_nr, order_ref, trans_id, amount
		FROM ledger_payments
		WHERE customer_lot = ? AND booking_nr = ?
		ORDER BY payment_date, id`,
		customerLot, bookingNr)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.ItemNr, &e.Order, &e.TransID, &e.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan ledger payment: %w", err)
		}
		e.Timestamp = parseLedgerTime(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger payments: %w", err)
	}
	return entries, nil
}

// Customer returns the customer record behind a lot number, or
// common.ErrNotFound when the lot is unknown.
func (s *SQLStore) Customer(ctx context.Context, customerLot int64) (*model.LedgerCustomer, error) {
	var c model.LedgerCustomer
	err := s.db.QueryRowContext(ctx, `
		SELECT lot_nr, first_name, last_name, email, phone, nation
		FROM ledger_customers
		WHERE lot_nr = ?`,
		customerLot).Scan(&c.Lot, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Nation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger customer %d: %w", customerLot, err)
	}
	return &c, nil
}

// Reservation returns the reservation record behind a booking number, or
// common.ErrNotFound when the booking is unknown.
func (s *SQLStore) Reservation(ctx context.Context, bookingNr int64) (*model.LedgerReservation, error) {
	var r model.LedgerReservation
	var from, to string
	err := s.db.QueryRowContext(ctx, `
		SELECT booking_nr, date_from, date_to, site_nr, status
		FROM ledger_reservations
		WHERE booking_nr = ?`,
		bookingNr).Scan(&r.BookingNr, &from, &to, &r.SiteNr, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger reservation %d: %w", bookingNr, err)
	}
	r.From = parseLedgerTime(from)
	r.To = parseLedgerTime(to)
	return &r, nil
}

// parseLedgerTime handles the date formats the external system emits.
func parseLedgerTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
