package model

import "time"

// TransactionStatus tracks the booking lifecycle of an imported transaction.
type TransactionStatus string

// Transaction statuses.
const (
	StatusNew          TransactionStatus = "new"
	StatusLegacyBooked TransactionStatus = "legacy booked"
	StatusAutoBooked   TransactionStatus = "auto booked"
	StatusOtherIncome  TransactionStatus = "other income"
)

// Transaction is a bank transaction imported from the Hibiscus payment server.
// Everything except Status, Customer and Log is immutable once imported.
type Transaction struct {
	TransactionDate  time.Time
	ValueDate        time.Time
	ID               string // Hibiscus transaction ID
	BankAccount      string // IBAN of the owning account
	Purpose          string
	PurposeRaw       string
	CounterpartyName string
	CounterpartyIBAN string
	CounterpartyBIC  string
	TransactionType  string
	EndToEndID       string
	Primanota        string
	CustomerRef      string
	GVCode           string
	Comment          string
	Currency         string
	Status           TransactionStatus
	Customer         string // set by the booking engine once matched
	Log              string // audit note from finalized bookings
	Amount           float64
	Balance          float64 // running balance after this transaction
}

// EffectiveDate returns the value date, falling back to the booking date.
func (t *Transaction) EffectiveDate() time.Time {
	if !t.ValueDate.IsZero() {
		return t.ValueDate
	}
	return t.TransactionDate
}

// IsIncoming reports whether the transaction is a credit.
func (t *Transaction) IsIncoming() bool {
	return t.Amount > 0
}
