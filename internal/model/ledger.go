package model

import "time"

// LedgerMatchStatus classifies a transaction against the external payments
// ledger (the reservation system's PAYINFO side).
type LedgerMatchStatus string

// Ledger match statuses.
const (
	LedgerNoMatch  LedgerMatchStatus = "No Match"
	LedgerPending  LedgerMatchStatus = "Pending - Awaiting Ledger"
	LedgerPerfect  LedgerMatchStatus = "Matched (Perfect)"
	LedgerPartial  LedgerMatchStatus = "Matched (Partial)"
	LedgerMismatch LedgerMatchStatus = "Matched (Mismatch)"
)

// LedgerReference is the structured three-part code parsed out of a purpose
// string: customer lot number, four-letter code, booking number.
type LedgerReference struct {
	Code        string
	CustomerLot int64
	BookingNr   int64
}

// LedgerEntry is one payment row fetched from the external ledger.
type LedgerEntry struct {
	Timestamp time.Time
	ID        int64
	ItemNr    string
	Order     string
	TransID   string
	Amount    float64
}

// LedgerCustomer is the customer record behind a customer lot number.
type LedgerCustomer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Nation    string
	Lot       int64
}

// LedgerReservation is the reservation record behind a booking number.
type LedgerReservation struct {
	From      time.Time
	To        time.Time
	SiteNr    string
	Status    string
	BookingNr int64
}

// LedgerMatch is the full audit snapshot of one ledger classification run.
// Persisted as JSON alongside the transaction so operators can inspect
// every record that informed the decision.
type LedgerMatch struct {
	MatchedAt     time.Time          `json:"matched_at"`
	Reference     *LedgerReference   `json:"reference,omitempty"`
	Customer      *LedgerCustomer    `json:"customer,omitempty"`
	Reservation   *LedgerReservation `json:"reservation,omitempty"`
	TransactionID string             `json:"transaction_id"`
	Status        LedgerMatchStatus  `json:"status"`
	Notes         string             `json:"notes,omitempty"`
	Entries       []LedgerEntry      `json:"entries,omitempty"`
	Amount        float64            `json:"amount"`
	LedgerTotal   float64            `json:"ledger_total"`
	Difference    float64            `json:"difference"`
	QualityScore  int                `json:"quality_score"`
	IsDeposit     bool               `json:"is_deposit"`
}
