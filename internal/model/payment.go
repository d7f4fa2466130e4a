package model

import "time"

// BookingOutcome summarizes how far the booking engine got with a match.
type BookingOutcome string

// Booking outcomes.
const (
	BookingBooked    BookingOutcome = "booked"
	BookingPartial   BookingOutcome = "partially booked"
	BookingUnbooked  BookingOutcome = "unbooked"
)

// PaymentAllocation applies a portion of a payment against one invoice.
type PaymentAllocation struct {
	DueDate     time.Time
	InvoiceID   string
	TotalAmount float64 // invoice grand total at allocation time
	Outstanding float64 // outstanding amount at allocation time
	Allocated   float64
}

// PaymentEntry groups the allocations created for one transaction. Customer
// and the two accounts must be uniform across all allocations; invoices that
// would break that invariant land in SkippedInvoices instead.
type PaymentEntry struct {
	CreatedAt       time.Time
	ReferenceDate   time.Time
	ID              string
	TransactionID   string
	Customer        string
	CustomerName    string
	PaidFrom        string // receivable (debtor) account
	PaidTo          string // bank ledger account
	Remarks         string
	Allocations     []PaymentAllocation
	SkippedInvoices []string // different-account bucket, reported to the operator
	PaidAmount      float64
	Submitted       bool
}

// AllocatedTotal is the sum of all allocation amounts.
func (p *PaymentEntry) AllocatedTotal() float64 {
	var sum float64
	for _, a := range p.Allocations {
		sum += a.Allocated
	}
	return sum
}

// UnallocatedAmount is the part of the paid amount not yet applied to an
// invoice. Never negative from the booking engine's perspective.
func (p *PaymentEntry) UnallocatedAmount() float64 {
	return p.PaidAmount - p.AllocatedTotal()
}
