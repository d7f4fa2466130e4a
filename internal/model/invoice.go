package model

import (
	"strings"
	"time"
)

// InvoiceStatus is the lifecycle status of a sales invoice in the records system.
type InvoiceStatus string

// Invoice statuses relevant to matching.
const (
	InvoiceOpen     InvoiceStatus = "Open"
	InvoiceOverdue  InvoiceStatus = "Overdue"
	InvoicePaid     InvoiceStatus = "Paid"
	InvoiceReturned InvoiceStatus = "Return"
)

// Invoice is a read-only view of a sales invoice. The records system owns
// these; the matching core never writes them.
type Invoice struct {
	DueDate           time.Time
	ID                string // full identifier, e.g. "SINV-00042"
	Customer          string
	ReceivableAccount string // debtor account the invoice posts against
	Status            InvoiceStatus
	GrandTotal        float64
	Outstanding       float64
}

// Number returns the bare numeric part of the invoice identifier
// ("SINV-00042" -> "00042"). Empty if the identifier has no hyphen.
func (i *Invoice) Number() string {
	idx := strings.Index(i.ID, "-")
	if idx < 0 || idx+1 >= len(i.ID) {
		return ""
	}
	return i.ID[idx+1:]
}
