package model

// Statistics is the aggregate view reported by the status API.
type Statistics struct {
	TransactionsByStatus map[string]int `json:"transactions_by_status"`
	LedgerByStatus       map[string]int `json:"ledger_by_status"`
	TotalTransactions    int            `json:"total_transactions"`
	OpenInvoices         int            `json:"open_invoices"`
	OpenInvoiceTotal     float64        `json:"open_invoice_total"`
	PaymentEntries       int            `json:"payment_entries"`
	SubmittedEntries     int            `json:"submitted_entries"`
}
