package model

// Customer is a party in the records system that invoices are billed to.
type Customer struct {
	ID   string
	Name string
}

// CustomerBankAccount links a counterparty IBAN to a customer. Provisioned
// automatically after a successful match so future payments from the same
// account resolve without a purpose reference.
type CustomerBankAccount struct {
	ID          string
	AccountName string
	Bank        string
	Customer    string
	IBAN        string
}

// Bank is a bank record keyed by BIC. Unknown BICs get a placeholder entry.
type Bank struct {
	Name string
	BIC  string
}
