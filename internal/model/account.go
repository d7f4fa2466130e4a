package model

import "time"

// BankAccount is a bank account mirrored from the Hibiscus payment server.
// The IBAN doubles as the primary key.
type BankAccount struct {
	BalanceDate       time.Time
	IBAN              string
	BIC               string
	HibiscusID        string
	AccountHolder     string
	Description       string
	AccountNumber     string
	BankCode          string
	SubAccount        string
	CustomerNumber    string
	Currency          string
	ReceivableTarget  string // ledger account incoming payments post to
	Comment           string
	Balance           float64
	AvailableBalance  float64
	AutoFetch         bool
}
