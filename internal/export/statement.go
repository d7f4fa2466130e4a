package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// BuildStatement assembles one statement period from storage. Opening and
// closing balances are derived from the running balances the bank reports
// with each transaction, oldest first.
func BuildStatement(ctx context.Context, storage service.Storage, iban string, from, to time.Time) (*Statement, error) {
	account, err := storage.GetBankAccount(ctx, iban)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	transactions, err := storage.GetTransactions(ctx, service.TransactionFilter{
		FromDate:    &from,
		ToDate:      &to,
		BankAccount: iban,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	// Storage returns newest first; statements run oldest first.
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].TransactionDate.Before(transactions[j].TransactionDate)
	})

	stmt := &Statement{
		Account:      account,
		Transactions: transactions,
		FromDate:     from,
		ToDate:       to,
	}
	if len(transactions) > 0 {
		first := transactions[0]
		last := transactions[len(transactions)-1]
		stmt.OpeningBalance = model.Round2(first.Balance - first.Amount)
		stmt.ClosingBalance = last.Balance
	} else {
		stmt.OpeningBalance = account.Balance
		stmt.ClosingBalance = account.Balance
	}
	return stmt, nil
}
