// Package booking converts positive match results into payment allocations,
// enforcing the single-customer and single-account invariants, and
// provisions counterparty bank accounts for matched customers.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
)

// Config holds booking engine options.
type Config struct {
	// AutoSubmit finalizes allocations whose amounts balance exactly.
	// Anything else stays open for manual completion regardless.
	AutoSubmit bool
}

// Engine books match results against the payment-allocation store.
type Engine struct {
	storage service.Storage
	cfg     Config
}

// NewEngine creates a booking engine.
func NewEngine(storage service.Storage, cfg Config) *Engine {
	return &Engine{storage: storage, cfg: cfg}
}

// Result reports how far a booking got, with an operator-readable
// explanation for anything short of a clean finalized booking.
type Result struct {
	Entry       *model.PaymentEntry
	Outcome     model.BookingOutcome
	Explanation string
}

// Book builds a payment allocation from a match result. Invoices from the
// winning tiers are applied in sorted identifier order. An invoice whose
// customer or receivable account differs from the first one is set aside
// and reported, not fatal: the rest of the payment still books. Individual
// invoice failures are collected the same way. Allocations persist
// incrementally and upsert by invoice id, so re-running after a crash
// mid-loop does not duplicate rows.
func (e *Engine) Book(ctx context.Context, match *model.MatchResult) (*Result, error) {
	if !match.Matched() {
		return &Result{
			Outcome:     model.BookingUnbooked,
			Explanation: explainNoMatch(match),
		}, nil
	}

	tx, err := e.storage.GetTransaction(ctx, match.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", match.TransactionID, err)
	}
	account, err := e.storage.GetBankAccount(ctx, tx.BankAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank account %s: %w", tx.BankAccount, err)
	}

	entry, err := e.findOrCreateEntry(ctx, tx, account)
	if err != nil {
		return nil, err
	}

	todo := match.Invoices()
	sort.Strings(todo)

	var failures []string
	for _, invoiceID := range todo {
		inv, invErr := e.storage.GetInvoice(ctx, invoiceID)
		if invErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", invoiceID, invErr))
			continue
		}

		// First invoice fixes the payment's customer and receivable
		// account.
		if entry.Customer == "" {
			entry.Customer = inv.Customer
			entry.PaidFrom = inv.ReceivableAccount
			if cust, custErr := e.storage.GetCustomer(ctx, inv.Customer); custErr == nil && cust != nil {
				entry.CustomerName = cust.Name
			}
			if saveErr := e.storage.SavePaymentEntry(ctx, entry); saveErr != nil {
				return nil, fmt.Errorf("failed to save payment entry: %w", saveErr)
			}
		}

		if inv.Customer != entry.Customer || inv.ReceivableAccount != entry.PaidFrom {
			entry.SkippedInvoices = append(entry.SkippedInvoices, invoiceID)
			continue
		}

		if hasAllocation(entry, invoiceID) {
			continue
		}

		alloc := model.PaymentAllocation{
			InvoiceID:   invoiceID,
			DueDate:     inv.DueDate,
			TotalAmount: inv.GrandTotal,
			Outstanding: inv.Outstanding,
			Allocated:   inv.Outstanding,
		}
		if upsertErr := e.storage.UpsertAllocation(ctx, entry.ID, alloc); upsertErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", invoiceID, upsertErr))
			continue
		}
		entry.Allocations = append(entry.Allocations, alloc)

		if model.Round2(entry.UnallocatedAmount()) <= 0 {
			break
		}
	}

	if len(entry.Allocations) == 0 {
		return &Result{
			Entry:       entry,
			Outcome:     model.BookingUnbooked,
			Explanation: "no allocation could be created: " + strings.Join(failures, "; "),
		}, nil
	}

	if entry.Customer != "" && tx.Customer != entry.Customer {
		if custErr := e.storage.UpdateTransactionCustomer(ctx, tx.ID, entry.Customer); custErr != nil {
			slog.Warn("Failed to link transaction to customer",
				"transaction", tx.ID, "customer", entry.Customer, "error", custErr)
		}
	}

	return e.finish(ctx, tx, entry, failures)
}

// finish persists the final entry state, decides the outcome and finalizes
// when the amounts balance exactly.
func (e *Engine) finish(ctx context.Context, tx *model.Transaction, entry *model.PaymentEntry, failures []string) (*Result, error) {
	if err := e.storage.SavePaymentEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save payment entry: %w", err)
	}

	var reasons []string
	if len(entry.SkippedInvoices) > 0 {
		reasons = append(reasons, fmt.Sprintf(
			"invoices on a different customer or receivable account were skipped: %s",
			strings.Join(entry.SkippedInvoices, ", ")))
	}
	if len(failures) > 0 {
		reasons = append(reasons, "invoice lookup failures: "+strings.Join(failures, "; "))
	}

	allocated := model.Round2(entry.AllocatedTotal())
	unallocated := model.Round2(entry.UnallocatedAmount())
	balanced := unallocated == 0 && model.SameAmount(allocated, entry.PaidAmount)
	if !balanced {
		reasons = append(reasons, fmt.Sprintf(
			"amounts do not balance: paid %.2f, allocated %.2f, unallocated %.2f",
			entry.PaidAmount, allocated, unallocated))
	}

	if len(reasons) > 0 {
		return &Result{
			Entry:       entry,
			Outcome:     model.BookingPartial,
			Explanation: strings.Join(reasons, "; "),
		}, nil
	}

	if !e.cfg.AutoSubmit {
		return &Result{
			Entry:       entry,
			Outcome:     model.BookingBooked,
			Explanation: "allocation saved, auto-submit disabled",
		}, nil
	}

	if err := e.storage.SubmitPaymentEntry(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("failed to submit payment entry %s: %w", entry.ID, err)
	}
	entry.Submitted = true

	remark := fmt.Sprintf("payment entry %s: %.2f allocated across %d invoice(s)",
		entry.ID, allocated, len(entry.Allocations))
	if err := e.storage.UpdateTransactionLog(ctx, tx.ID, remark); err != nil {
		slog.Warn("Failed to record audit note", "transaction", tx.ID, "error", err)
	}
	if err := e.storage.UpdateTransactionStatus(ctx, tx.ID, model.StatusAutoBooked); err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	return &Result{
		Entry:       entry,
		Outcome:     model.BookingBooked,
		Explanation: remark,
	}, nil
}

// findOrCreateEntry reuses a previously persisted payment entry for the
// transaction, so retries after a crash continue where they stopped.
func (e *Engine) findOrCreateEntry(ctx context.Context, tx *model.Transaction, account *model.BankAccount) (*model.PaymentEntry, error) {
	existing, err := e.storage.GetPaymentEntryForTransaction(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment entry for %s: %w", tx.ID, err)
	}
	if existing != nil {
		return existing, nil
	}
	return &model.PaymentEntry{
		ID:            uuid.NewString(),
		TransactionID: tx.ID,
		PaidTo:        account.ReceivableTarget,
		PaidAmount:    tx.Amount,
		ReferenceDate: tx.TransactionDate,
		CreatedAt:     time.Now(),
	}, nil
}

// EnsureCounterpartyAccount provisions a bank account record linking the
// counterparty IBAN to the matched customer. Idempotent: an already
// provisioned IBAN is a no-op. Unrecognized BICs get a placeholder bank.
func (e *Engine) EnsureCounterpartyAccount(ctx context.Context, customer, iban, bic string) error {
	if customer == "" || iban == "" {
		return nil
	}

	existing, err := e.storage.GetCustomerBankAccountByIBAN(ctx, iban)
	if err != nil {
		return fmt.Errorf("failed to look up bank account %s: %w", iban, err)
	}
	if existing != nil {
		return nil
	}

	bankName := ""
	if bic != "" {
		bank, bankErr := e.storage.GetBankByBIC(ctx, bic)
		if bankErr != nil {
			return fmt.Errorf("failed to look up bank %s: %w", bic, bankErr)
		}
		if bank == nil {
			bank = &model.Bank{Name: "unknown " + bic, BIC: bic}
			if saveErr := e.storage.SaveBank(ctx, bank); saveErr != nil {
				return fmt.Errorf("failed to create placeholder bank: %w", saveErr)
			}
		}
		bankName = bank.Name
	}

	customerName := customer
	if cust, custErr := e.storage.GetCustomer(ctx, customer); custErr == nil && cust != nil && cust.Name != "" {
		customerName = cust.Name
	}

	acc := &model.CustomerBankAccount{
		ID:          uuid.NewString(),
		AccountName: accountName(customerName, iban),
		Bank:        bankName,
		Customer:    customer,
		IBAN:        iban,
	}
	if err := e.storage.SaveCustomerBankAccount(ctx, acc); err != nil {
		return fmt.Errorf("failed to create bank account for %s: %w", customer, err)
	}

	slog.Info("Provisioned counterparty bank account",
		"customer", customer, "iban", iban, "bank", bankName)
	return nil
}

// accountName builds a display name capped at 140 characters, the records
// system's field limit.
func accountName(customerName, iban string) string {
	const maxLen = 140
	sep := " | "
	budget := maxLen - len(sep) - len(iban)
	if budget < 0 {
		budget = 0
	}
	if len(customerName) > budget {
		customerName = customerName[:budget]
	}
	return customerName + sep + iban
}

func explainNoMatch(match *model.MatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "no tier matched amount %.2f for purpose %q", match.Amount, match.Purpose)
	if len(match.StrictInvoices) > 0 {
		fmt.Fprintf(&b, "; strict candidates: %s", strings.Join(match.StrictInvoices, ", "))
	}
	if len(match.LooseInvoices) > 0 {
		fmt.Fprintf(&b, "; loose candidates: %s", strings.Join(match.LooseInvoices, ", "))
	}
	if match.Customer != "" {
		fmt.Fprintf(&b, "; resolved customer %s has no fitting invoice combination", match.Customer)
	}
	return b.String()
}

func hasAllocation(entry *model.PaymentEntry, invoiceID string) bool {
	for _, a := range entry.Allocations {
		if a.InvoiceID == invoiceID {
			return true
		}
	}
	return false
}

