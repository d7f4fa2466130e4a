// Package export renders bank statements in the exchange formats downstream
// accounting software imports: SWIFT MT940 (DK flavor) and CAMT.053 XML.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/mleitner/bankmatch/internal/model"
)

// swiftChars is the SWIFT-allowed character subset.
const swiftChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789/-?:().,' +"

// Statement is one statement period for a single account.
type Statement struct {
	FromDate       time.Time
	ToDate         time.Time
	Account        *model.BankAccount
	Transactions   []model.Transaction
	OpeningBalance float64
	ClosingBalance float64
}

// MT940 renders the statement in the German DK MT940 format. German banks
// use LF line endings here, not the CRLF the SWIFT standard specifies.
func MT940(stmt *Statement) string {
	var b strings.Builder
	currency := stmt.Account.Currency
	if currency == "" {
		currency = "EUR"
	}

	// :20: transaction reference, empty for DK compatibility
	b.WriteString(":20:\n")
	b.WriteString(":25:" + accountID(stmt.Account) + "\n")
	b.WriteString(":28C:0/1\n")
	b.WriteString(balanceLine("60F", stmt.OpeningBalance, stmt.FromDate, currency) + "\n")

	for i := range stmt.Transactions {
		tx := &stmt.Transactions[i]
		b.WriteString(statementLine(tx) + "\n")
		for _, line := range infoLines(tx) {
			b.WriteString(line + "\n")
		}
	}

	b.WriteString(balanceLine("62F", stmt.ClosingBalance, stmt.ToDate, currency) + "\n")
	b.WriteString("-\n")
	return b.String()
}

// accountID renders :25: as BLZ/Kontonummer, falling back to slicing a
// German IBAN.
func accountID(account *model.BankAccount) string {
	if account.BankCode != "" && account.AccountNumber != "" {
		return account.BankCode + "/" + account.AccountNumber
	}
	iban := account.IBAN
	if strings.HasPrefix(iban, "DE") && len(iban) >= 22 {
		blz := iban[4:12]
		number := strings.TrimLeft(iban[12:22], "0")
		if number == "" {
			number = "0"
		}
		return blz + "/" + number
	}
	return sanitizeSwift(iban, 35)
}

// balanceLine renders :60F:/:62F: as C/D + YYMMDD + currency + amount.
func balanceLine(tag string, amount float64, date time.Time, currency string) string {
	indicator := "C"
	if amount < 0 {
		indicator = "D"
	}
	return fmt.Sprintf(":%s:%s%s%s%s", tag, indicator, date.Format("060102"), currency, mt940Amount(amount))
}

// statementLine renders :61: with value date, booking date, amount and the
// bank reference.
func statementLine(tx *model.Transaction) string {
	valueDate := tx.EffectiveDate().Format("060102")
	entryDate := tx.TransactionDate.Format("0102")

	indicator := "CR"
	if tx.Amount < 0 {
		indicator = "DR"
	}

	bankRef := ""
	switch {
	case tx.CustomerRef != "":
		bankRef = "//" + sanitizeSwift(tx.CustomerRef, 16)
	case tx.ID != "":
		bankRef = "//" + sanitizeSwift(tx.ID, 16)
	}

	return fmt.Sprintf(":61:%s%s%s%sNTRFNONREF%s",
		valueDate, entryDate, indicator, mt940Amount(tx.Amount), bankRef)
}

// infoLines renders :86: with the DK ?XX subfields: ?00 booking text,
// ?20-?29 purpose in 27-char chunks, ?30 BIC, ?31 IBAN, ?32-?33 name.
func infoLines(tx *model.Transaction) []string {
	var lines []string

	first := ":86:" + tx.GVCode
	if tx.TransactionType != "" {
		first += "?00" + sanitizeSwift(tx.TransactionType, 27)
	}
	lines = append(lines, first)

	purpose := sanitizeSwift(tx.Purpose, 270)
	for i := 0; i < len(purpose) && i/27 < 10; i += 27 {
		end := i + 27
		if end > len(purpose) {
			end = len(purpose)
		}
		lines = append(lines, fmt.Sprintf("?%02d%s", 20+i/27, purpose[i:end]))
	}

	if tx.CounterpartyBIC != "" {
		lines = append(lines, "?30"+sanitizeSwift(tx.CounterpartyBIC, 11))
	}
	if tx.CounterpartyIBAN != "" {
		lines = append(lines, "?31"+sanitizeSwift(tx.CounterpartyIBAN, 34))
	}
	if name := sanitizeSwift(tx.CounterpartyName, 54); name != "" {
		if len(name) > 27 {
			lines = append(lines, "?32"+name[:27], "?33"+name[27:])
		} else {
			lines = append(lines, "?32"+name)
		}
	}
	return lines
}

// mt940Amount renders an absolute amount with a comma decimal separator and
// no thousands grouping.
func mt940Amount(amount float64) string {
	if amount < 0 {
		amount = -amount
	}
	return strings.ReplaceAll(fmt.Sprintf("%.2f", amount), ".", ",")
}

var umlautReplacer = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "AE", "Ö", "OE", "Ü", "UE",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o",
	"ú", "u", "ù", "u", "û", "u",
	"ñ", "n", "ç", "c",
	"€", "EUR", "&", "+",
)

// sanitizeSwift transliterates umlauts, drops characters outside the SWIFT
// set, collapses whitespace and truncates.
func sanitizeSwift(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	text = umlautReplacer.Replace(text)

	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(swiftChars, r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if maxLength > 0 && len(out) > maxLength {
		out = out[:maxLength]
	}
	return out
}
