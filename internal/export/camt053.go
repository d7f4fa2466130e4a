package export

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/mleitner/bankmatch/internal/model"
)

// camt053Namespace is the camt.053.001.08 default namespace.
const camt053Namespace = "urn:iso:std:iso:20022:tech:xsd:camt.053.001.08"

// CAMT053 renders the statement as a camt.053.001.08 end-of-day XML
// document.
func CAMT053(stmt *Statement, statementID string) ([]byte, error) {
	currency := stmt.Account.Currency
	if currency == "" {
		currency = "EUR"
	}
	now := time.Now().Format("2006-01-02T15:04:05")

	doc := camtDocument{
		Xmlns: camt053Namespace,
		Stmt: camtBankStatement{
			GrpHdr: camtGroupHeader{MsgID: statementID, CreDtTm: now},
			Stmt: camtStatement{
				ID:           statementID,
				ElctrncSeqNb: "1",
				CreDtTm:      now,
				Acct:         buildAccount(stmt.Account, currency),
				Bal: []camtBalance{
					buildBalance("OPBD", stmt.OpeningBalance, currency, stmt.FromDate),
					buildBalance("CLBD", stmt.ClosingBalance, currency, stmt.ToDate),
				},
				TxsSummry: buildSummary(stmt.Transactions),
			},
		},
	}
	for i := range stmt.Transactions {
		doc.Stmt.Stmt.Ntry = append(doc.Stmt.Stmt.Ntry, buildEntry(&stmt.Transactions[i], currency))
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal camt.053 document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func buildAccount(account *model.BankAccount, currency string) camtAccount {
	acct := camtAccount{Ccy: currency, Nm: account.Description}
	if account.IBAN != "" {
		acct.ID.IBAN = account.IBAN
	} else {
		acct.ID.Othr = &camtOtherID{ID: account.AccountNumber}
	}
	if account.AccountHolder != "" {
		acct.Ownr = &camtParty{Nm: account.AccountHolder}
	}
	if account.BIC != "" {
		acct.Svcr = &camtAgent{FinInstnID: camtFinInstn{BICFI: account.BIC}}
	}
	return acct
}

func buildBalance(code string, amount float64, currency string, date time.Time) camtBalance {
	return camtBalance{
		Tp:        camtBalanceType{CdOrPrtry: camtCodeChoice{Cd: code}},
		Amt:       camtAmount{Ccy: currency, Value: absAmount(amount)},
		CdtDbtInd: creditDebit(amount >= 0),
		Dt:        camtDate{Dt: date.Format("2006-01-02")},
	}
}

func buildSummary(transactions []model.Transaction) *camtSummary {
	if len(transactions) == 0 {
		return nil
	}
	summary := &camtSummary{TtlNtries: &camtEntryCount{NbOfNtries: fmt.Sprint(len(transactions))}}
	var creditCount, debitCount int
	var creditSum, debitSum float64
	for _, tx := range transactions {
		if tx.Amount > 0 {
			creditCount++
			creditSum += tx.Amount
		} else if tx.Amount < 0 {
			debitCount++
			debitSum += -tx.Amount
		}
	}
	if creditCount > 0 {
		summary.TtlCdtNtries = &camtEntryCount{NbOfNtries: fmt.Sprint(creditCount), Sum: absAmount(creditSum)}
	}
	if debitCount > 0 {
		summary.TtlDbtNtries = &camtEntryCount{NbOfNtries: fmt.Sprint(debitCount), Sum: absAmount(debitSum)}
	}
	return summary
}

func buildEntry(tx *model.Transaction, currency string) camtEntry {
	isCredit := tx.Amount > 0

	code := tx.GVCode
	if code == "" {
		code = tx.TransactionType
	}
	if code == "" {
		code = "NTAV"
	}

	entry := camtEntry{
		NtryRef:   tx.ID,
		Amt:       camtAmount{Ccy: currency, Value: absAmount(tx.Amount)},
		CdtDbtInd: creditDebit(isCredit),
		Sts:       camtCodeChoice{Cd: "BOOK"},
		BookgDt:   camtDate{Dt: tx.TransactionDate.Format("2006-01-02")},
		ValDt:     camtDate{Dt: tx.EffectiveDate().Format("2006-01-02")},
		BkTxCd:    camtBankTxCode{Prtry: camtProprietaryCode{Cd: truncate(code, 35)}},
	}

	details := camtTxDetails{}
	endToEnd := tx.EndToEndID
	if endToEnd == "" || endToEnd == "NOTPROVIDED" {
		endToEnd = tx.CustomerRef
	}
	if endToEnd == "" {
		endToEnd = "NOTPROVIDED"
	}
	details.Refs = &camtReferences{EndToEndID: truncate(endToEnd, 35)}
	if tx.Primanota != "" {
		details.Refs.Prtry = &camtProprietaryRef{Tp: "PRIM", Ref: tx.Primanota}
	}

	if tx.CounterpartyName != "" || tx.CounterpartyIBAN != "" {
		parties := &camtParties{}
		var party *camtPartyChoice
		if tx.CounterpartyName != "" {
			party = &camtPartyChoice{Pty: camtParty{Nm: truncate(tx.CounterpartyName, 140)}}
		}
		var acct *camtAccountRef
		if tx.CounterpartyIBAN != "" {
			acct = &camtAccountRef{}
			acct.ID.IBAN = tx.CounterpartyIBAN
		}
		if isCredit {
			parties.Dbtr = party
			parties.DbtrAcct = acct
		} else {
			parties.Cdtr = party
			parties.CdtrAcct = acct
		}
		details.RltdPties = parties
	}

	if tx.CounterpartyBIC != "" {
		agent := &camtAgent{FinInstnID: camtFinInstn{BICFI: tx.CounterpartyBIC}}
		agents := &camtAgents{}
		if isCredit {
			agents.DbtrAgt = agent
		} else {
			agents.CdtrAgt = agent
		}
		details.RltdAgts = agents
	}

	if tx.Purpose != "" {
		purpose := truncate(tx.Purpose, 560)
		var lines []string
		for i := 0; i < len(purpose); i += 140 {
			end := i + 140
			if end > len(purpose) {
				end = len(purpose)
			}
			lines = append(lines, purpose[i:end])
		}
		details.RmtInf = &camtRemittance{Ustrd: lines}
	}

	entry.NtryDtls = []camtEntryDetails{{TxDtls: []camtTxDetails{details}}}
	return entry
}

func creditDebit(credit bool) string {
	if credit {
		return "CRDT"
	}
	return "DBIT"
}

func absAmount(amount float64) string {
	if amount < 0 {
		amount = -amount
	}
	return fmt.Sprintf("%.2f", amount)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// --- camt.053.001.08 document structure (subset) ---

type camtDocument struct {
	XMLName xml.Name          `xml:"Document"`
	Xmlns   string            `xml:"xmlns,attr"`
	Stmt    camtBankStatement `xml:"BkToCstmrStmt"`
}

type camtBankStatement struct {
	GrpHdr camtGroupHeader `xml:"GrpHdr"`
	Stmt   camtStatement   `xml:"Stmt"`
}

type camtGroupHeader struct {
	MsgID   string `xml:"MsgId"`
	CreDtTm string `xml:"CreDtTm"`
}

type camtStatement struct {
	ID           string        `xml:"Id"`
	ElctrncSeqNb string        `xml:"ElctrncSeqNb"`
	CreDtTm      string        `xml:"CreDtTm"`
	Acct         camtAccount   `xml:"Acct"`
	Bal          []camtBalance `xml:"Bal"`
	TxsSummry    *camtSummary  `xml:"TxsSummry,omitempty"`
	Ntry         []camtEntry   `xml:"Ntry,omitempty"`
}

type camtAccountID struct {
	IBAN string       `xml:"IBAN,omitempty"`
	Othr *camtOtherID `xml:"Othr,omitempty"`
}

type camtOtherID struct {
	ID string `xml:"Id"`
}

type camtAccount struct {
	ID   camtAccountID `xml:"Id"`
	Ccy  string        `xml:"Ccy,omitempty"`
	Nm   string        `xml:"Nm,omitempty"`
	Ownr *camtParty    `xml:"Ownr,omitempty"`
	Svcr *camtAgent    `xml:"Svcr,omitempty"`
}

type camtAccountRef struct {
	ID camtAccountID `xml:"Id"`
}

type camtParty struct {
	Nm string `xml:"Nm"`
}

type camtPartyChoice struct {
	Pty camtParty `xml:"Pty"`
}

type camtAgent struct {
	FinInstnID camtFinInstn `xml:"FinInstnId"`
}

type camtFinInstn struct {
	BICFI string `xml:"BICFI"`
}

type camtBalance struct {
	Tp        camtBalanceType `xml:"Tp"`
	Amt       camtAmount      `xml:"Amt"`
	CdtDbtInd string          `xml:"CdtDbtInd"`
	Dt        camtDate        `xml:"Dt"`
}

type camtBalanceType struct {
	CdOrPrtry camtCodeChoice `xml:"CdOrPrtry"`
}

type camtCodeChoice struct {
	Cd string `xml:"Cd"`
}

type camtAmount struct {
	Ccy   string `xml:"Ccy,attr"`
	Value string `xml:",chardata"`
}

type camtDate struct {
	Dt string `xml:"Dt"`
}

type camtSummary struct {
	TtlNtries    *camtEntryCount `xml:"TtlNtries,omitempty"`
	TtlCdtNtries *camtEntryCount `xml:"TtlCdtNtries,omitempty"`
	TtlDbtNtries *camtEntryCount `xml:"TtlDbtNtries,omitempty"`
}

type camtEntryCount struct {
	NbOfNtries string `xml:"NbOfNtries"`
	Sum        string `xml:"Sum,omitempty"`
}

type camtEntry struct {
	NtryRef   string             `xml:"NtryRef,omitempty"`
	Amt       camtAmount         `xml:"Amt"`
	CdtDbtInd string             `xml:"CdtDbtInd"`
	Sts       camtCodeChoice     `xml:"Sts"`
	BookgDt   camtDate           `xml:"BookgDt"`
	ValDt     camtDate           `xml:"ValDt"`
	BkTxCd    camtBankTxCode     `xml:"BkTxCd"`
	NtryDtls  []camtEntryDetails `xml:"NtryDtls,omitempty"`
}

type camtBankTxCode struct {
	Prtry camtProprietaryCode `xml:"Prtry"`
}

type camtProprietaryCode struct {
	Cd string `xml:"Cd"`
}

type camtEntryDetails struct {
	TxDtls []camtTxDetails `xml:"TxDtls"`
}

type camtTxDetails struct {
	Refs      *camtReferences `xml:"Refs,omitempty"`
	RltdPties *camtParties    `xml:"RltdPties,omitempty"`
	RltdAgts  *camtAgents     `xml:"RltdAgts,omitempty"`
	RmtInf    *camtRemittance `xml:"RmtInf,omitempty"`
}

type camtReferences struct {
	EndToEndID string              `xml:"EndToEndId"`
	Prtry      *camtProprietaryRef `xml:"Prtry,omitempty"`
}

type camtProprietaryRef struct {
	Tp  string `xml:"Tp"`
	Ref string `xml:"Ref"`
}

type camtParties struct {
	Dbtr     *camtPartyChoice `xml:"Dbtr,omitempty"`
	DbtrAcct *camtAccountRef  `xml:"DbtrAcct,omitempty"`
	Cdtr     *camtPartyChoice `xml:"Cdtr,omitempty"`
	CdtrAcct *camtAccountRef  `xml:"CdtrAcct,omitempty"`
}

type camtAgents struct {
	DbtrAgt *camtAgent `xml:"DbtrAgt,omitempty"`
	CdtrAgt *camtAgent `xml:"CdtrAgt,omitempty"`
}

type camtRemittance struct {
	Ustrd []string `xml:"Ustrd"`
}
