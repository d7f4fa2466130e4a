// Package hibiscus talks to the Hibiscus Payment Server. Hibiscus is the
// HBCI/FinTS banking middleware; it exposes accounts and transactions over
// an XML-RPC endpoint authenticated with the master password.
package hibiscus

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// DefaultTimeout bounds one XML-RPC round trip.
const DefaultTimeout = 30 * time.Second

// hibiscusDate is the wire format for dates (German convention).
const hibiscusDate = "02.01.2006"

// Config holds the connection parameters for the Hibiscus server.
type Config struct {
	Host           string
	Port           int
	MasterPassword string
	IgnoreCert     bool
	Timeout        time.Duration
}

// Client is an XML-RPC client for the Hibiscus server.
type Client struct {
	httpClient *http.Client
	url        string
	password   string
}

// NewClient creates a Hibiscus client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: hibiscus host", common.ErrMissingConfig)
	}
	if cfg.MasterPassword == "" {
		return nil, fmt.Errorf("%w: hibiscus master password", common.ErrMissingConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.IgnoreCert {
		// Hibiscus ships with a self-signed certificate out of the box.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		url:      fmt.Sprintf("https://%s:%d/xmlrpc", cfg.Host, cfg.Port),
		password: cfg.MasterPassword,
	}, nil
}

// GetAccounts fetches all bank accounts known to the Hibiscus server.
func (c *Client) GetAccounts(ctx context.Context) ([]model.BankAccount, error) {
	records, err := c.call(ctx, "hibiscus.xmlrpc.konto.find", nil)
	if err != nil {
		return nil, err
	}

	accounts := make([]model.BankAccount, 0, len(records))
	for _, rec := range records {
		account := model.BankAccount{
			HibiscusID:       rec["id"],
			IBAN:             rec["iban"],
			BIC:              rec["bic"],
			AccountHolder:    rec["name"],
			Description:      rec["bezeichnung"],
			AccountNumber:    rec["kontonummer"],
			BankCode:         rec["blz"],
			SubAccount:       rec["unterkonto"],
			CustomerNumber:   rec["kundennummer"],
			Currency:         rec["waehrung"],
			Comment:          rec["kommentar"],
			Balance:          parseAmount(rec["saldo"]),
			AvailableBalance: parseAmount(rec["saldo_available"]),
		}
		if d, parseErr := time.Parse(hibiscusDate, rec["saldo_datum"]); parseErr == nil {
			account.BalanceDate = d
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// GetTransactions fetches transactions for one Hibiscus account within a
// date range. A zero from-date defaults to 30 days back on the server side.
// The owning account IBAN is not part of the wire record; callers fill it.
func (c *Client) GetTransactions(ctx context.Context, hibiscusAccountID string, from, to time.Time) ([]model.Transaction, error) {
	params := map[string]string{"konto_id": hibiscusAccountID}
	if !from.IsZero() {
		params["datum:min"] = from.Format(hibiscusDate)
	}
	if !to.IsZero() {
		params["datum:max"] = to.Format(hibiscusDate)
	}

	records, err := c.call(ctx, "hibiscus.xmlrpc.umsatz.list", params)
	if err != nil {
		return nil, err
	}

	transactions := make([]model.Transaction, 0, len(records))
	for _, rec := range records {
		tx := model.Transaction{
			ID:               rec["id"],
			Purpose:          assemblePurpose(rec["zweck"], rec["zweck_raw"]),
			PurposeRaw:       rec["zweck_raw"],
			CounterpartyName: rec["empfaenger_name"],
			CounterpartyIBAN: rec["empfaenger_konto"],
			CounterpartyBIC:  rec["empfaenger_blz"],
			TransactionType:  rec["art"],
			EndToEndID:       rec["endtoendid"],
			Primanota:        rec["primanota"],
			CustomerRef:      rec["customer_ref"],
			GVCode:           rec["gvcode"],
			Comment:          rec["kommentar"],
			Status:           model.StatusNew,
			Amount:           parseAmount(rec["betrag"]),
			Balance:          parseAmount(rec["saldo"]),
		}
		if d, parseErr := time.Parse(hibiscusDate, rec["datum"]); parseErr == nil {
			tx.TransactionDate = d
		}
		if d, parseErr := time.Parse(hibiscusDate, rec["valuta"]); parseErr == nil {
			tx.ValueDate = d
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

// assemblePurpose prefers the full multi-line purpose over the truncated
// single-line variant.
func assemblePurpose(zweck, zweckRaw string) string {
	if zweckRaw != "" {
		return strings.Join(strings.Fields(strings.ReplaceAll(zweckRaw, "\n", " ")), " ")
	}
	return strings.TrimSpace(zweck)
}

// parseAmount handles both decimal conventions the server emits: "123.45"
// and "1.234,56".
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// --- XML-RPC wire handling ---

type methodCall struct {
	XMLName    xml.Name   `xml:"methodCall"`
	MethodName string     `xml:"methodName"`
	Params     []rpcParam `xml:"params>param"`
}

type rpcParam struct {
	Value rpcValue `xml:"value"`
}

type rpcValue struct {
	String *string    `xml:"string"`
	Struct *rpcStruct `xml:"struct"`
	Array  *rpcArray  `xml:"array"`
	Text   string     `xml:",chardata"`
}

type rpcStruct struct {
	Members []rpcMember `xml:"member"`
}

type rpcMember struct {
	Name  string   `xml:"name"`
	Value rpcValue `xml:"value"`
}

type rpcArray struct {
	Values []rpcValue `xml:"data>value"`
}

type methodResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  []rpcParam `xml:"params>param"`
	Fault   *rpcValue  `xml:"fault>value"`
}

// call performs one XML-RPC method call. Hibiscus list methods return an
// array of structs whose values are all strings; nested arrays (the raw
// purpose lines) are flattened by joining with newlines.
func (c *Client) call(ctx context.Context, method string, params map[string]string) ([]map[string]string, error) {
	call := methodCall{MethodName: method}
	if len(params) > 0 {
		s := &rpcStruct{}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := params[k]
			s.Members = append(s.Members, rpcMember{Name: k, Value: rpcValue{String: &v}})
		}
		call.Params = []rpcParam{{Value: rpcValue{Struct: s}}}
	}

	body, err := xml.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url,
		bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth("admin", c.password)
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrHibiscusConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: server returned status %d", common.ErrHibiscusAPI, resp.StatusCode)
	}

	var response methodResponse
	if err := xml.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", common.ErrHibiscusAPI, err)
	}
	if response.Fault != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrHibiscusAPI, faultString(response.Fault))
	}
	if len(response.Params) == 0 {
		return nil, nil
	}

	top := response.Params[0].Value
	if top.Array == nil {
		return nil, nil
	}

	records := make([]map[string]string, 0, len(top.Array.Values))
	for _, v := range top.Array.Values {
		if v.Struct == nil {
			continue
		}
		rec := make(map[string]string, len(v.Struct.Members))
		for _, m := range v.Struct.Members {
			rec[m.Name] = flattenValue(m.Value)
		}
		records = append(records, rec)
	}
	return records, nil
}

// flattenValue extracts the scalar text of a value, joining array elements
// with newlines.
func flattenValue(v rpcValue) string {
	if v.String != nil {
		return *v.String
	}
	if v.Array != nil {
		parts := make([]string, 0, len(v.Array.Values))
		for _, elem := range v.Array.Values {
			parts = append(parts, flattenValue(elem))
		}
		return strings.Join(parts, "\n")
	}
	return strings.TrimSpace(v.Text)
}

// faultString pulls faultString out of a fault struct.
func faultString(v *rpcValue) string {
	if v.Struct != nil {
		for _, m := range v.Struct.Members {
			if m.Name == "faultString" {
				return flattenValue(m.Value)
			}
		}
	}
	return "unknown fault"
}
