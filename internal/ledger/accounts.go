package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// EventType identifies the business event an entry is posted for.
type EventType string

const (
	EventSalesInvoice     EventType = "sales_invoice"
	EventPOSInvoice       EventType = "pos_invoice"
	EventSalesReturn      EventType = "sales_return"
	EventPurchaseInvoice  EventType = "purchase_invoice"
	EventPurchaseReturn   EventType = "purchase_return"
	EventCreditNote       EventType = "credit_note"
	EventPayroll          EventType = "payroll"
	EventRecurringRevenue EventType = "recurring_revenue"
	EventRecurringExpense EventType = "recurring_expense"
)

// AccountKey names a role an account plays in an event's posting.
type AccountKey string

const (
	KeyCash                  AccountKey = "cash"
	KeyBank                  AccountKey = "bank"
	KeyReceivable            AccountKey = "receivable"
	KeyPayable               AccountKey = "payable"
	KeySales                 AccountKey = "sales"
	KeySalesReturns          AccountKey = "sales_returns"
	KeyTaxPayable            AccountKey = "tax_payable"
	KeyTaxReceivable         AccountKey = "tax_receivable"
	KeyInventory             AccountKey = "inventory"
	KeyCOGS                  AccountKey = "cogs"
	KeySalariesExpense       AccountKey = "salaries_expense"
	KeySocialSecurityPayable AccountKey = "social_security_payable"
	KeySalariesPayable       AccountKey = "salaries_payable"
)

const categoryKeyPrefix = "category:"

// CategoryKey is the key of a revenue or expense category code.
func CategoryKey(code string) AccountKey {
	return AccountKey(categoryKeyPrefix + code)
}

// RequiredKeys lists, per event type, the keys a configuration must map.
// Category keys are open ended and resolved on demand.
var RequiredKeys = map[EventType][]AccountKey{
	EventSalesInvoice:     {KeyCash, KeyBank, KeyReceivable, KeySales, KeyTaxPayable, KeyInventory, KeyCOGS},
	EventPOSInvoice:       {KeyCash, KeyBank, KeySales, KeyTaxPayable, KeyInventory, KeyCOGS},
	EventSalesReturn:      {KeyCash, KeyBank, KeyReceivable, KeySalesReturns, KeyTaxPayable, KeyInventory, KeyCOGS},
	EventPurchaseInvoice:  {KeyCash, KeyBank, KeyPayable, KeyInventory, KeyTaxReceivable},
	EventPurchaseReturn:   {KeyCash, KeyBank, KeyPayable, KeyInventory, KeyTaxReceivable},
	EventCreditNote:       {KeyReceivable, KeySalesReturns},
	EventPayroll:          {KeySalariesExpense, KeySocialSecurityPayable, KeySalariesPayable},
	EventRecurringRevenue: {KeyCash, KeyBank},
	EventRecurringExpense: {KeyCash, KeyBank},
}

// PaymentMethod is how a document is settled.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCredit   PaymentMethod = "credit"
	PaymentBank     PaymentMethod = "bank"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCheck    PaymentMethod = "check"
	PaymentCheque   PaymentMethod = "cheque"
)

// IsCash reports whether the method settles on the spot with no counterparty
// balance.
func (m PaymentMethod) IsCash() bool {
	return m == PaymentCash
}

// IsCredit reports whether the method leaves an open balance with the counterparty.
func (m PaymentMethod) IsCredit() bool {
	return m == PaymentCredit
}

// SettlementKey maps a payment method to the key settling it: cash to cash,
// bank/transfer/check/cheque to bank, credit to the counterparty control key.
func SettlementKey(event EventType, method PaymentMethod, control AccountKey) (AccountKey, error) {
	switch method {
	case PaymentCash:
		return KeyCash, nil
	case PaymentBank, PaymentTransfer, PaymentCheck, PaymentCheque:
		return KeyBank, nil
	case PaymentCredit:
		if control == "" {
			return "", &AccountResolutionError{EventType: event, Key: "", Reason: "credit settlement has no control account"}
		}
		return control, nil
	default:
		return "", &AccountResolutionError{EventType: event, Key: AccountKey(method), Reason: "unknown payment method"}
	}
}

// AccountType classifies chart-of-accounts rows.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// Account is a chart-of-accounts row.
type Account struct {
	Code     string
	Name     string
	Type     AccountType
	IsActive bool
}

// Mapping binds (event, key) to an account code.
type Mapping struct {
	EventType   EventType
	Key         AccountKey
	AccountCode string
}

// ErrInvalidMapping indicates a configuration that cannot be used to post.
var ErrInvalidMapping = errors.New("ledger: invalid account mapping")

// Resolver answers resolve_account(event_type, key) from an explicit table.
type Resolver struct {
	mappings map[EventType]map[AccountKey]string
}

// NewResolver validates mappings against the chart and RequiredKeys.
func NewResolver(chart []Account, mappings []Mapping) (*Resolver, error) {
	accounts := make(map[string]Account, len(chart))
	for _, a := range chart {
		accounts[a.Code] = a
	}
	r := &Resolver{mappings: make(map[EventType]map[AccountKey]string)}
	var problems []string
	for _, m := range mappings {
		acc, ok := accounts[m.AccountCode]
		switch {
		case m.EventType == "" || m.Key == "":
			problems = append(problems, fmt.Sprintf("mapping to %s missing event or key", m.AccountCode))
			continue
		case !ok:
			problems = append(problems, fmt.Sprintf("%s/%s: account %s not in chart", m.EventType, m.Key, m.AccountCode))
			continue
		case !acc.IsActive:
			problems = append(problems, fmt.Sprintf("%s/%s: account %s inactive", m.EventType, m.Key, m.AccountCode))
			continue
		}
		byKey, ok := r.mappings[m.EventType]
		if !ok {
			byKey = make(map[AccountKey]string)
			r.mappings[m.EventType] = byKey
		}
		if existing, dup := byKey[m.Key]; dup && existing != m.AccountCode {
			problems = append(problems, fmt.Sprintf("%s/%s: mapped to both %s and %s", m.EventType, m.Key, existing, m.AccountCode))
			continue
		}
		byKey[m.Key] = m.AccountCode
	}
	for event, keys := range RequiredKeys {
		for _, key := range keys {
			if _, ok := r.mappings[event][key]; !ok {
				problems = append(problems, fmt.Sprintf("%s/%s: required mapping missing", event, key))
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(problems, "; "))
	}
	return r, nil
}

// Resolve returns the account code for (event, key) or fails closed.
func (r *Resolver) Resolve(event EventType, key AccountKey) (string, error) {
	if r == nil {
		return "", &AccountResolutionError{EventType: event, Key: key, Reason: "resolver not configured"}
	}
	code, ok := r.mappings[event][key]
	if !ok {
		return "", &AccountResolutionError{EventType: event, Key: key}
	}
	return code, nil
}

// Mappings lists the configured table in a stable order.
func (r *Resolver) Mappings() []Mapping {
	if r == nil {
		return nil
	}
	var out []Mapping
	for event, byKey := range r.mappings {
		for key, code := range byKey {
			out = append(out, Mapping{EventType: event, Key: key, AccountCode: code})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Key < out[j].Key
	})
	return out
}
