package memstore

import (
	"context"

	"github.com/odyssey-erp/ledgercore/internal/ledger"
)

// Chart is a static ledger.ChartSource.
type Chart struct {
	Accounts []ledger.Account
	Mappings []ledger.Mapping
}

// ListAccounts implements ledger.ChartSource.
func (c Chart) ListAccounts(context.Context) ([]ledger.Account, error) { return c.Accounts, nil }

// ListMappings implements ledger.ChartSource.
func (c Chart) ListMappings(context.Context) ([]ledger.Mapping, error) { return c.Mappings, nil }

// Without returns a copy of the chart lacking the (event, key) mapping.
func (c Chart) Without(event ledger.EventType, key ledger.AccountKey) Chart {
	out := Chart{Accounts: c.Accounts}
	for _, m := range c.Mappings {
		if m.EventType == event && m.Key == key {
			continue
		}
		out.Mappings = append(out.Mappings, m)
	}
	return out
}

// Account codes of StandardChart.
const (
	AccountCash            = "1100"
	AccountBank            = "1200"
	AccountReceivable      = "1300"
	AccountInventory       = "1400"
	AccountTaxReceivable   = "1500"
	AccountPayable         = "2100"
	AccountTaxPayable      = "2200"
	AccountSocialSecurity  = "2300"
	AccountSalariesPayable = "2400"
	AccountSales           = "4100"
	AccountSalesReturns    = "4200"
	AccountRentIncome      = "4300"
	AccountCOGS            = "5100"
	AccountSalaries        = "6100"
	AccountUtilities       = "6200"
)

// Category codes mapped by StandardChart.
const (
	CategoryRent      = "rent"
	CategoryUtilities = "utilities"
)

// StandardChart maps every required key of every event.
func StandardChart() Chart {
	accounts := []ledger.Account{
		{Code: AccountCash, Name: "Cash", Type: ledger.AccountAsset, IsActive: true},
		{Code: AccountBank, Name: "Bank", Type: ledger.AccountAsset, IsActive: true},
		{Code: AccountReceivable, Name: "Accounts Receivable", Type: ledger.AccountAsset, IsActive: true},
		{Code: AccountInventory, Name: "Inventory", Type: ledger.AccountAsset, IsActive: true},
		{Code: AccountTaxReceivable, Name: "Input Tax", Type: ledger.AccountAsset, IsActive: true},
		{Code: AccountPayable, Name: "Accounts Payable", Type: ledger.AccountLiability, IsActive: true},
		{Code: AccountTaxPayable, Name: "Output Tax", Type: ledger.AccountLiability, IsActive: true},
		{Code: AccountSocialSecurity, Name: "Social Security Payable", Type: ledger.AccountLiability, IsActive: true},
		{Code: AccountSalariesPayable, Name: "Salaries Payable", Type: ledger.AccountLiability, IsActive: true},
		{Code: AccountSales, Name: "Sales", Type: ledger.AccountRevenue, IsActive: true},
		{Code: AccountSalesReturns, Name: "Sales Returns", Type: ledger.AccountRevenue, IsActive: true},
		{Code: AccountRentIncome, Name: "Rent Income", Type: ledger.AccountRevenue, IsActive: true},
		{Code: AccountCOGS, Name: "Cost of Goods Sold", Type: ledger.AccountExpense, IsActive: true},
		{Code: AccountSalaries, Name: "Salaries", Type: ledger.AccountExpense, IsActive: true},
		{Code: AccountUtilities, Name: "Utilities", Type: ledger.AccountExpense, IsActive: true},
	}
	codes := map[ledger.AccountKey]string{
		ledger.KeyCash:                  AccountCash,
		ledger.KeyBank:                  AccountBank,
		ledger.KeyReceivable:            AccountReceivable,
		ledger.KeyPayable:               AccountPayable,
		ledger.KeySales:                 AccountSales,
		ledger.KeySalesReturns:          AccountSalesReturns,
		ledger.KeyTaxPayable:            AccountTaxPayable,
		ledger.KeyTaxReceivable:         AccountTaxReceivable,
		ledger.KeyInventory:             AccountInventory,
		ledger.KeyCOGS:                  AccountCOGS,
		ledger.KeySalariesExpense:       AccountSalaries,
		ledger.KeySocialSecurityPayable: AccountSocialSecurity,
		ledger.KeySalariesPayable:       AccountSalariesPayable,
	}
	var mappings []ledger.Mapping
	for event, keys := range ledger.RequiredKeys {
		for _, key := range keys {
			mappings = append(mappings, ledger.Mapping{EventType: event, Key: key, AccountCode: codes[key]})
		}
	}
	mappings = append(mappings,
		ledger.Mapping{EventType: ledger.EventRecurringRevenue, Key: ledger.CategoryKey(CategoryRent), AccountCode: AccountRentIncome},
		ledger.Mapping{EventType: ledger.EventRecurringExpense, Key: ledger.CategoryKey(CategoryUtilities), AccountCode: AccountUtilities},
	)
	return Chart{Accounts: accounts, Mappings: mappings}
}

// DocumentPrefixes are the number prefixes SeedSequences configures.
var DocumentPrefixes = map[string]string{
	ledger.SequenceDocumentType: "JE-",
	"sales_invoice":             "INV-",
	"pos_invoice":               "POS-",
	"sales_return":              "SR-",
	"purchase_invoice":          "PI-",
	"purchase_return":           "PR-",
	"credit_note":               "CN-",
	"payroll":                   "PAY-",
	"recurring_entry":           "REC-",
}

// SeedSequences configures a sequence for every document type.
func (s *Store) SeedSequences() {
	for docType, prefix := range DocumentPrefixes {
		s.ConfigureSequence(docType, prefix, 6)
	}
}
