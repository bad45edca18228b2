package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/memstore"
)

func newLedger(t *testing.T) (*ledger.Service, *sequence.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.SeedSequences()
	numbers := sequence.NewService(store.Sequences(), sequence.Config{}, nil)
	return ledger.NewService(store.Journal(), numbers, ledger.ServiceConfig{}, nil), numbers, store
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func manualRef() shared.Reference {
	return shared.Reference{Type: "manual", ID: uuid.New()}
}

func TestPostBalancedEntry(t *testing.T) {
	svc, _, store := newLedger(t)
	entry, err := svc.Post(context.Background(), ledger.PostingInput{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "cash sale",
		Reference:   manualRef(),
		Lines: []ledger.Line{
			ledger.Debit(memstore.AccountCash, d("100")),
			ledger.Credit(memstore.AccountSales, d("100")),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "JE-000001", entry.Number)
	require.NotZero(t, entry.ID)
	require.Len(t, entry.Lines, 2)

	tb, err := svc.TrialBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, tb, 2)
	require.Equal(t, memstore.AccountCash, tb[0].AccountCode)
	require.True(t, tb[0].Balance().Equal(d("100")))
	require.True(t, tb[1].Balance().Equal(d("-100")))
	require.Equal(t, 1, store.Counts().Entries)
}

func TestPostRejectsUnbalancedWithoutConsumingNumber(t *testing.T) {
	svc, numbers, store := newLedger(t)
	_, err := svc.Post(context.Background(), ledger.PostingInput{
		Reference: manualRef(),
		Lines: []ledger.Line{
			ledger.Debit(memstore.AccountCash, d("100")),
			ledger.Credit(memstore.AccountSales, d("90")),
		},
	})
	var unbalanced *ledger.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.ErrorIs(t, err, ledger.ErrUnbalancedEntry)
	require.True(t, unbalanced.Debit.Equal(d("100")))
	require.True(t, unbalanced.Credit.Equal(d("90")))
	require.Zero(t, store.Counts().Entries)

	next, err := numbers.Peek(context.Background(), ledger.SequenceDocumentType)
	require.NoError(t, err)
	require.Equal(t, "JE-000001", next)
}

func TestPostRoundsAndDropsZeroLines(t *testing.T) {
	svc, _, _ := newLedger(t)
	entry, err := svc.Post(context.Background(), ledger.PostingInput{
		Reference: manualRef(),
		Lines: []ledger.Line{
			ledger.Debit(memstore.AccountCash, d("10.0005")),
			ledger.Credit(memstore.AccountSales, d("10.001")),
			ledger.Credit(memstore.AccountTaxPayable, d("0.0004")),
		},
	})
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	require.True(t, entry.Lines[0].Debit.Equal(d("10.001")))
}

func TestPostValidation(t *testing.T) {
	svc, _, _ := newLedger(t)
	cases := []struct {
		name  string
		input ledger.PostingInput
		want  error
	}{
		{
			name: "missing reference",
			input: ledger.PostingInput{Lines: []ledger.Line{
				ledger.Debit(memstore.AccountCash, d("1")), ledger.Credit(memstore.AccountSales, d("1")),
			}},
			want: ledger.ErrInvalidReference,
		},
		{
			name:  "single line",
			input: ledger.PostingInput{Reference: manualRef(), Lines: []ledger.Line{ledger.Debit(memstore.AccountCash, d("1"))}},
			want:  ledger.ErrTooFewLines,
		},
		{
			name: "both sides on one line",
			input: ledger.PostingInput{Reference: manualRef(), Lines: []ledger.Line{
				{AccountCode: memstore.AccountCash, Debit: d("1"), Credit: d("1")},
				ledger.Credit(memstore.AccountSales, d("1")),
			}},
			want: ledger.ErrInvalidLine,
		},
		{
			name: "negative amount",
			input: ledger.PostingInput{Reference: manualRef(), Lines: []ledger.Line{
				ledger.Debit(memstore.AccountCash, d("-1")), ledger.Credit(memstore.AccountSales, d("-1")),
			}},
			want: ledger.ErrInvalidLine,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Post(context.Background(), tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReverseIsIdempotent(t *testing.T) {
	svc, _, store := newLedger(t)
	ref := manualRef()
	for i := 0; i < 2; i++ {
		_, err := svc.Post(context.Background(), ledger.PostingInput{
			Reference: ref,
			Lines: []ledger.Line{
				ledger.Debit(memstore.AccountCOGS, d("5")),
				ledger.Credit(memstore.AccountInventory, d("5")),
			},
		})
		require.NoError(t, err)
	}
	entries, err := svc.EntriesByReference(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	n, err := svc.Reverse(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = svc.Reverse(context.Background(), ref)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, store.Counts().Entries)
}

func TestUnbalancedEntriesReportsCorruption(t *testing.T) {
	svc, _, store := newLedger(t)
	id := store.InjectEntry(ledger.JournalEntry{
		Number:    "JE-999999",
		Reference: manualRef(),
		Lines: []ledger.Line{
			ledger.Debit(memstore.AccountCash, d("10")),
			ledger.Credit(memstore.AccountSales, d("9")),
		},
	})
	found, err := svc.UnbalancedEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, id, found[0].EntryID)
}

func TestResolverFromStandardChart(t *testing.T) {
	resolver, err := ledger.LoadResolver(context.Background(), memstore.StandardChart())
	require.NoError(t, err)

	code, err := resolver.Resolve(ledger.EventSalesInvoice, ledger.KeyReceivable)
	require.NoError(t, err)
	require.Equal(t, memstore.AccountReceivable, code)

	code, err = resolver.Resolve(ledger.EventRecurringExpense, ledger.CategoryKey(memstore.CategoryUtilities))
	require.NoError(t, err)
	require.Equal(t, memstore.AccountUtilities, code)

	_, err = resolver.Resolve(ledger.EventRecurringExpense, ledger.CategoryKey("marketing"))
	var resolution *ledger.AccountResolutionError
	require.ErrorAs(t, err, &resolution)
	require.Equal(t, ledger.EventRecurringExpense, resolution.EventType)
	require.ErrorIs(t, err, ledger.ErrAccountResolution)
}

func TestResolverRejectsIncompleteConfiguration(t *testing.T) {
	chart := memstore.StandardChart().Without(ledger.EventSalesInvoice, ledger.KeyCOGS)
	_, err := ledger.NewResolver(chart.Accounts, chart.Mappings)
	require.ErrorIs(t, err, ledger.ErrInvalidMapping)
	require.Contains(t, err.Error(), "sales_invoice/cogs")
}

func TestResolverRejectsInactiveAccount(t *testing.T) {
	chart := memstore.StandardChart()
	accounts := append([]ledger.Account(nil), chart.Accounts...)
	for i := range accounts {
		if accounts[i].Code == memstore.AccountCOGS {
			accounts[i].IsActive = false
		}
	}
	_, err := ledger.NewResolver(accounts, chart.Mappings)
	require.ErrorIs(t, err, ledger.ErrInvalidMapping)
	require.Contains(t, err.Error(), "inactive")
}

func TestSettlementKey(t *testing.T) {
	cases := map[ledger.PaymentMethod]ledger.AccountKey{
		ledger.PaymentCash:     ledger.KeyCash,
		ledger.PaymentBank:     ledger.KeyBank,
		ledger.PaymentTransfer: ledger.KeyBank,
		ledger.PaymentCheque:   ledger.KeyBank,
		ledger.PaymentCredit:   ledger.KeyReceivable,
	}
	for method, want := range cases {
		got, err := ledger.SettlementKey(ledger.EventSalesInvoice, method, ledger.KeyReceivable)
		require.NoError(t, err)
		require.Equal(t, want, got, method)
	}
	_, err := ledger.SettlementKey(ledger.EventPOSInvoice, ledger.PaymentCredit, "")
	require.True(t, errors.Is(err, ledger.ErrAccountResolution))
}
