package accountledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/shared"
	"github.com/odyssey-erp/ledgercore/internal/testing/memstore"
)

const customerID = int64(11)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newLedger(t *testing.T, policy accountledger.ReversalPolicy) (*accountledger.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return accountledger.NewService(store.Accounts(), accountledger.ServiceConfig{ReversalPolicy: policy}, nil), store
}

func record(t *testing.T, svc *accountledger.Service, dir accountledger.Direction, amount string) accountledger.Transaction {
	t.Helper()
	txn, err := svc.Record(context.Background(), accountledger.RecordInput{
		CounterpartyID: customerID,
		Type:           accountledger.TypeSalesInvoice,
		Direction:      dir,
		Amount:         d(amount),
		Reference:      shared.Reference{Type: "sales_invoice", ID: uuid.New()},
	})
	require.NoError(t, err)
	return txn
}

func balances(t *testing.T, svc *accountledger.Service) []string {
	t.Helper()
	statement, err := svc.Statement(context.Background(), customerID)
	require.NoError(t, err)
	out := make([]string, 0, len(statement))
	for _, txn := range statement {
		out = append(out, txn.BalanceAfter.StringFixed(3))
	}
	return out
}

func TestRunningBalance(t *testing.T) {
	svc, _ := newLedger(t, "")
	require.Equal(t, "100.000", record(t, svc, accountledger.DirectionDebit, "100").BalanceAfter.StringFixed(3))
	require.Equal(t, "70.000", record(t, svc, accountledger.DirectionCredit, "30").BalanceAfter.StringFixed(3))
	require.Equal(t, "90.000", record(t, svc, accountledger.DirectionDebit, "20").BalanceAfter.StringFixed(3))

	balance, err := svc.CurrentBalance(context.Background(), customerID)
	require.NoError(t, err)
	require.True(t, balance.Equal(d("90")))

	other, err := svc.CurrentBalance(context.Background(), 999)
	require.NoError(t, err)
	require.True(t, other.IsZero())
}

func TestReverseRecomputesLaterBalances(t *testing.T) {
	svc, _ := newLedger(t, accountledger.PolicyRecompute)
	record(t, svc, accountledger.DirectionDebit, "100")
	middle := record(t, svc, accountledger.DirectionCredit, "30")
	record(t, svc, accountledger.DirectionDebit, "20")

	n, err := svc.Reverse(context.Background(), middle.Reference)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"100.000", "120.000"}, balances(t, svc))

	balance, err := svc.CurrentBalance(context.Background(), customerID)
	require.NoError(t, err)
	require.True(t, balance.Equal(d("120")))

	n, err = svc.Reverse(context.Background(), middle.Reference)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLatestOnlyRejectsNonTailReversal(t *testing.T) {
	svc, _ := newLedger(t, accountledger.PolicyLatestOnly)
	record(t, svc, accountledger.DirectionDebit, "100")
	middle := record(t, svc, accountledger.DirectionCredit, "30")
	last := record(t, svc, accountledger.DirectionDebit, "20")

	_, err := svc.Reverse(context.Background(), middle.Reference)
	require.ErrorIs(t, err, accountledger.ErrNotLatestTransaction)
	require.Equal(t, []string{"100.000", "70.000", "90.000"}, balances(t, svc))

	_, err = svc.Reverse(context.Background(), last.Reference)
	require.NoError(t, err)
	require.Equal(t, []string{"100.000", "70.000"}, balances(t, svc))
}

func TestConcurrentRecordsKeepChainConsistent(t *testing.T) {
	svc, _ := newLedger(t, "")
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		dir := accountledger.DirectionDebit
		if i%4 == 0 {
			dir = accountledger.DirectionCredit
		}
		g.Go(func() error {
			_, err := svc.Record(context.Background(), accountledger.RecordInput{
				CounterpartyID: customerID,
				Type:           accountledger.TypeSalesInvoice,
				Direction:      dir,
				Amount:         d("5"),
				Reference:      shared.Reference{Type: "sales_invoice", ID: uuid.New()},
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	statement, err := svc.Statement(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, statement, 40)
	running := decimal.Zero
	for _, txn := range statement {
		running = running.Add(txn.Signed())
		require.True(t, running.Equal(txn.BalanceAfter))
	}
	require.True(t, running.Equal(d("100")))
}

func TestRecordValidation(t *testing.T) {
	svc, store := newLedger(t, "")
	ref := shared.Reference{Type: "sales_invoice", ID: uuid.New()}
	_, err := svc.Record(context.Background(), accountledger.RecordInput{
		CounterpartyID: customerID, Type: accountledger.TypeSalesInvoice, Direction: "sideways", Amount: d("1"), Reference: ref,
	})
	require.ErrorIs(t, err, accountledger.ErrInvalidDirection)
	_, err = svc.Record(context.Background(), accountledger.RecordInput{
		CounterpartyID: customerID, Type: accountledger.TypeSalesInvoice, Direction: accountledger.DirectionDebit, Amount: d("0"), Reference: ref,
	})
	require.ErrorIs(t, err, accountledger.ErrInvalidAmount)
	_, err = svc.Record(context.Background(), accountledger.RecordInput{
		CounterpartyID: customerID, Type: "gift", Direction: accountledger.DirectionDebit, Amount: d("1"), Reference: ref,
	})
	require.ErrorIs(t, err, accountledger.ErrInvalidTransactionType)
	require.Zero(t, store.Counts().Transactions)
}

func TestParseReversalPolicy(t *testing.T) {
	p, err := accountledger.ParseReversalPolicy("")
	require.NoError(t, err)
	require.Equal(t, accountledger.PolicyRecompute, p)
	p, err = accountledger.ParseReversalPolicy("latest_only")
	require.NoError(t, err)
	require.Equal(t, accountledger.PolicyLatestOnly, p)
	_, err = accountledger.ParseReversalPolicy("never")
	require.ErrorIs(t, err, accountledger.ErrInvalidPolicy)
}
