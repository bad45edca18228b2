package accountledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// Direction is the side of the counterparty balance a transaction moves.
type Direction string

const (
	// DirectionDebit increases the running balance.
	DirectionDebit Direction = "debit"
	// DirectionCredit decreases the running balance.
	DirectionCredit Direction = "credit"
)

// TransactionType classifies the business cause of a transaction.
type TransactionType string

const (
	TypeSalesInvoice    TransactionType = "sales_invoice"
	TypePurchaseInvoice TransactionType = "purchase_invoice"
	TypeSalesReturn     TransactionType = "sales_return"
	TypePurchaseReturn  TransactionType = "purchase_return"
	TypeDebitNote       TransactionType = "debit_note"
	TypeCreditNote      TransactionType = "credit_note"
	TypePayment         TransactionType = "payment"
	TypeReceipt         TransactionType = "receipt"
	TypeAdjustment      TransactionType = "adjustment"
)

// Valid reports whether t is a known type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeSalesInvoice, TypePurchaseInvoice, TypeSalesReturn, TypePurchaseReturn,
		TypeDebitNote, TypeCreditNote, TypePayment, TypeReceipt, TypeAdjustment:
		return true
	}
	return false
}

// ReversalPolicy decides what deleting a transaction does to the chain after it.
type ReversalPolicy string

const (
	// PolicyRecompute re-chains balance_after of every later transaction.
	PolicyRecompute ReversalPolicy = "recompute"
	// PolicyLatestOnly refuses to delete anything but the counterparty's tail.
	PolicyLatestOnly ReversalPolicy = "latest_only"
)

var (
	// ErrInvalidDirection indicates an unknown direction.
	ErrInvalidDirection = errors.New("accountledger: direction must be debit or credit")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("accountledger: amount must be positive")
	// ErrInvalidTransactionType indicates an unknown transaction type.
	ErrInvalidTransactionType = errors.New("accountledger: unknown transaction type")
	// ErrNotLatestTransaction is returned under PolicyLatestOnly.
	ErrNotLatestTransaction = errors.New("accountledger: only the latest transaction of a counterparty can be reversed")
	// ErrInvalidPolicy indicates an unknown reversal policy.
	ErrInvalidPolicy = errors.New("accountledger: unknown reversal policy")
	// ErrNoTransactions indicates a counterparty without history.
	ErrNoTransactions = errors.New("accountledger: no transactions")
)

// ParseReversalPolicy validates a configured policy name.
func ParseReversalPolicy(v string) (ReversalPolicy, error) {
	switch ReversalPolicy(v) {
	case PolicyRecompute, PolicyLatestOnly:
		return ReversalPolicy(v), nil
	case "":
		return PolicyRecompute, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, v)
}

// Transaction is one entry of a counterparty's running balance.
type Transaction struct {
	ID             int64
	Number         string
	Date           time.Time
	CounterpartyID int64
	Type           TransactionType
	Direction      Direction
	Amount         decimal.Decimal
	Reference      shared.Reference
	BalanceAfter   decimal.Decimal
	CreatedBy      int64
	CreatedAt      time.Time
}

// Signed is the transaction's effect on the running balance.
func (t Transaction) Signed() decimal.Decimal {
	return signed(t.Direction, t.Amount)
}

func signed(d Direction, amount decimal.Decimal) decimal.Decimal {
	if d == DirectionCredit {
		return amount.Neg()
	}
	return amount
}

// RecordInput describes a transaction to append.
type RecordInput struct {
	Number         string
	Date           time.Time
	CounterpartyID int64
	Type           TransactionType
	Direction      Direction
	Amount         decimal.Decimal
	Reference      shared.Reference
	CreatedBy      int64
}

// Validate ensures the input can be stored.
func (in RecordInput) Validate() error {
	if in.CounterpartyID == 0 {
		return errors.New("accountledger: counterparty required")
	}
	if in.Direction != DirectionDebit && in.Direction != DirectionCredit {
		return ErrInvalidDirection
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, in.Type)
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !in.Reference.Valid() {
		return errors.New("accountledger: reference type and id required")
	}
	return nil
}
