package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// SequenceDocumentType numbers journal entries.
const SequenceDocumentType = "journal_entry"

var (
	// ErrUnbalancedEntry is matched by every *UnbalancedEntryError.
	ErrUnbalancedEntry = errors.New("ledger: debit and credit totals differ")
	// ErrAccountResolution is matched by every *AccountResolutionError.
	ErrAccountResolution = errors.New("ledger: account could not be resolved")
	// ErrTooFewLines indicates an entry with fewer than two non-zero lines.
	ErrTooFewLines = errors.New("ledger: entry requires at least two non-zero lines")
	// ErrInvalidLine indicates a malformed journal line.
	ErrInvalidLine = errors.New("ledger: invalid journal line")
	// ErrInvalidReference indicates a missing reference type or id.
	ErrInvalidReference = errors.New("ledger: reference type and id required")
)

// UnbalancedEntryError reports the totals of a rejected entry.
type UnbalancedEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("ledger: unbalanced entry: debit %s, credit %s", e.Debit.StringFixed(3), e.Credit.StringFixed(3))
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalancedEntry }

// AccountResolutionError reports a missing (event, key) mapping.
type AccountResolutionError struct {
	EventType EventType
	Key       AccountKey
	Reason    string
}

func (e *AccountResolutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ledger: resolve %s/%s: %s", e.EventType, e.Key, e.Reason)
	}
	return fmt.Sprintf("ledger: resolve %s/%s: no mapping", e.EventType, e.Key)
}

func (e *AccountResolutionError) Unwrap() error { return ErrAccountResolution }

// Line is one side of a posting.
type Line struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
}

// IsZero reports whether the line moves no money.
func (l Line) IsZero() bool {
	return l.Debit.IsZero() && l.Credit.IsZero()
}

// Debit builds a debit line.
func Debit(account string, amount decimal.Decimal) Line {
	return Line{AccountCode: account, Debit: amount, Credit: decimal.Zero}
}

// Credit builds a credit line.
func Credit(account string, amount decimal.Decimal) Line {
	return Line{AccountCode: account, Debit: decimal.Zero, Credit: amount}
}

// JournalEntry is a balanced set of lines tied to one reference.
type JournalEntry struct {
	ID          int64
	Number      string
	Date        time.Time
	Description string
	Reference   shared.Reference
	CreatedBy   int64
	CreatedAt   time.Time
	Lines       []Line
}

// Totals sums both sides.
func (e JournalEntry) Totals() (decimal.Decimal, decimal.Decimal) {
	return totals(e.Lines)
}

func totals(lines []Line) (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// PostingInput carries a journal entry to be posted.
type PostingInput struct {
	Date        time.Time
	Description string
	Reference   shared.Reference
	CreatedBy   int64
	Lines       []Line
}

// Normalize rounds amounts to precision and drops zero lines.
func (in PostingInput) Normalize(precision int32) PostingInput {
	out := in
	out.Lines = make([]Line, 0, len(in.Lines))
	for _, l := range in.Lines {
		l.Debit = shared.Round(l.Debit, precision)
		l.Credit = shared.Round(l.Credit, precision)
		if l.IsZero() {
			continue
		}
		out.Lines = append(out.Lines, l)
	}
	return out
}

// Validate ensures a normalized posting input can be stored.
func (in PostingInput) Validate() error {
	if !in.Reference.Valid() {
		return ErrInvalidReference
	}
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: line %d missing account", ErrInvalidLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", ErrInvalidLine, idx)
		}
		if !line.Debit.IsZero() && !line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d cannot be both debit and credit", ErrInvalidLine, idx)
		}
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit, credit := totals(in.Lines)
	if !debit.Equal(credit) {
		return &UnbalancedEntryError{Debit: debit, Credit: credit}
	}
	return nil
}

// AccountTotal is one trial balance row.
type AccountTotal struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Balance is debit minus credit.
func (t AccountTotal) Balance() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// UnbalancedEntry is reported by integrity scans.
type UnbalancedEntry struct {
	EntryID int64
	Number  string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}
