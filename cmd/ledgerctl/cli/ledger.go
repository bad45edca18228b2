package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
)

// ExitFindings is returned when a check command ran cleanly but found problems.
const ExitFindings = 10

// SequenceOps is the sequencer surface the CLI drives.
type SequenceOps interface {
	Peek(ctx context.Context, documentType string) (string, error)
	Allocate(ctx context.Context, documentType string) (string, error)
	AdvanceToAtLeast(ctx context.Context, documentType string, n int64) error
	Configure(ctx context.Context, input sequence.ConfigInput) (sequence.Sequence, error)
}

// StockOps rebuilds materialized stock balances.
type StockOps interface {
	Reconcile(ctx context.Context) ([]inventory.Drift, error)
}

// IntegrityOps scans the journal.
type IntegrityOps interface {
	UnbalancedEntries(ctx context.Context) ([]ledger.UnbalancedEntry, error)
}

// Output selects where and how a command reports.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

func (o Output) emit(v any, human func(io.Writer)) int {
	if o.JSONOutput {
		if err := json.NewEncoder(o.Stdout).Encode(v); err != nil {
			_, _ = fmt.Fprintf(o.Stderr, "encode json: %v\n", err)
			return 1
		}
		return 0
	}
	human(o.Stdout)
	return 0
}

func (o Output) fail(cmd string, err error) int {
	_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
	return 1
}

// LedgerCLI bundles the operator commands that act on the ledgers.
type LedgerCLI struct {
	sequences SequenceOps
	stock     StockOps
	journal   IntegrityOps
}

// NewLedgerCLI constructs the helper. Any collaborator may be nil; its
// commands then fail with a configuration error.
func NewLedgerCLI(sequences SequenceOps, stock StockOps, journal IntegrityOps) *LedgerCLI {
	return &LedgerCLI{sequences: sequences, stock: stock, journal: journal}
}

var errNotConfigured = errors.New("not configured")

type numberResult struct {
	DocumentType string `json:"document_type"`
	Number       string `json:"number"`
}

// PeekCommand prints the next number without consuming it.
func (c *LedgerCLI) PeekCommand(ctx context.Context, documentType string, out Output) int {
	out = out.withDefaults()
	if c.sequences == nil {
		return out.fail("peek", errNotConfigured)
	}
	number, err := c.sequences.Peek(ctx, strings.TrimSpace(documentType))
	if err != nil {
		return out.fail("peek", err)
	}
	return out.emit(numberResult{DocumentType: documentType, Number: number}, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, number)
	})
}

// AllocateCommand consumes and prints the next number.
func (c *LedgerCLI) AllocateCommand(ctx context.Context, documentType string, out Output) int {
	out = out.withDefaults()
	if c.sequences == nil {
		return out.fail("allocate", errNotConfigured)
	}
	number, err := c.sequences.Allocate(ctx, strings.TrimSpace(documentType))
	if err != nil {
		return out.fail("allocate", err)
	}
	return out.emit(numberResult{DocumentType: documentType, Number: number}, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, number)
	})
}

// AdvanceCommand moves a counter forward so later numbers exceed n.
func (c *LedgerCLI) AdvanceCommand(ctx context.Context, documentType string, n int64, out Output) int {
	out = out.withDefaults()
	if c.sequences == nil {
		return out.fail("advance", errNotConfigured)
	}
	if err := c.sequences.AdvanceToAtLeast(ctx, strings.TrimSpace(documentType), n); err != nil {
		return out.fail("advance", err)
	}
	next, err := c.sequences.Peek(ctx, strings.TrimSpace(documentType))
	if err != nil {
		return out.fail("advance", err)
	}
	return out.emit(numberResult{DocumentType: documentType, Number: next}, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "%s advanced, next number %s\n", documentType, next)
	})
}

// ConfigureCommand creates or updates a numbering series.
func (c *LedgerCLI) ConfigureCommand(ctx context.Context, input sequence.ConfigInput, out Output) int {
	out = out.withDefaults()
	if c.sequences == nil {
		return out.fail("configure", errNotConfigured)
	}
	seq, err := c.sequences.Configure(ctx, input)
	if err != nil {
		return out.fail("configure", err)
	}
	return out.emit(numberResult{DocumentType: seq.DocumentType, Number: seq.Next()}, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "%s configured, next number %s\n", seq.DocumentType, seq.Next())
	})
}

type driftRow struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Stored      decimal.Decimal `json:"stored"`
	Derived     decimal.Decimal `json:"derived"`
}

// ReconcileCommand rebuilds stock balances. It exits with ExitFindings when
// any row had drifted.
func (c *LedgerCLI) ReconcileCommand(ctx context.Context, out Output) int {
	out = out.withDefaults()
	if c.stock == nil {
		return out.fail("reconcile", errNotConfigured)
	}
	drifts, err := c.stock.Reconcile(ctx)
	if err != nil {
		return out.fail("reconcile", err)
	}
	rows := make([]driftRow, 0, len(drifts))
	for _, d := range drifts {
		rows = append(rows, driftRow{ProductID: d.ProductID, WarehouseID: d.WarehouseID, Stored: d.Stored, Derived: d.Derived})
	}
	code := out.emit(rows, func(w io.Writer) {
		if len(rows) == 0 {
			_, _ = fmt.Fprintln(w, "stock balances match the movement ledger")
			return
		}
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "product %d warehouse %d: stored %s, derived %s (corrected)\n", r.ProductID, r.WarehouseID, r.Stored, r.Derived)
		}
	})
	if code == 0 && len(rows) > 0 {
		return ExitFindings
	}
	return code
}

type unbalancedRow struct {
	EntryID int64           `json:"entry_id"`
	Number  string          `json:"number"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// IntegrityCommand lists unbalanced journal entries, exiting with
// ExitFindings when there are any.
func (c *LedgerCLI) IntegrityCommand(ctx context.Context, out Output) int {
	out = out.withDefaults()
	if c.journal == nil {
		return out.fail("integrity", errNotConfigured)
	}
	entries, err := c.journal.UnbalancedEntries(ctx)
	if err != nil {
		return out.fail("integrity", err)
	}
	rows := make([]unbalancedRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, unbalancedRow{EntryID: e.EntryID, Number: e.Number, Debit: e.Debit, Credit: e.Credit})
	}
	code := out.emit(rows, func(w io.Writer) {
		if len(rows) == 0 {
			_, _ = fmt.Fprintln(w, "every journal entry balances")
			return
		}
		for _, r := range rows {
			_, _ = fmt.Fprintf(w, "%s (id %d): debit %s, credit %s\n", r.Number, r.EntryID, r.Debit, r.Credit)
		}
	})
	if code == 0 && len(rows) > 0 {
		return ExitFindings
	}
	return code
}
