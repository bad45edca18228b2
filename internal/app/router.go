package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/platform/httpx"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
)

// HealthCheck is one dependency probed by /readyz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// JournalReader serves trial balance and integrity reports.
type JournalReader interface {
	TrialBalance(ctx context.Context) ([]ledger.AccountTotal, error)
	UnbalancedEntries(ctx context.Context) ([]ledger.UnbalancedEntry, error)
}

// StockReader derives on-hand quantity from the movement ledger.
type StockReader interface {
	CurrentStock(ctx context.Context, productID int64, warehouseID *int64) (decimal.Decimal, error)
}

// StatementReader lists a counterparty's account transactions.
type StatementReader interface {
	Statement(ctx context.Context, counterpartyID int64) ([]accountledger.Transaction, error)
}

// SequencePeeker previews the next document number.
type SequencePeeker interface {
	Peek(ctx context.Context, documentType string) (string, error)
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	Checks     []HealthCheck
	Journal    JournalReader
	Stock      StockReader
	Statements StatementReader
	Sequences  SequencePeeker
	JobRoutes  func(chi.Router)
}

// NewRouter constructs the read-only ops router: health, metrics and
// ledger inspection endpoints.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: logger, Metrics: params.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Checks, logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobRoutes != nil {
		r.Route("/jobs", params.JobRoutes)
	}

	h := opsHandler{params: params, logger: logger}
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/integrity", h.integrity)
	})
	r.Get("/inventory/products/{productID}/stock", h.stock)
	r.Get("/accounts/{counterpartyID}/statement", h.statement)
	r.Get("/sequences/{documentType}/next", h.nextNumber)
	return r
}

func readiness(checks []HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", check.Name), slog.Any("error", err))
				result[check.Name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			result[check.Name] = "up"
		}
		httpx.JSON(w, status, result)
	}
}

type opsHandler struct {
	params RouterParams
	logger *slog.Logger
}

type accountTotalView struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

type unbalancedView struct {
	EntryID int64           `json:"entry_id"`
	Number  string          `json:"number"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

type transactionView struct {
	Number       string          `json:"number"`
	Date         string          `json:"date"`
	Type         string          `json:"type"`
	Direction    string          `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reference    string          `json:"reference"`
}

func (h opsHandler) trialBalance(w http.ResponseWriter, r *http.Request) {
	if h.params.Journal == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	totals, err := h.params.Journal.TrialBalance(r.Context())
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	out := make([]accountTotalView, 0, len(totals))
	for _, t := range totals {
		out = append(out, accountTotalView{AccountCode: t.AccountCode, Debit: t.Debit, Credit: t.Credit, Balance: t.Balance()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h opsHandler) integrity(w http.ResponseWriter, r *http.Request) {
	if h.params.Journal == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	entries, err := h.params.Journal.UnbalancedEntries(r.Context())
	if err != nil {
		h.fail(w, "integrity", err)
		return
	}
	out := make([]unbalancedView, 0, len(entries))
	for _, e := range entries {
		out = append(out, unbalancedView{EntryID: e.EntryID, Number: e.Number, Debit: e.Debit, Credit: e.Credit})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balanced": len(out) == 0, "unbalanced": out})
}

func (h opsHandler) stock(w http.ResponseWriter, r *http.Request) {
	if h.params.Stock == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "inventory not configured")
		return
	}
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var warehouse *int64
	if raw := r.URL.Query().Get("warehouse"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: warehouse must be a positive integer", httpx.ErrValidation))
			return
		}
		warehouse = &id
	}
	qty, err := h.params.Stock.CurrentStock(r.Context(), productID, warehouse)
	if err != nil {
		h.fail(w, "stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "warehouse_id": warehouse, "quantity": qty})
}

func (h opsHandler) statement(w http.ResponseWriter, r *http.Request) {
	if h.params.Statements == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "account ledger not configured")
		return
	}
	counterpartyID, err := pathID(r, "counterpartyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txns, err := h.params.Statements.Statement(r.Context(), counterpartyID)
	if err != nil {
		h.fail(w, "statement", err)
		return
	}
	out := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		out = append(out, transactionView{
			Number:       t.Number,
			Date:         t.Date.Format("2006-01-02"),
			Type:         string(t.Type),
			Direction:    string(t.Direction),
			Amount:       t.Amount,
			BalanceAfter: t.BalanceAfter,
			Reference:    t.Reference.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h opsHandler) nextNumber(w http.ResponseWriter, r *http.Request) {
	if h.params.Sequences == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "sequencer not configured")
		return
	}
	documentType := chi.URLParam(r, "documentType")
	number, err := h.params.Sequences.Peek(r.Context(), documentType)
	if err != nil {
		if errors.Is(err, sequence.ErrSequenceNotConfigured) {
			err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
		}
		h.fail(w, "peek sequence", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"document_type": documentType, "next": number})
}

func (h opsHandler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("ops "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", httpx.ErrValidation, name)
	}
	return id, nil
}
