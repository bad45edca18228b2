package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/posting"
	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// DocumentRepository persists business documents and recurring templates.
type DocumentRepository struct {
	db shared.DBTX
}

// NewDocumentRepository binds the repository to db.
func NewDocumentRepository(db shared.DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// InsertDocument stores the document with its lines.
func (r *DocumentRepository) InsertDocument(ctx context.Context, doc posting.Document) error {
	_, err := r.db.Exec(ctx, `INSERT INTO business_documents
(id, event_type, number, document_date, counterparty_id, warehouse_id, payment_method, subtotal, discount, tax, total, inclusive_tax, source_id, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		doc.ID, string(doc.EventType), doc.Number, doc.Date, nullInt(doc.CounterpartyID), nullInt(doc.WarehouseID),
		string(doc.PaymentMethod), doc.Totals.Subtotal, doc.Totals.Discount, doc.Totals.Tax, doc.Totals.Total,
		doc.InclusiveTax, nullUUID(doc.SourceID), doc.Notes, nullInt(doc.CreatedBy))
	if err != nil {
		return err
	}
	for _, line := range doc.Lines {
		if _, err := r.db.Exec(ctx, `INSERT INTO business_document_lines
(document_id, product_id, quantity, unit_price, tax_rate, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			doc.ID, line.ProductID, line.Quantity, line.UnitPrice, line.TaxRate, line.TaxAmount, line.Total); err != nil {
			return err
		}
	}
	return nil
}

// GetDocument loads a document of eventType with its lines.
func (r *DocumentRepository) GetDocument(ctx context.Context, eventType posting.EventType, id uuid.UUID) (posting.Document, error) {
	var (
		doc      posting.Document
		event    string
		method   string
		sourceID *uuid.UUID
	)
	err := r.db.QueryRow(ctx, `SELECT id, event_type, number, document_date, COALESCE(counterparty_id,0), COALESCE(warehouse_id,0),
payment_method, subtotal, discount, tax, total, inclusive_tax, source_id, notes, COALESCE(created_by,0)
FROM business_documents WHERE id=$1 AND event_type=$2`, id, string(eventType)).Scan(
		&doc.ID, &event, &doc.Number, &doc.Date, &doc.CounterpartyID, &doc.WarehouseID,
		&method, &doc.Totals.Subtotal, &doc.Totals.Discount, &doc.Totals.Tax, &doc.Totals.Total,
		&doc.InclusiveTax, &sourceID, &doc.Notes, &doc.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return posting.Document{}, posting.ErrDocumentNotFound
		}
		return posting.Document{}, err
	}
	doc.EventType = posting.EventType(event)
	doc.PaymentMethod = ledger.PaymentMethod(method)
	if sourceID != nil {
		doc.SourceID = *sourceID
	}

	rows, err := r.db.Query(ctx, `SELECT product_id, quantity, unit_price, tax_rate, tax_amount, line_total
FROM business_document_lines WHERE document_id=$1 ORDER BY id`, id)
	if err != nil {
		return posting.Document{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line posting.DocumentLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.TaxRate, &line.TaxAmount, &line.Total); err != nil {
			return posting.Document{}, err
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc, rows.Err()
}

// DeleteDocument removes the document; lines cascade.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM business_documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return posting.ErrDocumentNotFound
	}
	return nil
}

const templateColumns = `id, kind, name, category_code, amount, payment_method, frequency, start_date, end_date, next_due_date, last_generated, auto_generate, is_active, COALESCE(created_by,0)`

func scanTemplate(row pgx.Row) (posting.RecurringTemplate, error) {
	var (
		t         posting.RecurringTemplate
		kind      string
		method    string
		frequency string
	)
	if err := row.Scan(&t.ID, &kind, &t.Name, &t.CategoryCode, &t.Amount, &method, &frequency, &t.StartDate,
		&t.EndDate, &t.NextDueDate, &t.LastGenerated, &t.AutoGenerate, &t.IsActive, &t.CreatedBy); err != nil {
		return posting.RecurringTemplate{}, err
	}
	t.Kind = posting.RecurringKind(kind)
	t.PaymentMethod = ledger.PaymentMethod(method)
	t.Frequency = posting.Frequency(frequency)
	return t, nil
}

// DueTemplates lists templates with a period due on or before asOf.
func (r *DocumentRepository) DueTemplates(ctx context.Context, asOf time.Time) ([]posting.RecurringTemplate, error) {
	rows, err := r.db.Query(ctx, `SELECT `+templateColumns+` FROM recurring_templates
WHERE is_active AND auto_generate AND next_due_date <= $1 AND (end_date IS NULL OR next_due_date <= end_date)
ORDER BY next_due_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []posting.RecurringTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LockTemplate reads a template and holds its row lock until the transaction ends.
func (r *DocumentRepository) LockTemplate(ctx context.Context, id int64) (posting.RecurringTemplate, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return posting.RecurringTemplate{}, posting.ErrTemplateNotFound
	}
	return t, err
}

// UpdateTemplateSchedule stores the advanced schedule.
func (r *DocumentRepository) UpdateTemplateSchedule(ctx context.Context, t posting.RecurringTemplate) error {
	_, err := r.db.Exec(ctx, `UPDATE recurring_templates SET next_due_date=$2, last_generated=$3, is_active=$4 WHERE id=$1`,
		t.ID, t.NextDueDate, t.LastGenerated, t.IsActive)
	return err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullUUID(v uuid.UUID) any {
	if v == uuid.Nil {
		return nil
	}
	return v
}
