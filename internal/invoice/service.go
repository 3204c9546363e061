package invoice

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"rxdesk/m/domain"
)

// Service stores raw invoice payloads and serves them normalized. A
// payload is keyed by invoice id and, when known, by the prescription it
// bills, so either side of the UI can look it up.
type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Save records a raw payload. The stored bytes are kept verbatim;
// normalization happens on every read so a fresh fetch always produces a
// fresh Invoice.
func (s *Service) Save(ctx context.Context, invoiceID, prescriptionID string, payload json.RawMessage) error {
	if strings.TrimSpace(invoiceID) == "" || len(payload) == 0 {
		return domain.ErrInvalidLine
	}
	var probe any
	if err := json.Unmarshal(payload, &probe); err != nil {
		return domain.ErrInvalidLine
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO invoice_payloads (id, prescription_id, payload) VALUES (?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET prescription_id = excluded.prescription_id, payload = excluded.payload`,
		invoiceID, nullIfEmpty(prescriptionID), string(payload))
	return err
}

// ByInvoiceID returns the normalized invoice for an id-keyed payload.
func (s *Service) ByInvoiceID(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	return s.fetch(ctx, `SELECT payload FROM invoice_payloads WHERE id = ?`, invoiceID)
}

// ByPrescriptionID returns the normalized invoice for a
// prescription-keyed payload.
func (s *Service) ByPrescriptionID(ctx context.Context, prescriptionID string) (*domain.Invoice, error) {
	return s.fetch(ctx, `SELECT payload FROM invoice_payloads WHERE prescription_id = ?`, prescriptionID)
}

func (s *Service) fetch(ctx context.Context, query, arg string) (*domain.Invoice, error) {
	var payload string
	err := sqlx.GetContext(ctx, s.db, &payload, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var raw any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, domain.ErrNotFound
	}
	inv := Normalize(raw)
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func nullIfEmpty(val string) *string {
	trimmed := strings.TrimSpace(val)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
