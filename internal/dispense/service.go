// Package dispense implements the prescription fulfillment pipeline:
// requests move Requested -> Pending -> Fulfilled, and while Pending each
// line's dispense flag can be toggled with a matching stock deduction.
package dispense

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"rxdesk/m/domain"
	"rxdesk/m/internal/inventory"
)

type Service struct {
	db  *sqlx.DB
	inv *inventory.Store
}

// NewService constructs a Service over the given database and inventory
// store. The inventory store is injected so tests can supply isolated
// stock fixtures.
func NewService(db *sqlx.DB, inv *inventory.Store) *Service {
	return &Service{db: db, inv: inv}
}

type SubmitLine struct {
	Drug         string  `json:"drug"`
	Dose         float64 `json:"dose"`
	TimesPerDay  int64   `json:"times_per_day"`
	DurationDays int64   `json:"duration_days"`
	FormType     string  `json:"form_type"`
}

type SubmitRequest struct {
	PatientName string       `json:"patient_name"`
	Age         int64        `json:"age"`
	Gender      string       `json:"gender"`
	Lines       []SubmitLine `json:"lines"`
}

// Submit records a new prescription request in the Requested state.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.FulfillmentRequest, error) {
	if strings.TrimSpace(req.PatientName) == "" || len(req.Lines) == 0 {
		return nil, domain.ErrInvalidLine
	}
	for _, line := range req.Lines {
		if strings.TrimSpace(line.Drug) == "" || line.Dose <= 0 || line.TimesPerDay <= 0 || line.DurationDays <= 0 {
			return nil, domain.ErrInvalidLine
		}
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	requestedAt := time.Now().UTC().Format(time.RFC3339)
	var id int64
	err = tx.QueryRowx(`INSERT INTO requests (patient_name, age, gender, status, requested_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		req.PatientName, req.Age, req.Gender, domain.StatusRequested, requestedAt).Scan(&id)
	if err != nil {
		return nil, err
	}
	for i, line := range req.Lines {
		_, err = tx.Exec(`INSERT INTO request_lines (request_id, line_no, drug, dose, times_per_day, duration_days, form_type) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i+1, line.Drug, line.Dose, line.TimesPerDay, line.DurationDays, line.FormType)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get loads one request with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*domain.FulfillmentRequest, error) {
	return getRequest(ctx, s.db, id)
}

// List returns requests in the given state, or every request when status
// is empty, newest first.
func (s *Service) List(ctx context.Context, status domain.RequestStatus) ([]domain.FulfillmentRequest, error) {
	requests := []domain.FulfillmentRequest{}
	var err error
	if status == "" {
		err = sqlx.SelectContext(ctx, s.db, &requests, `SELECT id, patient_name, age, gender, status, remarks, requested_at, issued_at FROM requests ORDER BY id DESC`)
	} else {
		err = sqlx.SelectContext(ctx, s.db, &requests, `SELECT id, patient_name, age, gender, status, remarks, requested_at, issued_at FROM requests WHERE status = ? ORDER BY id DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	for i := range requests {
		lines, err := getLines(ctx, s.db, requests[i].ID)
		if err != nil {
			return nil, err
		}
		requests[i].Lines = lines
	}
	return requests, nil
}

// AdvanceToPending moves a Requested record into Pending. No inventory
// effect; dispense flags start cleared and remarks empty.
func (s *Service) AdvanceToPending(ctx context.Context, id int64) (*domain.FulfillmentRequest, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET status = ? WHERE id = ? AND status = ?`,
		domain.StatusPending, id, domain.StatusRequested)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, statusFailure(ctx, s.db, id)
	}
	return s.Get(ctx, id)
}

// ToggleDispensed flips the dispense flag on one line of a Pending
// request. Checking a line deducts its required quantity from stock and
// is rejected outright when stock is short; un-checking restocks the
// same amount, so stock always reflects the lines currently checked.
// Lines sharing a drug are evaluated one at a time against current
// stock.
func (s *Service) ToggleDispensed(ctx context.Context, id, lineNo int64) (*domain.FulfillmentRequest, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var status domain.RequestStatus
	err = tx.QueryRowx(`SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != domain.StatusPending {
		return nil, domain.ErrInvalidState
	}

	var line domain.PrescriptionLine
	err = tx.QueryRowx(`SELECT line_no, drug, dose, times_per_day, duration_days, form_type, dispensed FROM request_lines WHERE request_id = ? AND line_no = ?`, id, lineNo).
		StructScan(&line)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvalidLine
	}
	if err != nil {
		return nil, err
	}

	inv := s.inv.WithTx(tx)
	if !line.Dispensed {
		if err := inv.TryDecrement(ctx, line.Drug, line.RequiredQuantity()); err != nil {
			return nil, err
		}
	} else {
		if err := inv.Increment(ctx, line.Drug, line.RequiredQuantity()); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(`UPDATE request_lines SET dispensed = ? WHERE request_id = ? AND line_no = ?`, !line.Dispensed, id, lineNo); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetRemarks updates the free-text remarks on a Pending request.
func (s *Service) SetRemarks(ctx context.Context, id int64, text string) (*domain.FulfillmentRequest, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET remarks = ? WHERE id = ? AND status = ?`,
		text, id, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, statusFailure(ctx, s.db, id)
	}
	return s.Get(ctx, id)
}

// Complete moves a Pending request to Fulfilled, stamping issued_at and
// freezing flags and remarks. Not every line has to be dispensed; a
// partial issue with an explanatory remark is a valid end state.
func (s *Service) Complete(ctx context.Context, id int64) (*domain.FulfillmentRequest, error) {
	issuedAt := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET status = ?, issued_at = ? WHERE id = ? AND status = ?`,
		domain.StatusFulfilled, issuedAt, id, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, statusFailure(ctx, s.db, id)
	}
	return s.Get(ctx, id)
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id int64) (*domain.FulfillmentRequest, error) {
	var req domain.FulfillmentRequest
	err := sqlx.GetContext(ctx, q, &req, `SELECT id, patient_name, age, gender, status, remarks, requested_at, issued_at FROM requests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := getLines(ctx, q, id)
	if err != nil {
		return nil, err
	}
	req.Lines = lines
	return &req, nil
}

func getLines(ctx context.Context, q sqlx.QueryerContext, requestID int64) ([]domain.PrescriptionLine, error) {
	lines := []domain.PrescriptionLine{}
	err := sqlx.SelectContext(ctx, q, &lines, `SELECT line_no, drug, dose, times_per_day, duration_days, form_type, dispensed FROM request_lines WHERE request_id = ? ORDER BY line_no`, requestID)
	return lines, err
}

// statusFailure distinguishes a missing request from one in the wrong
// state after a guarded UPDATE matched no rows.
func statusFailure(ctx context.Context, q sqlx.QueryerContext, id int64) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS(SELECT 1 FROM requests WHERE id = ?)`, id); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidState
}
