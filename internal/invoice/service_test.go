package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"rxdesk/m/domain"
	"rxdesk/m/internal/migrations"
)

func setup(t *testing.T) *Service {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	migrations.Run(db)
	return NewService(db)
}

func TestSaveAndFetchByEitherKey(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	payload := json.RawMessage(`{"patientName":"Rahim","items":[{"quantity":2,"unitPrice":50}]}`)
	if err := svc.Save(ctx, "inv-1", "rx-9", payload); err != nil {
		t.Fatalf("save: %v", err)
	}

	byID, err := svc.ByInvoiceID(ctx, "inv-1")
	if err != nil {
		t.Fatalf("by invoice id: %v", err)
	}
	byRx, err := svc.ByPrescriptionID(ctx, "rx-9")
	if err != nil {
		t.Fatalf("by prescription id: %v", err)
	}
	if byID.PatientName != "Rahim" || byRx.PatientName != "Rahim" {
		t.Fatalf("lookup mismatch: %+v %+v", byID, byRx)
	}
	if byID.TotalAmount != 100 {
		t.Fatalf("normalized total expected 100, got %v", byID.TotalAmount)
	}
}

func TestFetchNotFound(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	if _, err := svc.ByInvoiceID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.ByPrescriptionID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveValidation(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	if err := svc.Save(ctx, "", "", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected error for empty invoice id")
	}
	if err := svc.Save(ctx, "inv-2", "", json.RawMessage(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestSaveReplacesPayload(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	if err := svc.Save(ctx, "inv-3", "", json.RawMessage(`{"subTotal":10}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Save(ctx, "inv-3", "rx-3", json.RawMessage(`{"subTotal":20}`)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	inv, err := svc.ByInvoiceID(ctx, "inv-3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if inv.SubTotal != 20 {
		t.Fatalf("payload not replaced: %v", inv.SubTotal)
	}
}
