package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"rxdesk/m/domain"
	"rxdesk/m/internal/migrations"
)

func setup(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	migrations.Run(db)
	return db
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stock.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadDrugStock(t *testing.T) {
	db := setup(t)
	path := writeCSV(t, "name,stock,form,strength,category\n"+
		"Paracetamol,120,Tablet,500mg,Analgesic\n"+
		",5,Tablet,,\n"+ // missing name skipped
		"BadStock,abc,Tablet,,\n"+ // bad stock skipped
		"Negative,-3,Tablet,,\n"+ // negative stock skipped
		"ORS,200,Sachet,20.5g,Rehydration\n")

	LoadDrugStock(db, path)

	var drugs []domain.DrugStock
	if err := db.Select(&drugs, `SELECT name, stock, form, strength, category FROM drug_stock ORDER BY name`); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(drugs) != 2 {
		t.Fatalf("expected 2 seeded drugs, got %d (%v)", len(drugs), drugs)
	}
	if drugs[0].Name != "ORS" || drugs[0].Stock != 200 {
		t.Fatalf("unexpected first row: %+v", drugs[0])
	}
	if drugs[1].Name != "Paracetamol" || drugs[1].Stock != 120 {
		t.Fatalf("unexpected second row: %+v", drugs[1])
	}

	// Re-seeding ignores drugs already present.
	if _, err := db.Exec(`UPDATE drug_stock SET stock = 7 WHERE name = 'ORS'`); err != nil {
		t.Fatalf("update: %v", err)
	}
	LoadDrugStock(db, path)
	var stock int64
	if err := db.Get(&stock, `SELECT stock FROM drug_stock WHERE name = 'ORS'`); err != nil {
		t.Fatalf("get: %v", err)
	}
	if stock != 7 {
		t.Fatalf("reseed overwrote live stock: %d", stock)
	}
}

func TestLoadDrugStockMissingFile(t *testing.T) {
	db := setup(t)
	LoadDrugStock(db, filepath.Join(t.TempDir(), "absent.csv"))
	var count int64
	if err := db.Get(&count, `SELECT COUNT(*) FROM drug_stock`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty table, got %d rows", count)
	}
}
