package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// LoadDrugStock ingests the opening stock snapshot into the drug_stock
// table, ignoring drugs already present. Expected columns:
// name,stock,form,strength,category.
func LoadDrugStock(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load drug stock snapshot %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read drug stock header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start drug stock transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO drug_stock (name, stock, form, strength, category) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare drug stock insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read drug stock row: %v", err)
			continue
		}
		if len(record) < 5 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		stock, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil || stock < 0 {
			log.Printf("skipping drug %s: bad stock value %q", name, record[1])
			continue
		}
		form := strings.TrimSpace(record[2])
		strength := strings.TrimSpace(record[3])
		category := strings.TrimSpace(record[4])

		if _, err := stmt.Exec(name, stock, form, strength, category); err != nil {
			log.Printf("unable to insert drug %s: %v", name, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit drug stock seed: %v", err)
	} else {
		log.Printf("seeded drug stock with %d rows", rows)
	}
}
