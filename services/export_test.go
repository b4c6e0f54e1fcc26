package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestStatementExport(t *testing.T) {
	f := newFixture(t, "2024-03-10")
	ctx := context.Background()

	if _, err := f.ops.Create(ctx, f.admin.ID, CreateOperationInput{
		Amount:      dec(t, "2500"),
		Description: "Salary",
		Finalized:   true,
	}); err != nil {
		t.Fatalf("create operation: %v", err)
	}
	if _, err := f.ops.Create(ctx, f.admin.ID, CreateOperationInput{
		Amount:      dec(t, "-42.50"),
		Description: "Groceries",
	}); err != nil {
		t.Fatalf("create operation: %v", err)
	}

	exports := NewExportService(f.store)
	path := filepath.Join(t.TempDir(), "statement.xlsx")
	if err := exports.Statement(ctx, f.admin.ID, path); err != nil {
		t.Fatalf("export statement: %v", err)
	}

	file, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open statement: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows("Operations")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	// Header, two operations, a blank spacer and two summary rows.
	if len(rows) < 6 {
		t.Fatalf("statement has %d rows, want at least 6", len(rows))
	}

	if rows[0][0] != "Created" || rows[0][2] != "Amount" {
		t.Errorf("header row = %v", rows[0])
	}

	// Operations list newest first; same day falls back to id order, so
	// just check both amounts are present.
	amounts := map[string]bool{}
	for _, row := range rows[1:3] {
		if len(row) > 2 {
			amounts[row[2]] = true
		}
	}
	if !amounts["2500.00"] || !amounts["-42.50"] {
		t.Errorf("operation amounts = %v", amounts)
	}

	last := rows[len(rows)-1]
	prev := rows[len(rows)-2]
	if prev[0] != "Current" || prev[1] != "2500.00" {
		t.Errorf("current summary row = %v", prev)
	}
	if last[0] != "Final" || last[1] != "2457.50" {
		t.Errorf("final summary row = %v", last)
	}
}

func TestStatementMissingAccount(t *testing.T) {
	f := newFixture(t, "2024-03-10")

	exports := NewExportService(f.store)
	path := filepath.Join(t.TempDir(), "statement.xlsx")
	if err := exports.Statement(context.Background(), "no-such-account", path); err == nil {
		t.Error("export succeeded for a missing account")
	}
}
