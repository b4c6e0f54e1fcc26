package services

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/sbotor/budget-manager/store"
)

// ExportService writes account statements to spreadsheet files.
type ExportService struct {
	store store.Store
}

func NewExportService(s store.Store) *ExportService {
	return &ExportService{store: s}
}

// Statement writes every operation of the account to an .xlsx file at
// path, newest first.
func (s *ExportService) Statement(ctx context.Context, accountID, path string) error {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	ops, err := s.store.ListOperations(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list operations: %w", err)
	}

	labelNames := make(map[string]string)
	for _, op := range ops {
		if op.LabelID == "" {
			continue
		}
		if _, ok := labelNames[op.LabelID]; ok {
			continue
		}
		label, err := s.store.GetLabel(ctx, op.LabelID)
		if err != nil {
			// The label may have been removed since; leave blank.
			continue
		}
		labelNames[op.LabelID] = label.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Operations"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Created", "Finalized", "Amount", "Label", "Description"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheet, cell, header)
	}

	for i, op := range ops {
		row := i + 2

		finalized := ""
		if op.Finalized() {
			finalized = op.FinalDate.Format("2006-01-02")
		}

		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), op.CreationDate.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), finalized)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), op.Amount.StringFixed(2))
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), labelNames[op.LabelID])
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), op.Description)
	}

	summaryRow := len(ops) + 3
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "Current")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), account.CurrentAmount.StringFixed(2))
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow+1), "Final")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow+1), account.FinalAmount.StringFixed(2))

	f.SetColWidth(sheet, "A", "B", 12)
	f.SetColWidth(sheet, "C", "C", 10)
	f.SetColWidth(sheet, "D", "D", 16)
	f.SetColWidth(sheet, "E", "E", 40)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save statement: %w", err)
	}
	return nil
}
