// Package exchange writes and reads the spreadsheet files users download
// as backups or bring in from their bank.
package exchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/stats"

	"github.com/xuri/excelize/v2"
)

// MaxImportSize bounds an uploaded statement.
const MaxImportSize = 5 << 20

var csvHeader = []string{"Data", "Descrição", "Categoria", "Tipo", "Valor"}

// Labels of the type column.
const (
	IncomeLabel  = "Entrada"
	ExpenseLabel = "Saída"
)

const brDate = "02/01/2006"

// FileName returns the download name for an export made at now.
func FileName(now time.Time, ext string) string {
	return fmt.Sprintf("backup_financas_%s.%s", now.Format(parser.DateLayout), ext)
}

func typeLabel(t models.TxType) string {
	if t == models.Income {
		return IncomeLabel
	}
	return ExpenseLabel
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newestFirst(txns []models.Transaction) []models.Transaction {
	out := append([]models.Transaction(nil), txns...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// WriteCSV writes txns as a ';' separated file with a UTF-8 BOM so
// spreadsheet apps pick the right encoding. The output reads back with
// parser.ParseDelimitedText.
func WriteCSV(w io.Writer, txns []models.Transaction) error {
	if _, err := w.Write([]byte("\ufeff")); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range newestFirst(txns) {
		err := cw.Write([]string{
			t.Date.Format(brDate),
			oneLine(t.Description),
			oneLine(t.Category),
			typeLabel(t.Type),
			stats.FormatAmount(t.Amount.Abs()),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadImport reads an uploaded statement, refusing anything larger than
// MaxImportSize.
func ReadImport(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return "", fmt.Errorf("read import: %w", err)
	}
	if len(raw) > MaxImportSize {
		return "", fmt.Errorf("arquivo maior que %d bytes", MaxImportSize)
	}
	return string(raw), nil
}

const (
	txnSheet    = "Transações"
	marketSheet = "Mercado"
)

// WriteXLSX writes a workbook with one sheet of transactions and, when
// there are any, one sheet of market items.
func WriteXLSX(w io.Writer, txns []models.Transaction, items []models.MarketItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", txnSheet); err != nil {
		return err
	}
	writeRow(f, txnSheet, 1, csvHeader...)
	for i, t := range newestFirst(txns) {
		writeRow(f, txnSheet, i+2,
			t.Date.Format(brDate),
			t.Description,
			t.Category,
			typeLabel(t.Type),
			t.Amount.Abs().InexactFloat64(),
		)
	}
	f.SetColWidth(txnSheet, "A", "A", 12)
	f.SetColWidth(txnSheet, "B", "B", 36)
	f.SetColWidth(txnSheet, "C", "C", 16)
	f.SetColWidth(txnSheet, "D", "D", 10)
	f.SetColWidth(txnSheet, "E", "E", 12)

	if len(items) > 0 {
		if _, err := f.NewSheet(marketSheet); err != nil {
			return err
		}
		writeRow(f, marketSheet, 1, "Data", "Mercado", "Produto", "Categoria", "Quantidade", "Unidade", "Preço")
		sorted := append([]models.MarketItem(nil), items...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })
		for i, it := range sorted {
			writeRow(f, marketSheet, i+2,
				it.Date.Format(brDate),
				it.Merchant,
				it.Name,
				it.Category,
				it.Quantity.InexactFloat64(),
				it.Unit,
				it.Price.InexactFloat64(),
			)
		}
		f.SetColWidth(marketSheet, "A", "A", 12)
		f.SetColWidth(marketSheet, "B", "C", 28)
		f.SetColWidth(marketSheet, "D", "D", 16)
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}
