// Package corpus reads the tabular (ticker, context) source files used for ingestion.
package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"finqa/internal/domain"
)

const (
	tickerColumn  = "ticker"
	contextColumn = "context"
)

// Reader holds the rows of a corpus file with the positions of its required columns.
type Reader struct {
	source    string
	rows      [][]string
	tickerCol int
	ctxCol    int
}

// Open reads a .csv or .xlsx corpus. The header row must name a ticker and a context column.
func Open(path string) (*Reader, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return newReader(filepath.Base(path), rows)
}

// FromCSV parses CSV content from r, labelling records with source.
func FromCSV(source string, r io.Reader) (*Reader, error) {
	rows, err := parseCSV(r)
	if err != nil {
		return nil, err
	}
	return newReader(source, rows)
}

func newReader(source string, rows [][]string) (*Reader, error) {
	if len(rows) == 0 {
		return nil, errors.New("corpus is empty")
	}
	rd := &Reader{source: source, tickerCol: -1, ctxCol: -1}
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case tickerColumn:
			rd.tickerCol = i
		case contextColumn:
			rd.ctxCol = i
		}
	}
	if rd.tickerCol < 0 || rd.ctxCol < 0 {
		return nil, fmt.Errorf("corpus %s: header must contain %q and %q columns", source, tickerColumn, contextColumn)
	}
	rd.rows = rows[1:]
	return rd, nil
}

// Source returns the identifier stored as the source of every record.
func (r *Reader) Source() string { return r.source }

// Len returns the number of data rows.
func (r *Reader) Len() int { return len(r.rows) }

// Records yields every data row in file order. DocumentID is the 0-based data row index,
// so a row keeps its identifier regardless of which other rows are skipped.
func (r *Reader) Records() iter.Seq[domain.Record] {
	return func(yield func(domain.Record) bool) {
		for i, row := range r.rows {
			rec := domain.Record{
				DocumentID: i,
				Ticker:     cell(row, r.tickerCol),
				Context:    cell(row, r.ctxCol),
				Source:     r.source,
			}
			if !yield(rec) {
				return
			}
		}
	}
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
