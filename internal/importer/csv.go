package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/cuotificador/internal/models"
)

var csvHeader = []string{"bank_code", "bank_name", "card_code", "card_name", "installments", "rate", "fixed_surcharge"}

var requiredColumns = []string{"bank_code", "card_code", "installments", "rate"}

// ReadCSV parses rows from a CSV document with a header line. Columns are
// matched by name; fixed_surcharge and the name columns are optional.
func ReadCSV(r io.Reader) ([]Record, []models.RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, nil, fmt.Errorf("missing CSV column %q", name)
		}
	}

	var (
		records []Record
		rowErrs []models.RowError
	)
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrs = append(rowErrs, models.RowError{Row: row, Message: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		get := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}
		rec, err := parseRow(row, get)
		if err != nil {
			rowErrs = append(rowErrs, models.RowError{Row: row, Message: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// WriteCSV writes rows with a header line
func WriteCSV(w io.Writer, rows []models.RateRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.BankCode,
			r.BankName,
			r.CardCode,
			r.CardName,
			strconv.Itoa(r.Installments),
			r.Rate.String(),
			r.FixedSurcharge.String(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseRow(row int, get func(string) string) (Record, error) {
	rec := Record{Row: row}
	rec.BankCode = get("bank_code")
	rec.BankName = get("bank_name")
	rec.CardCode = get("card_code")
	rec.CardName = get("card_name")

	if rec.CardCode == "" {
		return rec, errors.New("card_code is empty")
	}

	n, err := strconv.Atoi(get("installments"))
	if err != nil {
		return rec, fmt.Errorf("installments %q is not a number", get("installments"))
	}
	rec.Installments = n

	rec.Rate, err = decimal.NewFromString(get("rate"))
	if err != nil {
		return rec, fmt.Errorf("rate %q is not a number", get("rate"))
	}

	rec.FixedSurcharge = decimal.Zero
	if raw := get("fixed_surcharge"); raw != "" {
		rec.FixedSurcharge, err = decimal.NewFromString(raw)
		if err != nil {
			return rec, fmt.Errorf("fixed_surcharge %q is not a number", raw)
		}
	}
	return rec, nil
}
