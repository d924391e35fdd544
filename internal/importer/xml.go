package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/Dan9191/cuotificador/internal/models"
)

// ReadXML parses rows from a document shaped like
//
//	<rates><rate><bank_code>X</bank_code>...</rate></rates>
func ReadXML(r io.Reader) ([]Record, []models.RowError, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, nil, nil
	}
	if root.Tag != "rates" {
		return nil, nil, fmt.Errorf("unexpected XML root element %q", root.Tag)
	}

	var (
		records []Record
		rowErrs []models.RowError
	)
	for i, el := range root.SelectElements("rate") {
		get := func(name string) string {
			if child := el.SelectElement(name); child != nil {
				return strings.TrimSpace(child.Text())
			}
			return strings.TrimSpace(el.SelectAttrValue(name, ""))
		}
		rec, err := parseRow(i+1, get)
		if err != nil {
			rowErrs = append(rowErrs, models.RowError{Row: i + 1, Message: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// WriteXML writes rows as an indented XML document
func WriteXML(w io.Writer, rows []models.RateRow) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("rates")
	for _, r := range rows {
		el := root.CreateElement("rate")
		el.CreateElement("bank_code").SetText(r.BankCode)
		if r.BankName != "" {
			el.CreateElement("bank_name").SetText(r.BankName)
		}
		el.CreateElement("card_code").SetText(r.CardCode)
		if r.CardName != "" {
			el.CreateElement("card_name").SetText(r.CardName)
		}
		el.CreateElement("installments").SetText(strconv.Itoa(r.Installments))
		el.CreateElement("rate").SetText(r.Rate.String())
		el.CreateElement("fixed_surcharge").SetText(r.FixedSurcharge.String())
	}
	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write XML: %w", err)
	}
	return nil
}
