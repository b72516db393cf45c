// Package export writes reviewed records to spreadsheet form for handoff to
// admissions staff.
package export

import (
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/internal/validate"
)

// WriteXLSX renders one sheet: a header row from the catalog's enabled field
// labels, one row per record, with document id and review status columns
// first. Fields outside the catalog are appended in sorted key order.
func WriteXLSX(records []model.ReviewedRecord, cat *model.Catalog, w io.Writer) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Reviewed Cards")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	keys := columnKeys(records, cat)

	header := sheet.AddRow()
	header.AddCell().SetString("Document ID")
	header.AddCell().SetString("Review Status")
	for _, key := range keys {
		label := validate.Label(key)
		if req := cat.ByKey(key); req != nil && req.Label != "" {
			label = req.Label
		}
		header.AddCell().SetString(label)
	}

	for _, rec := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.DocumentID)
		row.AddCell().SetString(string(rec.ReviewStatus))
		for _, key := range keys {
			var value string
			if entry, ok := rec.Fields[key]; ok && entry != nil {
				value = entry.Value
			}
			row.AddCell().SetString(value)
		}
	}

	return eris.Wrap(file.Write(w), "export: write workbook")
}

// columnKeys returns enabled catalog keys in catalog order, then any extra
// keys found in records sorted alphabetically.
func columnKeys(records []model.ReviewedRecord, cat *model.Catalog) []string {
	var keys []string
	seen := map[string]bool{}
	for _, req := range cat.Fields {
		if !req.Enabled {
			continue
		}
		keys = append(keys, req.Key)
		seen[req.Key] = true
	}

	var extras []string
	for _, rec := range records {
		for key := range rec.Fields {
			if !seen[key] {
				seen[key] = true
				extras = append(extras, key)
			}
		}
	}
	sort.Strings(extras)
	return append(keys, extras...)
}
