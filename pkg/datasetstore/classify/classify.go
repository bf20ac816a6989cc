// Package classify infers a dataset kind from a payload file. Detection
// never fails: unreadable or unrecognized inputs degrade to a safe kind
// instead of raising.
package classify

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

// sampleRows bounds how much of a spreadsheet-like payload is inspected.
const sampleRows = 100

// timestampLayouts are the formats probed when deciding whether a column
// holds timestamps.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04",
}

// Detector implements datasetstore.Classifier.
type Detector struct{}

// New creates a content detector.
func New() *Detector { return &Detector{} }

// Detect infers the dataset kind for the file at path.
func (d *Detector) Detect(path string) datasetstore.DatasetKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return detectCSV(path)
	case ".xlsx", ".xls":
		return detectExcel(path)
	case ".jpg", ".jpeg", ".png", ".bmp":
		return datasetstore.KindImage
	case ".json":
		return detectJSON(path)
	default:
		return datasetstore.KindUnknown
	}
}

func detectCSV(path string) datasetstore.DatasetKind {
	f, err := os.Open(path)
	if err != nil {
		return datasetstore.KindUnknown
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return datasetstore.KindUnknown
	}

	var rows [][]string
	for len(rows) < sampleRows {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return datasetstore.KindUnknown
		}
		rows = append(rows, record)
	}
	return tabularKind(len(header), rows)
}

func detectExcel(path string) datasetstore.DatasetKind {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return datasetstore.KindUnknown
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return datasetstore.KindUnknown
	}
	iter, err := wb.Rows(sheets[0])
	if err != nil {
		return datasetstore.KindUnknown
	}
	defer iter.Close()

	var header []string
	var rows [][]string
	for iter.Next() && len(rows) < sampleRows {
		record, err := iter.Columns()
		if err != nil {
			return datasetstore.KindUnknown
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	return tabularKind(len(header), rows)
}

// tabularKind reports timeseries when at least one column's sampled values
// all parse as timestamps, tabular otherwise.
func tabularKind(columns int, rows [][]string) datasetstore.DatasetKind {
	for col := 0; col < columns; col++ {
		if timestampColumn(col, rows) {
			return datasetstore.KindTimeseries
		}
	}
	return datasetstore.KindTabular
}

func timestampColumn(col int, rows [][]string) bool {
	seen := 0
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		if !parsesAsTimestamp(v) {
			return false
		}
		seen++
	}
	return seen > 0
}

func parsesAsTimestamp(v string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// detectJSON reports image for a non-empty array of records whose first
// record carries an image_path-shaped field, structured otherwise.
// Malformed JSON also degrades to structured: the extension says the
// payload is json-shaped even when it does not parse.
func detectJSON(path string) datasetstore.DatasetKind {
	raw, err := os.ReadFile(path)
	if err != nil {
		return datasetstore.KindStructured
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil || len(records) == 0 {
		return datasetstore.KindStructured
	}
	for key := range records[0] {
		if strings.Contains(strings.ToLower(key), "image_path") {
			return datasetstore.KindImage
		}
	}
	return datasetstore.KindStructured
}
