package services

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ParseResultsFile reads exam results from a .csv or .xlsx upload. The first
// row is a header that must name student_id and score columns.
func ParseResultsFile(filename string, r io.Reader) ([]ResultRow, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSV(r)
	case ".xlsx":
		rows, err = readXLSX(r)
	default:
		return nil, Malformedf("unsupported file type (csv, xlsx)")
	}
	if err != nil {
		return nil, Malformedf("cannot read file: %v", err)
	}
	if len(rows) == 0 {
		return nil, Malformedf("file is empty")
	}

	col := columnIndex(rows[0])
	sidCol, ok := col["student_id"]
	if !ok {
		return nil, Malformedf("missing column: student_id")
	}
	scoreCol, ok := col["score"]
	if !ok {
		return nil, Malformedf("missing column: score")
	}

	out := make([]ResultRow, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		if blankRecord(rec) {
			continue
		}
		line := i + 2
		sid, err := strconv.ParseUint(cell(rec, sidCol), 10, 64)
		if err != nil {
			return nil, Malformedf("row %d: invalid student_id", line)
		}
		score, err := strconv.Atoi(cell(rec, scoreCol))
		if err != nil {
			return nil, Malformedf("row %d: invalid score", line)
		}
		out = append(out, ResultRow{StudentID: uint(sid), Score: score})
	}
	return out, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()
	// first sheet only
	sht := f.GetSheetName(0)
	if sht == "" {
		sht = "Sheet1"
	}
	return f.GetRows(sht)
}

func columnIndex(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		m[key] = i
	}
	return m
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ResultsTemplate returns an empty .xlsx with the import header.
func ResultsTemplate() (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"student_id", "score"}); err != nil {
		return nil, errors.Wrap(err, "write header")
	}
	return f.WriteToBuffer()
}
