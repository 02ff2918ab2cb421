package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Archive column headers, compared after normalisation.
const (
	ColumnID           = "id"
	ColumnName         = "name"
	ColumnPhone        = "phone"
	ColumnEmail        = "email"
	ColumnFirm         = "firm"
	ColumnAddress      = "address"
	ColumnRegisteredAs = "registered as"
)

// Headers is the column layout written to scrape archives.
var Headers = []string{"Id", "Name", "Phone", "Email", "Firm", "Address", "Registered as"}

type tableData struct {
	headers []string
	rows    [][]string
}

func (t tableData) index() map[string]int {
	idx := make(map[string]int, len(t.headers))
	for i, h := range t.headers {
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	return idx
}

func parseTable(fileName string, payload []byte) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, errors.Wrapf(domain.ErrUnsupportedFormat, "%q", ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, errors.Wrap(err, "failed to read csv")
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, errors.Wrap(err, "failed to open xlsx")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, errors.Wrap(err, "failed to read rows from xlsx")
	}
	return normalizeTable(rows)
}

// normalizeTable takes the first non-blank row as the header and pads every
// data row to the header width.
func normalizeTable(records [][]string) (tableData, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if isBlank(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := make([]string, len(headerRow))
	for i, value := range headerRow {
		headers[i] = normalizeHeader(value)
	}
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}
	return tableData{headers: headers, rows: dataRows}, nil
}

func normalizeHeader(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// CleanText collapses whitespace and strips control characters from a scraped
// value.
func CleanText(value string) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	return strings.Join(strings.Fields(value), " ")
}

// attorneyRecords maps a parsed archive to snapshot records. Rows without a
// name are reported as invalid input.
func attorneyRecords(table tableData) ([]domain.Record[domain.Attorney], error) {
	idx := table.index()
	if _, ok := idx[ColumnName]; !ok {
		return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "missing %q column", ColumnName)
	}

	cell := func(row []string, column string) string {
		i, ok := idx[column]
		if !ok {
			return ""
		}
		return CleanText(row[i])
	}

	records := make([]domain.Record[domain.Attorney], 0, len(table.rows))
	for n, row := range table.rows {
		attrs := domain.Attorney{
			Name:    cell(row, ColumnName),
			Phone:   cell(row, ColumnPhone),
			Email:   cell(row, ColumnEmail),
			Firm:    cell(row, ColumnFirm),
			Address: cell(row, ColumnAddress),
		}
		if attrs.Name == "" {
			return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: name is required", n+2)
		}
		attrs.Patents, attrs.Trademarks = domain.ParseRegisteredAs(cell(row, ColumnRegisteredAs))
		records = append(records, domain.Record[domain.Attorney]{
			ExternalID: cell(row, ColumnID),
			Attrs:      attrs,
		})
	}
	return records, nil
}

// ParseAttorneys reads an archive payload into snapshot records. The format is
// chosen by the extension of fileName.
func ParseAttorneys(fileName string, payload []byte) ([]domain.Record[domain.Attorney], error) {
	table, err := parseTable(fileName, payload)
	if err != nil {
		return nil, err
	}
	return attorneyRecords(table)
}
