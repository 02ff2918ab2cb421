// Package export dumps register tables to CSV or XLSX and restores them.
package export

import (
	"bufio"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Format is a dump file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Sheet1"

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", errors.Wrapf(domain.ErrUnsupportedFormat, "%q", value)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Service dumps and restores the tables of a store.
type Service struct {
	store  *repository.Store
	logger *zap.SugaredLogger
}

// NewService creates an export service.
func NewService(store *repository.Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger}
}

// Export writes every row of one kind to w.
func (s *Service) Export(ctx context.Context, kind domain.Kind, format Format, w io.Writer) (int, error) {
	switch kind {
	case domain.KindAttorney:
		return Dump(ctx, s.store.Conn, s.store.Attorneys, format, w)
	case domain.KindFirm:
		return Dump(ctx, s.store.Conn, s.store.Firms, format, w)
	default:
		return 0, errors.Wrapf(domain.ErrUnsupportedKind, "kind %q", kind)
	}
}

// ExportFile writes a dump of one kind to path. The dump is written to a
// temporary file in the same directory and renamed into place when complete.
func (s *Service) ExportFile(ctx context.Context, kind domain.Kind, path string) (int, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create export directory %s", dir)
	}
	tempFile, err := os.CreateTemp(dir, fmt.Sprintf(".%s-*.%s", kind, format))
	if err != nil {
		return 0, errors.Wrap(err, "create temp export file")
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}
	rows, err := s.Export(ctx, kind, format, counter)
	if err != nil {
		return 0, err
	}
	if err := buffered.Flush(); err != nil {
		return 0, errors.Wrap(err, "flush buffered rows")
	}
	if err := tempFile.Sync(); err != nil {
		return 0, errors.Wrap(err, "sync export file")
	}
	if err := tempFile.Close(); err != nil {
		return 0, errors.Wrap(err, "close export file")
	}
	if err := os.Rename(tempPath, path); err != nil {
		return 0, errors.Wrap(err, "promote export file")
	}
	cleanup = false

	s.logger.Infow("Exported table", "kind", kind, "rows", rows, "bytes", counter.count, "path", path)
	return rows, nil
}

// Restore loads a dump of one kind from r.
func (s *Service) Restore(ctx context.Context, kind domain.Kind, format Format, r io.Reader, replace bool) (int, error) {
	switch kind {
	case domain.KindAttorney:
		return Load(ctx, s.store.Conn, s.store.Attorneys, format, r, replace)
	case domain.KindFirm:
		return Load(ctx, s.store.Conn, s.store.Firms, format, r, replace)
	default:
		return 0, errors.Wrapf(domain.ErrUnsupportedKind, "kind %q", kind)
	}
}

// RestoreFile loads a dump of one kind from path.
func (s *Service) RestoreFile(ctx context.Context, kind domain.Kind, path string, replace bool) (int, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	rows, err := s.Restore(ctx, kind, format, f, replace)
	if err != nil {
		return 0, err
	}
	s.logger.Infow("Restored table", "kind", kind, "rows", rows, "path", path, "replace", replace)
	return rows, nil
}

// Dump writes every row of table to w with a header of column names.
func Dump[A any](ctx context.Context, conn db.Conn, table *repository.Table[A], format Format, w io.Writer) (int, error) {
	var versions []domain.Version[A]
	err := conn.WithReadTx(ctx, func(q db.Querier) error {
		var err error
		versions, err = table.All(ctx, q)
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "dump %s", table.Schema().Table)
	}

	schema := table.Schema()
	header := schema.AllColumns()
	records := make([][]string, 0, len(versions))
	for _, v := range versions {
		row := make([]string, 0, len(header))
		row = append(row, v.ID.String(), v.ExternalID)
		for _, value := range schema.Values(v.Attrs) {
			row = append(row, formatValue(value))
		}
		row = append(row, v.ValidFrom.Format(domain.DateLayout), domain.FormatDate(v.ValidTo))
		records = append(records, row)
	}

	switch format {
	case FormatCSV:
		err = writeCSV(w, header, records)
	case FormatXLSX:
		err = writeXLSX(w, header, records)
	default:
		err = errors.Wrapf(domain.ErrUnsupportedFormat, "%q", format)
	}
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Load restores rows of table from r in one transaction. The table must be
// empty unless replace is set, in which case existing rows are deleted first.
func Load[A any](ctx context.Context, conn db.Conn, table *repository.Table[A], format Format, r io.Reader, replace bool) (int, error) {
	records, err := readRows(format, r)
	if err != nil {
		return 0, err
	}
	versions, err := decodeRows(table.Schema(), records)
	if err != nil {
		return 0, err
	}

	err = conn.WithTx(ctx, func(q db.Querier) error {
		if replace {
			if _, err := table.Truncate(ctx, q); err != nil {
				return err
			}
		} else {
			count, err := table.Count(ctx, q)
			if err != nil {
				return err
			}
			if count > 0 {
				return errors.Wrapf(domain.ErrNotEmpty, "%s holds %d rows", table.Schema().Table, count)
			}
		}
		for _, v := range versions {
			if err := table.Insert(ctx, q, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "restore %s", table.Schema().Table)
	}
	return len(versions), nil
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := csvWriter.WriteAll(records); err != nil {
		return errors.Wrap(err, "write rows")
	}
	return nil
}

func writeXLSX(w io.Writer, header []string, records [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return errors.Wrap(err, "open sheet writer")
	}
	writeRow := func(n int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}
	if err := writeRow(1, header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i, record := range records {
		if err := writeRow(i+2, record); err != nil {
			return errors.Wrapf(err, "write row %d", i+2)
		}
	}
	if err := sw.Flush(); err != nil {
		return errors.Wrap(err, "flush sheet")
	}
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

func readRows(format Format, r io.Reader) ([][]string, error) {
	switch format {
	case FormatCSV:
		csvReader := csv.NewReader(r)
		csvReader.FieldsPerRecord = -1
		records, err := csvReader.ReadAll()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read csv")
		}
		return records, nil
	case FormatXLSX:
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open xlsx")
		}
		defer func() { _ = f.Close() }()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("excel file has no sheets")
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, errors.Wrap(err, "failed to read rows from xlsx")
		}
		return rows, nil
	default:
		return nil, errors.Wrapf(domain.ErrUnsupportedFormat, "%q", format)
	}
}

// decodeRows maps dump rows back to versions. Columns may appear in any
// order but every column of the table must be present.
func decodeRows[A any](schema repository.Schema[A], records [][]string) ([]domain.Version[A], error) {
	if len(records) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidSnapshot, "dump has no header")
	}
	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, column := range schema.AllColumns() {
		if _, ok := index[column]; !ok {
			return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "dump is missing column %q", column)
		}
	}

	versions := make([]domain.Version[A], 0, len(records)-1)
	for n, row := range records[1:] {
		line := n + 2
		cell := func(column string) string {
			i := index[column]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		var v domain.Version[A]
		var err error
		if raw := cell("id"); raw != "" {
			if v.ID, err = uuid.Parse(raw); err != nil {
				return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: invalid id %q", line, raw)
			}
		}
		v.ExternalID = cell("external_id")
		if v.ExternalID == "" {
			return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: external_id is required", line)
		}

		targets, build := schema.Scan()
		for i, column := range schema.Columns {
			if err := assign(targets[i], cell(column)); err != nil {
				return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: column %s: %v", line, column, err)
			}
		}
		v.Attrs = build()
		if err := schema.Validate(v.Attrs); err != nil {
			return nil, errors.Wrapf(err, "row %d", line)
		}

		if v.ValidFrom, err = domain.ParseDate(cell("valid_from")); err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: %v", line, err)
		}
		if raw := cell("valid_to"); raw != "" {
			to, err := domain.ParseDate(raw)
			if err != nil {
				return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: %v", line, err)
			}
			if to.Before(v.ValidFrom) {
				return nil, errors.Wrapf(domain.ErrInvalidSnapshot, "row %d: valid_to precedes valid_from", line)
			}
			v.ValidTo = &to
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// assign parses raw into one scan target. Empty text is NULL.
func assign(target any, raw string) error {
	switch t := target.(type) {
	case *string:
		*t = raw
		return nil
	case *bool:
		if raw == "" {
			*t = false
			return nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*t = v
		return nil
	case sql.Scanner:
		if raw == "" {
			return t.Scan(nil)
		}
		return t.Scan(raw)
	default:
		return errors.Newf("unsupported target %T", target)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(domain.DateLayout)
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return ""
		}
		return formatValue(inner)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}
