package ingestion

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/dbtest"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/reconcile"
	"github.com/rpattn/regwatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

const sampleCSV = "\xEF\xBB\xBFName , PHONE,Email,Firm,Address,Registered_as\n" +
	"Jane  Doe,+61 2 1111 1111,jane@example.com,Acme IP,\"1 Main St\nSydney\",\"Patents, Trade marks\"\n" +
	",,,,,\n" +
	"John Roe,,,,,Trade marks\n"

func TestParseAttorneysCSV(t *testing.T) {
	records, err := ParseAttorneys("2024-01-01.csv", []byte(sampleCSV))
	require.NoError(t, err)
	require.Len(t, records, 2)

	jane := records[0]
	assert.Equal(t, "", jane.ExternalID)
	assert.Equal(t, domain.Attorney{
		Name:       "Jane Doe",
		Phone:      "+61 2 1111 1111",
		Email:      "jane@example.com",
		Firm:       "Acme IP",
		Address:    "1 Main St Sydney",
		Patents:    true,
		Trademarks: true,
	}, jane.Attrs)

	john := records[1].Attrs
	assert.Equal(t, "John Roe", john.Name)
	assert.False(t, john.Patents)
	assert.True(t, john.Trademarks)
}

func TestParseAttorneysXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Id", "Name", "Firm", "Registered as"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"a-1", "Jane Doe", "Acme IP", "Patents"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	records, err := ParseAttorneys("2024-01-01.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a-1", records[0].ExternalID)
	assert.Equal(t, "Acme IP", records[0].Attrs.Firm)
	assert.True(t, records[0].Attrs.Patents)
}

func TestParseAttorneysRejectsBadInput(t *testing.T) {
	_, err := ParseAttorneys("register.json", []byte("{}"))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))

	_, err = ParseAttorneys("a.csv", []byte("Phone,Email\n1,2\n"))
	assert.True(t, errors.Is(err, domain.ErrInvalidSnapshot))

	_, err = ParseAttorneys("a.csv", []byte("Name,Phone\n,123\n"))
	assert.True(t, errors.Is(err, domain.ErrInvalidSnapshot))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText(" a\x00b\t\r\nc  "))
}

func TestListArchivesOrdersByDate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2024-02-01.csv", "2024-01-15.xlsx", "2024-01-15.csv", "notes.txt", "2024-13-01.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("Name\nX\n"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2024-03-01.csv"), 0o755))

	files, err := ListArchives(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2024-01-15.csv", files[0].Name())
	assert.Equal(t, "2024-02-01.csv", files[1].Name())
}

func TestWriteArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	records := []domain.Record[domain.Attorney]{
		{ExternalID: "a-1", Attrs: domain.Attorney{Name: "Jane Doe", Firm: "Acme, IP", Patents: true}},
		{Attrs: domain.Attorney{Name: "John Roe", Trademarks: true}},
	}

	path, err := WriteArchive(dir, date, records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-05-06.csv"), path)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := ParseAttorneys(path, payload)
	require.NoError(t, err)
	assert.Equal(t, records, parsed)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".archive-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func newService(t *testing.T) (*Service, *repository.Store) {
	t.Helper()
	store := repository.NewStore(dbtest.SQLite(t))
	logger := zaptest.NewLogger(t).Sugar()
	engine := reconcile.NewEngine(store.Conn, store.Attorneys, reconcile.WithLogger[domain.Attorney](logger))
	return NewService(engine, logger), store
}

func TestImportDirReplaysInDateOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("2024-01-08.csv", "Id,Name,Firm\nY,Yolanda,One\nZ,Zed,Two\n")
	write("2024-01-01.csv", "Id,Name,Firm\nX,Xavier,One\nY,Yolanda,One\n")

	service, store := newService(t)
	summary, err := service.ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	require.Len(t, summary.Runs, 2)
	assert.Equal(t, 2, summary.Runs[0].Inserted)
	assert.Equal(t, 1, summary.Runs[1].Closed)
	assert.Equal(t, 1, summary.Runs[1].Inserted)

	history, err := store.Attorneys.History(ctx, store.Conn, "X")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ValidTo)
	assert.Equal(t, "2024-01-08", history[0].ValidTo.Format(domain.DateLayout))

	// A second pass skips older archives without reading them and finds the
	// latest already applied.
	write("2024-01-01.csv", "Phone\n1\n")
	again, err := service.ImportDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01.csv"}, again.Skipped)
	require.Len(t, again.Runs, 1)
	assert.Zero(t, again.Runs[0].Writes())
}

func TestHandlerIngestsUpload(t *testing.T) {
	service, store := newService(t)
	handler := NewHTTPHandler(service)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "2024-03-01.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Name,Registered as\nJane Doe,Patents\n"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"inserted": 1`)

	current, err := store.Attorneys.Current(context.Background(), store.Conn)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "jane doe", current[0].ExternalID)
}

func TestHandlerRejectsMissingDate(t *testing.T) {
	service, _ := newService(t)
	handler := NewHTTPHandler(service)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "register.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Name\nJane\n"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import", strings.NewReader("")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
