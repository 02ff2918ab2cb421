package ingestion

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/domain"
)

// ArchiveFile is one dated scrape archive on disk.
type ArchiveFile struct {
	Path string
	Date time.Time
}

// Name returns the file name of the archive.
func (a ArchiveFile) Name() string {
	return filepath.Base(a.Path)
}

// ArchiveDate reads the date from an archive file name of the form
// YYYY-MM-DD.csv or YYYY-MM-DD.xlsx.
func ArchiveDate(fileName string) (time.Time, bool) {
	base := filepath.Base(fileName)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".csv" && ext != ".xlsx" {
		return time.Time{}, false
	}
	date, err := time.Parse(domain.DateLayout, strings.TrimSuffix(base, filepath.Ext(base)))
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// ListArchives returns the archives in dir ordered by date. Files not named
// after a date are ignored. When a date has both a CSV and an XLSX archive the
// CSV is used.
func ListArchives(dir string) ([]ArchiveFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read archive directory %s", dir)
	}

	byDate := make(map[time.Time]ArchiveFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := ArchiveDate(entry.Name())
		if !ok {
			continue
		}
		file := ArchiveFile{Path: filepath.Join(dir, entry.Name()), Date: date}
		if existing, seen := byDate[date]; seen && strings.EqualFold(filepath.Ext(existing.Path), ".csv") {
			continue
		}
		byDate[date] = file
	}

	files := make([]ArchiveFile, 0, len(byDate))
	for _, file := range byDate {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Date.Before(files[j].Date) })
	return files, nil
}

// WriteArchive stores a scraped attorney snapshot as dir/YYYY-MM-DD.csv. The
// file is written to a temporary name and renamed into place.
func WriteArchive(dir string, date time.Time, records []domain.Record[domain.Attorney]) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create archive directory %s", dir)
	}
	tempFile, err := os.CreateTemp(dir, ".archive-*.csv")
	if err != nil {
		return "", errors.Wrap(err, "create temp archive file")
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriter(tempFile)
	csvWriter := csv.NewWriter(buffered)
	if err := csvWriter.Write(Headers); err != nil {
		return "", errors.Wrap(err, "write header")
	}
	for _, record := range records {
		a := record.Attrs
		id := record.ExternalID
		if record.Derived {
			id = ""
		}
		row := []string{id, a.Name, a.Phone, a.Email, a.Firm, a.Address, domain.FormatRegisteredAs(a.Patents, a.Trademarks)}
		if err := csvWriter.Write(row); err != nil {
			return "", errors.Wrap(err, "write archive row")
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return "", errors.Wrap(err, "flush rows")
	}
	if err := buffered.Flush(); err != nil {
		return "", errors.Wrap(err, "flush buffered rows")
	}
	if err := tempFile.Sync(); err != nil {
		return "", errors.Wrap(err, "sync archive file")
	}
	if err := tempFile.Close(); err != nil {
		return "", errors.Wrap(err, "close archive file")
	}

	finalPath := filepath.Join(dir, domain.Day(date).Format(domain.DateLayout)+".csv")
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", errors.Wrap(err, "promote archive file")
	}
	cleanup = false
	return finalPath, nil
}
