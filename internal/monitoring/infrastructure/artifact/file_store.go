package artifact

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	monitoring "store-monitoring/internal/monitoring/domain"
)

// Format names one rendering of a stored report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatZip  Format = "zip"
)

var (
	// ErrNotFound is returned when a handle or one of its files does not exist.
	ErrNotFound = errors.New("artifact: not found")
	// ErrUnknownFormat is returned for formats the store does not render.
	ErrUnknownFormat = errors.New("artifact: unknown format")
)

// Descriptor describes a file served for a format.
type Descriptor struct {
	FileName    string
	ContentType string
}

var descriptors = map[Format]Descriptor{
	FormatCSV:  {FileName: "report.csv", ContentType: "text/csv"},
	FormatXLSX: {FileName: "report.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	FormatPDF:  {FileName: "summary.pdf", ContentType: "application/pdf"},
	FormatZip:  {FileName: "report.zip", ContentType: "application/zip"},
}

// ParseFormat maps a query value to a format; empty means csv.
func ParseFormat(value string) (Format, error) {
	if value == "" {
		return FormatCSV, nil
	}
	format := Format(value)
	if _, ok := descriptors[format]; !ok {
		return "", ErrUnknownFormat
	}
	return format, nil
}

// FileStore writes each report into its own directory under root.
// The directory name is the artifact handle.
type FileStore struct {
	root string
	now  func() time.Time
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("artifact: empty storage root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Save renders rows as csv, xlsx and pdf, bundles them into a zip and returns the handle.
func (s *FileStore) Save(ctx context.Context, reportID string, rows []monitoring.ReportRow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	handle := ulid.Make().String()
	staging := filepath.Join(s.root, "."+handle+".tmp")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", err
	}
	if err := s.render(staging, reportID, rows); err != nil {
		_ = os.RemoveAll(staging)
		return "", err
	}
	if err := os.Rename(staging, filepath.Join(s.root, handle)); err != nil {
		_ = os.RemoveAll(staging)
		return "", err
	}
	return handle, nil
}

func (s *FileStore) render(dir, reportID string, rows []monitoring.ReportRow) error {
	if err := writeCSV(filepath.Join(dir, descriptors[FormatCSV].FileName), rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	xlsx, err := BuildReportXLSX(rows)
	if err != nil {
		return fmt.Errorf("render xlsx: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, descriptors[FormatXLSX].FileName), xlsx, 0o644); err != nil {
		return err
	}
	pdf, err := BuildSummaryPDF(reportID, s.now(), rows)
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, descriptors[FormatPDF].FileName), pdf, 0o644); err != nil {
		return err
	}
	if err := writeArchive(dir); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// Open returns the stored file of a handle in the given format.
func (s *FileStore) Open(handle string, format Format) (io.ReadCloser, Descriptor, error) {
	desc, ok := descriptors[format]
	if !ok {
		return nil, Descriptor{}, ErrUnknownFormat
	}
	if _, err := ulid.ParseStrict(handle); err != nil {
		return nil, Descriptor{}, ErrNotFound
	}
	file, err := os.Open(filepath.Join(s.root, handle, desc.FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Descriptor{}, ErrNotFound
		}
		return nil, Descriptor{}, err
	}
	return file, desc, nil
}

func writeCSV(path string, rows []monitoring.ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(monitoring.ReportColumns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(csvRecord(row)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func csvRecord(row monitoring.ReportRow) []string {
	return []string{
		row.StoreID,
		strconv.Itoa(row.UptimeLastHour),
		formatFloat(row.UptimeLastDay),
		formatFloat(row.UptimeLastWeek),
		strconv.Itoa(row.DowntimeLastHour),
		formatFloat(row.DowntimeLastDay),
		formatFloat(row.DowntimeLastWeek),
	}
}

func writeArchive(dir string) error {
	file, err := os.Create(filepath.Join(dir, descriptors[FormatZip].FileName))
	if err != nil {
		return err
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for _, format := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		name := descriptors[format].FileName
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		fw, err := zipWriter.Create(name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}
	if err := zipWriter.Close(); err != nil {
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
