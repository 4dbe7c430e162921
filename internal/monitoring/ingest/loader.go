package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strconv"
	"strings"
	"time"

	monitoring "store-monitoring/internal/monitoring/domain"
	"store-monitoring/internal/monitoring/metrics"
)

// Kind identifies a source file.
type Kind string

const (
	KindStoreStatus Kind = "store_status"
	KindMenuHours   Kind = "menu_hours"
	KindTimezones   Kind = "timezones"
)

const (
	defaultFlushSize = 5000
	maxRowErrors     = 50
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999 UTC",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// ErrMissingColumn is returned when a file lacks a required header.
var ErrMissingColumn = errors.New("ingest: missing column")

// Writer receives parsed rows.
type Writer interface {
	SaveObservations(ctx context.Context, observations []monitoring.Observation) error
	SaveBusinessHours(ctx context.Context, rules []monitoring.BusinessHours) error
	SaveTimezones(ctx context.Context, zones []monitoring.StoreTimezone) error
}

// RowError describes one rejected row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// FileResult summarizes one loaded file.
type FileResult struct {
	Name     string     `json:"name"`
	Kind     Kind       `json:"kind"`
	Rows     int        `json:"rows"`
	Accepted int        `json:"accepted"`
	Rejected int        `json:"rejected"`
	Errors   []RowError `json:"errors,omitempty"`
}

func (r *FileResult) reject(line int, err error) {
	r.Rejected++
	if len(r.Errors) < maxRowErrors {
		r.Errors = append(r.Errors, RowError{Line: line, Message: err.Error()})
	}
}

// Result summarizes an archive load.
type Result struct {
	Files []FileResult `json:"files"`
}

// Accepted returns the number of stored rows across files.
func (r Result) Accepted() int {
	total := 0
	for _, file := range r.Files {
		total += file.Accepted
	}
	return total
}

// Rejected returns the number of rejected rows across files.
func (r Result) Rejected() int {
	total := 0
	for _, file := range r.Files {
		total += file.Rejected
	}
	return total
}

// Loader reads the source archive into a Writer.
type Loader struct {
	writer    Writer
	flushSize int
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Option configures the loader.
type Option func(*Loader)

// WithFlushSize sets how many rows are buffered per write.
func WithFlushSize(size int) Option {
	return func(l *Loader) {
		if size > 0 {
			l.flushSize = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// NewLoader constructs a loader.
func NewLoader(writer Writer, opts ...Option) (*Loader, error) {
	if writer == nil {
		return nil, errors.New("ingest: nil writer")
	}
	l := &Loader{writer: writer, flushSize: defaultFlushSize}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LoadArchive opens a zip file on disk and loads it.
func (l *Loader) LoadArchive(ctx context.Context, archivePath string) (Result, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()
	return l.LoadZip(ctx, &zr.Reader)
}

// LoadZip loads every recognised csv entry. Row problems are collected in the
// result; a write failure stops the load.
func (l *Loader) LoadZip(ctx context.Context, zr *zip.Reader) (Result, error) {
	var result Result
	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		kind, ok := classify(entry.Name)
		if !ok {
			continue
		}
		file, err := l.loadEntry(ctx, entry, kind)
		result.Files = append(result.Files, file)
		if err != nil {
			return result, fmt.Errorf("load %s: %w", entry.Name, err)
		}
		if l.logger != nil {
			l.logger.Printf("event=ingest_file name=%s kind=%s rows=%d accepted=%d rejected=%d",
				file.Name, file.Kind, file.Rows, file.Accepted, file.Rejected)
		}
	}
	return result, nil
}

// Load reads one csv stream of the given kind.
func (l *Loader) Load(ctx context.Context, name string, kind Kind, r io.Reader) (FileResult, error) {
	file := FileResult{Name: name, Kind: kind}
	data, err := io.ReadAll(r)
	if err != nil {
		return file, err
	}
	reader := csv.NewReader(bytes.NewReader(clean(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return file, nil
		}
		return file, err
	}
	columns := indexColumns(header)
	parse, err := l.parser(kind, columns)
	if err != nil {
		return file, err
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			file.Rows++
			file.reject(line, err)
			continue
		}
		if isBlank(record) {
			continue
		}
		file.Rows++
		if err := parse.row(record); err != nil {
			file.reject(line, err)
			continue
		}
		file.Accepted++
		if parse.pending() >= l.flushSize {
			if err := parse.flush(ctx); err != nil {
				return file, err
			}
		}
	}
	if err := parse.flush(ctx); err != nil {
		return file, err
	}
	if l.metrics != nil {
		l.metrics.IngestRows.WithLabelValues(string(kind), "accepted").Add(float64(file.Accepted))
		l.metrics.IngestRows.WithLabelValues(string(kind), "rejected").Add(float64(file.Rejected))
	}
	return file, nil
}

func (l *Loader) loadEntry(ctx context.Context, entry *zip.File, kind Kind) (FileResult, error) {
	rc, err := entry.Open()
	if err != nil {
		return FileResult{Name: entry.Name, Kind: kind}, err
	}
	defer rc.Close()
	return l.Load(ctx, entry.Name, kind, rc)
}

type rowParser struct {
	row     func(record []string) error
	pending func() int
	flush   func(ctx context.Context) error
}

func (l *Loader) parser(kind Kind, columns map[string]int) (rowParser, error) {
	switch kind {
	case KindStoreStatus:
		idx, err := lookupColumns(columns, "store_id", "status", "timestamp_utc")
		if err != nil {
			return rowParser{}, err
		}
		var buf []monitoring.Observation
		return rowParser{
			row: func(record []string) error {
				obs, err := parseObservation(field(record, idx[0]), field(record, idx[1]), field(record, idx[2]))
				if err != nil {
					return err
				}
				buf = append(buf, obs)
				return nil
			},
			pending: func() int { return len(buf) },
			flush: func(ctx context.Context) error {
				if len(buf) == 0 {
					return nil
				}
				err := l.writer.SaveObservations(ctx, buf)
				buf = buf[:0]
				return err
			},
		}, nil
	case KindMenuHours:
		idx, err := lookupColumns(columns, "store_id", "dayofweek", "start_time_local", "end_time_local")
		if err != nil {
			return rowParser{}, err
		}
		var buf []monitoring.BusinessHours
		return rowParser{
			row: func(record []string) error {
				rule, err := parseBusinessHours(field(record, idx[0]), field(record, idx[1]), field(record, idx[2]), field(record, idx[3]))
				if err != nil {
					return err
				}
				buf = append(buf, rule)
				return nil
			},
			pending: func() int { return len(buf) },
			flush: func(ctx context.Context) error {
				if len(buf) == 0 {
					return nil
				}
				err := l.writer.SaveBusinessHours(ctx, buf)
				buf = buf[:0]
				return err
			},
		}, nil
	case KindTimezones:
		idx, err := lookupColumns(columns, "store_id", "timezone_str")
		if err != nil {
			return rowParser{}, err
		}
		var buf []monitoring.StoreTimezone
		return rowParser{
			row: func(record []string) error {
				storeID, zone := field(record, idx[0]), field(record, idx[1])
				if storeID == "" {
					return monitoring.ErrEmptyStoreID
				}
				if zone == "" {
					return errors.New("empty timezone")
				}
				buf = append(buf, monitoring.StoreTimezone{StoreID: storeID, Zone: zone})
				return nil
			},
			pending: func() int { return len(buf) },
			flush: func(ctx context.Context) error {
				if len(buf) == 0 {
					return nil
				}
				err := l.writer.SaveTimezones(ctx, buf)
				buf = buf[:0]
				return err
			},
		}, nil
	default:
		return rowParser{}, fmt.Errorf("ingest: unknown kind %q", kind)
	}
}

func parseObservation(storeID, status, timestamp string) (monitoring.Observation, error) {
	parsedStatus, err := monitoring.ParseStatus(status)
	if err != nil {
		return monitoring.Observation{}, err
	}
	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return monitoring.Observation{}, err
	}
	return monitoring.NewObservation(storeID, ts, parsedStatus)
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", monitoring.ErrInvalidTimestamp, value)
}

func parseBusinessHours(storeID, dayOfWeek, start, end string) (monitoring.BusinessHours, error) {
	day, err := strconv.ParseFloat(dayOfWeek, 64)
	if err != nil || day != float64(int(day)) {
		return monitoring.BusinessHours{}, fmt.Errorf("%w: %q", monitoring.ErrInvalidDayOfWeek, dayOfWeek)
	}
	startMinute, err := monitoring.ParseClock(start)
	if err != nil {
		return monitoring.BusinessHours{}, fmt.Errorf("start_time_local %q: %w", start, err)
	}
	endMinute, err := monitoring.ParseClock(end)
	if err != nil {
		return monitoring.BusinessHours{}, fmt.Errorf("end_time_local %q: %w", end, err)
	}
	return monitoring.NewBusinessHours(storeID, int(day), startMinute, endMinute)
}

// classify maps an archive entry name to its kind, skipping macOS metadata.
func classify(name string) (Kind, bool) {
	if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._") {
		return "", false
	}
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".csv") {
		return "", false
	}
	switch {
	case strings.Contains(lower, "store_status.csv"):
		return KindStoreStatus, true
	case strings.Contains(lower, "menu_hours.csv"):
		return KindMenuHours, true
	case strings.Contains(lower, "timezones.csv"):
		return KindTimezones, true
	default:
		return "", false
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func clean(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	return bytes.ReplaceAll(data, []byte{0}, nil)
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}

func lookupColumns(columns map[string]int, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		pos, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx[i] = pos
	}
	return idx, nil
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
