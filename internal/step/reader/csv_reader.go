package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/step/port"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// Column names of the rental dataset.
const (
	ColumnDatetime   = "datetime"
	ColumnSeason     = "season"
	ColumnHoliday    = "holiday"
	ColumnWorkingDay = "workingday"
	ColumnWeather    = "weather"
	ColumnTemp       = "temp"
	ColumnATemp      = "atemp"
	ColumnHumidity   = "humidity"
	ColumnWindspeed  = "windspeed"
	ColumnCasual     = "casual"
	ColumnRegistered = "registered"
	ColumnCount      = "count"
)

// RequiredColumns must all be present in the header.
var RequiredColumns = []string{ColumnDatetime, ColumnSeason, ColumnWeather, ColumnWorkingDay, ColumnCount}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
}

// Opener opens the byte stream the reader parses.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// RentalCSVReader reads RentalRecords from a delimited text file with a header row.
// Columns are matched by name; unknown columns are ignored.
type RentalCSVReader struct {
	source    string
	open      Opener
	location  *time.Location
	delimiter rune

	rc      io.ReadCloser
	csv     *csv.Reader
	columns map[string]int
}

var _ port.ItemReader[model.RentalRecord] = (*RentalCSVReader)(nil)

// NewRentalCSVReader creates a reader. source names the input in error messages.
// Timestamps without a zone are interpreted in location (UTC when nil).
func NewRentalCSVReader(source string, open Opener, location *time.Location, delimiter rune) *RentalCSVReader {
	if location == nil {
		location = time.UTC
	}
	if delimiter == 0 {
		delimiter = ','
	}
	return &RentalCSVReader{
		source:    source,
		open:      open,
		location:  location,
		delimiter: delimiter,
	}
}

// Open opens the stream and validates the header.
func (r *RentalCSVReader) Open(ctx context.Context) error {
	rc, err := r.open(ctx)
	if err != nil {
		return exception.NewPipelineError("reader", fmt.Sprintf("failed to open %s", r.source), err)
	}
	r.rc = rc
	r.csv = csv.NewReader(rc)
	r.csv.Comma = r.delimiter
	r.csv.TrimLeadingSpace = true
	r.csv.ReuseRecord = true

	header, err := r.csv.Read()
	if err != nil {
		r.rc.Close()
		r.rc = nil
		if errors.Is(err, io.EOF) {
			return exception.NewDataFormatError(r.source, 1, "", "", "file is empty, a header row is required", nil)
		}
		return exception.NewDataFormatError(r.source, 1, "", "", "malformed header row", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing error
	for _, name := range RequiredColumns {
		if _, ok := columns[name]; !ok {
			missing = multierror.Append(missing, fmt.Errorf("column %q", name))
		}
	}
	if missing != nil {
		r.rc.Close()
		r.rc = nil
		return exception.NewDataFormatError(r.source, 1, "", "", "required columns are missing", missing)
	}

	r.columns = columns
	logger.Debugf("RentalCSVReader '%s' opened with %d columns.", r.source, len(header))
	return nil
}

// Read returns the next record, or port.ErrNoMoreItems at the end of the file.
func (r *RentalCSVReader) Read(ctx context.Context) (model.RentalRecord, error) {
	if r.csv == nil {
		return model.RentalRecord{}, exception.NewPipelineError("reader", "Read called before Open", nil)
	}
	if err := ctx.Err(); err != nil {
		return model.RentalRecord{}, err
	}

	fields, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.RentalRecord{}, port.ErrNoMoreItems
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return model.RentalRecord{}, exception.NewDataFormatError(r.source, pe.Line, "", "", "malformed row", pe.Err)
		}
		return model.RentalRecord{}, exception.NewPipelineError("reader", fmt.Sprintf("failed to read %s", r.source), err)
	}
	line, _ := r.csv.FieldPos(0)
	return r.parse(fields, line)
}

// Close closes the stream. It is safe to call more than once.
func (r *RentalCSVReader) Close(ctx context.Context) error {
	r.csv = nil
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	return err
}

func (r *RentalCSVReader) parse(fields []string, line int) (model.RentalRecord, error) {
	rec := model.RentalRecord{Line: line}
	var err error

	raw := r.field(fields, ColumnDatetime)
	if rec.Recorded, rec.Timestamp, err = r.parseTimestamp(raw); err != nil {
		return rec, r.formatError(line, ColumnDatetime, raw, "unparseable timestamp", err)
	}

	if rec.SeasonCode, err = r.requiredInt(fields, line, ColumnSeason); err != nil {
		return rec, err
	}
	if rec.WeatherCode, err = r.requiredInt(fields, line, ColumnWeather); err != nil {
		return rec, err
	}

	raw = r.field(fields, ColumnWorkingDay)
	if rec.IsWorkingDay, err = parseFlag(raw); err != nil {
		return rec, r.formatError(line, ColumnWorkingDay, raw, "must be 0 or 1", nil)
	}

	if rec.Count, err = r.requiredInt(fields, line, ColumnCount); err != nil {
		return rec, err
	}
	if rec.Count < 0 {
		return rec, r.formatError(line, ColumnCount, strconv.Itoa(rec.Count), "count must not be negative", nil)
	}

	if raw, ok := r.optional(fields, ColumnHoliday); ok {
		flag, err := parseFlag(raw)
		if err != nil {
			return rec, r.formatError(line, ColumnHoliday, raw, "must be 0 or 1", nil)
		}
		rec.Holiday = &flag
	}
	for _, f := range []struct {
		column string
		dst    **float64
	}{
		{ColumnTemp, &rec.Temp},
		{ColumnATemp, &rec.ATemp},
		{ColumnHumidity, &rec.Humidity},
		{ColumnWindspeed, &rec.Windspeed},
	} {
		raw, ok := r.optional(fields, f.column)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rec, r.formatError(line, f.column, raw, "not a number", err)
		}
		*f.dst = &v
	}
	for _, f := range []struct {
		column string
		dst    **int
	}{
		{ColumnCasual, &rec.Casual},
		{ColumnRegistered, &rec.Registered},
	} {
		raw, ok := r.optional(fields, f.column)
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return rec, r.formatError(line, f.column, raw, "not an integer", err)
		}
		*f.dst = &v
	}
	return rec, nil
}

func (r *RentalCSVReader) field(fields []string, column string) string {
	idx := r.columns[column]
	if idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

// optional returns the value of a column that may be absent or empty.
func (r *RentalCSVReader) optional(fields []string, column string) (string, bool) {
	if _, ok := r.columns[column]; !ok {
		return "", false
	}
	v := r.field(fields, column)
	return v, v != ""
}

func (r *RentalCSVReader) requiredInt(fields []string, line int, column string) (int, error) {
	raw := r.field(fields, column)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, r.formatError(line, column, raw, "not an integer", err)
	}
	return v, nil
}

// parseTimestamp returns the wall-clock time as written and the instant it
// denotes. Zone-less values are placed in the reader's location.
func (r *RentalCSVReader) parseTimestamp(raw string) (time.Time, time.Time, error) {
	if raw == "" {
		return time.Time{}, time.Time{}, errors.New("empty value")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			lastErr = err
			continue
		}
		if layout == time.RFC3339 {
			return t, t, nil
		}
		return t, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), r.location), nil
	}
	return time.Time{}, time.Time{}, lastErr
}

func (r *RentalCSVReader) formatError(line int, column, value, reason string, err error) error {
	return exception.NewDataFormatError(r.source, line, column, value, reason, err)
}

func parseFlag(raw string) (bool, error) {
	switch raw {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid flag %q", raw)
	}
}

// ReadAll drains an ItemReader into a slice. Any error discards every item read so far.
func ReadAll[T any](ctx context.Context, r port.ItemReader[T]) (items []T, err error) {
	if err := r.Open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.Close(ctx); cerr != nil && err == nil {
			items, err = nil, cerr
		}
	}()
	for {
		item, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}
