// Package loader reads delimiter-separated daily station files into
// observation tables.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

// missingMarkers are cell values that always mean "no value", in addition to
// the empty string and Options.NAValues.
var missingMarkers = []string{
	"#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

type Options struct {
	Station    string
	DateColumn string
	// Columns are the numeric columns to keep. They are matched against the
	// header ignoring surrounding whitespace and stored under the name given here.
	Columns []string
	// NAValues are extra cell values treated as missing. The empty string
	// and the usual markers ("NA", "NaN", "NULL", ...) are always missing.
	NAValues []string
	// Comma defaults to ';'.
	Comma rune
}

// Load reads the file at path. Rows keep the order of the file.
func Load(path string, opts Options) (types.ObservationTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.ObservationTable{}, fmt.Errorf("open %s: %w", path, types.ErrNotFound)
		}
		return types.ObservationTable{}, fmt.Errorf("open %s: %w: %v", path, types.ErrIO, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("close station file", "path", path, "error", err)
		}
	}()

	table, err := Read(f, opts)
	if err != nil {
		return types.ObservationTable{}, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Read parses a table from r. See Load.
func Read(r io.Reader, opts Options) (types.ObservationTable, error) {
	cr := csv.NewReader(r)
	cr.Comma = opts.Comma
	if cr.Comma == 0 {
		cr.Comma = ';'
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return types.ObservationTable{}, fmt.Errorf("missing header row: %w", types.ErrParse)
		}
		return types.ObservationTable{}, fmt.Errorf("read header: %w: %v", types.ErrParse, err)
	}

	dateIdx := columnIndex(header, opts.DateColumn)
	if dateIdx < 0 {
		return types.ObservationTable{}, fmt.Errorf("date column %q not in header: %w", opts.DateColumn, types.ErrParse)
	}
	valueIdx := make([]int, len(opts.Columns))
	for i, name := range opts.Columns {
		valueIdx[i] = columnIndex(header, name)
		if valueIdx[i] < 0 {
			return types.ObservationTable{}, fmt.Errorf("column %q not in header: %w", name, types.ErrParse)
		}
	}

	na := make(map[string]struct{}, len(missingMarkers)+len(opts.NAValues)+1)
	na[""] = struct{}{}
	for _, v := range missingMarkers {
		na[v] = struct{}{}
	}
	for _, v := range opts.NAValues {
		na[strings.TrimSpace(v)] = struct{}{}
	}

	out := types.ObservationTable{
		Station: opts.Station,
		Columns: append([]string(nil), opts.Columns...),
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.ObservationTable{}, fmt.Errorf("%w: %v", types.ErrParse, err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		if dateIdx >= len(rec) {
			return types.ObservationTable{}, fmt.Errorf("line %d: no date field: %w", line, types.ErrParse)
		}
		date, err := parseDate(rec[dateIdx])
		if err != nil {
			return types.ObservationTable{}, fmt.Errorf("line %d: %w", line, err)
		}

		obs := types.Observation{Date: date, Values: make(map[string]*float64, len(opts.Columns))}
		for i, idx := range valueIdx {
			name := opts.Columns[i]
			if idx >= len(rec) {
				return types.ObservationTable{}, fmt.Errorf("line %d: no field for column %q: %w", line, name, types.ErrParse)
			}
			v, err := parseValue(rec[idx], na)
			if err != nil {
				return types.ObservationTable{}, fmt.Errorf("line %d, column %q: %w", line, name, err)
			}
			obs.Values[name] = v
		}
		out.Rows = append(out.Rows, obs)
	}

	return out, nil
}

func columnIndex(header []string, name string) int {
	want := strings.TrimSpace(name)
	for i, h := range header {
		// A UTF-8 BOM on the first header cell is common in exported files.
		if strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")) == want {
			return i
		}
	}
	return -1
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: %w", s, types.ErrParse)
}

func parseValue(s string, na map[string]struct{}) (*float64, error) {
	s = strings.TrimSpace(s)
	if _, ok := na[s]; ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, types.ErrParse)
	}
	// Any other spelling ParseFloat accepts ("nAn", "+Inf") is missing too.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, nil
	}
	return &v, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
