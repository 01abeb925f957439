// Package dataset loads an uploaded CSV into an in-memory table with
// inferred column kinds and per-column statistics. A Dataset is
// immutable after load; uploading a new file builds a new Dataset and
// replaces the old one wholesale at the session level.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseError reports an upload that could not be loaded as CSV.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse csv: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse csv: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrf(err error, format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// Kind classifies a column by the predominant parsed type of its values.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindUnknown     Kind = "unknown"
)

// NumericStats holds streaming statistics for a numeric column.
type NumericStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// CategoryCount is one value of a categorical column with its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Column describes one dataset column after load.
type Column struct {
	Name         string          `json:"name"`
	Kind         Kind            `json:"kind"`
	NonNull      int             `json:"non_null"`
	Missing      int             `json:"missing"`
	Unique       int             `json:"unique,omitempty"`
	Stats        *NumericStats   `json:"stats,omitempty"`
	TopValues    []CategoryCount `json:"top_values,omitempty"`
	ExampleTexts []string        `json:"-"`
}

// Dataset is the loaded table. Rows are kept verbatim as read from the
// file; Columns carry the inferred schema.
type Dataset struct {
	Name      string
	Columns   []Column
	RowCount  int // data rows kept in memory
	TotalRows int // data rows seen in the file (>= RowCount when capped)
	LoadedAt  time.Time

	rows [][]string
	raw  []byte
}

// Options controls load behavior.
type Options struct {
	// MaxRows caps the rows kept and analyzed; 0 means the default cap.
	MaxRows int
	// TopValues caps the per-column category list in the schema.
	TopValues int
}

// DefaultOptions returns the load defaults used by the upload handler.
func DefaultOptions() Options {
	return Options{MaxRows: 200000, TopValues: 8}
}

// Load parses comma-delimited UTF-8 text with a header row into a
// Dataset. It returns a *ParseError for empty input, invalid CSV, or a
// missing header row. A header-only file is valid and yields an empty
// dataset.
func Load(name string, r io.Reader, opt Options) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, parseErrf(err, "read input")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, parseErrf(nil, "file is empty")
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, parseErrf(nil, "file is empty")
		}
		return nil, parseErrf(err, "not valid CSV")
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}
	ncol := len(header)

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultOptions().MaxRows
	}
	topValues := opt.TopValues
	if topValues <= 0 {
		topValues = DefaultOptions().TopValues
	}

	// Per-column accumulators, Welford for numeric stats.
	type colAcc struct {
		nonNull int
		missing int
		n       int
		mean    float64
		m2      float64
		min     float64
		max     float64
		numCnt  int
		dtCnt   int
		txtCnt  int
		cats    map[string]int
		exText  []string
	}
	accs := make([]*colAcc, ncol)
	for i := range accs {
		accs[i] = &colAcc{min: math.Inf(1), max: math.Inf(-1), cats: make(map[string]int)}
	}

	ds := &Dataset{Name: name, LoadedAt: time.Now().UTC(), raw: raw}
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, parseErrf(err, "not valid CSV at row %d", ds.TotalRows+2)
		}
		ds.TotalRows++
		if ds.RowCount >= maxRows {
			continue
		}
		row := normalizeRow(rec, ncol)
		ds.rows = append(ds.rows, row)
		ds.RowCount++

		for j, v := range row {
			v = strings.TrimSpace(v)
			c := accs[j]
			if v == "" {
				c.missing++
				continue
			}
			c.nonNull++
			if x, ok := parseNumeric(v); ok {
				c.numCnt++
				c.n++
				if x < c.min {
					c.min = x
				}
				if x > c.max {
					c.max = x
				}
				delta := x - c.mean
				c.mean += delta / float64(c.n)
				c.m2 += delta * (x - c.mean)
				continue
			}
			if parseTimeMaybe(v) {
				c.dtCnt++
				continue
			}
			c.txtCnt++
			if len(c.cats) <= 10000 && len(v) <= 64 {
				c.cats[v]++
			}
			if len(c.exText) < 3 {
				c.exText = append(c.exText, v)
			}
		}
	}

	ds.Columns = make([]Column, 0, ncol)
	for i, c := range accs {
		col := Column{Name: strings.TrimSpace(header[i]), NonNull: c.nonNull, Missing: c.missing}
		col.Kind = KindUnknown
		switch {
		case c.numCnt > 0 && c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt:
			col.Kind = KindNumeric
			st := &NumericStats{Count: c.n, Min: c.min, Max: c.max, Mean: c.mean}
			if c.n > 1 {
				st.Std = math.Sqrt(c.m2 / float64(c.n-1))
			}
			col.Stats = st
		case c.dtCnt > 0 && c.dtCnt >= c.txtCnt:
			col.Kind = KindDatetime
		case c.txtCnt > 0:
			col.Kind = KindText
			col.ExampleTexts = c.exText
			// Low cardinality makes the column categorical.
			if len(c.cats) > 0 && len(c.cats) <= 256 && len(c.cats)*2 <= c.txtCnt {
				col.Kind = KindCategorical
				col.Unique = len(c.cats)
				col.TopValues = topCategories(c.cats, topValues)
				col.ExampleTexts = nil
			}
		}
		ds.Columns = append(ds.Columns, col)
	}
	return ds, nil
}

// Header returns the column names in file order.
func (d *Dataset) Header() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Preview returns at most n data rows in file order. Rows are copied so
// callers cannot mutate the dataset.
func (d *Dataset) Preview(n int) [][]string {
	if n <= 0 || len(d.rows) == 0 {
		return nil
	}
	if n > len(d.rows) {
		n = len(d.rows)
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(d.rows[i]))
		copy(row, d.rows[i])
		out[i] = row
	}
	return out
}

// validateHeader rejects rows that cannot serve as a header: blank
// column names, or a row whose every cell parses as a number (which is
// data, not a header).
func validateHeader(header []string) error {
	if len(header) == 0 {
		return parseErrf(nil, "missing header row")
	}
	allNumeric := true
	for _, h := range header {
		if strings.TrimSpace(h) == "" {
			return parseErrf(nil, "header row has blank column names")
		}
		if _, ok := parseNumeric(strings.TrimSpace(h)); !ok {
			allNumeric = false
		}
	}
	if allNumeric {
		return parseErrf(nil, "first row looks like data, not a header")
	}
	return nil
}

// normalizeRow pads short records and trims long ones to the header width.
func normalizeRow(rec []string, ncol int) []string {
	row := make([]string, ncol)
	copy(row, rec)
	return row
}

func topCategories(cats map[string]int, limit int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for v, n := range cats {
		tops = append(tops, CategoryCount{Value: v, Count: n})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

func parseTimeMaybe(s string) bool {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}

// parseNumeric accepts plain and percent-suffixed numbers with either
// '.' or ',' as the decimal separator, stripping thousands separators.
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	raw = strings.ReplaceAll(raw, "%", "")
	raw = strings.ReplaceAll(raw, " ", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	var dec, thou rune
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0:
		if cpos > dpos {
			dec, thou = ',', '.'
		} else {
			dec, thou = '.', ','
		}
	case cpos >= 0:
		dec = ','
	default:
		dec = '.'
	}
	if thou == 0 {
		for _, sep := range []rune{',', '.', ' '} {
			if sep != dec {
				raw = strings.ReplaceAll(raw, string(sep), "")
			}
		}
	} else {
		raw = strings.ReplaceAll(raw, string(thou), "")
		raw = strings.ReplaceAll(raw, " ", "")
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
