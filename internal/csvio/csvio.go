// Package csvio reads and writes trades as CSV in the journal's export layout.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/pnl"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/ksred/klear-journal/pkg/validation"
)

// Header is the export column order.
var Header = []string{"id", "entry_time", "symbol", "side", "quantity", "price", "exit_price", "exit_time", "pnl", "notes"}

// Columns every import file must carry. id and pnl are ignored on import.
var requiredColumns = []string{"symbol", "side", "quantity", "price"}

var ErrMissingColumns = errors.New("csv: missing required columns")

// Writer encodes trades in Header order with times rendered in loc
type Writer struct {
	w   *csv.Writer
	loc *time.Location
}

// NewWriter creates a writer. A nil loc means UTC.
func NewWriter(w io.Writer, loc *time.Location) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	return &Writer{w: csv.NewWriter(w), loc: loc}
}

// WriteHeader writes the header row
func (w *Writer) WriteHeader() error {
	return w.w.Write(Header)
}

// Write writes one trade. Open trades get empty exit and pnl cells.
func (w *Writer) Write(t *types.Trade) error {
	exitPrice, exitTime := "", ""
	if t.ExitPrice != nil {
		exitPrice = t.ExitPrice.StringFixed(types.PricePlaces)
	}
	if t.ExitTime != nil {
		exitTime = w.formatTime(*t.ExitTime)
	}

	return w.w.Write([]string{
		fmt.Sprint(t.ID),
		w.formatTime(t.EntryTime),
		t.Symbol,
		string(t.Side),
		t.Quantity.StringFixed(types.QuantityPlaces),
		t.Price.StringFixed(types.PricePlaces),
		exitPrice,
		exitTime,
		pnl.Format(pnl.Compute(t)),
		t.Notes,
	})
}

// Flush flushes buffered rows and reports any write error
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) formatTime(ts time.Time) string {
	return ts.In(w.loc).Format(time.RFC3339)
}

// Export writes the header followed by trades
func Export(out io.Writer, trades []types.Trade, loc *time.Location) error {
	w := NewWriter(out, loc)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for i := range trades {
		if err := w.Write(&trades[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Row is one decoded data row
type Row struct {
	Line  int
	Input types.TradeInput
}

// RowError collects the parse failures of one data row
type RowError struct {
	Line   int
	Fields validation.Errors
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Fields.Error())
}

// Read decodes every data row of r. Naive timestamps are read in loc. The
// returned error is non-nil only when the file itself is unusable; per-row
// problems are reported as RowErrors.
func Read(r io.Reader, loc *time.Location) ([]Row, []RowError, error) {
	if loc == nil {
		loc = time.UTC
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := columnIndex(header)
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var (
		rows    []Row
		rowErrs []RowError
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, RowError{Line: perr.Line, Fields: validation.Errors{validation.NonField: perr.Err.Error()}})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)

		in, errs := decode(record, index, loc)
		if len(errs) > 0 {
			rowErrs = append(rowErrs, RowError{Line: line, Fields: errs})
			continue
		}
		rows = append(rows, Row{Line: line, Input: in})
	}

	return rows, rowErrs, nil
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	return index
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func decode(record []string, index map[string]int, loc *time.Location) (types.TradeInput, validation.Errors) {
	errs := validation.Errors{}
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	in := types.TradeInput{
		Symbol: get("symbol"),
		Side:   get("side"),
	}
	in.Quantity = decimalField(get("quantity"), "quantity", errs)
	in.Price = decimalField(get("price"), "price", errs)
	in.ExitPrice = decimalField(get("exit_price"), "exit_price", errs)
	in.EntryTime = timeField(get("entry_time"), "entry_time", loc, errs)
	in.ExitTime = timeField(get("exit_time"), "exit_time", loc, errs)
	if _, ok := index["notes"]; ok {
		notes := get("notes")
		in.Notes = &notes
	}

	return in, errs
}

func decimalField(s, field string, errs validation.Errors) *money.Fixed {
	if s == "" {
		return nil
	}
	v, err := money.NewFromString(s)
	if err != nil {
		errs.Add(field, "A valid number is required.")
		return nil
	}
	return &v
}

func timeField(s, field string, loc *time.Location, errs validation.Errors) *time.Time {
	if s == "" {
		return nil
	}
	ts, _, ok := pnl.ParseBound(s, loc)
	if !ok {
		errs.Add(field, "Enter a valid date/time.")
		return nil
	}
	return &ts
}
