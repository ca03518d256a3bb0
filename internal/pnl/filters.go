package pnl

import (
	"strings"
	"time"

	"github.com/ksred/klear-journal/internal/types"
	"gorm.io/gorm"
)

// Filters narrows the closed trades an aggregation runs over. Zero values
// mean "not filtered".
type Filters struct {
	Symbol string     // case-insensitive substring
	Side   types.Side // exact
	Start  *time.Time // inclusive lower bound on exit_time
	End    *time.Time // upper bound on exit_time

	// EndExclusive is set when End is the start of the day after a date-only
	// bound, so the whole named day is covered.
	EndExclusive bool
}

const dateLayout = "2006-01-02"

var datetimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseFilters reads symbol, side, start and end through get (typically
// gin's c.Query). Naive datetimes are interpreted in loc. Malformed values
// are dropped rather than reported.
func ParseFilters(get func(string) string, loc *time.Location) Filters {
	var f Filters

	f.Symbol = strings.TrimSpace(get("symbol"))
	if side, ok := types.ParseSide(get("side")); ok {
		f.Side = side
	}

	if start, _, ok := ParseBound(get("start"), loc); ok {
		f.Start = &start
	}

	if end, dateOnly, ok := ParseBound(get("end"), loc); ok {
		if dateOnly {
			end = end.AddDate(0, 0, 1)
			f.EndExclusive = true
		}
		f.End = &end
	}

	return f
}

// ParseBound parses a date or datetime. dateOnly reports a bare YYYY-MM-DD,
// in which case the result is midnight of that day in loc.
func ParseBound(s string, loc *time.Location) (ts time.Time, dateOnly bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, false
	}

	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, false, true
	}
	for _, layout := range datetimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, false, true
		}
	}
	if ts, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return ts, true, true
	}
	return time.Time{}, false, false
}

// Scope applies f to a trades query.
func (f Filters) Scope(db *gorm.DB) *gorm.DB {
	if f.Symbol != "" {
		db = db.Where(`symbol LIKE ? ESCAPE '\'`, "%"+escapeLike(types.NormalizeSymbol(f.Symbol))+"%")
	}
	if f.Side != "" {
		db = db.Where("side = ?", f.Side)
	}
	if f.Start != nil {
		db = db.Where("exit_time >= ?", types.StorageTime(*f.Start))
	}
	if f.End != nil {
		if f.EndExclusive {
			db = db.Where("exit_time < ?", types.StorageTime(*f.End))
		} else {
			db = db.Where("exit_time <= ?", types.StorageTime(*f.End))
		}
	}
	return db
}

// HasWindow reports whether an exit_time bound is set; such filters exclude
// open trades.
func (f Filters) HasWindow() bool {
	return f.Start != nil || f.End != nil
}

// WithoutWindow drops the exit_time bounds.
func (f Filters) WithoutWindow() Filters {
	f.Start, f.End, f.EndExclusive = nil, nil, false
	return f
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
