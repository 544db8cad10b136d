package dashboard

import (
	"fmt"
	"time"

	"github.com/salesboard/backend/internal/domain/rollup"
	"github.com/salesboard/backend/internal/domain/shared"
)

// Range presets a caller may name instead of passing explicit bounds.
const (
	PresetToday       = "today"
	PresetYesterday   = "yesterday"
	PresetLast7       = "last7"
	PresetLast30      = "last30"
	PresetMonthToDate = "month_to_date"
	PresetCustom      = "custom"
)

// RangeSelector names a preset range or carries explicit bounds.
type RangeSelector struct {
	Preset string `form:"preset" json:"preset"`
	Start  string `form:"start" json:"start,omitempty"`
	End    string `form:"end" json:"end,omitempty"`
}

// Resolve turns the selector into concrete inclusive bounds relative to now
// in the business timezone. Explicit bounds are validated and capped the
// same way preset ones are.
func (sel RangeSelector) Resolve(now time.Time, loc *time.Location) (rollup.DateRange, error) {
	today := rollup.NewDateKey(now, loc)

	switch sel.Preset {
	case PresetToday, "":
		return rollup.NewDateRange(today, today)
	case PresetYesterday:
		y := rollup.NewDateKey(now.In(loc).AddDate(0, 0, -1), loc)
		return rollup.NewDateRange(y, y)
	case PresetLast7:
		start := rollup.NewDateKey(now.In(loc).AddDate(0, 0, -6), loc)
		return rollup.NewDateRange(start, today)
	case PresetLast30:
		start := rollup.NewDateKey(now.In(loc).AddDate(0, 0, -29), loc)
		return rollup.NewDateRange(start, today)
	case PresetMonthToDate:
		local := now.In(loc)
		first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return rollup.NewDateRange(rollup.NewDateKey(first, loc), today)
	case PresetCustom:
		start, err := rollup.ParseDateKey(sel.Start)
		if err != nil {
			return rollup.DateRange{}, fmt.Errorf("%w: start: %v", shared.ErrInvalidInput, err)
		}
		end, err := rollup.ParseDateKey(sel.End)
		if err != nil {
			return rollup.DateRange{}, fmt.Errorf("%w: end: %v", shared.ErrInvalidInput, err)
		}
		return rollup.NewDateRange(start, end)
	default:
		return rollup.DateRange{}, fmt.Errorf("%w: unknown range preset %q", shared.ErrInvalidInput, sel.Preset)
	}
}
