// Package aggregate narrows observation tables to a calendar year and reduces
// them to monthly temperature means and precipitation sums.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/python-kurs/exercise-4-l3enR/internal/modules/climate/types"
)

// FilterYear returns the rows dated within year, in their original order.
// No matching rows yields an empty table, not an error.
func FilterYear(t types.ObservationTable, year int) types.ObservationTable {
	out := types.ObservationTable{
		Station: t.Station,
		Columns: t.Columns,
	}
	for _, row := range t.Rows {
		if row.Date.Year() == year {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

type monthKey struct {
	year  int
	month time.Month
}

type accumulator struct {
	tempSum  float64
	tempDays int
	precSum  float64
	precDays int
}

// Monthly groups rows by (year, month) and reduces each group to the mean of
// the non-missing temperatures and the sum of the non-missing precipitation.
// A month without temperatures has a nil Temperature; a month without
// precipitation sums to 0.
func Monthly(t types.ObservationTable, tempCol, precCol string) (types.MonthlyTable, error) {
	if !t.HasColumn(tempCol) {
		return types.MonthlyTable{}, fmt.Errorf("temperature column %q not loaded: %w", tempCol, types.ErrParse)
	}
	if !t.HasColumn(precCol) {
		return types.MonthlyTable{}, fmt.Errorf("precipitation column %q not loaded: %w", precCol, types.ErrParse)
	}

	groups := make(map[monthKey]*accumulator)
	for _, row := range t.Rows {
		k := monthKey{year: row.Date.Year(), month: row.Date.Month()}
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{}
			groups[k] = acc
		}
		if v := row.Value(tempCol); present(v) {
			acc.tempSum += *v
			acc.tempDays++
		}
		if v := row.Value(precCol); present(v) {
			acc.precSum += *v
			acc.precDays++
		}
	}

	keys := make([]monthKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})

	out := types.MonthlyTable{
		Station:             t.Station,
		TemperatureColumn:   tempCol,
		PrecipitationColumn: precCol,
		Months:              make([]types.MonthlyAggregate, 0, len(keys)),
	}
	for _, k := range keys {
		acc := groups[k]
		m := types.MonthlyAggregate{
			Month:             MonthEnd(k.year, k.month),
			Precipitation:     acc.precSum,
			TemperatureDays:   acc.tempDays,
			PrecipitationDays: acc.precDays,
		}
		if acc.tempDays > 0 {
			mean := acc.tempSum / float64(acc.tempDays)
			m.Temperature = &mean
		}
		out.Months = append(out.Months, m)
	}
	return out, nil
}

// present reports whether v holds a usable value. NaN counts as missing.
func present(v *float64) bool {
	return v != nil && !math.IsNaN(*v)
}

// MonthEnd is the last day of the month at UTC midnight.
func MonthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

func DaysIn(year int, month time.Month) int {
	return MonthEnd(year, month).Day()
}
