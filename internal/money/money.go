// Package money holds the currency rounding and night counting helpers shared by
// the folio and settlement packages.
package money

import (
	"fmt"
	"math"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
)

// Round rounds d to the given number of currency places, half away from zero.
// VND style currencies use 0 places.
func Round(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Percent multiplies amount by rate and rounds the result.
func Percent(amount, rate decimal.Decimal, places int32) decimal.Decimal {
	return Round(amount.Mul(rate), places)
}

// Sum adds the given amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// NightCount returns the number of hotel nights between two dates. Times of day are
// ignored; a same-day stay (day use) is billed as one night.
func NightCount(checkIn, checkOut time.Time) (int, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return 0, fmt.Errorf("check-in and check-out dates are required")
	}
	in := now.With(checkIn).BeginningOfDay()
	out := now.With(checkOut.In(checkIn.Location())).BeginningOfDay()
	if out.Before(in) {
		return 0, fmt.Errorf("check-out %s is before check-in %s", out.Format(time.DateOnly), in.Format(time.DateOnly))
	}
	// Rounding absorbs 23h/25h days around DST switches.
	nights := int(math.Round(out.Sub(in).Hours() / 24))
	if nights < 1 {
		nights = 1
	}
	return nights, nil
}
