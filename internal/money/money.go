package money

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInstallmentCount is returned when an installment split is
// requested for fewer than one installment.
var ErrInvalidInstallmentCount = errors.New("installment count must be at least 1")

// SplitInstallments divides total into count parts that sum back to total
// exactly. The first count-1 parts are total/count floored to two decimal
// places; the last part absorbs the rounding remainder.
func SplitInstallments(total decimal.Decimal, count int) ([]decimal.Decimal, error) {
	if count < 1 {
		return nil, ErrInvalidInstallmentCount
	}
	if count == 1 {
		return []decimal.Decimal{total}, nil
	}

	base := total.Div(decimal.NewFromInt(int64(count))).RoundFloor(2)
	parts := make([]decimal.Decimal, count)
	for i := 0; i < count-1; i++ {
		parts[i] = base
	}
	parts[count-1] = total.Sub(base.Mul(decimal.NewFromInt(int64(count - 1))))
	return parts, nil
}

// AddMonthsClamped moves t forward by the given number of calendar months,
// clamping the day to the last valid day of the target month. Unlike
// time.AddDate, Jan 31 + 1 month yields Feb 28/29 rather than Mar 2/3.
func AddMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, months, 0)

	day := t.Day()
	if last := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// MonthsUntil returns the number of whole calendar months between from and
// to, never negative.
func MonthsUntil(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func daysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
