package money

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSplitInstallments(t *testing.T) {
	tests := []struct {
		name  string
		total string
		count int
		want  []string
	}{
		{"even split", "100.00", 4, []string{"25", "25", "25", "25"}},
		{"remainder on last", "100.00", 3, []string{"33.33", "33.33", "33.34"}},
		{"single installment", "100.00", 1, []string{"100.00"}},
		{"indivisible cents", "0.05", 3, []string{"0.01", "0.01", "0.03"}},
		{"large total", "1234567.89", 7, []string{"176366.84", "176366.84", "176366.84", "176366.84", "176366.84", "176366.84", "176366.85"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			parts, err := SplitInstallments(total, tt.count)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if len(parts) != tt.count {
				t.Fatalf("got %d parts, want %d", len(parts), tt.count)
			}

			sum := decimal.Zero
			for i, part := range parts {
				want := decimal.RequireFromString(tt.want[i])
				if !part.Equal(want) {
					t.Errorf("part %d = %s, want %s", i, part, want)
				}
				sum = sum.Add(part)
			}
			if !sum.Equal(total) {
				t.Errorf("parts sum to %s, want %s", sum, total)
			}
		})
	}
}

func TestSplitInstallmentsOrdering(t *testing.T) {
	// every part except the last equals the floored base, and no part
	// differs from another by more than the rounding remainder
	parts, err := SplitInstallments(decimal.RequireFromString("99.99"), 6)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	base := parts[0]
	for i := 1; i < len(parts)-1; i++ {
		if !parts[i].Equal(base) {
			t.Errorf("part %d = %s, want %s", i, parts[i], base)
		}
	}
	if parts[len(parts)-1].LessThan(base) {
		t.Errorf("last part %s is smaller than base %s", parts[len(parts)-1], base)
	}
}

func TestSplitInstallmentsInvalidCount(t *testing.T) {
	for _, count := range []int{0, -1} {
		_, err := SplitInstallments(decimal.RequireFromString("10.00"), count)
		if !errors.Is(err, ErrInvalidInstallmentCount) {
			t.Errorf("count %d: got %v, want ErrInvalidInstallmentCount", count, err)
		}
	}
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		months int
		want   string
	}{
		{"jan 31 to feb", "2025-01-31", 1, "2025-02-28"},
		{"jan 31 to leap feb", "2024-01-31", 1, "2024-02-29"},
		{"jan 31 two months", "2025-01-31", 2, "2025-03-31"},
		{"mar 31 to apr", "2025-03-31", 1, "2025-04-30"},
		{"mid month unchanged", "2025-01-15", 1, "2025-02-15"},
		{"year rollover", "2025-11-30", 3, "2026-02-28"},
		{"zero months", "2025-05-20", 0, "2025-05-20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, err := time.Parse("2006-01-02", tt.from)
			if err != nil {
				t.Fatal(err)
			}
			got := AddMonthsClamped(from, tt.months)
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("AddMonthsClamped(%s, %d) = %s, want %s", tt.from, tt.months, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestAddMonthsClampedKeepsClock(t *testing.T) {
	from := time.Date(2025, time.January, 31, 9, 30, 15, 0, time.UTC)
	got := AddMonthsClamped(from, 1)
	if got.Hour() != 9 || got.Minute() != 30 || got.Second() != 15 {
		t.Errorf("clock not preserved: got %s", got)
	}
}

func TestMonthsUntil(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want int
	}{
		{"same day", "2025-03-15", "2025-03-15", 0},
		{"one month exact", "2025-03-15", "2025-04-15", 1},
		{"one day short", "2025-03-15", "2025-04-14", 0},
		{"across year", "2025-11-10", "2026-02-10", 3},
		{"to before from", "2025-06-01", "2025-05-01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, _ := time.Parse("2006-01-02", tt.from)
			to, _ := time.Parse("2006-01-02", tt.to)
			if got := MonthsUntil(from, to); got != tt.want {
				t.Errorf("MonthsUntil(%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
