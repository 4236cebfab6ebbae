package datetime

import (
	"testing"
	"time"
)

func TestNYSEHolidays(t *testing.T) {
	cal := NewNYSECalendar()
	cases := []struct {
		date    time.Time
		holiday bool
	}{
		{Date(2024, time.January, 1), true},
		{Date(2024, time.January, 15), true},  // MLK
		{Date(2024, time.March, 29), true},    // Good Friday
		{Date(2024, time.May, 27), true},      // Memorial Day
		{Date(2024, time.June, 19), true},     // Juneteenth
		{Date(2026, time.July, 3), true},      // 7/4 落在周六
		{Date(2024, time.November, 28), true}, // Thanksgiving
		{Date(2024, time.December, 25), true},
		{Date(2024, time.March, 28), false},
		{Date(2024, time.March, 30), true}, // 周六
		{Date(2021, time.June, 18), false}, // Juneteenth 2022 年起休市
	}
	for _, c := range cases {
		if got := cal.IsHoliday(c.date); got != c.holiday {
			t.Errorf("IsHoliday(%s) = %v, want %v", FormatDate(c.date), got, c.holiday)
		}
	}
}

func TestAdvanceSkipsHolidays(t *testing.T) {
	cal := NewNYSECalendar()
	got := cal.Advance(Date(2024, time.March, 28), 1)
	if want := Date(2024, time.April, 1); !got.Equal(want) {
		t.Errorf("Advance = %s, want %s", FormatDate(got), FormatDate(want))
	}
	back := cal.Advance(Date(2024, time.April, 1), -1)
	if want := Date(2024, time.March, 28); !back.Equal(want) {
		t.Errorf("Advance(-1) = %s, want %s", FormatDate(back), FormatDate(want))
	}
	if n := cal.BusinessDaysBetween(Date(2024, time.March, 28), Date(2024, time.April, 2)); n != 2 {
		t.Errorf("BusinessDaysBetween = %d, want 2", n)
	}
}

func TestCustomHolidayAndWorkday(t *testing.T) {
	cal := NewWeekendsOnlyCalendar()
	d := Date(2025, time.January, 9)
	if cal.IsHoliday(d) {
		t.Fatalf("weekday should be open")
	}
	cal.AddHoliday(d)
	if !cal.IsHoliday(d) {
		t.Errorf("custom holiday not honoured")
	}
	sat := Date(2025, time.January, 11)
	cal.AddWorkday(sat)
	if cal.IsHoliday(sat) {
		t.Errorf("custom workday not honoured")
	}
}

func TestYearFraction(t *testing.T) {
	from := Date(2024, time.January, 1)
	to := from.AddDate(0, 0, 73)
	if got := YearFraction(from, to); got != 0.2 {
		t.Errorf("YearFraction = %v, want 0.2", got)
	}
}
