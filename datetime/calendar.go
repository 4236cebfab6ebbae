package datetime

import (
	"sync"
	"time"
)

// Calendar 交易日历：周末与节假日休市，可追加自定义休市日和补班日。
type Calendar struct {
	name     string
	rules    func(year int) []time.Time
	mu       sync.RWMutex
	extra    map[string]bool // 自定义休市日 (YYYY-MM-DD)
	workdays map[string]bool // 强制交易日，优先级高于规则
	cache    map[int]map[string]bool
}

// NewNYSECalendar 创建美股（NYSE）交易日历。
func NewNYSECalendar() *Calendar {
	return newCalendar("NYSE", nyseHolidays)
}

// NewWeekendsOnlyCalendar 创建只排除周末的日历。
func NewWeekendsOnlyCalendar() *Calendar {
	return newCalendar("WeekendsOnly", func(int) []time.Time { return nil })
}

func newCalendar(name string, rules func(int) []time.Time) *Calendar {
	return &Calendar{
		name:     name,
		rules:    rules,
		extra:    make(map[string]bool),
		workdays: make(map[string]bool),
		cache:    make(map[int]map[string]bool),
	}
}

// Name 日历名称。
func (c *Calendar) Name() string { return c.name }

// AddHoliday 追加临时休市日（如国葬日）。
func (c *Calendar) AddHoliday(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra[FormatDate(t)] = true
}

// AddWorkday 把某日强制标记为交易日。
func (c *Calendar) AddWorkday(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.workdays[FormatDate(t)] = true
}

// IsHoliday 判断给定日期是否休市。
func (c *Calendar) IsHoliday(t time.Time) bool {
	key := FormatDate(t)

	c.mu.RLock()
	if c.workdays[key] {
		c.mu.RUnlock()
		return false
	}
	if c.extra[key] {
		c.mu.RUnlock()
		return true
	}
	year, ok := c.cache[t.Year()]
	c.mu.RUnlock()

	if !ok {
		year = make(map[string]bool)
		for _, h := range c.rules(t.Year()) {
			year[FormatDate(h)] = true
		}
		c.mu.Lock()
		c.cache[t.Year()] = year
		c.mu.Unlock()
	}
	if year[key] {
		return true
	}

	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsBusinessDay 判断给定日期是否为交易日。
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	return !c.IsHoliday(t)
}

// Advance 沿交易日历前进 n 个交易日（n 为负则后退），保留时刻。n 为 0 时若当日休市则顺延到下一交易日。
func (c *Calendar) Advance(t time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	if n == 0 {
		for c.IsHoliday(t) {
			t = t.AddDate(0, 0, 1)
		}
		return t
	}
	for n > 0 {
		t = t.AddDate(0, 0, step)
		if c.IsBusinessDay(t) {
			n--
		}
	}
	return t
}

// BusinessDaysBetween 统计 (from, to] 区间内的交易日数。
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	n := 0
	for d := DateOnly(from).AddDate(0, 0, 1); !d.After(DateOnly(to)); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// nyseHolidays 按 NYSE 规则生成某年的休市日。
func nyseHolidays(year int) []time.Time {
	hs := []time.Time{
		newYearObserved(year),
		nthWeekday(year, time.January, time.Monday, 3),  // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3), // Washington's Birthday
		easterSunday(year).AddDate(0, 0, -2),            // Good Friday
		lastWeekday(year, time.May, time.Monday),        // Memorial Day
		observed(Date(year, time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1), // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(Date(year, time.December, 25)),
	}
	if year >= 2022 {
		hs = append(hs, observed(Date(year, time.June, 19)))
	}
	return hs
}

// observed 周六顺延到周五，周日顺延到周一。
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// newYearObserved 元旦落在周六时 NYSE 不在前一年 12 月 31 日补休。
func newYearObserved(year int) time.Time {
	d := Date(year, time.January, 1)
	if d.Weekday() == time.Sunday {
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := Date(year, month, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := Date(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easterSunday 匿名格里高利算法。
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return Date(year, time.Month(month), day)
}
