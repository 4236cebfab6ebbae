// Package datetime 提供日期格式化、交易日历与日计数工具，供期权估值日推进和年化时间换算使用。
package datetime

import "time"

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
	// SnapLayout 快照 ID 使用的紧凑时间格式。
	SnapLayout = "20060102150405"
	// DaysPerYear Actual/365 Fixed 日计数约定的年天数。
	DaysPerYear = 365.0
)

// FormatTime 将时间格式化为 "YYYY-MM-DD HH:MM:SS"。
func FormatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// FormatDate 将时间格式化为 "YYYY-MM-DD"。
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate 解析 "YYYY-MM-DD"，结果为 UTC 零点。
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// Date 构造 UTC 零点日期。
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay 获取 t 所在天的 00:00:00，保留时区。
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateOnly 把任意时刻归一为同一日历日的 UTC 零点，用作缓存键和估值日。
func DateOnly(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// SameDay 判断两个时刻是否处于同一日历日。
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// YearFraction 以 Actual/365 Fixed 计算 from 到 to 的年化时长，to 早于 from 时为负。
func YearFraction(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / DaysPerYear
}

// DaysBetween 返回两时刻之间的自然日数（可为小数）。
func DaysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}
