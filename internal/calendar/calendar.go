package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeyLayout 是日期键的格式，所有按天统计的边界都以它为准。
const KeyLayout = "2006-01-02"

var (
	// ErrInvalidRange 在区间起点晚于终点时返回
	ErrInvalidRange = errors.New("invalid day range")
	// ErrInvalidDayKey 在日期键不符合 YYYY-MM-DD 时返回
	ErrInvalidDayKey = errors.New("invalid day key")
)

// DayKey 返回 t 在 loc 时区下的日期键。loc 为空时按 UTC 处理。
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(KeyLayout)
}

// ParseDayKey 将日期键解析为 UTC 零点，用于纯日期运算。
func ParseDayKey(key string) (time.Time, error) {
	trimmed := strings.TrimSpace(key)
	if len(trimmed) != len(KeyLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDayKey, key)
	}
	d, err := time.Parse(KeyLayout, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDayKey, key)
	}
	return d, nil
}

// ValidDayKey 判断 key 是否为合法日期键
func ValidDayKey(key string) bool {
	_, err := ParseDayKey(key)
	return err == nil
}

// KeyOf 格式化一个已归一化的日期（不做时区转换）。
func KeyOf(d time.Time) string {
	return d.Format(KeyLayout)
}

// AddDays 在日期键上偏移 n 天；key 非法时返回空字符串。
func AddDays(key string, n int) string {
	d, err := ParseDayKey(key)
	if err != nil {
		return ""
	}
	return KeyOf(d.AddDate(0, 0, n))
}

// DaysBetween 返回 to - from 的天数差，可为负。
func DaysBetween(from, to string) (int, error) {
	start, err := ParseDayKey(from)
	if err != nil {
		return 0, err
	}
	end, err := ParseDayKey(to)
	if err != nil {
		return 0, err
	}
	return int(end.Sub(start).Hours() / 24), nil
}

// EnumerateDays 返回 [from, to] 闭区间内按升序排列的日期键。
func EnumerateDays(from, to string) ([]string, error) {
	start, err := ParseDayKey(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDayKey(to)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from, to)
	}

	days := make([]string, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, KeyOf(d))
	}
	return days, nil
}

// WeekStart 返回 t 所在 ISO 周的周一零点（保持 t 的时区）。
func WeekStart(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekEnd 返回 t 所在 ISO 周的周日零点
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 6)
}

// MonthStart 返回当月第一天零点
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthEnd 返回当月最后一天零点
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// DaysInMonth 返回 t 所在月份的天数
func DaysInMonth(t time.Time) int {
	return MonthEnd(t).Day()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Zone 绑定全局唯一的时区口径和时钟。
// 打卡日期、每日上限、连胜统计都必须通过同一个 Zone 计算"今天"。
type Zone struct {
	loc   *time.Location
	clock Clock
}

// NewZone 构造 Zone，loc/clock 为空时分别回退到 UTC 与系统时钟。
func NewZone(loc *time.Location, clock Clock) Zone {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return Zone{loc: loc, clock: clock}
}

// LoadZone 根据 IANA 时区名构造 Zone
func LoadZone(name string, clock Clock) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewZone(time.UTC, clock), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewZone(loc, clock), nil
}

func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// Now 返回 Zone 时区下的当前时间
func (z Zone) Now() time.Time {
	clock := z.clock
	if clock == nil {
		clock = SystemClock{}
	}
	return clock.Now().In(z.Location())
}

// Today 返回今天的日期键
func (z Zone) Today() string {
	return DayKey(z.Now(), z.Location())
}

// Key 返回 t 在 Zone 下的日期键
func (z Zone) Key(t time.Time) string {
	return DayKey(t, z.Location())
}

// Bounds 返回日期键对应的 [start, end) 时间区间。
func (z Zone) Bounds(key string) (time.Time, time.Time, error) {
	d, err := ParseDayKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, z.Location())
	return start, start.AddDate(0, 0, 1), nil
}

// Range 描述一个闭区间的日期范围
type Range struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Days 返回区间包含的天数
func (r Range) Days() int {
	n, err := DaysBetween(r.From, r.To)
	if err != nil || n < 0 {
		return 0
	}
	return n + 1
}

// ResolveRange 解析 from/to 查询参数。
// to 为空时取今天，from 为空时回退 defaultDays 天；maxDays>0 时从终点向前截断。
func (z Zone) ResolveRange(from, to string, defaultDays, maxDays int) (Range, error) {
	end := strings.TrimSpace(to)
	if end == "" {
		end = z.Today()
	} else if !ValidDayKey(end) {
		return Range{}, fmt.Errorf("%w: to=%q", ErrInvalidDayKey, to)
	}

	start := strings.TrimSpace(from)
	if start == "" {
		if defaultDays < 1 {
			defaultDays = 1
		}
		start = AddDays(end, -(defaultDays - 1))
	} else if !ValidDayKey(start) {
		return Range{}, fmt.Errorf("%w: from=%q", ErrInvalidDayKey, from)
	}

	if start > end {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}

	r := Range{From: start, To: end}
	if maxDays > 0 && r.Days() > maxDays {
		r.From = AddDays(end, -(maxDays - 1))
	}
	return r, nil
}
