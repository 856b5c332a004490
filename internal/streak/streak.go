package streak

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forgeledger/internal/calendar"
)

// Cadence 是连胜目标的统计周期
type Cadence string

const (
	Daily   Cadence = "DAILY"
	Weekly  Cadence = "WEEKLY"
	Monthly Cadence = "MONTHLY"
)

// ParseCadence 解析周期，空字符串视为 DAILY
func ParseCadence(raw string) (Cadence, bool) {
	switch Cadence(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", Daily:
		return Daily, true
	case Weekly:
		return Weekly, true
	case Monthly:
		return Monthly, true
	default:
		return "", false
	}
}

// Goal 描述连胜目标：每个周期至少完成 RequiredCount 天
type Goal struct {
	Cadence       Cadence `json:"cadence"`
	RequiredCount int     `json:"required_count"`
}

// Normalize 补全默认值：未知周期按 DAILY，次数至少 1，周目标最多 7。
// 月目标在每个月按当月天数再截断一次。
func (g Goal) Normalize() Goal {
	cadence, ok := ParseCadence(string(g.Cadence))
	if !ok {
		cadence = Daily
	}
	count := g.RequiredCount
	if count < 1 {
		count = 1
	}
	switch cadence {
	case Daily:
		count = 1
	case Weekly:
		count = min(count, 7)
	case Monthly:
		count = min(count, 31)
	}
	return Goal{Cadence: cadence, RequiredCount: count}
}

// History 是稀疏的日期键 -> 是否成功。缺失的键视为未完成。
type History map[string]bool

// Done 判断某天是否成功
func (h History) Done(key string) bool {
	return h[key]
}

// Start 返回最早的日期键（包含失败记录），为空时返回 ""
func (h History) Start() string {
	start := ""
	for key := range h {
		if !calendar.ValidDayKey(key) {
			continue
		}
		if start == "" || key < start {
			start = key
		}
	}
	return start
}

// Until 返回只包含 to 及之前日期的副本
func (h History) Until(to string) History {
	out := make(History, len(h))
	for key, done := range h {
		if key <= to {
			out[key] = done
		}
	}
	return out
}

func (h History) countDone(from, to time.Time) int {
	done := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if h[calendar.KeyOf(d)] {
			done++
		}
	}
	return done
}

// Summary 是某个习惯在"今天"视角下的连胜概况
type Summary struct {
	Cadence       Cadence `json:"cadence"`
	Required      int     `json:"required"`
	IntervalDone  int     `json:"interval_done"`
	IntervalStart string  `json:"interval_start"`
	IntervalEnd   string  `json:"interval_end"`
	NextReset     string  `json:"next_reset"`
	CurrentStreak int     `json:"current_streak"`
	BestStreak    int     `json:"best_streak"`
}

// Summarize 计算当前周期进度与当前/最佳连胜。today 非法时返回零值。
func Summarize(h History, goal Goal, today string) Summary {
	goal = goal.Normalize()
	todayDate, err := calendar.ParseDayKey(today)
	if err != nil {
		return Summary{Cadence: goal.Cadence}
	}

	start, end := intervalBounds(goal.Cadence, todayDate)
	summary := Summary{
		Cadence:       goal.Cadence,
		Required:      requiredFor(goal, start),
		IntervalDone:  h.countDone(start, end),
		IntervalStart: calendar.KeyOf(start),
		IntervalEnd:   calendar.KeyOf(end),
	}
	if goal.Cadence == Daily {
		summary.NextReset = calendar.KeyOf(todayDate.AddDate(0, 0, 1))
	} else {
		summary.NextReset = summary.IntervalEnd
	}

	historyStart := h.Start()
	if historyStart == "" {
		return summary
	}
	firstDay, _ := calendar.ParseDayKey(historyStart)

	switch goal.Cadence {
	case Weekly:
		summary.CurrentStreak, summary.BestStreak = bucketStreaks(h, goal, firstDay, todayDate,
			calendar.WeekStart, func(t time.Time) time.Time { return t.AddDate(0, 0, 7) })
	case Monthly:
		summary.CurrentStreak, summary.BestStreak = bucketStreaks(h, goal, firstDay, todayDate,
			calendar.MonthStart, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) })
	default:
		summary.CurrentStreak = currentDailyStreak(h, todayDate)
		summary.BestStreak = bestDailyStreak(h, today)
	}
	return summary
}

func intervalBounds(cadence Cadence, today time.Time) (time.Time, time.Time) {
	switch cadence {
	case Weekly:
		return calendar.WeekStart(today), calendar.WeekEnd(today)
	case Monthly:
		return calendar.MonthStart(today), calendar.MonthEnd(today)
	default:
		return today, today
	}
}

func requiredFor(goal Goal, bucketStart time.Time) int {
	switch goal.Cadence {
	case Weekly:
		return max(1, min(7, goal.RequiredCount))
	case Monthly:
		return max(1, min(calendar.DaysInMonth(bucketStart), goal.RequiredCount))
	default:
		return 1
	}
}

// 今天还没打卡时从昨天开始数，避免在当天截止前把连胜清零。
func currentDailyStreak(h History, today time.Time) int {
	cursor := today
	if !h.Done(calendar.KeyOf(cursor)) {
		cursor = cursor.AddDate(0, 0, -1)
	}
	streak := 0
	for h.Done(calendar.KeyOf(cursor)) {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

func bestDailyStreak(h History, today string) int {
	keys := make([]string, 0, len(h))
	for key, done := range h {
		if done && key <= today && calendar.ValidDayKey(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	best, run := 0, 0
	prev := ""
	for _, key := range keys {
		if prev != "" && calendar.AddDays(prev, 1) == key {
			run++
		} else {
			run = 1
		}
		best = max(best, run)
		prev = key
	}
	return best
}

// bucketStreaks 处理周/月周期。当前周期尚未结束，不参与任何连胜计算。
func bucketStreaks(h History, goal Goal, firstDay, today time.Time, bucketStart func(time.Time) time.Time, next func(time.Time) time.Time) (current, best int) {
	openBucket := bucketStart(today)
	firstBucket := bucketStart(firstDay)

	counts := func(start time.Time) bool {
		end := next(start).AddDate(0, 0, -1)
		return h.countDone(start, end) >= requiredFor(goal, start)
	}

	var closed []time.Time
	for b := firstBucket; b.Before(openBucket); b = next(b) {
		closed = append(closed, b)
	}

	for i := len(closed) - 1; i >= 0; i-- {
		if !counts(closed[i]) {
			break
		}
		current++
	}

	run := 0
	for _, b := range closed {
		if counts(b) {
			run++
			best = max(best, run)
		} else {
			run = 0
		}
	}
	return current, best
}

// Label 返回连胜单位的缩写，供展示使用
func (c Cadence) Label() string {
	switch c {
	case Weekly:
		return "wk"
	case Monthly:
		return "mo"
	default:
		return "d"
	}
}

func (g Goal) String() string {
	g = g.Normalize()
	return string(g.Cadence) + "x" + strconv.Itoa(g.RequiredCount)
}
