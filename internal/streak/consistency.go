package streak

import (
	"math"

	"github.com/forgeledger/internal/calendar"
)

const (
	weightLast7  = 0.45
	weightLast30 = 0.35
	weightStreak = 0.20
)

// Report 汇总连胜、一致性评分与动量
type Report struct {
	Summary
	Last7        int    `json:"last7"`
	Prev7        int    `json:"prev7"`
	Last30       int    `json:"last30"`
	StreakFactor int    `json:"streak_factor"`
	Score        int    `json:"score"`
	Grade        string `json:"grade"`
	Momentum     int    `json:"momentum"`
}

// WindowPercent 返回以 end 结尾、长度为 days 的窗口内成功天数占已追踪天数的百分比（四舍五入）。
// trackedSince 之前的日子不算追踪，trackedSince 为空时不做限制。
func WindowPercent(h History, trackedSince, end string, days int) int {
	done, tracked := windowCounts(h, trackedSince, end, days)
	if tracked == 0 {
		return 0
	}
	return int(math.Round(float64(done) * 100 / float64(tracked)))
}

func windowCounts(h History, trackedSince, end string, days int) (done, tracked int) {
	if days <= 0 || !calendar.ValidDayKey(end) {
		return 0, 0
	}
	start := calendar.AddDays(end, -(days - 1))
	if trackedSince != "" && trackedSince > start {
		start = trackedSince
	}
	if start > end {
		return 0, 0
	}
	keys, err := calendar.EnumerateDays(start, end)
	if err != nil {
		return 0, 0
	}
	for _, key := range keys {
		if h.Done(key) {
			done++
		}
	}
	return done, len(keys)
}

// Score 按 0.45/0.35/0.20 加权 last7、last30 与连胜强度，结果截断到 0..100。
func Score(last7, last30, streakFactor int) int {
	raw := math.Round(float64(last7)*weightLast7 + float64(last30)*weightLast30 + float64(streakFactor)*weightStreak)
	return max(0, min(100, int(raw)))
}

// StreakFactor 当前连胜占最佳连胜的百分比
func StreakFactor(current, best int) int {
	if best <= 0 {
		return 0
	}
	return int(math.Round(float64(current) * 100 / float64(best)))
}

// Grade 将评分映射为 S/A/B/C
func Grade(score int) string {
	switch {
	case score >= 90:
		return "S"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	default:
		return "C"
	}
}

// Evaluate 计算单个习惯截至 today 的完整报告。
// trackedSince 通常为习惯创建日与最早记录中较早的一天。
func Evaluate(h History, goal Goal, today, trackedSince string) Report {
	if trackedSince == "" || (h.Start() != "" && h.Start() < trackedSince) {
		trackedSince = h.Start()
	}

	report := Report{Summary: Summarize(h, goal, today)}
	if trackedSince == "" {
		report.Grade = Grade(0)
		return report
	}

	report.Last7 = WindowPercent(h, trackedSince, today, 7)
	report.Last30 = WindowPercent(h, trackedSince, today, 30)
	report.Prev7 = WindowPercent(h, trackedSince, calendar.AddDays(today, -7), 7)
	report.StreakFactor = StreakFactor(report.CurrentStreak, report.BestStreak)
	report.Score = Score(report.Last7, report.Last30, report.StreakFactor)
	report.Grade = Grade(report.Score)
	report.Momentum = report.Last7 - report.Prev7
	return report
}
