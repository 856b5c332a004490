package service

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/streak"
	"gorm.io/gorm"
)

const (
	defaultStatsDays     = 30
	maxStatsDays         = 366
	defaultBulkStatsDays = 30
	maxBulkStatsDays     = 90
)

// 计分板排序方式
const (
	SortByScore    = "score"
	SortByName     = "name"
	SortByMomentum = "momentum"
	SortByStreak   = "streak"
)

// StatsService 基于打卡历史计算连胜、一致性与动量，只读
type StatsService struct {
	db     *gorm.DB
	ledger *LedgerService
	cache  *StatsCache
}

// HabitBrief 是统计结果中引用的习惯概要
type HabitBrief struct {
	ID    uint             `json:"id"`
	Title string           `json:"title"`
	Kind  ledger.HabitKind `json:"kind"`
	Color string           `json:"color"`
	Goal  streak.Goal      `json:"goal"`
}

// HabitStats 是单个习惯的统计摘要
type HabitStats struct {
	Habit          HabitBrief     `json:"habit"`
	Range          calendar.Range `json:"range"`
	Report         streak.Report  `json:"report"`
	Successes      int            `json:"successes"`
	Failures       int            `json:"failures"`
	CompletionRate int            `json:"completion_rate"`
}

// DashboardQuery 描述计分板的筛选条件
type DashboardQuery struct {
	From   string
	To     string
	Kind   string
	Sort   string
	Search string
}

// ScoreboardRow 是计分板中的一行
type ScoreboardRow struct {
	Habit     HabitBrief `json:"habit"`
	Score     int        `json:"score"`
	Grade     string     `json:"grade"`
	Last7     int        `json:"last7"`
	Last30    int        `json:"last30"`
	Streak    int        `json:"streak"`
	Momentum  int        `json:"momentum"`
	DoneToday bool       `json:"done_today"`
	AtRisk    bool       `json:"at_risk"`
}

// DoneCount 是今日完成数/总数
type DoneCount struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// DashboardSummary 是计分板的整体指标
type DashboardSummary struct {
	TeamScore    int       `json:"team_score"`
	TeamLast7    int       `json:"team_last7"`
	TeamLast30   int       `json:"team_last30"`
	TeamMomentum int       `json:"team_momentum"`
	Today        DoneCount `json:"today"`
	Build        DoneCount `json:"build"`
	Break        DoneCount `json:"break"`
}

// Dashboard 是计分板与汇总
type Dashboard struct {
	Range   calendar.Range   `json:"range"`
	Rows    []ScoreboardRow  `json:"rows"`
	Summary DashboardSummary `json:"summary"`
}

// LogEntry 是批量统计中的单条打卡
type LogEntry struct {
	Date    string         `json:"date"`
	Outcome ledger.Outcome `json:"outcome"`
	XP      int            `json:"xp"`
	Coins   int            `json:"coins"`
}

// BulkLogs 是所有习惯在区间内的打卡记录
type BulkLogs struct {
	Range       calendar.Range      `json:"range"`
	Habits      []HabitBrief        `json:"habits"`
	LogsByHabit map[uint][]LogEntry `json:"logs_by_habit"`
}

// NewStatsService 构造 StatsService，并在账本变更时让缓存失效
func NewStatsService(gdb *gorm.DB, ledgerService *LedgerService, cache *StatsCache) *StatsService {
	if cache != nil {
		ledgerService.OnChange(cache.InvalidateUser)
	}
	return &StatsService{db: gdb, ledger: ledgerService, cache: cache}
}

// GetHabitStats 计算单个习惯在区间终点视角下的连胜与一致性，并统计区间内的成功/失败天数。
func (s *StatsService) GetHabitStats(userID, habitID uint, from, to string) (*HabitStats, error) {
	zone := s.ledger.Zone()
	r, err := resolveRange(zone, from, to, defaultStatsDays, maxStatsDays)
	if err != nil {
		return nil, err
	}

	key := statsKey(userID, "habit", habitID, r.From, r.To, zone.Today())
	return cached(s.cache, userID, key, func() (*HabitStats, error) {
		habit, err := findOwned[db.Habit](s.db, userID, habitID)
		if err != nil {
			return nil, err
		}

		var logs []db.HabitLog
		if err := s.db.Where("user_id = ? AND habit_id = ? AND log_date <= ?", userID, habitID, r.To).
			Order("log_date ASC").
			Find(&logs).Error; err != nil {
			return nil, fmt.Errorf("load habit logs: %w", err)
		}

		history := historyOf(logs)
		stats := &HabitStats{
			Habit:  briefOf(*habit),
			Range:  r,
			Report: streak.Evaluate(history, habit.Goal(), r.To, zone.Key(habit.CreatedAt)),
		}
		for _, log := range logs {
			if log.LogDate < r.From {
				continue
			}
			if ledger.Outcome(log.Outcome) == ledger.OutcomeSuccess {
				stats.Successes++
			} else {
				stats.Failures++
			}
		}
		if days := r.Days(); days > 0 {
			stats.CompletionRate = int(math.Round(float64(stats.Successes) * 100 / float64(days)))
		}
		return stats, nil
	})
}

// GetDashboardStats 为用户全部习惯生成计分板。
// 各项窗口以区间终点为准，今日完成情况始终以真实的今天为准。
func (s *StatsService) GetDashboardStats(userID uint, query DashboardQuery) (*Dashboard, error) {
	zone := s.ledger.Zone()
	r, err := resolveRange(zone, query.From, query.To, defaultStatsDays, maxStatsDays)
	if err != nil {
		return nil, err
	}

	var kindFilter ledger.HabitKind
	if raw := strings.TrimSpace(query.Kind); raw != "" && !strings.EqualFold(raw, "ALL") {
		kind, ok := ledger.ParseHabitKind(raw)
		if !ok {
			return nil, validationError("unknown habit kind %q", raw)
		}
		kindFilter = kind
	}

	sortBy := strings.ToLower(strings.TrimSpace(query.Sort))
	switch sortBy {
	case "":
		sortBy = SortByScore
	case SortByScore, SortByName, SortByMomentum, SortByStreak:
	default:
		return nil, validationError("unknown sort %q", query.Sort)
	}

	search := strings.ToLower(strings.TrimSpace(query.Search))
	today := zone.Today()
	key := statsKey(userID, "dashboard", r.From, r.To, kindFilter, sortBy, search, today)

	return cached(s.cache, userID, key, func() (*Dashboard, error) {
		habits, logsByHabit, err := s.loadHistories(userID, "", maxDayKey(r.To, today))
		if err != nil {
			return nil, err
		}

		dashboard := &Dashboard{Range: r, Rows: []ScoreboardRow{}}
		var sumScore, sumLast7, sumPrev7, sumLast30 int
		for _, habit := range habits {
			kind, _ := ledger.ParseHabitKind(habit.Kind)
			if kindFilter != "" && kind != kindFilter {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(habit.Title), search) {
				continue
			}

			history := historyOf(logsByHabit[habit.ID])
			windowed := history.Until(r.To)
			report := streak.Evaluate(windowed, habit.Goal(), r.To, zone.Key(habit.CreatedAt))
			doneToday := history.Done(today)

			row := ScoreboardRow{
				Habit:     briefOf(habit),
				Score:     report.Score,
				Grade:     report.Grade,
				Last7:     report.Last7,
				Last30:    report.Last30,
				Streak:    report.CurrentStreak,
				Momentum:  report.Momentum,
				DoneToday: doneToday,
				AtRisk:    !doneToday && report.CurrentStreak > 0,
			}
			dashboard.Rows = append(dashboard.Rows, row)

			sumScore += report.Score
			sumLast7 += report.Last7
			sumPrev7 += report.Prev7
			sumLast30 += report.Last30

			dashboard.Summary.Today.Total++
			counter := &dashboard.Summary.Build
			if kind == ledger.KindBreak {
				counter = &dashboard.Summary.Break
			}
			counter.Total++
			if doneToday {
				dashboard.Summary.Today.Done++
				counter.Done++
			}
		}

		if count := len(dashboard.Rows); count > 0 {
			dashboard.Summary.TeamScore = roundDiv(sumScore, count)
			dashboard.Summary.TeamLast7 = roundDiv(sumLast7, count)
			dashboard.Summary.TeamLast30 = roundDiv(sumLast30, count)
			dashboard.Summary.TeamMomentum = dashboard.Summary.TeamLast7 - roundDiv(sumPrev7, count)
		}

		sortScoreboard(dashboard.Rows, sortBy)
		return dashboard, nil
	})
}

// GetBulkLogs 返回全部习惯在区间内的打卡记录，区间默认最近 30 天，最长 90 天
func (s *StatsService) GetBulkLogs(userID uint, from, to string) (*BulkLogs, error) {
	zone := s.ledger.Zone()
	r, err := resolveRange(zone, from, to, defaultBulkStatsDays, maxBulkStatsDays)
	if err != nil {
		return nil, err
	}

	key := statsKey(userID, "bulk", r.From, r.To)
	return cached(s.cache, userID, key, func() (*BulkLogs, error) {
		habits, logsByHabit, err := s.loadHistories(userID, r.From, r.To)
		if err != nil {
			return nil, err
		}

		result := &BulkLogs{
			Range:       r,
			Habits:      make([]HabitBrief, 0, len(habits)),
			LogsByHabit: make(map[uint][]LogEntry, len(logsByHabit)),
		}
		for _, habit := range habits {
			result.Habits = append(result.Habits, briefOf(habit))
		}
		for habitID, logs := range logsByHabit {
			entries := make([]LogEntry, 0, len(logs))
			for _, log := range logs {
				entries = append(entries, LogEntry{
					Date:    log.LogDate,
					Outcome: ledger.Outcome(log.Outcome),
					XP:      log.XPAwarded,
					Coins:   log.CoinsAwarded,
				})
			}
			result.LogsByHabit[habitID] = entries
		}
		return result, nil
	})
}

// loadHistories 读取用户的全部习惯及其在 [from, to] 内的打卡，from 为空表示不设下限
func (s *StatsService) loadHistories(userID uint, from, to string) ([]db.Habit, map[uint][]db.HabitLog, error) {
	var habits []db.Habit
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&habits).Error; err != nil {
		return nil, nil, fmt.Errorf("list habits: %w", err)
	}
	if len(habits) == 0 {
		return habits, map[uint][]db.HabitLog{}, nil
	}

	ids := make([]uint, 0, len(habits))
	for _, habit := range habits {
		ids = append(ids, habit.ID)
	}

	query := s.db.Where("user_id = ? AND habit_id IN ? AND log_date <= ?", userID, ids, to)
	if from != "" {
		query = query.Where("log_date >= ?", from)
	}

	var logs []db.HabitLog
	if err := query.Order("habit_id ASC, log_date ASC").Find(&logs).Error; err != nil {
		return nil, nil, fmt.Errorf("load habit logs: %w", err)
	}

	byHabit := make(map[uint][]db.HabitLog, len(habits))
	for _, log := range logs {
		byHabit[log.HabitID] = append(byHabit[log.HabitID], log)
	}
	return habits, byHabit, nil
}

func historyOf(logs []db.HabitLog) streak.History {
	history := make(streak.History, len(logs))
	for _, log := range logs {
		history[log.LogDate] = ledger.Outcome(log.Outcome) == ledger.OutcomeSuccess
	}
	return history
}

func briefOf(habit db.Habit) HabitBrief {
	kind, _ := ledger.ParseHabitKind(habit.Kind)
	return HabitBrief{
		ID:    habit.ID,
		Title: habit.Title,
		Kind:  kind,
		Color: habit.Color,
		Goal:  habit.Goal(),
	}
}

func sortScoreboard(rows []ScoreboardRow, sortBy string) {
	slices.SortStableFunc(rows, func(a, b ScoreboardRow) int {
		var primary int
		switch sortBy {
		case SortByName:
			primary = cmp.Compare(strings.ToLower(a.Habit.Title), strings.ToLower(b.Habit.Title))
		case SortByMomentum:
			primary = cmp.Compare(b.Momentum, a.Momentum)
		case SortByStreak:
			primary = cmp.Compare(b.Streak, a.Streak)
		default:
			primary = cmp.Compare(b.Score, a.Score)
		}
		if primary != 0 {
			return primary
		}
		return cmp.Compare(a.Habit.ID, b.Habit.ID)
	})
}

func roundDiv(sum, count int) int {
	return int(math.Round(float64(sum) / float64(count)))
}

func maxDayKey(a, b string) string {
	if a > b {
		return a
	}
	return b
}
