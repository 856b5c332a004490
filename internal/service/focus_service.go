package service

import (
	"fmt"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"gorm.io/gorm"
)

const (
	flowChainLookbackDays = 365
	defaultFocusRangeDays = 7
	maxFocusRangeDays     = 366
)

// FocusService 提供专注记录的只读视图，奖励变更由 LedgerService 负责
type FocusService struct {
	db     *gorm.DB
	ledger *LedgerService
}

// FocusToday 汇总今天的专注情况
type FocusToday struct {
	Day            string            `json:"day"`
	Sessions       []db.FocusSession `json:"sessions"`
	TotalMinutes   int               `json:"total_minutes"`
	CompletedCount int               `json:"completed_count"`
	FlowChainDays  int               `json:"flow_chain_days"`
	Caps           ChannelUsage      `json:"caps"`
}

// NewFocusService 构造 FocusService
func NewFocusService(gdb *gorm.DB, ledgerService *LedgerService) *FocusService {
	return &FocusService{db: gdb, ledger: ledgerService}
}

// Today 返回今天开始的专注、已完成时长、连续专注天数和专注通道额度
func (s *FocusService) Today(userID uint) (*FocusToday, error) {
	today := s.ledger.Zone().Today()

	var sessions []db.FocusSession
	if err := s.db.Where("user_id = ? AND started_on = ?", userID, today).
		Order("started_at ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list focus sessions: %w", err)
	}

	view := &FocusToday{Day: today, Sessions: sessions}
	for _, session := range sessions {
		if session.Completed {
			view.TotalMinutes += session.DurationMinutes
			view.CompletedCount++
		}
	}

	chain, err := s.flowChainDays(userID, today)
	if err != nil {
		return nil, err
	}
	view.FlowChainDays = chain

	usage, err := s.ledger.channelUsage(s.db, userID, ledger.ChannelFocus, today)
	if err != nil {
		return nil, err
	}
	view.Caps = usage
	return view, nil
}

// Range 返回区间内开始的专注记录
func (s *FocusService) Range(userID uint, from, to string) ([]db.FocusSession, calendar.Range, error) {
	r, err := resolveRange(s.ledger.Zone(), from, to, defaultFocusRangeDays, maxFocusRangeDays)
	if err != nil {
		return nil, calendar.Range{}, err
	}

	var sessions []db.FocusSession
	if err := s.db.Where("user_id = ? AND started_on BETWEEN ? AND ?", userID, r.From, r.To).
		Order("started_at ASC").
		Find(&sessions).Error; err != nil {
		return nil, r, fmt.Errorf("list focus sessions: %w", err)
	}
	return sessions, r, nil
}

// flowChainDays 从今天往前数，每天至少完成一次专注的连续天数。今天没有完成时为 0。
func (s *FocusService) flowChainDays(userID uint, today string) (int, error) {
	since := calendar.AddDays(today, -flowChainLookbackDays)

	var days []string
	if err := s.db.Model(&db.FocusSession{}).
		Distinct("started_on").
		Where("user_id = ? AND completed = ? AND started_on BETWEEN ? AND ?", userID, true, since, today).
		Pluck("started_on", &days).Error; err != nil {
		return 0, fmt.Errorf("list focus days: %w", err)
	}

	done := make(map[string]bool, len(days))
	for _, day := range days {
		done[day] = true
	}

	chain := 0
	for cursor := today; done[cursor]; cursor = calendar.AddDays(cursor, -1) {
		chain++
	}
	return chain, nil
}
