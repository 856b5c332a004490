package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/service"
	"github.com/forgeledger/internal/streak"
	"github.com/gin-gonic/gin"
)

type habitPayload struct {
	Title      string       `json:"title"`
	Kind       string       `json:"kind"`
	Difficulty int          `json:"difficulty"`
	Color      string       `json:"color"`
	Schedule   *streak.Goal `json:"schedule"`
}

// schedule 为 null 表示清除目标，缺省表示不修改
type habitPatchPayload struct {
	Title      *string         `json:"title"`
	Kind       *string         `json:"kind"`
	Difficulty *int            `json:"difficulty"`
	Color      *string         `json:"color"`
	Schedule   json.RawMessage `json:"schedule"`
}

type habitLogPayload struct {
	Date    string `json:"date"`
	Outcome string `json:"outcome"`
}

// ListHabits 返回当前用户的习惯列表
func (a *API) ListHabits(c *gin.Context) {
	habits, err := a.habits.List(currentUserID(c), service.HabitFilter{Search: c.Query("search")})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}
	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	habit, err := a.habits.Create(currentUserID(c), service.HabitInput{
		Title:      payload.Title,
		Kind:       payload.Kind,
		Difficulty: payload.Difficulty,
		Color:      payload.Color,
		Schedule:   payload.Schedule,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 部分更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}
	var payload habitPatchPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	patch := service.HabitPatch{
		Title:      payload.Title,
		Kind:       payload.Kind,
		Difficulty: payload.Difficulty,
		Color:      payload.Color,
	}
	if raw := bytes.TrimSpace(payload.Schedule); len(raw) > 0 {
		if bytes.Equal(raw, []byte("null")) {
			patch.ClearSchedule = true
		} else {
			var goal streak.Goal
			if err := json.Unmarshal(raw, &goal); err != nil {
				respondError(c, http.StatusBadRequest, message(c, msgInvalidBody))
				return
			}
			patch.Schedule = &goal
		}
	}

	habit, err := a.habits.Update(currentUserID(c), id, patch)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 删除习惯及其打卡，并冲回已发放的奖励
func (a *API) DeleteHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}

	account, err := a.habits.Delete(currentUserID(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "account": account})
}

// LogHabit 记录或切换某天的打卡，date 缺省为今天
func (a *API) LogHabit(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}
	var payload habitLogPayload
	if !bindOptionalJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}
	if payload.Date == "" {
		payload.Date = a.ledger.Zone().Today()
	}

	result, err := a.ledger.ToggleHabitDay(currentUserID(c), id, payload.Date, payload.Outcome)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"log":     habitLogToPayload(result.Log),
		"account": result.Account,
	})
}

// ListHabitLogs 返回习惯在区间内的打卡记录
func (a *API) ListHabitLogs(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}

	logs, r, err := a.habits.ListLogs(currentUserID(c), id, c.Query("from"), c.Query("to"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		items = append(items, habitLogToPayload(log))
	}
	c.JSON(http.StatusOK, gin.H{"range": r, "logs": items})
}

// GetHabitStats 返回单个习惯的连胜与一致性统计
func (a *API) GetHabitStats(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}

	stats, err := a.stats.GetHabitStats(currentUserID(c), id, c.Query("from"), c.Query("to"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetBulkHabitStats 返回全部习惯在区间内的打卡
func (a *API) GetBulkHabitStats(c *gin.Context) {
	bulk, err := a.stats.GetBulkLogs(currentUserID(c), c.Query("from"), c.Query("to"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bulk)
}

// GetDashboard 返回计分板
func (a *API) GetDashboard(c *gin.Context) {
	dashboard, err := a.stats.GetDashboardStats(currentUserID(c), service.DashboardQuery{
		From:   c.Query("from"),
		To:     c.Query("to"),
		Kind:   c.Query("kind"),
		Sort:   c.Query("sort"),
		Search: c.Query("search"),
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func habitToPayload(habit db.Habit) gin.H {
	kind, _ := ledger.ParseHabitKind(habit.Kind)
	item := gin.H{
		"id":          habit.ID,
		"title":       habit.Title,
		"kind":        kind,
		"difficulty":  habit.Difficulty,
		"color":       habit.Color,
		"goal":        habit.Goal(),
		"streak_unit": habit.Goal().Cadence.Label(),
		"reward":      ledger.HabitReward(kind, habit.Difficulty, ledger.OutcomeSuccess),
		"created_at":  habit.CreatedAt.Format(time.RFC3339),
	}
	if habit.HasSchedule() {
		item["schedule"] = habit.Goal()
	} else {
		item["schedule"] = nil
	}
	return item
}

func habitLogToPayload(log db.HabitLog) gin.H {
	return gin.H{
		"id":            log.ID,
		"habit_id":      log.HabitID,
		"date":          log.LogDate,
		"outcome":       log.Outcome,
		"xp_awarded":    log.XPAwarded,
		"coins_awarded": log.CoinsAwarded,
	}
}
