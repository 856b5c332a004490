package handler

import (
	"net/http"
	"time"

	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/service"
	"github.com/gin-gonic/gin"
)

type focusStartPayload struct {
	DurationMinutes int    `json:"duration_minutes"`
	Kind            string `json:"kind"`
	TodoID          *uint  `json:"todo_id"`
}

type focusCompletePayload struct {
	Notes   *string    `json:"notes"`
	EndedAt *time.Time `json:"ended_at"`
}

// StartFocus 开始一次专注
func (a *API) StartFocus(c *gin.Context) {
	var payload focusStartPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	session, err := a.ledger.StartFocus(currentUserID(c), service.FocusStartInput{
		DurationMinutes: payload.DurationMinutes,
		Kind:            payload.Kind,
		TodoID:          payload.TodoID,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": focusSessionToPayload(*session)})
}

// CompleteFocus 完成专注并发放奖励
func (a *API) CompleteFocus(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}
	var payload focusCompletePayload
	if !bindOptionalJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	result, err := a.ledger.CompleteFocus(currentUserID(c), id, service.FocusCompleteInput{
		Notes:   payload.Notes,
		EndedAt: payload.EndedAt,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": focusSessionToPayload(result.Session),
		"account": result.Account,
	})
}

// CancelFocus 取消专注
func (a *API) CancelFocus(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}

	result, err := a.ledger.CancelFocus(currentUserID(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": focusSessionToPayload(result.Session),
		"account": result.Account,
	})
}

// GetFocusToday 返回今日专注概况
func (a *API) GetFocusToday(c *gin.Context) {
	today, err := a.focus.Today(currentUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":             today.Day,
		"sessions":        focusSessionsToPayload(today.Sessions),
		"total_minutes":   today.TotalMinutes,
		"completed_count": today.CompletedCount,
		"flow_chain_days": today.FlowChainDays,
		"caps":            today.Caps,
	})
}

// GetFocusRange 返回区间内的专注记录
func (a *API) GetFocusRange(c *gin.Context) {
	sessions, r, err := a.focus.Range(currentUserID(c), c.Query("from"), c.Query("to"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"range": r, "sessions": focusSessionsToPayload(sessions)})
}

func focusSessionsToPayload(sessions []db.FocusSession) []gin.H {
	items := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, focusSessionToPayload(session))
	}
	return items
}

func focusSessionToPayload(session db.FocusSession) gin.H {
	status := "active"
	switch {
	case session.Completed:
		status = "completed"
	case session.Cancelled:
		status = "cancelled"
	}

	item := gin.H{
		"id":               session.ID,
		"duration_minutes": session.DurationMinutes,
		"kind":             session.Kind,
		"status":           status,
		"started_at":       session.StartedAt.Format(time.RFC3339),
		"started_on":       session.StartedOn,
		"ended_at":         nil,
		"todo_id":          session.TodoID,
		"notes":            session.Notes,
		"xp_awarded":       session.XPAwarded,
		"coins_awarded":    session.CoinsAwarded,
	}
	if session.EndedAt != nil {
		item["ended_at"] = session.EndedAt.Format(time.RFC3339)
	}
	return item
}
