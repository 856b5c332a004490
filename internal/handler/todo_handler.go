package handler

import (
	"net/http"

	"github.com/forgeledger/internal/service"
	"github.com/gin-gonic/gin"
)

type todoPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Color       string `json:"color"`
	IsDaily     bool   `json:"is_daily"`
	DueDate     string `json:"due_date"`
}

type todoPatchPayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Color       *string `json:"color"`
	IsDaily     *bool   `json:"is_daily"`
	DueDate     *string `json:"due_date"`
}

// ListTodos 返回当前用户的待办
func (a *API) ListTodos(c *gin.Context) {
	todos, err := a.todos.List(currentUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

// CreateTodo 创建待办
func (a *API) CreateTodo(c *gin.Context) {
	var payload todoPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	todo, err := a.todos.Create(currentUserID(c), service.TodoInput{
		Title:       payload.Title,
		Description: payload.Description,
		Priority:    payload.Priority,
		Color:       payload.Color,
		IsDaily:     payload.IsDaily,
		DueDate:     payload.DueDate,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"todo": todo})
}

// UpdateTodo 部分更新待办，不影响完成状态
func (a *API) UpdateTodo(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}
	var payload todoPatchPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	todo, err := a.todos.Update(currentUserID(c), id, service.TodoPatch{
		Title:       payload.Title,
		Description: payload.Description,
		Priority:    payload.Priority,
		Color:       payload.Color,
		IsDaily:     payload.IsDaily,
		DueDate:     payload.DueDate,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"todo": todo})
}

// DeleteTodo 删除待办，已完成的冲回奖励
func (a *API) DeleteTodo(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}

	account, err := a.todos.Delete(currentUserID(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "account": account})
}

// CompleteTodo 切换待办完成状态
func (a *API) CompleteTodo(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, message(c, msgInvalidID))
		return
	}

	result, err := a.ledger.CompleteTodo(currentUserID(c), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"todo":    a.todos.View(result.Todo),
		"account": result.Account,
	})
}
