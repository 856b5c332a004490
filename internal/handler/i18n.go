package handler

import (
	"github.com/forgeledger/internal/locale"
	"github.com/gin-gonic/gin"
)

const languageContextKey = "__request_language"

type messageKey string

const (
	msgNotFound           messageKey = "not_found"
	msgAlreadyTerminal    messageKey = "already_terminal"
	msgInvalidTransition  messageKey = "invalid_transition"
	msgInvalidRange       messageKey = "invalid_range"
	msgValidation         messageKey = "validation"
	msgUsernameTaken      messageKey = "username_taken"
	msgInvalidCredentials messageKey = "invalid_credentials"
	msgInternal           messageKey = "internal"
	msgInvalidBody        messageKey = "invalid_body"
	msgInvalidID          messageKey = "invalid_id"
	msgUnauthorized       messageKey = "unauthorized"
	msgTooManyAttempts    messageKey = "too_many_attempts"
	msgSessionSave        messageKey = "session_save"
)

var messages = map[messageKey]locale.Text{
	msgNotFound:           {Chinese: "记录不存在", English: "Record not found"},
	msgAlreadyTerminal:    {Chinese: "记录已结束", English: "Record is already finished"},
	msgInvalidTransition:  {Chinese: "当前状态不允许此操作", English: "Operation not allowed in the current state"},
	msgInvalidRange:       {Chinese: "日期区间无效", English: "Invalid date range"},
	msgValidation:         {Chinese: "参数不合法", English: "Invalid parameters"},
	msgUsernameTaken:      {Chinese: "用户名已被占用", English: "Username already taken"},
	msgInvalidCredentials: {Chinese: "用户名或密码错误", English: "Invalid username or password"},
	msgInternal:           {Chinese: "操作失败", English: "Operation failed"},
	msgInvalidBody:        {Chinese: "请求格式错误", English: "Malformed request body"},
	msgInvalidID:          {Chinese: "无效的ID", English: "Invalid ID"},
	msgUnauthorized:       {Chinese: "请先登录", English: "Please log in first"},
	msgTooManyAttempts:    {Chinese: "尝试次数过多，请稍后再试", English: "Too many attempts, try again later"},
	msgSessionSave:        {Chinese: "会话保存失败", English: "Failed to save session"},
}

func requestLanguage(c *gin.Context) string {
	if cached := c.GetString(languageContextKey); cached != "" {
		return cached
	}
	language := locale.Resolve(c.Query("lang"), c.GetHeader("Accept-Language"))
	c.Set(languageContextKey, language)
	return language
}

func message(c *gin.Context, key messageKey) string {
	text, ok := messages[key]
	if !ok {
		return string(key)
	}
	return text.In(requestLanguage(c))
}
