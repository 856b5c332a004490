package handler

import (
	"net/http"

	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/logger"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionUserIDKey = "user_id"
	userIDContextKey = "__user_id"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register 创建账号并直接登录
func (a *API) Register(c *gin.Context) {
	if !a.allowAttempt(c) {
		return
	}
	var payload credentialsPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	user, err := a.auth.Register(payload.Username, payload.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !a.startSession(c, user) {
		return
	}

	logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	c.JSON(http.StatusCreated, gin.H{"user": userToPayload(*user)})
}

// Login 校验用户名与密码并写入会话
func (a *API) Login(c *gin.Context) {
	if !a.allowAttempt(c) {
		return
	}
	var payload credentialsPayload
	if !bindJSON(c, &payload, message(c, msgInvalidBody)) {
		return
	}

	user, err := a.auth.Authenticate(payload.Username, payload.Password)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if !a.startSession(c, user) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userToPayload(*user)})
}

// Logout 清空会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, message(c, msgSessionSave))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me 返回当前登录用户
func (a *API) Me(c *gin.Context) {
	user, err := a.auth.Get(currentUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToPayload(*user)})
}

// AuthRequired 要求会话中存在 user_id，否则返回 401
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(sessionUserIDKey).(uint)
		if !ok || userID == 0 {
			respondError(c, http.StatusUnauthorized, message(c, msgUnauthorized))
			c.Abort()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) uint {
	return c.GetUint(userIDContextKey)
}

func (a *API) allowAttempt(c *gin.Context) bool {
	if a.limiter.Allow(c.ClientIP()) {
		return true
	}
	logger.Warn("auth attempts throttled", "ip", c.ClientIP())
	respondError(c, http.StatusTooManyRequests, message(c, msgTooManyAttempts))
	return false
}

func (a *API) startSession(c *gin.Context, user *db.User) bool {
	session := sessions.Default(c)
	session.Set(sessionUserIDKey, user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		logger.Error("save session", "user_id", user.ID, "err", err)
		respondError(c, http.StatusInternalServerError, message(c, msgSessionSave))
		return false
	}
	return true
}

func userToPayload(user db.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	}
}
