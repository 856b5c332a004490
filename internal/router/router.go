package router

import (
	"net/http"

	"github.com/forgeledger/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "forgeledger_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string) *gin.Engine {
	r := gin.Default()
	r.Use(handler.RequestID())

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/register", api.Register)
		authGroup.POST("/login", api.Login)
		authGroup.POST("/logout", api.Logout)

		// 需要登录的路由
		protected := apiGroup.Group("")
		protected.Use(handler.AuthRequired())
		{
			protected.GET("/me", api.Me)
			protected.GET("/progress", api.GetProgress)
			protected.GET("/dashboard", api.GetDashboard)

			protected.GET("/habits", api.ListHabits)
			protected.POST("/habits", api.CreateHabit)
			protected.GET("/habits/stats", api.GetBulkHabitStats)
			protected.PATCH("/habits/:id", api.UpdateHabit)
			protected.DELETE("/habits/:id", api.DeleteHabit)
			protected.POST("/habits/:id/log", api.LogHabit)
			protected.GET("/habits/:id/logs", api.ListHabitLogs)
			protected.GET("/habits/:id/stats", api.GetHabitStats)

			protected.GET("/todos", api.ListTodos)
			protected.POST("/todos", api.CreateTodo)
			protected.PATCH("/todos/:id", api.UpdateTodo)
			protected.DELETE("/todos/:id", api.DeleteTodo)
			protected.POST("/todos/:id/complete", api.CompleteTodo)

			protected.POST("/focus/start", api.StartFocus)
			protected.POST("/focus/:id/complete", api.CompleteFocus)
			protected.POST("/focus/:id/cancel", api.CancelFocus)
			protected.GET("/focus/today", api.GetFocusToday)
			protected.GET("/focus/range", api.GetFocusRange)
		}
	}

	return r
}
