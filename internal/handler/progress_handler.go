package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetProgress 返回成长账户与今日两个通道的额度使用情况
func (a *API) GetProgress(c *gin.Context) {
	progress, err := a.ledger.Progress(currentUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
