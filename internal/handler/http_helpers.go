package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/forgeledger/internal/logger"
	"github.com/forgeledger/internal/service"
	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, dst interface{}, message string) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		// 分块传输的空请求体没有 Content-Length，解码时直接得到 EOF
		if errors.Is(err, io.EOF) {
			return true
		}
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// handleServiceError 将服务层错误映射为状态码与本地化提示
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(c, http.StatusNotFound, message(c, msgNotFound))
	case errors.Is(err, service.ErrAlreadyTerminal):
		respondError(c, http.StatusConflict, message(c, msgAlreadyTerminal))
	case errors.Is(err, service.ErrInvalidTransition):
		respondError(c, http.StatusConflict, message(c, msgInvalidTransition))
	case errors.Is(err, service.ErrInvalidRange):
		respondError(c, http.StatusBadRequest, message(c, msgInvalidRange))
	case errors.Is(err, service.ErrValidation):
		respondError(c, http.StatusBadRequest, message(c, msgValidation)+": "+validationDetail(err))
	case errors.Is(err, service.ErrUsernameTaken):
		respondError(c, http.StatusConflict, message(c, msgUsernameTaken))
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, message(c, msgInvalidCredentials))
	default:
		logger.Error("request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "err", err)
		respondError(c, http.StatusInternalServerError, message(c, msgInternal))
	}
}

func validationDetail(err error) string {
	detail := err.Error()
	if _, rest, ok := strings.Cut(detail, service.ErrValidation.Error()+": "); ok {
		return rest
	}
	return detail
}
