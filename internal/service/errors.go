package service

import (
	"errors"
	"fmt"

	"github.com/forgeledger/internal/calendar"
)

var (
	// ErrNotFound 在记录不存在或不属于当前用户时返回
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition 在目标状态与记录当前状态不兼容时返回
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyTerminal 表示记录已处于请求的终态，属于 ErrInvalidTransition
	ErrAlreadyTerminal = fmt.Errorf("%w: already terminal", ErrInvalidTransition)
	// ErrInvalidRange 复用日历包的区间错误，方便 errors.Is 判断
	ErrInvalidRange = calendar.ErrInvalidRange
	// ErrValidation 表示输入格式或取值不合法
	ErrValidation = errors.New("validation failed")
	// ErrUsernameTaken 注册时用户名已存在
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials 登录凭证不正确
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
