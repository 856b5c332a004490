package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forgeledger/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxUsernameLength = 64
	// bcrypt 只使用前 72 字节
	maxPasswordBytes = 72
)

// AuthService 负责注册与登录校验
type AuthService struct {
	db *gorm.DB
}

// NewAuthService 构造 AuthService
func NewAuthService(gdb *gorm.DB) *AuthService {
	return &AuthService{db: gdb}
}

// Register 创建用户并在同一事务内创建初始成长账户
func (s *AuthService) Register(username, password string) (*db.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := db.User{Username: username, Password: string(hashed)}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if count > 0 {
			return ErrUsernameTaken
		}

		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		progress := db.NewProgress(user.ID)
		if err := tx.Create(&progress).Error; err != nil {
			return fmt.Errorf("create progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate 校验用户名与密码
func (s *AuthService) Authenticate(username, password string) (*db.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user db.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Get 根据 ID 获取用户
func (s *AuthService) Get(userID uint) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func validateCredentials(username, password string) error {
	switch {
	case username == "":
		return validationError("username is required")
	case len([]rune(username)) > maxUsernameLength:
		return validationError("username is too long")
	case strings.TrimSpace(password) == "":
		return validationError("password is required")
	case len(password) > maxPasswordBytes:
		return validationError("password is too long")
	}
	return nil
}
