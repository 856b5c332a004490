package db

import (
	"time"

	"github.com/forgeledger/internal/ledger"
	"gorm.io/gorm"
)

// User 定义了用户模型
type User struct {
	gorm.Model
	Username string `gorm:"unique;not null"`
	Password string `gorm:"not null"`
}

// Progress 是用户的成长账户，每个用户恰好一行。
// Level/Rank 是冗余字段，每次写入都由 XPTotal 重新推导。
type Progress struct {
	ID        uint `gorm:"primarykey"`
	UserID    uint `gorm:"uniqueIndex;not null"`
	XPTotal   int  `gorm:"not null;default:0"`
	Level     int  `gorm:"not null;default:1"`
	Coins     int  `gorm:"not null;default:0"`
	Rank      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 固定表名为 user_progress
func (Progress) TableName() string {
	return "user_progress"
}

// NewProgress 返回一个初始账户行
func NewProgress(userID uint) Progress {
	acc := ledger.NewAccount()
	return Progress{UserID: userID, XPTotal: acc.XPTotal, Level: acc.Level, Coins: acc.Coins, Rank: acc.Rank}
}

// Account 转换为账本领域模型
func (p Progress) Account() ledger.Account {
	return ledger.Derive(p.XPTotal, p.Coins)
}

// SetAccount 将账本结果写回行字段
func (p *Progress) SetAccount(acc ledger.Account) {
	p.XPTotal = acc.XPTotal
	p.Level = acc.Level
	p.Coins = acc.Coins
	p.Rank = acc.Rank
}

// BackfillProgress 为缺少成长账户的用户补建初始行，返回新建数量。
func BackfillProgress(gdb *gorm.DB) (int, error) {
	var userIDs []uint
	if err := gdb.Model(&User{}).
		Where("id NOT IN (?)", gdb.Model(&Progress{}).Select("user_id")).
		Pluck("id", &userIDs).Error; err != nil {
		return 0, err
	}

	for _, id := range userIDs {
		row := NewProgress(id)
		if err := gdb.Create(&row).Error; err != nil {
			return 0, err
		}
	}
	return len(userIDs), nil
}

// RecomputeProgress 按 XPTotal 重新推导所有账户的等级与段位，返回被修正的行数。
func RecomputeProgress(gdb *gorm.DB) (int, error) {
	var rows []Progress
	if err := gdb.Find(&rows).Error; err != nil {
		return 0, err
	}

	fixed := 0
	for _, row := range rows {
		acc := row.Account()
		if acc.XPTotal == row.XPTotal && acc.Level == row.Level && acc.Coins == row.Coins && acc.Rank == row.Rank {
			continue
		}
		row.SetAccount(acc)
		if err := gdb.Model(&Progress{}).Where("id = ?", row.ID).Updates(map[string]any{
			"xp_total": row.XPTotal,
			"level":    row.Level,
			"coins":    row.Coins,
			"rank":     row.Rank,
		}).Error; err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}
