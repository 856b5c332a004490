package ledger

// XPPerLevel 每升一级所需经验
const XPPerLevel = 100

// Account 是用户的成长账户。Level 与 Rank 始终由 XPTotal 推导。
type Account struct {
	XPTotal int    `json:"xp_total"`
	Level   int    `json:"level"`
	Coins   int    `json:"coins"`
	Rank    string `json:"rank"`
}

// NewAccount 返回初始账户：0 经验、1 级、0 金币
func NewAccount() Account {
	return Derive(0, 0)
}

// LevelFor 根据累计经验计算等级
func LevelFor(xpTotal int) int {
	if xpTotal < 0 {
		xpTotal = 0
	}
	return xpTotal/XPPerLevel + 1
}

// Derive 由经验和金币重新推导完整账户
func Derive(xpTotal, coins int) Account {
	xpTotal = max(0, xpTotal)
	coins = max(0, coins)
	level := LevelFor(xpTotal)
	return Account{
		XPTotal: xpTotal,
		Level:   level,
		Coins:   coins,
		Rank:    TierFor(level).Name,
	}
}

// ApplyDelta 应用带符号的增量，结果在 0 处截断，并重新计算等级与段位。
func ApplyDelta(acc Account, deltaXP, deltaCoins int) Account {
	return Derive(acc.XPTotal+deltaXP, acc.Coins+deltaCoins)
}

// Apply 是 ApplyDelta 的 Reward 版本
func (a Account) Apply(delta Reward) Account {
	return ApplyDelta(a, delta.XP, delta.Coins)
}

// XPIntoLevel 返回当前等级内已获得的经验
func (a Account) XPIntoLevel() int {
	return a.XPTotal % XPPerLevel
}
