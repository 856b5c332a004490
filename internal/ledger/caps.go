package ledger

// Channel 是共享每日上限的奖励来源分组
type Channel string

const (
	// ChannelHabitTodo 习惯与待办共用一个上限
	ChannelHabitTodo Channel = "HABIT_TODO"
	// ChannelFocus 专注单独计算
	ChannelFocus Channel = "FOCUS"
)

// Caps 是单个通道每天允许发放的最大经验/金币
type Caps struct {
	XP    int `json:"xp_cap"`
	Coins int `json:"coins_cap"`
}

// CapTable 保存两个通道的上限配置
type CapTable struct {
	HabitTodo Caps
	Focus     Caps
}

// DefaultCaps 是默认的每日上限
var DefaultCaps = CapTable{
	HabitTodo: Caps{XP: 200, Coins: 25},
	Focus:     Caps{XP: 100, Coins: 5},
}

// For 返回指定通道的上限
func (t CapTable) For(ch Channel) Caps {
	if ch == ChannelFocus {
		return t.Focus
	}
	return t.HabitTodo
}

// ClampedDelta 计算某条记录从 existing 变为 target 时实际可发放的增量。
// totalToday 包含该记录自身已发放的部分。增长会被截断到剩余额度内，回退永不截断，
// 这样被截断过的奖励总能完整撤销。
func ClampedDelta(existing, target, totalToday, dailyCap int) int {
	raw := target - existing
	if raw <= 0 {
		return raw
	}
	usedByOthers := totalToday - existing
	remaining := max(0, dailyCap-usedByOthers)
	return min(raw, remaining)
}

// ClampReward 对经验和金币分别执行 ClampedDelta
func ClampReward(existing, target, totalToday Reward, caps Caps) Reward {
	return Reward{
		XP:    ClampedDelta(existing.XP, target.XP, totalToday.XP, caps.XP),
		Coins: ClampedDelta(existing.Coins, target.Coins, totalToday.Coins, caps.Coins),
	}
}
