package ledger

import "strings"

// Reward 表示一次事件带来的经验与金币。
type Reward struct {
	XP    int `json:"xp"`
	Coins int `json:"coins"`
}

// Add 返回两份奖励之和
func (r Reward) Add(o Reward) Reward {
	return Reward{XP: r.XP + o.XP, Coins: r.Coins + o.Coins}
}

// Sub 返回 r - o
func (r Reward) Sub(o Reward) Reward {
	return Reward{XP: r.XP - o.XP, Coins: r.Coins - o.Coins}
}

// Neg 返回相反数，用于撤销已发放的奖励
func (r Reward) Neg() Reward {
	return Reward{XP: -r.XP, Coins: -r.Coins}
}

func (r Reward) IsZero() bool {
	return r.XP == 0 && r.Coins == 0
}

// HabitKind 区分养成型与戒除型习惯
type HabitKind string

const (
	KindBuild HabitKind = "BUILD"
	KindBreak HabitKind = "BREAK"
)

// ParseHabitKind 解析习惯类型，兼容旧版 FORGE/PURGE 写法。
func ParseHabitKind(raw string) (HabitKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUILD", "FORGE":
		return KindBuild, true
	case "BREAK", "PURGE":
		return KindBreak, true
	default:
		return "", false
	}
}

// Outcome 是单日打卡结果
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// 每种习惯有各自的成功/失败别名：BUILD 为 FORGED/MISSED，BREAK 为 RESISTED/SLIPPED。
var outcomeAliases = map[HabitKind]map[string]Outcome{
	KindBuild: {"FORGED": OutcomeSuccess, "MISSED": OutcomeFailure},
	KindBreak: {"RESISTED": OutcomeSuccess, "SLIPPED": OutcomeFailure},
}

// ResolveOutcome 将请求中的结果字符串映射到 Outcome。
// known=false 表示字符串无法识别；ok=false 表示它属于另一种习惯类型的别名。
func ResolveOutcome(kind HabitKind, raw string) (outcome Outcome, known bool, ok bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch Outcome(value) {
	case OutcomeSuccess, OutcomeFailure:
		return Outcome(value), true, true
	}
	if o, exists := outcomeAliases[kind][value]; exists {
		return o, true, true
	}
	for other, aliases := range outcomeAliases {
		if other == kind {
			continue
		}
		if _, exists := aliases[value]; exists {
			return "", true, false
		}
	}
	return "", false, false
}

// Opposite 返回切换后的结果
func (o Outcome) Opposite() Outcome {
	if o == OutcomeSuccess {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

var habitRewards = map[HabitKind][4]Reward{
	KindBuild: {{}, {XP: 10, Coins: 1}, {XP: 20, Coins: 2}, {XP: 30, Coins: 3}},
	KindBreak: {{}, {XP: 8, Coins: 1}, {XP: 16, Coins: 2}, {XP: 24, Coins: 3}},
}

// ValidDifficulty 难度只允许 1/2/3
func ValidDifficulty(difficulty int) bool {
	return difficulty >= 1 && difficulty <= 3
}

// HabitReward 返回习惯打卡的基础奖励；失败或配置越界时为零。
func HabitReward(kind HabitKind, difficulty int, outcome Outcome) Reward {
	if outcome != OutcomeSuccess || !ValidDifficulty(difficulty) {
		return Reward{}
	}
	table, ok := habitRewards[kind]
	if !ok {
		return Reward{}
	}
	return table[difficulty]
}

// Priority 是待办优先级
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

var todoRewards = map[Priority]Reward{
	PriorityLow:    {XP: 5, Coins: 0},
	PriorityMedium: {XP: 10, Coins: 1},
	PriorityHigh:   {XP: 20, Coins: 2},
}

// ParsePriority 解析优先级，空字符串视为 MEDIUM。
func ParsePriority(raw string) (Priority, bool) {
	value := Priority(strings.ToUpper(strings.TrimSpace(raw)))
	if value == "" {
		return PriorityMedium, true
	}
	if _, ok := todoRewards[value]; !ok {
		return "", false
	}
	return value, true
}

// TodoReward 返回待办完成奖励，未知优先级按 MEDIUM 计算。
func TodoReward(priority Priority) Reward {
	if reward, ok := todoRewards[priority]; ok {
		return reward
	}
	return todoRewards[PriorityMedium]
}

// FocusKind 是专注类型
type FocusKind string

const (
	FocusDeep  FocusKind = "DEEP"
	FocusLight FocusKind = "LIGHT"
)

// ParseFocusKind 解析专注类型，空字符串视为 DEEP。
func ParseFocusKind(raw string) (FocusKind, bool) {
	switch FocusKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", FocusDeep:
		return FocusDeep, true
	case FocusLight:
		return FocusLight, true
	default:
		return "", false
	}
}

// FocusReward 按专注时长分段给奖励
func FocusReward(durationMinutes int) Reward {
	switch {
	case durationMinutes >= 90:
		return Reward{XP: 30, Coins: 2}
	case durationMinutes >= 50:
		return Reward{XP: 20, Coins: 1}
	case durationMinutes >= 25:
		return Reward{XP: 10, Coins: 0}
	default:
		return Reward{}
	}
}
