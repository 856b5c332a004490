package ledger

// Tier 是一个等级段对应的段位名称，Min/Max 均为闭区间。
type Tier struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Tiers 按等级升序排列，区间连续且不重叠。
var Tiers = []Tier{
	{Name: "Ember", Min: 1, Max: 3},
	{Name: "Initiate", Min: 4, Max: 7},
	{Name: "Adept", Min: 8, Max: 12},
	{Name: "Pathforger", Min: 13, Max: 20},
	{Name: "Warden", Min: 21, Max: 27},
	{Name: "Ascendant", Min: 28, Max: 34},
	{Name: "Architect", Min: 35, Max: 42},
	{Name: "Paragon", Min: 43, Max: 50},
	{Name: "Mythforged", Min: 51, Max: 57},
	{Name: "Luminary", Min: 58, Max: 64},
	{Name: "Exemplar", Min: 65, Max: 72},
	{Name: "Chronosmith", Min: 73, Max: 80},
	{Name: "Mythkeeper", Min: 81, Max: 87},
	{Name: "Eternal Architect", Min: 88, Max: 94},
	{Name: "Ascended", Min: 95, Max: 100},
}

// TierFor 返回等级所在段位。低于 1 级按 1 级处理，超出表格时落在最后一段。
func TierFor(level int) Tier {
	if level < 1 {
		level = 1
	}
	for _, tier := range Tiers {
		if level >= tier.Min && level <= tier.Max {
			return tier
		}
	}
	return Tiers[len(Tiers)-1]
}

// NextTier 返回下一个段位，已是最高段位时 ok=false
func NextTier(level int) (Tier, bool) {
	current := TierFor(level)
	for i, tier := range Tiers {
		if tier.Name == current.Name && i+1 < len(Tiers) {
			return Tiers[i+1], true
		}
	}
	return Tier{}, false
}
