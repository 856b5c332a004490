package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/config"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/service"
	"gorm.io/gorm"
)

const (
	demoUsername    = "demo"
	demoPassword    = "demo123"
	defaultSeedDays = 60
)

var errDemoUserExists = errors.New("demo user already exists")

type demoHabit struct {
	input service.HabitInput
	// 每 10 天中成功的天数
	hitRate int
}

var demoHabits = []demoHabit{
	{input: service.HabitInput{Title: "晨跑", Kind: "BUILD", Difficulty: 2, Color: "#3fb950"}, hitRate: 8},
	{input: service.HabitInput{Title: "阅读 30 分钟", Kind: "BUILD", Difficulty: 1}, hitRate: 9},
	{input: service.HabitInput{Title: "睡前刷手机", Kind: "BREAK", Difficulty: 3, Color: "#f85149"}, hitRate: 6},
}

type seedSummary struct {
	UserID        uint
	Habits        int
	Logs          int
	Todos         int
	FocusSessions int
	Account       ledger.Account
}

// 演示数据生成器
func main() {
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal("时区无效:", err)
	}

	fmt.Println("开始生成演示数据...")
	summary, err := seedDemoData(db.DB, loc, time.Now(), defaultSeedDays)
	if errors.Is(err, errDemoUserExists) {
		fmt.Println("演示用户已存在，跳过创建")
		return
	}
	if err != nil {
		log.Fatal("生成演示数据失败:", err)
	}

	fmt.Println("演示数据生成完成！")
	fmt.Printf("用户: %s (密码: %s)\n", demoUsername, demoPassword)
	fmt.Printf("习惯: %d 个，打卡 %d 条，待办 %d 个，专注 %d 次\n",
		summary.Habits, summary.Logs, summary.Todos, summary.FocusSessions)
	fmt.Printf("账户: %d 经验 / %d 级 / %d 金币 / %s\n",
		summary.Account.XPTotal, summary.Account.Level, summary.Account.Coins, summary.Account.Rank)
}

// seedDemoData 以 now 为最后一天，回放 days 天的打卡、待办与专注。
// 所有写入都经过账本服务，因此同样受每日上限约束。
func seedDemoData(gdb *gorm.DB, loc *time.Location, now time.Time, days int) (*seedSummary, error) {
	var count int64
	if err := gdb.Model(&db.User{}).Where("username = ?", demoUsername).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errDemoUserExists
	}

	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), local.Day(), 8, 0, 0, 0, loc).AddDate(0, 0, -(days - 1))
	clock := calendar.NewFakeClock(first)
	zone := calendar.NewZone(loc, clock)

	ledgerService := service.NewLedgerService(gdb, zone, ledger.DefaultCaps)
	habitService := service.NewHabitService(gdb, ledgerService)
	todoService := service.NewTodoService(gdb, ledgerService)

	user, err := service.NewAuthService(gdb).Register(demoUsername, demoPassword)
	if err != nil {
		return nil, fmt.Errorf("create demo user: %w", err)
	}
	summary := &seedSummary{UserID: user.ID}

	habitIDs := make([]uint, 0, len(demoHabits))
	for _, item := range demoHabits {
		habit, err := habitService.Create(user.ID, item.input)
		if err != nil {
			return nil, fmt.Errorf("create habit %q: %w", item.input.Title, err)
		}
		habitIDs = append(habitIDs, habit.ID)
	}
	summary.Habits = len(habitIDs)

	daily, err := todoService.Create(user.ID, service.TodoInput{Title: "每日复盘", IsDaily: true})
	if err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	if _, err := todoService.Create(user.ID, service.TodoInput{
		Title:       "整理季度目标",
		Description: "- 工作\n- 健康\n- **学习**",
		Priority:    "HIGH",
	}); err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	summary.Todos = 2

	for day := 0; day < days; day++ {
		clock.Set(first.AddDate(0, 0, day))
		today := zone.Today()

		for i, id := range habitIDs {
			if (day*7+i*3)%10 >= demoHabits[i].hitRate {
				if demoHabits[i].input.Kind == "BREAK" {
					if _, err := ledgerService.ToggleHabitDay(user.ID, id, today, "SLIPPED"); err != nil {
						return nil, err
					}
					summary.Logs++
				}
				continue
			}
			if _, err := ledgerService.ToggleHabitDay(user.ID, id, today, "SUCCESS"); err != nil {
				return nil, err
			}
			summary.Logs++
		}

		if day%2 == 0 {
			if _, err := ledgerService.CompleteTodo(user.ID, daily.ID); err != nil {
				return nil, err
			}
		}

		if day%4 != 3 {
			session, err := ledgerService.StartFocus(user.ID, service.FocusStartInput{DurationMinutes: 50, TodoID: &daily.ID})
			if err != nil {
				return nil, err
			}
			clock.Advance(50 * time.Minute)
			if _, err := ledgerService.CompleteFocus(user.ID, session.ID, service.FocusCompleteInput{}); err != nil {
				return nil, err
			}
			summary.FocusSessions++
		}
	}

	summary.Account, err = ledgerService.Account(user.ID)
	if err != nil {
		return nil, err
	}
	return summary, nil
}
