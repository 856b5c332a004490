package handler

import (
	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db      *gorm.DB
	auth    *service.AuthService
	ledger  *service.LedgerService
	habits  *service.HabitService
	todos   *service.TodoService
	focus   *service.FocusService
	stats   *service.StatsService
	limiter *service.RateLimiter
}

// Options 是构造 API 时可调整的部分
type Options struct {
	Zone    calendar.Zone
	Caps    ledger.CapTable
	Cache   *service.StatsCache
	Limiter *service.RateLimiter
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, opts Options) *API {
	ledgerService := service.NewLedgerService(db, opts.Zone, opts.Caps)

	return &API{
		db:      db,
		auth:    service.NewAuthService(db),
		ledger:  ledgerService,
		habits:  service.NewHabitService(db, ledgerService),
		todos:   service.NewTodoService(db, ledgerService),
		focus:   service.NewFocusService(db, ledgerService),
		stats:   service.NewStatsService(db, ledgerService, opts.Cache),
		limiter: opts.Limiter,
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}
