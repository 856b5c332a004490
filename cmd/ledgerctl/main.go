package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/service"
	"gorm.io/gorm"
)

// Context 是各子命令共享的运行环境
type Context struct {
	DB *gorm.DB
}

type BackfillCmd struct{}

func (c *BackfillCmd) Run(ctx *Context) error {
	created, err := db.BackfillProgress(ctx.DB)
	if err != nil {
		return err
	}
	fmt.Printf("Created %d progress row(s)\n", created)
	return nil
}

type RecomputeCmd struct{}

func (c *RecomputeCmd) Run(ctx *Context) error {
	fixed, err := db.RecomputeProgress(ctx.DB)
	if err != nil {
		return err
	}
	fmt.Printf("Re-derived level and rank for %d account(s)\n", fixed)
	return nil
}

type UserAddCmd struct {
	Username string `arg:"" help:"Login name."`
	Password string `help:"Password. Read from LEDGER_PASSWORD when omitted." env:"LEDGER_PASSWORD"`
}

func (c *UserAddCmd) Run(ctx *Context) error {
	user, err := service.NewAuthService(ctx.DB).Register(c.Username, c.Password)
	if err != nil {
		return err
	}
	fmt.Printf("Created user %q (id %d)\n", user.Username, user.ID)
	return nil
}

var CLI struct {
	Database string `help:"SQLite database path." default:"forgeledger.db" env:"DATABASE_PATH"`

	Backfill  BackfillCmd  `cmd:"" help:"Create missing progression accounts."`
	Recompute RecomputeCmd `cmd:"" help:"Re-derive level and rank from total XP for every account."`
	User      struct {
		Add UserAddCmd `cmd:"" help:"Register a user."`
	} `cmd:"" help:"Manage users."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("ledgerctl"),
		kong.Description("Maintenance commands for the forgeledger database"),
		kong.UsageOnError(),
	)

	gdb, err := db.Open(CLI.Database, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(&Context{DB: gdb}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
