package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"custody-wallet/internal/model"
	"custody-wallet/pkg/config"
	"custody-wallet/pkg/database"
	"custody-wallet/pkg/logger"
)

func main() {
	var command, dir string
	var steps int
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, steps, version, automigrate")
	flag.StringVar(&dir, "dir", "migrations", "Migration directory")
	flag.IntVar(&steps, "n", 1, "Number of steps for -cmd steps (negative rolls back)")
	flag.Parse()

	// 加载配置
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	if command == "automigrate" {
		autoMigrate()
		return
	}

	m, err := migrate.New("file://"+dir, config.Global.DB.URL())
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(steps)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatalf("Read version failed: %v", verr)
		}
		log.Printf("Schema version: %d (dirty=%v)", v, dirty)
		return
	default:
		log.Fatalf("Unknown command: %s", command)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	log.Printf("Migration %s done", command)
}

// autoMigrate 仅限开发环境: gorm 不会创建部分唯一索引，生产必须使用 SQL 迁移
func autoMigrate() {
	if config.Global.App.Env == "production" {
		log.Fatalf("automigrate is disabled in production")
	}
	db, err := database.ConnectPostgres(config.Global.DB.DSN(), config.Global.App.Env)
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}
	log.Println("AutoMigrate done (dev mode)")
}
