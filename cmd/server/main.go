package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tiputa/apuri/internal/config"
	"github.com/tiputa/apuri/internal/db"
	clog "github.com/tiputa/apuri/internal/log"
	"github.com/tiputa/apuri/internal/server"
	"github.com/tiputa/apuri/internal/ws"
)

func main() {
	// main 负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create upload dir")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	hub := ws.NewHub()
	r := server.SetupRouter(cfg, gdb, hub, nil)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
