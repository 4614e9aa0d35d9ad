package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tiputa/apuri/internal/config"
	"github.com/tiputa/apuri/internal/db"
	clog "github.com/tiputa/apuri/internal/log"
	"github.com/tiputa/apuri/internal/service"
)

// sweeper 是独立于请求周期的定时清理任务，由 cron 等外部调度触发。
// 每次运行删除全系统超过保留时长的房间消息与私信，并输出删除总数。
// 不保存游标，每次运行都是无状态的。
func main() {
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}

	sweeper := service.NewSweeper(gdb, time.Now, time.Duration(cfg.RetentionHours)*time.Hour)
	deleted, err := sweeper.SweepAll()
	if err != nil {
		log.Fatal().Err(err).Msg("sweep")
	}
	log.Info().Int64("deleted", deleted).Msg("sweep done")
	fmt.Printf("Deleted %d messages\n", deleted)
}
