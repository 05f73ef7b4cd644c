// Command migrate creates or updates the schema on the configured database and
// optionally copies data over from an existing SQLite file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/logger"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	from := flag.String("from-sqlite", "", "copy all rows from this SQLite file into the configured database")
	batch := flag.Int("batch", 500, "rows per insert batch")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dst, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open target database")
	}
	defer database.Close(dst)

	if err := database.Migrate(dst); err != nil {
		log.Fatal().Err(err).Msg("migrate target")
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")

	if *from == "" {
		return
	}
	src, err := database.OpenSQLite(*from, &gorm.Config{Logger: logger.NewGorm().LogMode(gormlogger.Warn)})
	if err != nil {
		log.Fatal().Err(err).Str("path", *from).Msg("open source")
	}
	defer database.Close(src)

	counts, err := database.CopyAll(ctx, src, dst, *batch)
	if err != nil {
		log.Fatal().Err(err).Msg("copy failed")
	}
	var total int64
	for _, c := range counts {
		total += c.Copied
	}
	log.Info().Int64("rows", total).Int("tables", len(counts)).Msg("copy complete")
}
