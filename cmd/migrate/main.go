package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kopi-pos/api/internal/config"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "Roll back every applied migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	if *down {
		if err := database.MigrateDown(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("migrate down failed")
		}
		log.Info().Msg("migrations rolled back")
		return
	}

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("migrate up failed")
	}
	log.Info().Msg("migrations applied")
}
