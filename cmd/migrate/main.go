package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vendaseguro/chatsso/internal/db"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) != 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	cmd := os.Args[1]
	switch cmd {
	case "up", "down", "status":
	default:
		usage()
		os.Exit(1)
	}

	if err := db.Migrate(ctx, pool, cmd); err != nil {
		log.Error().Err(err).Str("cmd", cmd).Msg("migração falhou")
		pool.Close()
		os.Exit(1)
	}
	log.Info().Str("cmd", cmd).Msg("migração concluída")
}

func usage() {
	fmt.Fprintln(os.Stderr, "migrate CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  migrate up|down|status")
}
