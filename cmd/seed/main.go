package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/auth"
	"github.com/kopi-pos/api/internal/config"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/logger"
)

type product struct {
	name  string
	price string
}

var menu = []product{
	{"Ca phe sua da", "29000"},
	{"Ca phe den", "25000"},
	{"Bac xiu", "32000"},
	{"Tra dao cam sa", "45000"},
	{"Sinh to bo", "49000"},
	{"Banh mi thit", "35000"},
	{"Croissant", "38000"},
}

type promotion struct {
	name, discountType, value, minOrder, maxDiscount string
	usageLimit                                       int32
	days                                             int
}

var promotions = []promotion{
	{"Happy hour 10%", enum.DiscountTypePercentage, "10", "100000", "50000", 0, 30},
	{"Opening week 20k", enum.DiscountTypeFixed, "20000", "150000", "0", 200, 7},
}

func main() {
	tables := flag.Int("tables", 8, "Number of tables to create")
	tokens := flag.Bool("tokens", true, "Print development tokens for each role")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, true)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("unable to ping database")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := seedTables(ctx, tx, log, *tables); err != nil {
		log.Fatal().Err(err).Msg("seed tables")
	}
	if err := seedProducts(ctx, tx, log); err != nil {
		log.Fatal().Err(err).Msg("seed products")
	}
	if err := seedPromotions(ctx, tx, log); err != nil {
		log.Fatal().Err(err).Msg("seed promotions")
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("commit")
	}
	log.Info().Msg("seed completed")

	if *tokens {
		printTokens(cfg.JWTSecret, log)
	}
}

func seedTables(ctx context.Context, tx pgx.Tx, log zerolog.Logger, n int) error {
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("T%d", i)
		capacity := 4
		if i%4 == 0 {
			capacity = 6
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO cafe_tables (name, capacity) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			name, capacity)
		if err != nil {
			return fmt.Errorf("insert table %s: %w", name, err)
		}
		if tag.RowsAffected() == 0 {
			log.Debug().Str("table", name).Msg("table exists, skipping")
		}
	}
	log.Info().Int("tables", n).Msg("tables ready")
	return nil
}

func seedProducts(ctx context.Context, tx pgx.Tx, log zerolog.Logger) error {
	for _, p := range menu {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM products WHERE name = $1`, p.name).Scan(&id)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check product %s: %w", p.name, err)
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO products (name, price) VALUES ($1, $2) RETURNING id`,
			p.name, p.price).Scan(&id); err != nil {
			return fmt.Errorf("insert product %s: %w", p.name, err)
		}
		log.Info().Int64("id", id).Str("name", p.name).Str("price", p.price).Msg("created product")
	}
	return nil
}

func seedPromotions(ctx context.Context, tx pgx.Tx, log zerolog.Logger) error {
	now := time.Now()
	for _, p := range promotions {
		var id int64
		err := tx.QueryRow(ctx, `SELECT id FROM promotions WHERE name = $1`, p.name).Scan(&id)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check promotion %s: %w", p.name, err)
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO promotions (name, discount_type, discount_value, min_order_amount,
			                        max_discount_amount, start_date, end_date, usage_limit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			p.name, p.discountType, p.value, p.minOrder, p.maxDiscount,
			now, now.AddDate(0, 0, p.days), p.usageLimit,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert promotion %s: %w", p.name, err)
		}
		log.Info().Int64("id", id).Str("name", p.name).Msg("created promotion")
	}
	return nil
}

func printTokens(secret string, log zerolog.Logger) {
	roles := []string{enum.RoleManager, enum.RoleCashier, enum.RoleWaiter}
	for i, role := range roles {
		token, err := auth.GenerateToken(secret, int64(i+1), role, auth.DefaultTTL)
		if err != nil {
			log.Error().Err(err).Str("role", role).Msg("generate token")
			continue
		}
		log.Info().Str("role", role).Int("user_id", i+1).Str("token", token).Msg("development token")
	}
}
