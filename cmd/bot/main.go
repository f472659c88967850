// Package main is the entry point for the reputation bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/bot"
	"discord-rep-bot/internal/config"
	"discord-rep-bot/internal/handler"
	"discord-rep-bot/internal/jobs"
	"discord-rep-bot/internal/pkg/db"
	"discord-rep-bot/internal/pkg/lock"
	"discord-rep-bot/internal/repository"
	"discord-rep-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	transferRepo := repository.NewTransferRepository(dbPool.Pool)
	cooldownRepo := repository.NewCooldownRepository(dbPool.Pool)
	rewardRepo := repository.NewRoleRewardRepository(dbPool.Pool)
	suspiciousRepo := repository.NewSuspiciousRepository(dbPool.Pool)

	// Initialize services
	rules := service.Rules{
		MinAccountAge: time.Duration(cfg.Reputation.MinAccountAgeDays) * 24 * time.Hour,
		MinMembership: time.Duration(cfg.Reputation.MinMembershipDays) * 24 * time.Hour,
		DailyLimit:    int64(cfg.Reputation.DailyLimit),
		Cooldown:      time.Duration(cfg.Reputation.CooldownDays) * 24 * time.Hour,
	}

	eligibilityService := service.NewEligibilityService(transferRepo, cooldownRepo, rules)
	anomalyService := service.NewAnomalyService(
		transferRepo,
		cfg.Reputation.AnomalyWindowDays,
		int64(cfg.Reputation.AnomalyThreshold),
	)

	giverLock := lock.NewGiverLock()

	repService := service.NewReputationService(
		accountRepo,
		transferRepo,
		cooldownRepo,
		suspiciousRepo,
		eligibilityService,
		anomalyService,
		giverLock,
		service.ReputationConfig{
			ReasonMinLength:     cfg.Reputation.ReasonMinLength,
			ReasonMaxLength:     cfg.Reputation.ReasonMaxLength,
			LogRetention:        cfg.Reputation.LogRetention,
			SuspiciousRetention: cfg.Reputation.SuspiciousRetention,
			SuspiciousDedup:     time.Duration(cfg.Reputation.SuspiciousDedupDays) * 24 * time.Hour,
		},
	)

	rankingService := service.NewRankingService(accountRepo, transferRepo)

	// Initialize bot first: the role service needs the Discord session.
	deps := &bot.Dependencies{Config: cfg}
	discordBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	roleService := service.NewRoleService(rewardRepo, discordBot.Session())

	deps.RepHandler = handler.NewRepHandler(
		repService,
		rankingService,
		roleService,
		cfg.Reputation.LeaderboardLimit,
		cfg.Reputation.HistoryLimit,
	)
	deps.AdminHandler = handler.NewAdminHandler(repService, roleService, suspiciousRepo)

	// Start background maintenance
	scheduler := jobs.NewScheduler(
		cooldownRepo,
		transferRepo,
		suspiciousRepo,
		cfg.Reputation.LogRetention,
		cfg.Reputation.SuspiciousRetention,
	)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start maintenance scheduler")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Bot is starting...")
	if err := discordBot.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start bot")
	}

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	scheduler.Stop()
	if err := discordBot.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create reputation accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rep_accounts (
			guild_id VARCHAR(32) NOT NULL,
			user_id VARCHAR(32) NOT NULL,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
			last_received_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_rep_accounts_points
			ON rep_accounts (guild_id, points DESC, created_at ASC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: rep_accounts table created")

	// Migration 2: Create transfer log table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rep_transfers (
			id BIGSERIAL PRIMARY KEY,
			guild_id VARCHAR(32) NOT NULL,
			giver_id VARCHAR(32) NOT NULL,
			receiver_id VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			channel_id VARCHAR(32) NOT NULL DEFAULT '',
			type VARCHAR(16) NOT NULL DEFAULT 'give',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rep_transfers_guild_time
			ON rep_transfers (guild_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_rep_transfers_giver
			ON rep_transfers (guild_id, giver_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_rep_transfers_receiver
			ON rep_transfers (guild_id, receiver_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: rep_transfers table created")

	// Migration 3: Create cooldowns table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rep_cooldowns (
			guild_id VARCHAR(32) NOT NULL,
			giver_id VARCHAR(32) NOT NULL,
			receiver_id VARCHAR(32) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (guild_id, giver_id, receiver_id)
		);
		CREATE INDEX IF NOT EXISTS idx_rep_cooldowns_expires
			ON rep_cooldowns (expires_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: rep_cooldowns table created")

	// Migration 4: Create role rewards table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rep_role_rewards (
			guild_id VARCHAR(32) NOT NULL,
			role_id VARCHAR(32) NOT NULL,
			threshold BIGINT NOT NULL CHECK (threshold >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, role_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: rep_role_rewards table created")

	// Migration 5: Create suspicious patterns table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rep_suspicious (
			id BIGSERIAL PRIMARY KEY,
			guild_id VARCHAR(32) NOT NULL,
			user_a VARCHAR(32) NOT NULL,
			user_b VARCHAR(32) NOT NULL,
			count_a_to_b BIGINT NOT NULL DEFAULT 0,
			count_b_to_a BIGINT NOT NULL DEFAULT 0,
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_rep_suspicious_pair
			ON rep_suspicious (guild_id, user_a, user_b, logged_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: rep_suspicious table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
