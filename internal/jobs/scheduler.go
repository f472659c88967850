// Package jobs runs background maintenance over the reputation tables.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/repository"
)

// Scheduler sweeps expired cooldowns and enforces the retention caps on a
// schedule. Retention is also enforced on write; the sweep covers guilds
// that went quiet.
type Scheduler struct {
	cron                *cron.Cron
	cooldownRepo        *repository.CooldownRepository
	transferRepo        *repository.TransferRepository
	suspiciousRepo      *repository.SuspiciousRepository
	logRetention        int
	suspiciousRetention int
}

// NewScheduler creates a maintenance scheduler.
func NewScheduler(
	cooldownRepo *repository.CooldownRepository,
	transferRepo *repository.TransferRepository,
	suspiciousRepo *repository.SuspiciousRepository,
	logRetention int,
	suspiciousRetention int,
) *Scheduler {
	return &Scheduler{
		cron:                cron.New(),
		cooldownRepo:        cooldownRepo,
		transferRepo:        transferRepo,
		suspiciousRepo:      suspiciousRepo,
		logRetention:        logRetention,
		suspiciousRetention: suspiciousRetention,
	}
}

// Start registers and starts the background jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	// Expired cooldowns are also purged lazily on read; the hourly sweep
	// keeps the table from accumulating rows for inactive pairs.
	_, err := s.cron.AddFunc("0 * * * *", func() {
		purged, err := s.cooldownRepo.PurgeExpired(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Cooldown sweep failed")
			return
		}
		if purged > 0 {
			log.Info().Int64("purged", purged).Msg("Expired cooldowns purged")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cooldown sweep: %w", err)
	}

	_, err = s.cron.AddFunc("30 3 * * *", func() {
		s.trimTransferLogs(ctx)
		s.trimSuspicious(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	log.Info().Msg("Maintenance scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Maintenance scheduler stopped")
}

func (s *Scheduler) trimTransferLogs(ctx context.Context) {
	guilds, err := s.transferRepo.GuildIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Transfer retention sweep failed")
		return
	}
	for _, guildID := range guilds {
		evicted, err := s.transferRepo.TrimToLast(ctx, guildID, s.logRetention)
		if err != nil {
			log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to trim transfer log")
			continue
		}
		if evicted > 0 {
			log.Info().Str("guild_id", guildID).Int64("evicted", evicted).Msg("Transfer log trimmed")
		}
	}
}

func (s *Scheduler) trimSuspicious(ctx context.Context) {
	guilds, err := s.suspiciousRepo.GuildIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Suspicious retention sweep failed")
		return
	}
	for _, guildID := range guilds {
		evicted, err := s.suspiciousRepo.TrimToLast(ctx, guildID, s.suspiciousRetention)
		if err != nil {
			log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to trim suspicious records")
			continue
		}
		if evicted > 0 {
			log.Info().Str("guild_id", guildID).Int64("evicted", evicted).Msg("Suspicious records trimmed")
		}
	}
}
