package service

import (
	"context"
	"time"

	"discord-rep-bot/internal/model"
	"discord-rep-bot/internal/repository"
)

// RankingService handles leaderboard, rank and guild statistics reads.
type RankingService struct {
	accountRepo  *repository.AccountRepository
	transferRepo *repository.TransferRepository
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(
	accountRepo *repository.AccountRepository,
	transferRepo *repository.TransferRepository,
) *RankingService {
	return &RankingService{
		accountRepo:  accountRepo,
		transferRepo: transferRepo,
	}
}

// GetLeaderboard retrieves the guild's top accounts with positive points,
// ordered by points descending with the deterministic tie-break.
func (s *RankingService) GetLeaderboard(ctx context.Context, guildID string, limit int) ([]*model.LeaderboardEntry, error) {
	return s.accountRepo.GetLeaderboard(ctx, guildID, limit)
}

// GetRank returns a member's 1-based leaderboard position, or 0 if the
// member has no points.
func (s *RankingService) GetRank(ctx context.Context, guildID, userID string) (int64, error) {
	return s.accountRepo.GetRank(ctx, guildID, userID)
}

// GetStats aggregates the guild's reputation activity: ranked member
// count, total and average points, and gives in the last 24 hours.
func (s *RankingService) GetStats(ctx context.Context, guildID string) (*model.GuildStats, error) {
	ranked, total, err := s.accountRepo.GetGuildTotals(ctx, guildID)
	if err != nil {
		return nil, err
	}

	recent, err := s.transferRepo.CountSince(ctx, guildID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	stats := &model.GuildStats{
		RankedUsers:    ranked,
		TotalPoints:    total,
		TransfersToday: recent,
	}
	if ranked > 0 {
		stats.AveragePoints = float64(total) / float64(ranked)
	}

	return stats, nil
}
