package service

import (
	"context"
	"fmt"
	"time"

	"discord-rep-bot/internal/repository"
)

// PatternResult is the outcome of a reciprocal-exchange scan for one pair.
type PatternResult struct {
	Suspicious bool
	CountAToB  int64
	CountBToA  int64
}

// IsReciprocal applies the rep-trading predicate to a pair of directional
// counts: both directions must have activity and the combined volume must
// reach the threshold. One-directional generosity never triggers it.
func IsReciprocal(countAToB, countBToA, threshold int64) bool {
	return countAToB > 0 && countBToA > 0 && countAToB+countBToA >= threshold
}

// AnomalyService scans the transfer log for reciprocal exchange patterns
// between user pairs. Scans never mutate anything.
type AnomalyService struct {
	transferRepo *repository.TransferRepository
	window       time.Duration
	threshold    int64
}

// NewAnomalyService creates a new AnomalyService instance.
func NewAnomalyService(transferRepo *repository.TransferRepository, windowDays int, threshold int64) *AnomalyService {
	return &AnomalyService{
		transferRepo: transferRepo,
		window:       time.Duration(windowDays) * 24 * time.Hour,
		threshold:    threshold,
	}
}

// CheckPattern counts transfers in each direction between two users within
// the trailing window and applies the reciprocal predicate.
func (s *AnomalyService) CheckPattern(ctx context.Context, guildID, userA, userB string) (PatternResult, error) {
	since := time.Now().Add(-s.window)

	aToB, err := s.transferRepo.CountDirectional(ctx, guildID, userA, userB, since)
	if err != nil {
		return PatternResult{}, fmt.Errorf("failed to count %s -> %s: %w", userA, userB, err)
	}

	bToA, err := s.transferRepo.CountDirectional(ctx, guildID, userB, userA, since)
	if err != nil {
		return PatternResult{}, fmt.Errorf("failed to count %s -> %s: %w", userB, userA, err)
	}

	return PatternResult{
		Suspicious: IsReciprocal(aToB, bToA, s.threshold),
		CountAToB:  aToB,
		CountBToA:  bToA,
	}, nil
}
