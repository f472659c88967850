package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/model"
	"discord-rep-bot/internal/pkg/lock"
	"discord-rep-bot/internal/repository"
)

// GiveOutcome is the result of a give attempt. A rejected attempt is a
// normal outcome, not an error: Code and Message describe the first
// failing check and the ledger is untouched.
type GiveOutcome struct {
	Rejected bool
	Code     string
	Message  string
	NewTotal int64
	Rank     int64
	Reason   string
}

// RepInfo is a member's reputation summary.
type RepInfo struct {
	Points         int64
	Rank           int64
	LastReceivedAt *time.Time
}

// ReputationConfig holds the executor's tunables beyond the rule constants.
type ReputationConfig struct {
	ReasonMinLength     int
	ReasonMaxLength     int
	LogRetention        int
	SuspiciousRetention int
	SuspiciousDedup     time.Duration
}

// ReputationService orchestrates reputation transfers and the read
// operations over the ledger.
type ReputationService struct {
	accountRepo    *repository.AccountRepository
	transferRepo   *repository.TransferRepository
	cooldownRepo   *repository.CooldownRepository
	suspiciousRepo *repository.SuspiciousRepository
	eligibility    *EligibilityService
	anomaly        *AnomalyService
	giverLock      *lock.GiverLock
	cfg            ReputationConfig
}

// NewReputationService creates a new ReputationService instance.
func NewReputationService(
	accountRepo *repository.AccountRepository,
	transferRepo *repository.TransferRepository,
	cooldownRepo *repository.CooldownRepository,
	suspiciousRepo *repository.SuspiciousRepository,
	eligibility *EligibilityService,
	anomaly *AnomalyService,
	giverLock *lock.GiverLock,
	cfg ReputationConfig,
) *ReputationService {
	return &ReputationService{
		accountRepo:    accountRepo,
		transferRepo:   transferRepo,
		cooldownRepo:   cooldownRepo,
		suspiciousRepo: suspiciousRepo,
		eligibility:    eligibility,
		anomaly:        anomaly,
		giverLock:      giverLock,
		cfg:            cfg,
	}
}

// GiveRep awards one reputation point from giver to receiver.
//
// Reason validation runs first, then the eligibility checks; any rejection
// returns before the ledger is touched. The cooldown is taken with a
// single conditional write, so two racing gives for the same pair cannot
// both pass. The per-giver lock serializes the daily-limit window within
// this process.
func (s *ReputationService) GiveRep(ctx context.Context, guildID string, giver, receiver Actor, reason, channelID string) (*GiveOutcome, error) {
	if d := ValidateReason(reason, s.cfg.ReasonMinLength, s.cfg.ReasonMaxLength); !d.Allowed {
		return rejected(d), nil
	}

	var outcome *GiveOutcome
	err := s.giverLock.WithLock(guildID, giver.ID, func() error {
		var err error
		outcome, err = s.executeGive(ctx, guildID, giver, receiver, reason, channelID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *ReputationService) executeGive(ctx context.Context, guildID string, giver, receiver Actor, reason, channelID string) (*GiveOutcome, error) {
	// The cooldown check is folded into the atomic acquire below.
	snap, err := s.eligibility.SnapshotForUpdate(ctx, guildID, giver, receiver)
	if err != nil {
		return nil, err
	}

	if d := Evaluate(s.eligibility.Rules(), snap); !d.Allowed {
		return rejected(d), nil
	}

	expiresAt := time.Now().Add(s.eligibility.Rules().Cooldown)
	acquired, err := s.cooldownRepo.Acquire(ctx, guildID, giver.ID, receiver.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return rejected(cooldownRejection(s.eligibility.Rules())), nil
	}

	acc, err := s.accountRepo.IncrementPoints(ctx, guildID, receiver.ID)
	if err != nil {
		return nil, err
	}

	if _, err := s.transferRepo.Create(ctx, guildID, giver.ID, receiver.ID, reason, channelID, model.TransferTypeGive); err != nil {
		// The point is already granted; losing the log entry weakens the
		// daily-limit window but must not fail the give.
		log.Error().Err(err).
			Str("guild_id", guildID).
			Str("giver_id", giver.ID).
			Str("receiver_id", receiver.ID).
			Msg("Failed to append transfer record")
	} else if _, err := s.transferRepo.TrimToLast(ctx, guildID, s.cfg.LogRetention); err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to trim transfer log")
	}

	s.recordAnomaly(ctx, guildID, giver.ID, receiver.ID)

	rank, err := s.accountRepo.GetRank(ctx, guildID, receiver.ID)
	if err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Str("user_id", receiver.ID).Msg("Failed to compute rank")
		rank = 0
	}

	return &GiveOutcome{
		NewTotal: acc.Points,
		Rank:     rank,
		Reason:   reason,
	}, nil
}

// recordAnomaly runs pattern detection after a successful give.
// Detection failures are logged and swallowed: they never block or
// reverse the transfer.
func (s *ReputationService) recordAnomaly(ctx context.Context, guildID, giverID, receiverID string) {
	result, err := s.anomaly.CheckPattern(ctx, guildID, giverID, receiverID)
	if err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("Pattern detection failed")
		return
	}
	if !result.Suspicious {
		return
	}

	dedupSince := time.Now().Add(-s.cfg.SuspiciousDedup)
	logged, err := s.suspiciousRepo.LoggedSince(ctx, guildID, giverID, receiverID, dedupSince)
	if err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("Suspicious dedup check failed")
		return
	}
	if logged {
		return
	}

	if _, err := s.suspiciousRepo.Create(ctx, guildID, giverID, receiverID, result.CountAToB, result.CountBToA); err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to log suspicious pattern")
		return
	}
	if _, err := s.suspiciousRepo.TrimToLast(ctx, guildID, s.cfg.SuspiciousRetention); err != nil {
		log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to trim suspicious records")
	}

	log.Warn().
		Str("guild_id", guildID).
		Str("user_a", giverID).
		Str("user_b", receiverID).
		Int64("count_a_to_b", result.CountAToB).
		Int64("count_b_to_a", result.CountBToA).
		Msg("Reciprocal reputation pattern flagged")
}

// GetRep retrieves a member's points, rank and last-received timestamp.
// A member without an account reads as zero points, unranked.
func (s *ReputationService) GetRep(ctx context.Context, guildID, userID string) (*RepInfo, error) {
	acc, err := s.accountRepo.Get(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return &RepInfo{}, nil
		}
		return nil, err
	}

	rank, err := s.accountRepo.GetRank(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	return &RepInfo{
		Points:         acc.Points,
		Rank:           rank,
		LastReceivedAt: acc.LastReceivedAt,
	}, nil
}

// GetHistory retrieves the transfers a member has received, newest first.
func (s *ReputationService) GetHistory(ctx context.Context, guildID, userID string, limit int) ([]*model.Transfer, error) {
	return s.transferRepo.GetReceivedByUser(ctx, guildID, userID, limit)
}

// ResetReputation zeroes a member's points and logs a reset record.
// Admin-only; the caller is responsible for authorization.
func (s *ReputationService) ResetReputation(ctx context.Context, guildID, targetID, adminID, channelID string) (*model.Account, error) {
	acc, err := s.accountRepo.GetOrCreate(ctx, guildID, targetID)
	if err != nil {
		return nil, err
	}

	if acc.Points > 0 {
		acc, err = s.accountRepo.ResetPoints(ctx, guildID, targetID)
		if err != nil {
			return nil, err
		}
	}

	reason := fmt.Sprintf("Reputation reset by moderator %s", adminID)
	if _, err := s.transferRepo.Create(ctx, guildID, adminID, targetID, reason, channelID, model.TransferTypeReset); err != nil {
		log.Error().Err(err).
			Str("guild_id", guildID).
			Str("target_id", targetID).
			Msg("Failed to log reputation reset")
	}

	return acc, nil
}

func rejected(d Decision) *GiveOutcome {
	return &GiveOutcome{Rejected: true, Code: d.Code, Message: d.Message}
}
