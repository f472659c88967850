// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"discord-rep-bot/internal/repository"
)

// Rejection reason codes returned by the eligibility checks.
const (
	CodeSelfTransfer    = "self_transfer"
	CodeBotReceiver     = "bot_receiver"
	CodeBotGiver        = "bot_giver"
	CodeAccountTooYoung = "account_too_young"
	CodeMemberTooYoung  = "member_too_young"
	CodeDailyLimit      = "daily_limit"
	CodeCooldown        = "cooldown"
	CodeReasonTooShort  = "reason_too_short"
	CodeReasonTooLong   = "reason_too_long"
)

// Actor carries the member metadata the eligibility checks need.
type Actor struct {
	ID               string
	IsBot            bool
	AccountCreatedAt time.Time
	GuildJoinedAt    time.Time
}

// Rules holds the eligibility rule constants.
type Rules struct {
	MinAccountAge time.Duration
	MinMembership time.Duration
	DailyLimit    int64
	Cooldown      time.Duration
}

// Decision is the outcome of an eligibility evaluation. When Allowed is
// false, Code and Message identify the first failing check.
type Decision struct {
	Allowed bool
	Code    string
	Message string
}

// EligibilitySnapshot is the ledger state an evaluation reads.
// Capturing it explicitly keeps Evaluate a pure function of its inputs.
type EligibilitySnapshot struct {
	Giver          Actor
	Receiver       Actor
	GivenLast24h   int64
	CooldownActive bool
	Now            time.Time
}

func reject(code, message string) Decision {
	return Decision{Allowed: false, Code: code, Message: message}
}

// Evaluate runs the ordered eligibility checks against a snapshot.
// The first failing check wins; later checks are not evaluated.
func Evaluate(rules Rules, snap EligibilitySnapshot) Decision {
	if snap.Giver.ID == snap.Receiver.ID {
		return reject(CodeSelfTransfer, "You cannot give reputation to yourself.")
	}
	if snap.Receiver.IsBot {
		return reject(CodeBotReceiver, "Bots cannot receive reputation.")
	}
	if snap.Giver.IsBot {
		return reject(CodeBotGiver, "Bots cannot give reputation.")
	}
	if snap.Now.Sub(snap.Giver.AccountCreatedAt) < rules.MinAccountAge {
		return reject(CodeAccountTooYoung, fmt.Sprintf(
			"Your Discord account must be at least %d days old to give reputation.",
			int(rules.MinAccountAge.Hours()/24)))
	}
	if snap.Now.Sub(snap.Giver.GuildJoinedAt) < rules.MinMembership {
		return reject(CodeMemberTooYoung, fmt.Sprintf(
			"You must be a member of this server for at least %d days to give reputation.",
			int(rules.MinMembership.Hours()/24)))
	}
	if snap.GivenLast24h >= rules.DailyLimit {
		return reject(CodeDailyLimit, "You have already given reputation in the last 24 hours.")
	}
	if snap.CooldownActive {
		return cooldownRejection(rules)
	}
	return Decision{Allowed: true}
}

// cooldownRejection is shared between the read-only evaluation and the
// atomic cooldown acquire in the transfer executor.
func cooldownRejection(rules Rules) Decision {
	return reject(CodeCooldown, fmt.Sprintf(
		"You must wait %d days before giving reputation to this member again.",
		int(rules.Cooldown.Hours()/24)))
}

// ValidateReason checks the trimmed reason length against the configured
// bounds. Reason validation runs before any eligibility check.
func ValidateReason(reason string, minLen, maxLen int) Decision {
	n := len([]rune(strings.TrimSpace(reason)))
	if n < minLen {
		return reject(CodeReasonTooShort, fmt.Sprintf(
			"The reason must be at least %d characters long.", minLen))
	}
	if n > maxLen {
		return reject(CodeReasonTooLong, fmt.Sprintf(
			"The reason must be at most %d characters long.", maxLen))
	}
	return Decision{Allowed: true}
}

// EligibilityService gathers ledger state and evaluates give attempts.
// All of its reads are side-effect free.
type EligibilityService struct {
	transferRepo *repository.TransferRepository
	cooldownRepo *repository.CooldownRepository
	rules        Rules
}

// NewEligibilityService creates a new EligibilityService instance.
func NewEligibilityService(
	transferRepo *repository.TransferRepository,
	cooldownRepo *repository.CooldownRepository,
	rules Rules,
) *EligibilityService {
	return &EligibilityService{
		transferRepo: transferRepo,
		cooldownRepo: cooldownRepo,
		rules:        rules,
	}
}

// Rules returns the rule constants the service evaluates against.
func (s *EligibilityService) Rules() Rules {
	return s.rules
}

// Snapshot reads the ledger state needed to evaluate giver → receiver.
func (s *EligibilityService) Snapshot(ctx context.Context, guildID string, giver, receiver Actor) (EligibilitySnapshot, error) {
	snap, err := s.SnapshotForUpdate(ctx, guildID, giver, receiver)
	if err != nil {
		return EligibilitySnapshot{}, err
	}

	cd, err := s.cooldownRepo.GetActive(ctx, guildID, giver.ID, receiver.ID)
	if err != nil {
		return EligibilitySnapshot{}, fmt.Errorf("failed to read cooldown: %w", err)
	}
	snap.CooldownActive = cd != nil

	return snap, nil
}

// SnapshotForUpdate gathers the snapshot without the cooldown read, for
// callers that take the cooldown with an atomic acquire instead of
// evaluating it from a prior read.
func (s *EligibilityService) SnapshotForUpdate(ctx context.Context, guildID string, giver, receiver Actor) (EligibilitySnapshot, error) {
	now := time.Now()

	given, err := s.transferRepo.CountByGiverSince(ctx, guildID, giver.ID, now.Add(-24*time.Hour))
	if err != nil {
		return EligibilitySnapshot{}, fmt.Errorf("failed to count recent gives: %w", err)
	}

	return EligibilitySnapshot{
		Giver:        giver,
		Receiver:     receiver,
		GivenLast24h: given,
		Now:          now,
	}, nil
}

// CanGiveRep evaluates whether the giver may award the receiver right now.
// Read-only; it never mutates the ledger.
func (s *EligibilityService) CanGiveRep(ctx context.Context, guildID string, giver, receiver Actor) (Decision, error) {
	snap, err := s.Snapshot(ctx, guildID, giver, receiver)
	if err != nil {
		return Decision{}, err
	}
	return Evaluate(s.rules, snap), nil
}
