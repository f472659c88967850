package service

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"discord-rep-bot/internal/model"
	"discord-rep-bot/internal/pkg/lock"
	"discord-rep-bot/internal/repository"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container with the reputation tables.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS rep_accounts (
			guild_id VARCHAR(32) NOT NULL,
			user_id VARCHAR(32) NOT NULL,
			points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
			last_received_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rep_transfers (
			id BIGSERIAL PRIMARY KEY,
			guild_id VARCHAR(32) NOT NULL,
			giver_id VARCHAR(32) NOT NULL,
			receiver_id VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			channel_id VARCHAR(32) NOT NULL DEFAULT '',
			type VARCHAR(16) NOT NULL DEFAULT 'give',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS rep_cooldowns (
			guild_id VARCHAR(32) NOT NULL,
			giver_id VARCHAR(32) NOT NULL,
			receiver_id VARCHAR(32) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (guild_id, giver_id, receiver_id)
		)`,
		`CREATE TABLE IF NOT EXISTS rep_suspicious (
			id BIGSERIAL PRIMARY KEY,
			guild_id VARCHAR(32) NOT NULL,
			user_a VARCHAR(32) NOT NULL,
			user_b VARCHAR(32) NOT NULL,
			count_a_to_b BIGINT NOT NULL DEFAULT 0,
			count_b_to_a BIGINT NOT NULL DEFAULT 0,
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// testEnv wires the concrete repositories into a ReputationService the way
// main does, with direct repository access for assertions.
type testEnv struct {
	service        *ReputationService
	accountRepo    *repository.AccountRepository
	transferRepo   *repository.TransferRepository
	cooldownRepo   *repository.CooldownRepository
	suspiciousRepo *repository.SuspiciousRepository
}

func newTestEnv(pool *pgxpool.Pool, dailyLimit int64) *testEnv {
	accountRepo := repository.NewAccountRepository(pool)
	transferRepo := repository.NewTransferRepository(pool)
	cooldownRepo := repository.NewCooldownRepository(pool)
	suspiciousRepo := repository.NewSuspiciousRepository(pool)

	rules := Rules{
		MinAccountAge: 7 * 24 * time.Hour,
		MinMembership: 3 * 24 * time.Hour,
		DailyLimit:    dailyLimit,
		Cooldown:      7 * 24 * time.Hour,
	}

	eligibility := NewEligibilityService(transferRepo, cooldownRepo, rules)
	anomaly := NewAnomalyService(transferRepo, 30, 3)

	svc := NewReputationService(
		accountRepo,
		transferRepo,
		cooldownRepo,
		suspiciousRepo,
		eligibility,
		anomaly,
		lock.NewGiverLock(),
		ReputationConfig{
			ReasonMinLength:     5,
			ReasonMaxLength:     200,
			LogRetention:        1000,
			SuspiciousRetention: 100,
			SuspiciousDedup:     7 * 24 * time.Hour,
		},
	)

	return &testEnv{
		service:        svc,
		accountRepo:    accountRepo,
		transferRepo:   transferRepo,
		cooldownRepo:   cooldownRepo,
		suspiciousRepo: suspiciousRepo,
	}
}

// member builds an eligible actor with the given account and membership age.
func member(id string, accountAge, memberAge time.Duration) Actor {
	now := time.Now()
	return Actor{
		ID:               id,
		AccountCreatedAt: now.Add(-accountAge),
		GuildJoinedAt:    now.Add(-memberAge),
	}
}

// TestGiveRepFirstGiveThenDailyLimit walks a fresh guild through a first
// give and an immediate retry: the first succeeds with total 1 and rank 1,
// the retry is rejected by the daily limit before touching the ledger.
func TestGiveRepFirstGiveThenDailyLimit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	env := newTestEnv(pool, 1)
	alice := member("alice", 10*24*time.Hour, 5*24*time.Hour)
	bob := Actor{ID: "bob"}

	outcome, err := env.service.GiveRep(ctx, "g1", alice, bob, "Helped me fix a bug", "c1")
	require.NoError(t, err)
	require.False(t, outcome.Rejected)
	assert.Equal(t, int64(1), outcome.NewTotal)
	assert.Equal(t, int64(1), outcome.Rank)
	assert.Equal(t, "Helped me fix a bug", outcome.Reason)

	acc, err := env.accountRepo.Get(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Points)
	assert.NotNil(t, acc.LastReceivedAt)

	history, err := env.transferRepo.GetReceivedByUser(ctx, "g1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TransferTypeGive, history[0].Type)

	// Immediate retry: rejected, no second point, no second record.
	outcome, err = env.service.GiveRep(ctx, "g1", alice, bob, "Again, still great", "c1")
	require.NoError(t, err)
	require.True(t, outcome.Rejected)
	assert.Equal(t, CodeDailyLimit, outcome.Code)
	assert.NotEmpty(t, outcome.Message)

	acc, err = env.accountRepo.Get(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Points)
}

// TestGiveRepCooldownIsPerReceiver checks that with headroom in the daily
// limit, a repeat give to the same receiver is stopped by the atomic
// cooldown acquire while a give to a different receiver goes through.
func TestGiveRepCooldownIsPerReceiver(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	env := newTestEnv(pool, 5)
	alice := member("alice", 10*24*time.Hour, 5*24*time.Hour)

	outcome, err := env.service.GiveRep(ctx, "g1", alice, Actor{ID: "bob"}, "Great code review", "c1")
	require.NoError(t, err)
	require.False(t, outcome.Rejected)

	// Same receiver: the live cooldown row makes the acquire lose.
	outcome, err = env.service.GiveRep(ctx, "g1", alice, Actor{ID: "bob"}, "Another great review", "c1")
	require.NoError(t, err)
	require.True(t, outcome.Rejected)
	assert.Equal(t, CodeCooldown, outcome.Code)

	acc, err := env.accountRepo.Get(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.Points)

	// Different receiver: no cooldown, the give succeeds.
	outcome, err = env.service.GiveRep(ctx, "g1", alice, Actor{ID: "carol"}, "Helped with deployment", "c1")
	require.NoError(t, err)
	require.False(t, outcome.Rejected)
	assert.Equal(t, int64(1), outcome.NewTotal)
}

// TestGiveRepShortReasonLeavesLedgerUntouched checks that reason
// validation rejects before any mutation: no account, no transfer record,
// no cooldown.
func TestGiveRepShortReasonLeavesLedgerUntouched(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	env := newTestEnv(pool, 1)
	alice := member("alice", 10*24*time.Hour, 5*24*time.Hour)
	bob := Actor{ID: "bob"}

	outcome, err := env.service.GiveRep(ctx, "g1", alice, bob, "hi", "c1")
	require.NoError(t, err)
	require.True(t, outcome.Rejected)
	assert.Equal(t, CodeReasonTooShort, outcome.Code)

	_, err = env.accountRepo.Get(ctx, "g1", "bob")
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	history, err := env.transferRepo.GetReceivedByUser(ctx, "g1", "bob", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	cd, err := env.cooldownRepo.GetActive(ctx, "g1", "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, cd)
}

// TestGiveRepFlagsReciprocalPattern seeds prior back-and-forth transfers
// and checks that the give that crosses the reciprocal threshold still
// succeeds while the pair is logged for review.
func TestGiveRepFlagsReciprocalPattern(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	env := newTestEnv(pool, 5)
	alice := member("alice", 10*24*time.Hour, 5*24*time.Hour)
	bob := Actor{ID: "bob"}

	// Prior exchanges outside the 24h window so the daily limit stays clear.
	now := time.Now()
	_, err := env.transferRepo.CreateWithTime(ctx, "g1", "alice", "bob", "Nice bug report", "c1", model.TransferTypeGive, now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = env.transferRepo.CreateWithTime(ctx, "g1", "bob", "alice", "Thanks for the help", "c1", model.TransferTypeGive, now.Add(-36*time.Hour))
	require.NoError(t, err)

	outcome, err := env.service.GiveRep(ctx, "g1", alice, bob, "Helped with testing", "c1")
	require.NoError(t, err)

	// Detection never blocks the transfer.
	require.False(t, outcome.Rejected)
	assert.Equal(t, int64(1), outcome.NewTotal)

	records, err := env.suspiciousRepo.ListByGuild(ctx, "g1", true, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].UserA)
	assert.Equal(t, "bob", records[0].UserB)
	assert.Equal(t, int64(2), records[0].CountAToB)
	assert.Equal(t, int64(1), records[0].CountBToA)

	// The reverse give re-detects the same pair; the dedup window keeps it
	// from being logged twice.
	outcome, err = env.service.GiveRep(ctx, "g1", member("bob", 10*24*time.Hour, 5*24*time.Hour), Actor{ID: "alice"}, "Great documentation", "c1")
	require.NoError(t, err)
	require.False(t, outcome.Rejected)

	records, err = env.suspiciousRepo.ListByGuild(ctx, "g1", false, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// TestResetReputationZeroesAndLogs checks the admin reset path: points go
// to exactly zero and a reset record lands in the log.
func TestResetReputationZeroesAndLogs(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	env := newTestEnv(pool, 5)
	alice := member("alice", 10*24*time.Hour, 5*24*time.Hour)

	outcome, err := env.service.GiveRep(ctx, "g1", alice, Actor{ID: "bob"}, "Helped me fix a bug", "c1")
	require.NoError(t, err)
	require.False(t, outcome.Rejected)

	acc, err := env.service.ResetReputation(ctx, "g1", "bob", "mod", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.Points)

	info, err := env.service.GetRep(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Points)
	assert.Equal(t, int64(0), info.Rank)

	history, err := env.service.GetHistory(ctx, "g1", "bob", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.TransferTypeReset, history[0].Type)
}
