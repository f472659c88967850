package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/model"
	"discord-rep-bot/internal/repository"
)

// RoleManager is the subset of the Discord session the synchronizer needs.
// *discordgo.Session satisfies it.
type RoleManager interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// SyncResult reports which reward roles were changed for a member.
// Failed holds the role IDs whose add/remove call failed; failures on one
// role never block the others.
type SyncResult struct {
	Added   []string
	Removed []string
	Failed  []string
}

// DiffRoles computes the reward-role changes for a member with the given
// points. Roles outside the configured reward set are never touched.
// Calling it again with unchanged points yields an empty diff.
func DiffRoles(currentRoles []string, rewards []*model.RoleReward, points int64) (add, remove []string) {
	have := make(map[string]bool, len(currentRoles))
	for _, id := range currentRoles {
		have[id] = true
	}

	for _, reward := range rewards {
		entitled := reward.Threshold <= points
		switch {
		case entitled && !have[reward.RoleID]:
			add = append(add, reward.RoleID)
		case !entitled && have[reward.RoleID]:
			remove = append(remove, reward.RoleID)
		}
	}
	return add, remove
}

// RoleService reconciles a member's role set against the guild's
// reputation thresholds. Role membership is a derived projection of the
// member's points.
type RoleService struct {
	rewardRepo *repository.RoleRewardRepository
	roles      RoleManager
}

// NewRoleService creates a new RoleService instance.
func NewRoleService(rewardRepo *repository.RoleRewardRepository, roles RoleManager) *RoleService {
	return &RoleService{
		rewardRepo: rewardRepo,
		roles:      roles,
	}
}

// SyncRoles reconciles the member's reward roles with their point total.
// Each add/remove is attempted independently; failures are collected into
// the result rather than returned as an error.
func (s *RoleService) SyncRoles(ctx context.Context, guildID, userID string, currentRoles []string, points int64) (*SyncResult, error) {
	rewards, err := s.rewardRepo.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role rewards: %w", err)
	}

	add, remove := DiffRoles(currentRoles, rewards, points)

	result := &SyncResult{}
	for _, roleID := range add {
		if err := s.roles.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
			log.Warn().Err(err).
				Str("guild_id", guildID).
				Str("user_id", userID).
				Str("role_id", roleID).
				Msg("Failed to add reward role")
			result.Failed = append(result.Failed, roleID)
			continue
		}
		result.Added = append(result.Added, roleID)
	}
	for _, roleID := range remove {
		if err := s.roles.GuildMemberRoleRemove(guildID, userID, roleID); err != nil {
			log.Warn().Err(err).
				Str("guild_id", guildID).
				Str("user_id", userID).
				Str("role_id", roleID).
				Msg("Failed to remove reward role")
			result.Failed = append(result.Failed, roleID)
			continue
		}
		result.Removed = append(result.Removed, roleID)
	}

	return result, nil
}

// SetReward creates or updates a threshold for a role.
func (s *RoleService) SetReward(ctx context.Context, guildID, roleID string, threshold int64) (*model.RoleReward, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must be non-negative, got %d", threshold)
	}
	return s.rewardRepo.Upsert(ctx, guildID, roleID, threshold)
}

// RemoveReward deletes a role's reward entry.
func (s *RoleService) RemoveReward(ctx context.Context, guildID, roleID string) (bool, error) {
	return s.rewardRepo.Delete(ctx, guildID, roleID)
}

// ListRewards retrieves a guild's reward entries, thresholds ascending.
func (s *RoleService) ListRewards(ctx context.Context, guildID string) ([]*model.RoleReward, error) {
	return s.rewardRepo.ListByGuild(ctx, guildID)
}
