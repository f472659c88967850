package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/repository"
	"discord-rep-bot/internal/service"
)

// AdminHandler handles the /repadmin command group: reputation resets,
// reward-role configuration and suspicious-pattern review.
type AdminHandler struct {
	repService     *service.ReputationService
	roleService    *service.RoleService
	suspiciousRepo *repository.SuspiciousRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	repService *service.ReputationService,
	roleService *service.RoleService,
	suspiciousRepo *repository.SuspiciousRepository,
) *AdminHandler {
	return &AdminHandler{
		repService:     repService,
		roleService:    roleService,
		suspiciousRepo: suspiciousRepo,
	}
}

// Handle dispatches a /repadmin subcommand. Authorization is enforced by
// the bot router before dispatch.
func (h *AdminHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]

	switch sub.Name {
	case "reset":
		h.handleReset(s, i, sub.Options)
	case "reward-add":
		h.handleRewardAdd(s, i, sub.Options)
	case "reward-remove":
		h.handleRewardRemove(s, i, sub.Options)
	case "reward-list":
		h.handleRewardList(s, i)
	case "suspicious":
		h.handleSuspicious(s, i, sub.Options)
	case "review":
		h.handleReview(s, i, sub.Options)
	}
}

// handleReset handles /repadmin reset user.
func (h *AdminHandler) handleReset(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	targetOpt, ok := options["user"]
	if !ok {
		respondEphemeral(s, i, "You must pick a member to reset.")
		return
	}
	target := targetOpt.UserValue(s)
	admin := interactionUser(i)
	if admin == nil {
		return
	}

	acc, err := h.repService.ResetReputation(ctx, i.GuildID, target.ID, admin.ID, i.ChannelID)
	if err != nil {
		log.Error().Err(err).
			Str("guild_id", i.GuildID).
			Str("target_id", target.ID).
			Msg("Reputation reset failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}

	respond(s, i, fmt.Sprintf("🔄 Reputation of %s has been reset to %d.", target.Mention(), acc.Points))
}

// handleRewardAdd handles /repadmin reward-add role threshold.
func (h *AdminHandler) handleRewardAdd(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	roleOpt, okRole := options["role"]
	thresholdOpt, okThreshold := options["threshold"]
	if !okRole || !okThreshold {
		respondEphemeral(s, i, "Both a role and a threshold are required.")
		return
	}
	role := roleOpt.RoleValue(s, i.GuildID)
	threshold := thresholdOpt.IntValue()
	if threshold < 0 {
		respondEphemeral(s, i, "The threshold must be zero or positive.")
		return
	}

	reward, err := h.roleService.SetReward(ctx, i.GuildID, role.ID, threshold)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Str("role_id", role.ID).Msg("Set role reward failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}

	respond(s, i, fmt.Sprintf(
		"✅ Members reaching **%d** reputation will now receive the %s role.",
		reward.Threshold, role.Mention(),
	))
}

// handleRewardRemove handles /repadmin reward-remove role.
func (h *AdminHandler) handleRewardRemove(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	roleOpt, ok := options["role"]
	if !ok {
		respondEphemeral(s, i, "You must pick a role to remove.")
		return
	}
	role := roleOpt.RoleValue(s, i.GuildID)

	removed, err := h.roleService.RemoveReward(ctx, i.GuildID, role.ID)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Str("role_id", role.ID).Msg("Remove role reward failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if !removed {
		respondEphemeral(s, i, fmt.Sprintf("%s is not a configured reward role.", role.Mention()))
		return
	}

	respond(s, i, fmt.Sprintf("🗑️ %s is no longer a reward role.", role.Mention()))
}

// handleRewardList handles /repadmin reward-list.
func (h *AdminHandler) handleRewardList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	rewards, err := h.roleService.ListRewards(ctx, i.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("List role rewards failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if len(rewards) == 0 {
		respond(s, i, "No reward roles configured. Add one with `/repadmin reward-add`.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🎖️ **Reward roles**\n")
	for _, reward := range rewards {
		fmt.Fprintf(&sb, "• <@&%s> at %d point(s)\n", reward.RoleID, reward.Threshold)
	}
	respond(s, i, sb.String())
}

// handleSuspicious handles /repadmin suspicious [all].
func (h *AdminHandler) handleSuspicious(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	unreviewedOnly := true
	if allOpt, ok := options["all"]; ok && allOpt.BoolValue() {
		unreviewedOnly = false
	}

	records, err := h.suspiciousRepo.ListByGuild(ctx, i.GuildID, unreviewedOnly, 20)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("List suspicious records failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if len(records) == 0 {
		respondEphemeral(s, i, "No flagged reputation patterns. 🎉")
		return
	}

	var sb strings.Builder
	sb.WriteString("🚨 **Flagged reputation patterns**\n")
	for _, sp := range records {
		status := "open"
		if sp.Reviewed {
			status = "reviewed"
		}
		fmt.Fprintf(&sb, "`#%d` <@%s> ↔ <@%s> (%d/%d exchanges, %s) <t:%d:d>\n",
			sp.ID, sp.UserA, sp.UserB, sp.CountAToB, sp.CountBToA, status, sp.LoggedAt.Unix())
	}
	respondEphemeral(s, i, sb.String())
}

// handleReview handles /repadmin review id.
func (h *AdminHandler) handleReview(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	idOpt, ok := options["id"]
	if !ok {
		respondEphemeral(s, i, "You must provide the record id to review.")
		return
	}
	id := idOpt.IntValue()

	marked, err := h.suspiciousRepo.MarkReviewed(ctx, i.GuildID, id)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Int64("record_id", id).Msg("Mark reviewed failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if !marked {
		respondEphemeral(s, i, fmt.Sprintf("Record #%d does not exist or was already reviewed.", id))
		return
	}

	respondEphemeral(s, i, fmt.Sprintf("✅ Record #%d marked as reviewed.", id))
}
