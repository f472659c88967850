// Package handler provides Discord slash command handlers.
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/service"
)

const genericErrorMessage = "Something went wrong while processing the request. Please try again later."

// RepHandler handles the /rep command group.
type RepHandler struct {
	repService     *service.ReputationService
	rankingService *service.RankingService
	roleService    *service.RoleService
	topLimit       int
	historyLimit   int
}

// NewRepHandler creates a new RepHandler.
func NewRepHandler(
	repService *service.ReputationService,
	rankingService *service.RankingService,
	roleService *service.RoleService,
	topLimit int,
	historyLimit int,
) *RepHandler {
	return &RepHandler{
		repService:     repService,
		rankingService: rankingService,
		roleService:    roleService,
		topLimit:       topLimit,
		historyLimit:   historyLimit,
	}
}

// Handle dispatches a /rep subcommand.
func (h *RepHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]

	switch sub.Name {
	case "give":
		h.handleGive(s, i, sub.Options)
	case "check":
		h.handleCheck(s, i, sub.Options)
	case "top":
		h.handleTop(s, i, sub.Options)
	case "history":
		h.handleHistory(s, i, sub.Options)
	case "stats":
		h.handleStats(s, i)
	}
}

// handleGive handles /rep give user reason.
func (h *RepHandler) handleGive(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	if i.Member == nil || i.Member.User == nil {
		return
	}

	targetOpt, ok := options["user"]
	if !ok {
		respondEphemeral(s, i, "You must pick a member to give reputation to.")
		return
	}
	target := targetOpt.UserValue(s)

	reason := ""
	if reasonOpt, ok := options["reason"]; ok {
		reason = strings.TrimSpace(reasonOpt.StringValue())
	}

	giver, err := actorFromMember(i.Member)
	if err != nil {
		log.Error().Err(err).Str("user_id", i.Member.User.ID).Msg("Failed to resolve giver metadata")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	receiver := service.Actor{ID: target.ID, IsBot: target.Bot}

	outcome, err := h.repService.GiveRep(ctx, i.GuildID, giver, receiver, reason, i.ChannelID)
	if err != nil {
		log.Error().Err(err).
			Str("guild_id", i.GuildID).
			Str("giver_id", giver.ID).
			Str("receiver_id", receiver.ID).
			Msg("Give reputation failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if outcome.Rejected {
		respondEphemeral(s, i, outcome.Message)
		return
	}

	respond(s, i, fmt.Sprintf(
		"⭐ %s gave a reputation point to %s — \"%s\"\n%s now has **%d** point(s) (rank #%d).",
		i.Member.User.Mention(), target.Mention(), outcome.Reason,
		target.Mention(), outcome.NewTotal, outcome.Rank,
	))

	h.syncReceiverRoles(ctx, s, i.GuildID, target.ID, outcome.NewTotal)
}

// syncReceiverRoles reconciles the receiver's reward roles after a give.
// Failures are logged only; the transfer already succeeded.
func (h *RepHandler) syncReceiverRoles(ctx context.Context, s *discordgo.Session, guildID, userID string, points int64) {
	member, err := s.GuildMember(guildID, userID)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Str("user_id", userID).Msg("Failed to fetch member for role sync")
		return
	}

	result, err := h.roleService.SyncRoles(ctx, guildID, userID, member.Roles, points)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Str("user_id", userID).Msg("Role sync failed")
		return
	}
	if len(result.Added) > 0 || len(result.Removed) > 0 {
		log.Info().
			Str("guild_id", guildID).
			Str("user_id", userID).
			Strs("added", result.Added).
			Strs("removed", result.Removed).
			Msg("Reward roles synchronized")
	}
}

// handleCheck handles /rep check [user].
func (h *RepHandler) handleCheck(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	target := interactionUser(i)
	if userOpt, ok := options["user"]; ok {
		target = userOpt.UserValue(s)
	}
	if target == nil {
		return
	}

	info, err := h.repService.GetRep(ctx, i.GuildID, target.ID)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Str("user_id", target.ID).Msg("Get reputation failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}

	rank := "unranked"
	if info.Rank > 0 {
		rank = fmt.Sprintf("#%d", info.Rank)
	}
	last := "never"
	if info.LastReceivedAt != nil {
		last = fmt.Sprintf("<t:%d:R>", info.LastReceivedAt.Unix())
	}

	respond(s, i, fmt.Sprintf(
		"%s has **%d** reputation point(s) (%s). Last received: %s.",
		target.Mention(), info.Points, rank, last,
	))
}

// handleTop handles /rep top [limit].
func (h *RepHandler) handleTop(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	limit := h.topLimit
	if limitOpt, ok := options["limit"]; ok {
		limit = int(limitOpt.IntValue())
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 25 {
		limit = 25
	}

	entries, err := h.rankingService.GetLeaderboard(ctx, i.GuildID, limit)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("Get leaderboard failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if len(entries) == 0 {
		respond(s, i, "Nobody has reputation yet. Give the first point with `/rep give`.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 **Reputation leaderboard**\n")
	for _, entry := range entries {
		fmt.Fprintf(&sb, "%d. <@%s> — %d point(s)\n", entry.Rank, entry.UserID, entry.Points)
	}
	respond(s, i, sb.String())
}

// handleHistory handles /rep history [user].
func (h *RepHandler) handleHistory(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	options := optionMap(opts)

	target := interactionUser(i)
	if userOpt, ok := options["user"]; ok {
		target = userOpt.UserValue(s)
	}
	if target == nil {
		return
	}

	transfers, err := h.repService.GetHistory(ctx, i.GuildID, target.ID, h.historyLimit)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Str("user_id", target.ID).Msg("Get history failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}
	if len(transfers) == 0 {
		respond(s, i, fmt.Sprintf("%s has not received any reputation yet.", target.Mention()))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 **Reputation history for %s**\n", target.Mention())
	for _, tr := range transfers {
		fmt.Fprintf(&sb, "• <t:%d:d> from <@%s>: \"%s\"\n", tr.CreatedAt.Unix(), tr.GiverID, tr.Reason)
	}
	respond(s, i, sb.String())
}

// handleStats handles /rep stats.
func (h *RepHandler) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	stats, err := h.rankingService.GetStats(ctx, i.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild_id", i.GuildID).Msg("Get stats failed")
		respondEphemeral(s, i, genericErrorMessage)
		return
	}

	respond(s, i, fmt.Sprintf(
		"📊 **Reputation stats**\nRanked members: %d\nTotal points: %d\nAverage: %.1f\nGiven in last 24h: %d",
		stats.RankedUsers, stats.TotalPoints, stats.AveragePoints, stats.TransfersToday,
	))
}

// actorFromMember builds eligibility metadata from an interaction member.
// The account creation time is derived from the snowflake ID.
func actorFromMember(m *discordgo.Member) (service.Actor, error) {
	createdAt, err := discordgo.SnowflakeTimestamp(m.User.ID)
	if err != nil {
		return service.Actor{}, fmt.Errorf("failed to parse snowflake %q: %w", m.User.ID, err)
	}
	return service.Actor{
		ID:               m.User.ID,
		IsBot:            m.User.Bot,
		AccountCreatedAt: createdAt,
		GuildJoinedAt:    m.JoinedAt,
	}, nil
}

// interactionUser returns the invoking user for guild or DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

// optionMap indexes subcommand options by name.
func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

// respond sends a public interaction response.
func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to respond to interaction")
	}
}

// respondEphemeral sends a response visible only to the invoking user.
func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to respond to interaction")
	}
}
