package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// getCommandDefinitions returns the slash commands the bot registers.
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	minReason := b.deps.Config.Reputation.ReasonMinLength
	maxReason := b.deps.Config.Reputation.ReasonMaxLength

	return []*discordgo.ApplicationCommand{
		{
			Name:        "rep",
			Description: "Reputation commands",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "give",
					Description: "Give a reputation point to a member",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "The member to give reputation to",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "reason",
							Description: fmt.Sprintf("Why they deserve it (%d-%d characters)", minReason, maxReason),
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "check",
					Description: "Check a member's reputation",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "The member to check (defaults to you)",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "top",
					Description: "Show the reputation leaderboard",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "limit",
							Description: "How many members to show (max 25)",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "history",
					Description: "Show the reputation a member received",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "The member to inspect (defaults to you)",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stats",
					Description: "Show guild-wide reputation statistics",
				},
			},
		},
		{
			Name:        "repadmin",
			Description: "Reputation administration",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reset",
					Description: "Reset a member's reputation to zero",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "The member to reset",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reward-add",
					Description: "Grant a role once members reach a reputation threshold",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "The role to grant",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "threshold",
							Description: "The reputation required",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reward-remove",
					Description: "Stop granting a role for reputation",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionRole,
							Name:        "role",
							Description: "The role to remove",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "reward-list",
					Description: "List the configured reward roles",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "suspicious",
					Description: "List flagged reputation-trading patterns",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "all",
							Description: "Include already reviewed records",
							Required:    false,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "review",
					Description: "Mark a flagged pattern as reviewed",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "id",
							Description: "The record id from /repadmin suspicious",
							Required:    true,
						},
					},
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord.
func (b *Bot) registerCommands() error {
	log.Info().Msg("Registering slash commands")

	definitions := b.getCommandDefinitions()
	registered := make([]*discordgo.ApplicationCommand, 0, len(definitions))

	for _, cmd := range definitions {
		created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registered = append(registered, created)
		log.Debug().Str("name", cmd.Name).Msg("Registered command")
	}

	b.commands = registered
	log.Info().Int("count", len(registered)).Msg("Slash commands registered")
	return nil
}

// removeCommands removes the commands registered by this process.
func (b *Bot) removeCommands() {
	for _, cmd := range b.commands {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, "", cmd.ID); err != nil {
			log.Warn().Err(err).Str("name", cmd.Name).Msg("Failed to remove command")
		}
	}
}
