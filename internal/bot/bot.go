// Package bot wires the Discord session to the reputation handlers.
package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"discord-rep-bot/internal/config"
	"discord-rep-bot/internal/handler"
)

// Dependencies holds everything the bot needs to serve interactions.
type Dependencies struct {
	Config       *config.Config
	RepHandler   *handler.RepHandler
	AdminHandler *handler.AdminHandler
}

// Bot wraps the Discord session and the interaction router.
type Bot struct {
	deps     *Dependencies
	session  *discordgo.Session
	commands []*discordgo.ApplicationCommand
}

// New creates a new Bot instance.
func New(deps *Dependencies) (*Bot, error) {
	session, err := discordgo.New("Bot " + deps.Config.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	b := &Bot{
		deps:    deps,
		session: session,
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)

	return b, nil
}

// Start opens the gateway connection and registers slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}

	return nil
}

// Stop removes the registered commands and closes the session.
func (b *Bot) Stop() error {
	b.removeCommands()
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	return nil
}

// Session exposes the underlying session for role management.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Bot connected")
}

// onInteraction routes slash commands. Interactions from guilds outside
// the allow-list are ignored; /repadmin additionally requires an admin.
func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		return
	}
	if !b.deps.Config.IsGuildAllowed(i.GuildID) {
		log.Debug().Str("guild_id", i.GuildID).Msg("Interaction from disallowed guild ignored")
		return
	}

	switch i.ApplicationCommandData().Name {
	case "rep":
		b.deps.RepHandler.Handle(s, i)
	case "repadmin":
		if !b.isAdmin(i) {
			b.respondForbidden(s, i)
			return
		}
		b.deps.AdminHandler.Handle(s, i)
	}
}

// isAdmin checks the configured admin list, falling back to the guild
// Manage Server permission.
func (b *Bot) isAdmin(i *discordgo.InteractionCreate) bool {
	if i.Member == nil || i.Member.User == nil {
		return false
	}
	if b.deps.Config.IsAdmin(i.Member.User.ID) {
		return true
	}
	return i.Member.Permissions&discordgo.PermissionManageServer != 0
}

func (b *Bot) respondForbidden(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "You are not allowed to use admin commands.",
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to respond to interaction")
	}
}
