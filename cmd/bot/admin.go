package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/ticketing"
)

const (
	// ModmailCmdName is the admin command for configuring the bot.
	ModmailCmdName = "modmail"

	// CloseCmdName is the command for closing the current ticket.
	CloseCmdName = "close"

	// SetStaffRoleCmdName is the sub command for setting the staff role.
	SetStaffRoleCmdName = "set_staff_role"

	// SetLogChannelCmdName is the sub command for setting the log channel.
	SetLogChannelCmdName = "set_log_channel"

	// SetCategoryCmdName is the sub command for setting the ticket category.
	SetCategoryCmdName = "set_category"

	// SetCooldownCmdName is the sub command for setting the ticket cooldown.
	SetCooldownCmdName = "set_cooldown"

	// SetKeywordsCmdName is the sub command for setting the close keywords.
	SetKeywordsCmdName = "set_keywords"

	// SettingsCmdName is the sub command for showing the current settings.
	SettingsCmdName = "settings"

	// PanelCmdName is the sub command for posting the open-ticket panel.
	PanelCmdName = "panel"

	// RefreshPanelCmdName is the sub command for re-rendering the panel.
	RefreshPanelCmdName = "refresh_panel"

	// RefreshCommandsCmdName is the sub command for re-syncing the slash
	// command definitions with Discord.
	RefreshCommandsCmdName = "refresh_commands"

	// HistoryCmdName is the sub command for listing a user's archived tickets.
	HistoryCmdName = "history"
)

// closeTimeout bounds the whole close sequence, summarizer included.
const closeTimeout = 30 * time.Second

var (
	// modmailCmd is the command for configuring the bot.
	modmailCmd = &discordgo.ApplicationCommand{
		Name:        ModmailCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "This is the command for configuring the modmail bot.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        SetStaffRoleCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This sets the role that can see and answer tickets.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "role",
						Type:        discordgo.ApplicationCommandOptionRole,
						Description: "The staff role.",
						Required:    true,
					},
				},
			},
			{
				Name:        SetLogChannelCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This sets the channel that receives transcripts and ticket events.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "channel",
						Type:        discordgo.ApplicationCommandOptionChannel,
						Description: "The log channel.",
						ChannelTypes: []discordgo.ChannelType{
							discordgo.ChannelTypeGuildText,
						},
						Required: true,
					},
				},
			},
			{
				Name:        SetCategoryCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This sets the category that ticket channels are created under.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "category",
						Type:        discordgo.ApplicationCommandOptionChannel,
						Description: "The ticket category.",
						ChannelTypes: []discordgo.ChannelType{
							discordgo.ChannelTypeGuildCategory,
						},
						Required: true,
					},
				},
			},
			{
				Name:        SetCooldownCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This sets how long users must wait between tickets.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "seconds",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Description: "The cooldown in seconds. 0 disables the cooldown.",
						Required:    true,
					},
				},
			},
			{
				Name:        SetKeywordsCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This sets the keywords staff can type to close or solve a ticket.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "solve",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The keyword that marks a ticket as solved.",
					},
					{
						Name:        "close",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The keyword that closes a ticket.",
					},
				},
			},
			{
				Name:        SettingsCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This shows the current configuration.",
			},
			{
				Name:        PanelCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This posts the open-ticket panel in a channel.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "channel",
						Type:        discordgo.ApplicationCommandOptionChannel,
						Description: "The channel to post the panel in.",
						ChannelTypes: []discordgo.ChannelType{
							discordgo.ChannelTypeGuildText,
						},
						Required: true,
					},
				},
			},
			{
				Name:        RefreshPanelCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This re-renders the previously posted panel.",
			},
			{
				Name:        RefreshCommandsCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This re-syncs the slash commands with Discord.",
			},
			{
				Name:        HistoryCmdName,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "This lists a user's archived tickets.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "user",
						Type:        discordgo.ApplicationCommandOptionUser,
						Description: "The user to look up.",
						Required:    true,
					},
				},
			},
		},
	}

	// closeCmd is the command for closing the ticket in the current channel.
	closeCmd = &discordgo.ApplicationCommand{
		Name:        CloseCmdName,
		Type:        discordgo.ChatApplicationCommand,
		Description: "This closes the ticket for the channel that the command was executed in.",
	}
)

func modmailCmdController(_ IApp, subcommand string) (commandProcessor, error) {
	switch subcommand {
	case SetStaffRoleCmdName:
		return setStaffRoleHandler, nil
	case SetLogChannelCmdName:
		return setLogChannelHandler, nil
	case SetCategoryCmdName:
		return setCategoryHandler, nil
	case SetCooldownCmdName:
		return setCooldownHandler, nil
	case SetKeywordsCmdName:
		return setKeywordsHandler, nil
	case SettingsCmdName:
		return settingsHandler, nil
	case PanelCmdName:
		return panelHandler, nil
	case RefreshPanelCmdName:
		return refreshPanelHandler, nil
	case RefreshCommandsCmdName:
		return refreshCommandsHandler, nil
	case HistoryCmdName:
		return historyHandler, nil
	default:
		return nil, fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

func closeCmdController(_ IApp, _ string) (commandProcessor, error) {
	return closeTicketCmdHandler, nil
}

// requireManageServer gates the configuration commands. It responds to the
// interaction itself when the caller is denied, and reports whether the
// processor should continue.
func requireManageServer(a IApp, i *discordgo.InteractionCreate) (bool, error) {
	if i.Member == nil {
		return false, respondEphemeral(a, i, "This command can only be used in a server.")
	}
	if i.Member.Permissions&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) == 0 {
		return false, respondEphemeral(a, i, "You need the Manage Server permission to do that.")
	}
	return true, nil
}

// subOptions flattens the options of the invoked subcommand by name.
func subOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return out
	}
	for _, opt := range data.Options[0].Options {
		out[opt.Name] = opt
	}
	return out
}

func setStaffRoleHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	role := subOptions(i)["role"].RoleValue(nil, "")
	if err := a.Store().Update(func(s *entities.Settings) error {
		s.StaffRoleID = role.ID
		return nil
	}); err != nil {
		return fmt.Errorf("error saving staff role: %w", err)
	}
	return respondEphemeral(a, i, fmt.Sprintf("Staff role set to <@&%s>.", role.ID))
}

func setLogChannelHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	channel := subOptions(i)["channel"].ChannelValue(nil)
	if err := a.Store().Update(func(s *entities.Settings) error {
		s.LogChannelID = channel.ID
		return nil
	}); err != nil {
		return fmt.Errorf("error saving log channel: %w", err)
	}
	return respondEphemeral(a, i, fmt.Sprintf("Log channel set to <#%s>.", channel.ID))
}

func setCategoryHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	category := subOptions(i)["category"].ChannelValue(nil)
	if err := a.Store().Update(func(s *entities.Settings) error {
		s.TicketCategoryID = category.ID
		return nil
	}); err != nil {
		return fmt.Errorf("error saving ticket category: %w", err)
	}
	return respondEphemeral(a, i, fmt.Sprintf("Ticket category set to <#%s>.", category.ID))
}

func setCooldownHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	seconds := subOptions(i)["seconds"].IntValue()
	if seconds < 0 {
		return respondEphemeral(a, i, "The cooldown cannot be negative.")
	}

	if err := a.Store().Update(func(s *entities.Settings) error {
		s.CooldownSeconds = int(seconds)
		return nil
	}); err != nil {
		return fmt.Errorf("error saving cooldown: %w", err)
	}

	if seconds == 0 {
		return respondEphemeral(a, i, "Ticket cooldown disabled.")
	}
	return respondEphemeral(a, i, fmt.Sprintf("Ticket cooldown set to %ds.", seconds))
}

func setKeywordsHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	opts := subOptions(i)
	var solve, closeKw string
	if opt, ok := opts["solve"]; ok {
		solve = strings.ToLower(strings.TrimSpace(opt.StringValue()))
	}
	if opt, ok := opts["close"]; ok {
		closeKw = strings.ToLower(strings.TrimSpace(opt.StringValue()))
	}

	if solve == "" && closeKw == "" {
		return respondEphemeral(a, i, "Provide at least one keyword to change.")
	}

	if err := a.Store().Update(func(s *entities.Settings) error {
		if solve != "" {
			s.SolveKeyword = solve
		}
		if closeKw != "" {
			s.CloseKeyword = closeKw
		}
		return nil
	}); err != nil {
		return fmt.Errorf("error saving keywords: %w", err)
	}

	settings := a.Store().Snapshot()
	return respondEphemeral(a, i, fmt.Sprintf("Keywords updated: solve=%q, close=%q.", settings.SolveKeyword, settings.CloseKeyword))
}

func settingsHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	settings := a.Store().Snapshot()

	display := func(kind, id string) string {
		if id == "" {
			return "not set"
		}
		return fmt.Sprintf("<%s%s>", kind, id)
	}

	lines := []string{
		fmt.Sprintf("Staff role: %s", display("@&", settings.StaffRoleID)),
		fmt.Sprintf("Ticket category: %s", display("#", settings.TicketCategoryID)),
		fmt.Sprintf("Log channel: %s", display("#", settings.LogChannelID)),
		fmt.Sprintf("Cooldown: %ds", settings.CooldownSeconds),
		fmt.Sprintf("Keywords: solve=%q, close=%q", settings.SolveKeyword, settings.CloseKeyword),
		fmt.Sprintf("Open tickets: %d", len(settings.Tickets)),
	}
	if !settings.Configured() {
		lines = append(lines, "", "Tickets cannot be opened until the staff role and category are set.")
	}
	return respondEphemeral(a, i, strings.Join(lines, "\n"))
}

// refreshCommandsHandler re-registers the slash commands, picking up any
// definition changes. Creating a guild command with an existing name
// overwrites it in place.
func refreshCommandsHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	for _, cmd := range []*discordgo.ApplicationCommand{modmailCmd, closeCmd} {
		if _, err := a.Session().ApplicationCommandCreate(ApplicationId, GuildId, cmd); err != nil {
			return fmt.Errorf("error refreshing %s command: %w", cmd.Name, err)
		}
	}
	return respondEphemeral(a, i, "Slash commands refreshed.")
}

func historyHandler(a IApp, i *discordgo.InteractionCreate) error {
	user := interactionUser(i)
	if i.Member == nil || user == nil {
		return respondEphemeral(a, i, "This command can only be used in a server.")
	}

	if err := a.Manager().AuthorizeStaff(user.ID, i.ChannelID); err != nil {
		if errors.Is(err, ticketing.ErrNotAuthorized) {
			return respondEphemeral(a, i, "You are not allowed to view ticket history.")
		}
		return err
	}

	if a.Archive() == nil {
		return respondEphemeral(a, i, "Transcript archiving is not enabled.")
	}

	target := subOptions(i)["user"].UserValue(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transcripts, err := a.Archive().GetTranscriptsByUser(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("error fetching ticket history: %w", err)
	}
	if len(transcripts) == 0 {
		return respondEphemeral(a, i, "No archived tickets for that user.")
	}

	// Show the five most recent.
	start := 0
	if len(transcripts) > 5 {
		start = len(transcripts) - 5
	}
	lines := []string{fmt.Sprintf("Archived tickets for <@%s> (%d total):", target.ID, len(transcripts))}
	for _, tr := range transcripts[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s (%d messages)",
			tr.ClosedAt.Time().UTC().Format("2006-01-02"), tr.Summary, len(tr.Entries)))
	}
	return respondEphemeral(a, i, strings.Join(lines, "\n"))
}

func closeTicketCmdHandler(a IApp, i *discordgo.InteractionCreate) error {
	user := interactionUser(i)
	if i.Member == nil || user == nil {
		return respondEphemeral(a, i, "This command can only be used in a server.")
	}

	if a.Manager().TicketForChannel(i.ChannelID) == nil {
		return respondEphemeral(a, i, "This channel is not a ticket.")
	}

	if err := a.Manager().AuthorizeStaff(user.ID, i.ChannelID); err != nil {
		if errors.Is(err, ticketing.ErrNotAuthorized) {
			return respondEphemeral(a, i, "You are not allowed to close tickets.")
		}
		return err
	}

	// Respond before the close tears the channel down; afterwards there is
	// nothing left to respond to.
	if err := respondEphemeral(a, i, "Closing this ticket and saving the transcript."); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := a.Manager().CloseTicket(ctx, i.ChannelID, user.ID); err != nil {
		return fmt.Errorf("error closing ticket: %w", err)
	}

	TicketsClosed.Inc()
	return nil
}
