package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/finchbot/modmail/pkg/ticketing"
)

const (
	// PanelOpenButtonID is the ID for the panel's open ticket button.
	PanelOpenButtonID = "modmail_panel_open"

	// TicketEmoji is the emoji on the panel button. (Incoming envelope)
	TicketEmoji = "\U0001F4E8"
)

func panelEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Need help?",
		Description: "Press the button below to open a private ticket with the staff team. The conversation happens in your DMs.",
		Color:       0x5865F2,
	}
}

func panelComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Open ticket",
					Style:    discordgo.PrimaryButton,
					Emoji:    &discordgo.ComponentEmoji{Name: TicketEmoji},
					CustomID: PanelOpenButtonID,
				},
			},
		},
	}
}

func panelHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	channel := subOptions(i)["channel"].ChannelValue(nil)

	msg, err := a.Discord().ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{panelEmbed()},
		Components: panelComponents(),
	})
	if err != nil {
		return fmt.Errorf("error posting panel: %w", err)
	}

	if err := a.Store().Update(func(s *entities.Settings) error {
		s.PanelChannelID = channel.ID
		s.PanelMessageID = msg.ID
		return nil
	}); err != nil {
		return fmt.Errorf("error saving panel location: %w", err)
	}
	return respondEphemeral(a, i, fmt.Sprintf("Panel posted in <#%s>.", channel.ID))
}

func refreshPanelHandler(a IApp, i *discordgo.InteractionCreate) error {
	if ok, err := requireManageServer(a, i); !ok {
		return err
	}

	settings := a.Store().Snapshot()
	if settings.PanelChannelID == "" || settings.PanelMessageID == "" {
		return respondEphemeral(a, i, "No panel has been posted yet.")
	}

	embeds := []*discordgo.MessageEmbed{panelEmbed()}
	components := panelComponents()
	if _, err := a.Discord().ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    settings.PanelChannelID,
		ID:         settings.PanelMessageID,
		Embeds:     &embeds,
		Components: &components,
	}); err != nil {
		return fmt.Errorf("error refreshing panel: %w", err)
	}
	return respondEphemeral(a, i, "Panel refreshed.")
}

// panelOpenHandler opens a ticket straight from the panel button; pressing
// the button is already an explicit request, so no confirmation gate runs.
func panelOpenHandler(a IApp, i *discordgo.InteractionCreate) error {
	user := interactionUser(i)
	if user == nil {
		return errors.New("interaction has no user")
	}

	if remaining := a.Cooldowns().Remaining(user.ID); remaining > 0 {
		return respondEphemeral(a, i, fmt.Sprintf("Please wait %ds before opening another ticket.", int(remaining.Seconds())+1))
	}

	// Channel creation can outlive the interaction response window, so
	// acknowledge now and follow up with the result.
	if err := a.Session().InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		return fmt.Errorf("error acknowledging interaction: %w", err)
	}

	_, created, err := a.Manager().OpenTicket(user.ID)
	switch {
	case errors.Is(err, ticketing.ErrNotConfigured):
		return followupEphemeral(a, i, "The support system is not set up yet. Please try again later.")
	case errors.Is(err, ticketing.ErrNotAMember):
		return followupEphemeral(a, i, "You need to be a member of this server to open a ticket.")
	case err != nil:
		if followErr := followupEphemeral(a, i, ErrUserErrorProcessing); followErr != nil {
			a.Log().Error("Error following up interaction", slog.String(logging.KeyError, followErr.Error()))
		}
		return fmt.Errorf("error opening ticket: %w", err)
	}

	if created {
		TicketsOpened.Inc()
		a.Cooldowns().Start(user.ID)
		return followupEphemeral(a, i, "Your ticket is open. Check your DMs to talk to the staff team.")
	}
	return followupEphemeral(a, i, "You already have an open ticket. Check your DMs.")
}

func followupEphemeral(a IApp, i *discordgo.InteractionCreate, content string) error {
	_, err := a.Session().FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}
