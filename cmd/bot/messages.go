package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/finchbot/modmail/pkg/ticketing"
)

// previewLimit caps how much of the triggering message is quoted back in the
// confirmation prompt.
const previewLimit = 100

func messageCreateHandler(a IApp) func(s *discordgo.Session, m *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		TotalDiscordEvents.WithLabelValues("message_create").Inc()

		if m.Author == nil || m.Author.Bot {
			return
		}

		if m.GuildID == "" {
			handleDirectMessage(a, m)
			return
		}
		handleGuildMessage(a, m)
	}
}

// handleDirectMessage relays DMs from users with open tickets; a DM from
// anyone else is an implicit request to open one, which runs through the
// confirmation gate first.
func handleDirectMessage(a IApp, m *discordgo.MessageCreate) {
	if a.Manager().TicketForUser(m.Author.ID) != nil {
		relayUserMessage(a, m.Message)
		return
	}

	if !a.Store().Snapshot().Configured() {
		sendDMNotice(a, m.ChannelID, "The support system is not set up yet. Please try again later.")
		return
	}

	// The prompt is already on screen; the buttons resolve it.
	if a.Gates().Pending(m.Author.ID) {
		return
	}

	if remaining := a.Cooldowns().Remaining(m.Author.ID); remaining > 0 {
		sendDMNotice(a, m.ChannelID, fmt.Sprintf("Please wait %ds before opening another ticket.", int(remaining.Seconds())+1))
		return
	}

	outcome, err := a.Gates().Request(m.Author.ID, messagePreview(m.Message), ticketing.DefaultGateTimeout)
	if err != nil {
		if !errors.Is(err, ticketing.ErrGatePending) {
			a.Log().Error("Error running confirmation gate", slog.String(logging.KeyError, err.Error()))
		}
		return
	}
	ConfirmationOutcomes.WithLabelValues(outcome.String()).Inc()
	if outcome != ticketing.GateConfirmed {
		return
	}

	_, created, err := a.Manager().OpenTicket(m.Author.ID)
	switch {
	case errors.Is(err, ticketing.ErrNotAMember):
		sendDMNotice(a, m.ChannelID, "You need to be a member of the server to open a ticket.")
		return
	case err != nil:
		a.Log().Error("Error opening ticket from DM", slog.String(logging.KeyError, err.Error()))
		sendDMNotice(a, m.ChannelID, ErrUserErrorProcessing)
		return
	}

	if created {
		TicketsOpened.Inc()
		a.Cooldowns().Start(m.Author.ID)
	}

	// Seed the fresh ticket with the message that triggered it.
	relayUserMessage(a, m.Message)
}

// handleGuildMessage relays staff messages out of ticket channels, after
// checking for the close and solve keywords.
func handleGuildMessage(a IApp, m *discordgo.MessageCreate) {
	if a.Manager().TicketForChannel(m.ChannelID) == nil {
		return
	}

	settings := a.Store().Snapshot()
	content := strings.ToLower(strings.TrimSpace(m.Content))

	switch {
	case keywordTriggered(content, settings.CloseKeyword):
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if err := a.Manager().CloseTicket(ctx, m.ChannelID, m.Author.ID); err != nil {
			if !errors.Is(err, ticketing.ErrNotAuthorized) {
				a.Log().Error("Error closing ticket via keyword", slog.String(logging.KeyError, err.Error()))
			}
			return
		}
		TicketsClosed.Inc()
		return

	case keywordTriggered(content, settings.SolveKeyword):
		if err := a.Manager().MarkSolved(m.ChannelID, m.Author.ID); err != nil {
			if !errors.Is(err, ticketing.ErrNotAuthorized) {
				a.Log().Error("Error marking ticket solved", slog.String(logging.KeyError, err.Error()))
			}
		}
		return
	}

	if err := a.Relay().ForwardStaffMessage(m.Message); err != nil {
		if errors.Is(err, ticketing.ErrNotAuthorized) {
			// Non-staff chatter in a ticket channel is not relayed.
			a.Log().Debug("Ignoring non-staff message in ticket channel", slog.String("user_id", m.Author.ID))
			return
		}
		RelayFailures.WithLabelValues("staff_to_user").Inc()
		a.Log().Error("Error relaying staff message", slog.String(logging.KeyError, err.Error()))
		return
	}
	RelayedMessages.WithLabelValues("staff_to_user").Inc()
}

// keywordTriggered reports whether a staff message fires a keyword action.
// The message triggers when it equals the keyword or starts with it, so a
// reply like "solved, thanks" still counts.
func keywordTriggered(content, keyword string) bool {
	return keyword != "" && strings.HasPrefix(content, keyword)
}

func relayUserMessage(a IApp, msg *discordgo.Message) {
	if err := a.Relay().ForwardUserMessage(msg); err != nil {
		RelayFailures.WithLabelValues("user_to_staff").Inc()
		a.Log().Error("Error relaying user message", slog.String(logging.KeyError, err.Error()))
		sendDMNotice(a, msg.ChannelID, "Your message could not be passed on. Please try again.")
		return
	}
	RelayedMessages.WithLabelValues("user_to_staff").Inc()
}

func sendDMNotice(a IApp, channelID, content string) {
	if _, err := a.Discord().ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
	}); err != nil {
		a.Log().Warn("Error sending DM notice", slog.String(logging.KeyError, err.Error()))
	}
}

func messagePreview(msg *discordgo.Message) string {
	preview := strings.TrimSpace(msg.Content)
	if preview == "" && len(msg.Attachments) > 0 {
		return "(attachment)"
	}

	runes := []rune(preview)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "…"
	}
	return preview
}

// gateConfirmHandler and gateCancelHandler feed the prompt's buttons into the
// waiting gate.
func gateConfirmHandler(a IApp, i *discordgo.InteractionCreate) error {
	return resolveGate(a, i, ticketing.GateConfirmed)
}

func gateCancelHandler(a IApp, i *discordgo.InteractionCreate) error {
	return resolveGate(a, i, ticketing.GateCancelled)
}

func resolveGate(a IApp, i *discordgo.InteractionCreate, outcome ticketing.GateOutcome) error {
	user := interactionUser(i)
	if user == nil || i.Message == nil {
		return errors.New("component interaction missing user or message")
	}

	err := a.Gates().Resolve(i.Message.ID, user.ID, outcome)
	switch {
	case errors.Is(err, ticketing.ErrNoPendingGate):
		return respondEphemeral(a, i, "This prompt has expired.")
	case errors.Is(err, ticketing.ErrNotAuthorized):
		return respondEphemeral(a, i, "This prompt is not yours to answer.")
	case err != nil:
		return err
	}
	return respondDeferredUpdate(a, i)
}
