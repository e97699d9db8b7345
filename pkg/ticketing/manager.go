package ticketing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/custom"
	"github.com/finchbot/modmail/pkg/dataaccess"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/finchbot/modmail/pkg/summarize"
)

const (
	colourGreen = 0x57F287
	colourRed   = 0xED4245
	colourBlue  = 0x5865F2
)

// errTicketRaced aborts a ticket commit when another goroutine got there
// first. Never escapes the manager.
var errTicketRaced = errors.New("ticket already committed for user")

// Manager owns the ticket lifecycle: opening the private staff channel,
// tracking it in the settings store, and tearing everything down on close.
type Manager struct {
	l        *slog.Logger
	s        Session
	store    dataaccess.SettingsStore
	recorder *Recorder
	guildID  string

	// summarizer is optional; when nil, close summaries fall back to a
	// truncation of the user's messages.
	summarizer summarize.Summarizer

	// archive is optional; when nil, closed transcripts are only posted to
	// the log channel.
	archive dataaccess.TranscriptDal

	// onTicketCount is notified with the number of open tickets after every
	// change to the ticket map, orphan drops included. Optional.
	onTicketCount func(open int)
}

// NewManager creates a ticket manager for the given guild. Both summarizer
// and archive may be nil.
func NewManager(
	l *slog.Logger,
	s Session,
	store dataaccess.SettingsStore,
	recorder *Recorder,
	guildID string,
	summarizer summarize.Summarizer,
	archive dataaccess.TranscriptDal,
) *Manager {
	return &Manager{
		l:          l,
		s:          s,
		store:      store,
		recorder:   recorder,
		guildID:    guildID,
		summarizer: summarizer,
		archive:    archive,
	}
}

// GuildID returns the guild this manager serves.
func (m *Manager) GuildID() string {
	return m.guildID
}

// OnTicketCount registers a listener for open-ticket count changes.
func (m *Manager) OnTicketCount(fn func(open int)) {
	m.onTicketCount = fn
}

func (m *Manager) notifyTicketCount() {
	if m.onTicketCount != nil {
		m.onTicketCount(len(m.store.Snapshot().Tickets))
	}
}

// TicketForUser returns the user's open ticket, or nil. A tracked ticket
// whose backing channel no longer exists is treated as closed and its record
// is dropped, so a manually deleted channel does not wedge the user.
func (m *Manager) TicketForUser(userID string) *entities.Ticket {
	ticket, ok := m.store.Snapshot().Tickets[userID]
	if !ok {
		return nil
	}

	if m.channelExists(ticket.ChannelID) {
		return ticket
	}

	m.l.Warn("Dropping orphaned ticket record",
		slog.String("user_id", userID),
		slog.String("channel_id", ticket.ChannelID),
	)

	if err := m.store.Update(func(cur *entities.Settings) error {
		if existing, ok := cur.Tickets[userID]; ok && existing.ChannelID == ticket.ChannelID {
			delete(cur.Tickets, userID)
		}
		return nil
	}); err != nil {
		m.l.Error("Error dropping orphaned ticket record", slog.String(logging.KeyError, err.Error()))
	}
	m.recorder.Discard(ticket.ChannelID)
	m.notifyTicketCount()
	return nil
}

// TicketForChannel returns the ticket backed by the given channel, or nil.
func (m *Manager) TicketForChannel(channelID string) *entities.Ticket {
	return m.store.Snapshot().TicketByChannel(channelID)
}

// OpenTicket opens a ticket for the user, creating the private staff channel
// and committing the record. When the user already has an open ticket it is
// returned unchanged with created=false.
func (m *Manager) OpenTicket(userID string) (*entities.Ticket, bool, error) {
	settings := m.store.Snapshot()
	if !settings.Configured() {
		return nil, false, ErrNotConfigured
	}

	if existing := m.TicketForUser(userID); existing != nil {
		return existing, false, nil
	}

	member, err := m.s.GuildMember(m.guildID, userID)
	if err != nil {
		if isRESTCode(err, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser) {
			return nil, false, ErrNotAMember
		}
		return nil, false, fmt.Errorf("error fetching guild member: %w", err)
	}

	ticket := &entities.Ticket{
		UserID:    userID,
		Username:  memberName(member),
		CreatedAt: custom.Now(),
	}

	channel, err := m.s.GuildChannelCreateComplex(m.guildID, discordgo.GuildChannelCreateData{
		Name:     ticket.ChannelName(),
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    fmt.Sprintf("Support ticket for %s (%s)", ticket.Username, userID),
		ParentID: settings.TicketCategoryID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				// The @everyone role shares the guild's ID.
				ID:   m.guildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    settings.StaffRoleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory | discordgo.PermissionAttachFiles,
			},
			{
				ID:    m.s.BotUserID(),
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory | discordgo.PermissionAttachFiles | discordgo.PermissionManageChannels,
			},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("error creating ticket channel: %w", err)
	}
	ticket.ChannelID = channel.ID

	var raced *entities.Ticket
	err = m.store.Update(func(cur *entities.Settings) error {
		if existing, ok := cur.Tickets[userID]; ok {
			raced = existing
			return errTicketRaced
		}
		cur.Tickets[userID] = ticket
		return nil
	})
	switch {
	case errors.Is(err, errTicketRaced):
		// Another open for the same user committed first; ours is the
		// duplicate, so tear our channel down and hand back the winner.
		if _, delErr := m.s.ChannelDelete(channel.ID); delErr != nil {
			m.l.Warn("Error deleting duplicate ticket channel",
				slog.String("channel_id", channel.ID),
				slog.String(logging.KeyError, delErr.Error()),
			)
		}
		return raced, false, nil
	case err != nil:
		if _, delErr := m.s.ChannelDelete(channel.ID); delErr != nil {
			m.l.Warn("Error deleting uncommitted ticket channel",
				slog.String("channel_id", channel.ID),
				slog.String(logging.KeyError, delErr.Error()),
			)
		}
		return nil, false, fmt.Errorf("error committing ticket: %w", err)
	}

	m.recorder.Open(channel.ID)
	m.notifyTicketCount()

	m.announceTicket(settings, ticket)
	m.notifyTicketOpened(ticket)
	m.logEvent(settings, &discordgo.MessageEmbed{
		Title:       "Ticket opened",
		Description: fmt.Sprintf("%s (%s) opened <#%s>", ticket.Username, ticket.UserID, ticket.ChannelID),
		Color:       colourGreen,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})

	m.l.Info("Ticket opened",
		slog.String("user_id", ticket.UserID),
		slog.String("channel_id", ticket.ChannelID),
	)
	return ticket, true, nil
}

// CloseTicket tears a ticket down: it posts the transcript and summary to the
// log channel, archives it, notifies the user, removes the record and deletes
// the backing channel. Failing to remove the record or delete the channel is
// an error; the notification steps are best-effort.
func (m *Manager) CloseTicket(ctx context.Context, channelID, closedByID string) error {
	settings := m.store.Snapshot()
	ticket := settings.TicketByChannel(channelID)
	if ticket == nil {
		return ErrNotATicketChannel
	}

	if err := m.AuthorizeStaff(closedByID, channelID); err != nil {
		return err
	}

	entries := m.recorder.Entries(channelID)
	summary := summarize.BestEffort(ctx, m.l, m.summarizer, userMessages(entries, ticket.UserID))

	closedBy := closedByID
	if member, err := m.s.GuildMember(m.guildID, closedByID); err == nil {
		closedBy = memberName(member)
	}

	m.postTranscript(settings, ticket, closedBy, summary, entries)
	m.archiveTranscript(ctx, ticket, closedByID, summary, entries)
	m.notifyTicketClosed(ticket, entries)

	if err := m.store.Update(func(cur *entities.Settings) error {
		if existing, ok := cur.Tickets[ticket.UserID]; ok && existing.ChannelID == channelID {
			delete(cur.Tickets, ticket.UserID)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("error removing ticket record: %w", err)
	}
	m.recorder.Discard(channelID)
	m.notifyTicketCount()

	if _, err := m.s.ChannelDelete(channelID); err != nil {
		return fmt.Errorf("error deleting ticket channel: %w", err)
	}

	m.l.Info("Ticket closed",
		slog.String("user_id", ticket.UserID),
		slog.String("channel_id", channelID),
		slog.String("closed_by", closedByID),
	)
	return nil
}

// MarkSolved flags a ticket as solved without closing it: the user is told
// their issue looks resolved, and staff get a notice in the ticket channel.
func (m *Manager) MarkSolved(channelID, actorID string) error {
	ticket := m.TicketForChannel(channelID)
	if ticket == nil {
		return ErrNotATicketChannel
	}

	if err := m.AuthorizeStaff(actorID, channelID); err != nil {
		return err
	}

	if dm, err := m.s.UserChannelCreate(ticket.UserID); err == nil {
		if _, err := m.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Issue marked as solved",
				Description: "Staff have marked your issue as solved. Reply here if you still need help, otherwise the ticket will be closed.",
				Color:       colourGreen,
			}},
		}); err != nil {
			m.l.Warn("Error notifying user of solved ticket", slog.String(logging.KeyError, err.Error()))
		}
	} else {
		m.l.Warn("Error opening dm for solved notice", slog.String(logging.KeyError, err.Error()))
	}

	if _, err := m.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Description: fmt.Sprintf("Marked as solved by <@%s>. The user has been notified.", actorID),
			Color:       colourGreen,
		}},
	}); err != nil {
		m.l.Warn("Error posting solved notice", slog.String(logging.KeyError, err.Error()))
	}

	return nil
}

// AuthorizeStaff checks that the user holds the configured staff role or has
// the administrator permission in the channel.
func (m *Manager) AuthorizeStaff(userID, channelID string) error {
	settings := m.store.Snapshot()

	member, err := m.s.GuildMember(m.guildID, userID)
	if err != nil {
		return fmt.Errorf("error fetching guild member: %w", err)
	}
	if m.IsStaffMember(settings, member, channelID) {
		return nil
	}
	return ErrNotAuthorized
}

// IsStaffMember reports whether the member holds the configured staff role or
// the administrator permission in the channel.
func (m *Manager) IsStaffMember(settings *entities.Settings, member *discordgo.Member, channelID string) bool {
	if settings.StaffRoleID != "" {
		for _, role := range member.Roles {
			if role == settings.StaffRoleID {
				return true
			}
		}
	}

	perms, err := m.s.MemberPermissions(member.User.ID, channelID)
	if err != nil {
		m.l.Warn("Error resolving member permissions", slog.String(logging.KeyError, err.Error()))
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

// channelExists probes whether a channel is still live. Errors other than a
// definite not-found are treated as live so a flaky API call cannot cause a
// duplicate channel.
func (m *Manager) channelExists(channelID string) bool {
	if _, err := m.s.Channel(channelID); err != nil {
		return !isRESTCode(err, discordgo.ErrCodeUnknownChannel)
	}
	return true
}

func (m *Manager) announceTicket(settings *entities.Settings, ticket *entities.Ticket) {
	send := &discordgo.MessageSend{
		Content: fmt.Sprintf("<@&%s>", settings.StaffRoleID),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "New ticket",
			Description: fmt.Sprintf("Opened by %s (<@%s>). Messages sent here are relayed to the user's DM.", ticket.Username, ticket.UserID),
			Color:       colourBlue,
			Timestamp:   ticket.CreatedAt.String(),
		}},
	}
	if _, err := m.s.ChannelMessageSendComplex(ticket.ChannelID, send); err != nil {
		m.l.Warn("Error announcing ticket to staff", slog.String(logging.KeyError, err.Error()))
	}
}

func (m *Manager) notifyTicketOpened(ticket *entities.Ticket) {
	dm, err := m.s.UserChannelCreate(ticket.UserID)
	if err != nil {
		m.l.Warn("Error opening dm for ticket notice", slog.String(logging.KeyError, err.Error()))
		return
	}
	if _, err := m.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Ticket opened",
			Description: "Your ticket has been opened. Anything you send me here will be passed on to the staff team.",
			Color:       colourGreen,
		}},
	}); err != nil {
		m.l.Warn("Error notifying user of opened ticket", slog.String(logging.KeyError, err.Error()))
	}
}

func (m *Manager) notifyTicketClosed(ticket *entities.Ticket, entries []entities.TranscriptEntry) {
	dm, err := m.s.UserChannelCreate(ticket.UserID)
	if err != nil {
		m.l.Warn("Error opening dm for close notice", slog.String(logging.KeyError, err.Error()))
		return
	}
	if _, err := m.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Ticket closed",
			Description: "Your ticket has been closed. Send me another message if you need anything else.",
			Color:       colourRed,
		}},
		Files: []*discordgo.File{{
			Name:        fmt.Sprintf("transcript-%s.txt", ticket.UserID),
			ContentType: "text/plain",
			Reader:      strings.NewReader(BuildText(entries)),
		}},
	}); err != nil {
		m.l.Warn("Error notifying user of closed ticket", slog.String(logging.KeyError, err.Error()))
	}
}

func (m *Manager) postTranscript(settings *entities.Settings, ticket *entities.Ticket, closedBy, summary string, entries []entities.TranscriptEntry) {
	if settings.LogChannelID == "" {
		return
	}

	send := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title: "Ticket closed",
			Color: colourRed,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "User", Value: fmt.Sprintf("%s (<@%s>)", ticket.Username, ticket.UserID), Inline: true},
				{Name: "Closed by", Value: closedBy, Inline: true},
				{Name: "Messages", Value: fmt.Sprintf("%d", len(entries)), Inline: true},
				{Name: "Summary", Value: summary},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
		Files: []*discordgo.File{
			{
				Name:        fmt.Sprintf("transcript-%s.txt", ticket.UserID),
				ContentType: "text/plain",
				Reader:      strings.NewReader(BuildText(entries)),
			},
			{
				Name:        fmt.Sprintf("transcript-%s.html", ticket.UserID),
				ContentType: "text/html",
				Reader:      strings.NewReader(BuildHTML(fmt.Sprintf("Ticket transcript: %s", ticket.Username), entries)),
			},
		},
	}
	if _, err := m.s.ChannelMessageSendComplex(settings.LogChannelID, send); err != nil {
		m.l.Warn("Error posting transcript to log channel", slog.String(logging.KeyError, err.Error()))
	}
}

func (m *Manager) archiveTranscript(ctx context.Context, ticket *entities.Ticket, closedByID, summary string, entries []entities.TranscriptEntry) {
	if m.archive == nil {
		return
	}

	archived := &entities.ArchivedTranscript{
		UserID:    ticket.UserID,
		Username:  ticket.Username,
		ChannelID: ticket.ChannelID,
		ClosedBy:  closedByID,
		Summary:   summary,
		Entries:   entries,
		OpenedAt:  ticket.CreatedAt,
		ClosedAt:  custom.Now(),
	}
	if err := m.archive.ArchiveTranscript(ctx, archived); err != nil {
		m.l.Warn("Error archiving transcript", slog.String(logging.KeyError, err.Error()))
	}
}

func (m *Manager) logEvent(settings *entities.Settings, embed *discordgo.MessageEmbed) {
	if settings.LogChannelID == "" {
		return
	}
	if _, err := m.s.ChannelMessageSendComplex(settings.LogChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	}); err != nil {
		m.l.Warn("Error posting log event", slog.String(logging.KeyError, err.Error()))
	}
}

func memberName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		if member.User.GlobalName != "" {
			return member.User.GlobalName
		}
		return member.User.Username
	}
	return "unknown"
}

func userMessages(entries []entities.TranscriptEntry, userID string) []string {
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.AuthorID == userID && e.Content != "" {
			msgs = append(msgs, e.Content)
		}
	}
	return msgs
}
