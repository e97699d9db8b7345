package ticketing

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/custom"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/logging"
)

// Relay carries messages between a user's DM and the ticket's staff channel.
// The two directions are not symmetric: the user-to-staff direction trusts
// the DM channel itself, while the staff-to-user direction re-checks staff
// authorization on every message.
type Relay struct {
	l        *slog.Logger
	s        Session
	manager  *Manager
	recorder *Recorder

	// locks serialize forwarding per ticket channel. The gateway dispatches
	// each message event on its own goroutine, so without this two rapid
	// messages could arrive on the other side out of order.
	mtx   sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRelay creates a relay over the given manager's tickets.
func NewRelay(l *slog.Logger, s Session, manager *Manager, recorder *Recorder) *Relay {
	return &Relay{
		l:        l,
		s:        s,
		manager:  manager,
		recorder: recorder,
		locks:    make(map[string]*sync.Mutex),
	}
}

// channelLock returns the forwarding lock for a ticket channel.
func (r *Relay) channelLock(channelID string) *sync.Mutex {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	lock, ok := r.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[channelID] = lock
	}
	return lock
}

// ForwardUserMessage relays a user's DM into their ticket channel. The
// message must belong to a user with an open ticket.
func (r *Relay) ForwardUserMessage(msg *discordgo.Message) error {
	ticket := r.manager.TicketForUser(msg.Author.ID)
	if ticket == nil {
		return ErrNoOpenTicket
	}

	lock := r.channelLock(ticket.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	name := userName(msg.Author)
	files, refs := r.fetchAttachments(msg)

	if _, err := r.s.ChannelMessageSendComplex(ticket.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{relayEmbed(name, msg.Author, msg.Content, colourBlue, files)},
		Files:  files,
	}); err != nil {
		return fmt.Errorf("error relaying message to ticket channel: %w", err)
	}

	r.recorder.Append(ticket.ChannelID, entities.TranscriptEntry{
		AuthorName:  name,
		AuthorID:    msg.Author.ID,
		Timestamp:   custom.Now(),
		Content:     msg.Content,
		Attachments: refs,
	})
	return nil
}

// ForwardStaffMessage relays a message from a ticket channel to the ticket
// owner's DM. The author must be staff-authorized. A failed DM delivery is
// reported back into the ticket channel rather than returned as an error, so
// a user with closed DMs does not break the staff side.
func (r *Relay) ForwardStaffMessage(msg *discordgo.Message) error {
	ticket := r.manager.TicketForChannel(msg.ChannelID)
	if ticket == nil {
		return ErrNotATicketChannel
	}

	if err := r.manager.AuthorizeStaff(msg.Author.ID, msg.ChannelID); err != nil {
		return err
	}

	lock := r.channelLock(msg.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	name := userName(msg.Author)
	files, refs := r.fetchAttachments(msg)

	r.recorder.Append(msg.ChannelID, entities.TranscriptEntry{
		AuthorName:  name,
		AuthorID:    msg.Author.ID,
		Timestamp:   custom.Now(),
		Content:     msg.Content,
		Attachments: refs,
	})

	dm, err := r.s.UserChannelCreate(ticket.UserID)
	if err != nil {
		r.deliveryWarning(msg.ChannelID, "Could not open the user's DM channel.")
		return nil
	}

	if _, err := r.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{relayEmbed("Staff", msg.Author, msg.Content, colourGreen, files)},
		Files:  files,
	}); err != nil {
		r.deliveryWarning(msg.ChannelID, "Could not deliver the message to the user; their DMs may be closed.")
		return nil
	}
	return nil
}

// deliveryWarning posts a delivery failure notice into the ticket channel.
func (r *Relay) deliveryWarning(channelID, reason string) {
	r.l.Warn("Relay delivery failed",
		slog.String("channel_id", channelID),
		slog.String("reason", reason),
	)
	if _, err := r.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Description: reason,
			Color:       colourRed,
		}},
	}); err != nil {
		r.l.Warn("Error posting delivery warning", slog.String(logging.KeyError, err.Error()))
	}
}

// fetchAttachments downloads the message's attachments for re-upload on the
// other side. An attachment that cannot be downloaded keeps its reference so
// the transcript still links to it.
func (r *Relay) fetchAttachments(msg *discordgo.Message) ([]*discordgo.File, []entities.AttachmentRef) {
	if len(msg.Attachments) == 0 {
		return nil, nil
	}

	files := make([]*discordgo.File, 0, len(msg.Attachments))
	refs := make([]entities.AttachmentRef, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		refs = append(refs, entities.AttachmentRef{
			Filename: att.Filename,
			URL:      att.URL,
		})

		body, err := r.s.DownloadAttachment(att.URL)
		if err != nil {
			r.l.Warn("Error downloading attachment for relay",
				slog.String("filename", att.Filename),
				slog.String(logging.KeyError, err.Error()),
			)
			continue
		}

		content, err := io.ReadAll(body)
		_ = body.Close()
		if err != nil {
			r.l.Warn("Error reading attachment for relay",
				slog.String("filename", att.Filename),
				slog.String(logging.KeyError, err.Error()),
			)
			continue
		}

		files = append(files, &discordgo.File{
			Name:        att.Filename,
			ContentType: att.ContentType,
			Reader:      bytes.NewReader(content),
		})
	}
	return files, refs
}

// relayEmbed builds the embed that carries a relayed message. The first
// re-uploaded image is shown inline.
func relayEmbed(name string, author *discordgo.User, content string, colour int, files []*discordgo.File) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    name,
			IconURL: author.AvatarURL(""),
		},
		Description: content,
		Color:       colour,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	for _, f := range files {
		if strings.HasPrefix(f.ContentType, "image/") {
			embed.Image = &discordgo.MessageEmbedImage{
				URL: "attachment://" + f.Name,
			}
			break
		}
	}
	return embed
}

func userName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
