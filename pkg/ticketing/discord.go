package ticketing

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Session is the subset of Discord operations that the ticketing core needs.
// The concrete implementation wraps *discordgo.Session; tests provide fakes.
type Session interface {
	// BotUserID returns the bot's own user ID.
	BotUserID() string

	// GuildMember fetches a member of the guild.
	GuildMember(guildID, userID string) (*discordgo.Member, error)

	// MemberPermissions resolves the effective permissions of a user in a
	// channel.
	MemberPermissions(userID, channelID string) (int64, error)

	// GuildChannelCreateComplex creates a channel with the given ACL.
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)

	// Channel fetches a channel by ID.
	Channel(channelID string) (*discordgo.Channel, error)

	// ChannelDelete deletes a channel.
	ChannelDelete(channelID string) (*discordgo.Channel, error)

	// ChannelMessageSendComplex sends a message to a channel.
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)

	// ChannelMessageEditComplex edits a previously sent message.
	ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error)

	// UserChannelCreate returns the direct-message channel for a user,
	// creating it if needed.
	UserChannelCreate(userID string) (*discordgo.Channel, error)

	// User fetches a user by ID.
	User(userID string) (*discordgo.User, error)

	// DownloadAttachment fetches the content of a message attachment so it
	// can be re-uploaded to the relay target.
	DownloadAttachment(url string) (io.ReadCloser, error)
}

type discordSession struct {
	s *discordgo.Session

	// client downloads attachments for re-upload.
	client *http.Client
}

// NewSession wraps a discordgo session as a ticketing Session.
func NewSession(s *discordgo.Session) Session {
	return &discordSession{
		s: s,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (d *discordSession) BotUserID() string {
	return d.s.State.User.ID
}

func (d *discordSession) GuildMember(guildID, userID string) (*discordgo.Member, error) {
	return d.s.GuildMember(guildID, userID)
}

func (d *discordSession) MemberPermissions(userID, channelID string) (int64, error) {
	return d.s.UserChannelPermissions(userID, channelID)
}

func (d *discordSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	return d.s.GuildChannelCreateComplex(guildID, data)
}

func (d *discordSession) Channel(channelID string) (*discordgo.Channel, error) {
	return d.s.Channel(channelID)
}

func (d *discordSession) ChannelDelete(channelID string) (*discordgo.Channel, error) {
	return d.s.ChannelDelete(channelID)
}

func (d *discordSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	return d.s.ChannelMessageSendComplex(channelID, data)
}

func (d *discordSession) ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	return d.s.ChannelMessageEditComplex(edit)
}

func (d *discordSession) UserChannelCreate(userID string) (*discordgo.Channel, error) {
	return d.s.UserChannelCreate(userID)
}

func (d *discordSession) User(userID string) (*discordgo.User, error) {
	return d.s.User(userID)
}

func (d *discordSession) DownloadAttachment(url string) (io.ReadCloser, error) {
	resp, err := d.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("error downloading attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("error downloading attachment: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// isRESTCode reports whether err is a discord REST error carrying one of the
// given API error codes.
func isRESTCode(err error, codes ...int) bool {
	restErr := new(discordgo.RESTError)
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	for _, code := range codes {
		if restErr.Message.Code == code {
			return true
		}
	}
	return false
}
