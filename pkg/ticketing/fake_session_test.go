package ticketing

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

// fakeSession is an in-memory Session for tests. Every mutating call is
// recorded so assertions can inspect what the core did.
type fakeSession struct {
	mtx sync.Mutex

	botID string

	members     map[string]*discordgo.Member
	memberErrs  map[string]error
	permissions map[string]int64

	channels map[string]*discordgo.Channel
	nextID   int

	sent    []sentMessage
	edits   []*discordgo.MessageEdit
	deleted []string

	dmFailFor   map[string]bool
	sendFailFor map[string]bool

	attachments map[string][]byte

	// channelCreateHook runs after a guild channel is created but before it
	// is returned, while no locks are held.
	channelCreateHook func()
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		botID:       "bot-1",
		members:     make(map[string]*discordgo.Member),
		memberErrs:  make(map[string]error),
		permissions: make(map[string]int64),
		channels:    make(map[string]*discordgo.Channel),
		dmFailFor:   make(map[string]bool),
		sendFailFor: make(map[string]bool),
		attachments: make(map[string][]byte),
	}
}

func (f *fakeSession) addMember(userID, username string, roles ...string) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.members[userID] = &discordgo.Member{
		User:  &discordgo.User{ID: userID, Username: username},
		Roles: roles,
	}
}

func (f *fakeSession) addChannel(channelID string) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.channels[channelID] = &discordgo.Channel{ID: channelID}
}

func (f *fakeSession) sentTo(channelID string) []sentMessage {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	out := make([]sentMessage, 0)
	for _, m := range f.sent {
		if m.channelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSession) BotUserID() string {
	return f.botID
}

func (f *fakeSession) GuildMember(_, userID string) (*discordgo.Member, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if err, ok := f.memberErrs[userID]; ok {
		return nil, err
	}
	member, ok := f.members[userID]
	if !ok {
		return nil, &discordgo.RESTError{
			Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMember},
		}
	}
	return member, nil
}

func (f *fakeSession) MemberPermissions(userID, _ string) (int64, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.permissions[userID], nil
}

func (f *fakeSession) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mtx.Lock()
	f.nextID++
	channel := &discordgo.Channel{
		ID:                   fmt.Sprintf("chan-%d", f.nextID),
		Name:                 data.Name,
		ParentID:             data.ParentID,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	f.channels[channel.ID] = channel
	hook := f.channelCreateHook
	f.mtx.Unlock()

	if hook != nil {
		hook()
	}
	return channel, nil
}

func (f *fakeSession) Channel(channelID string) (*discordgo.Channel, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, &discordgo.RESTError{
			Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel},
		}
	}
	return channel, nil
}

func (f *fakeSession) ChannelDelete(channelID string) (*discordgo.Channel, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, &discordgo.RESTError{
			Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel},
		}
	}
	delete(f.channels, channelID)
	f.deleted = append(f.deleted, channelID)
	return channel, nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.sendFailFor[channelID] {
		return nil, fmt.Errorf("send rejected for %s", channelID)
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{
		ID:        fmt.Sprintf("msg-%d", len(f.sent)),
		ChannelID: channelID,
	}, nil
}

func (f *fakeSession) ChannelMessageEditComplex(edit *discordgo.MessageEdit) (*discordgo.Message, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.edits = append(f.edits, edit)
	return &discordgo.Message{ID: edit.ID, ChannelID: edit.Channel}, nil
}

func (f *fakeSession) UserChannelCreate(userID string) (*discordgo.Channel, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.dmFailFor[userID] {
		return nil, fmt.Errorf("dm rejected for %s", userID)
	}
	channel := &discordgo.Channel{ID: "dm-" + userID, Type: discordgo.ChannelTypeDM}
	f.channels[channel.ID] = channel
	return channel, nil
}

func (f *fakeSession) User(userID string) (*discordgo.User, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if member, ok := f.members[userID]; ok {
		return member.User, nil
	}
	return nil, &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownUser},
	}
}

func (f *fakeSession) DownloadAttachment(url string) (io.ReadCloser, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	content, ok := f.attachments[url]
	if !ok {
		return nil, fmt.Errorf("no attachment at %s", url)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
