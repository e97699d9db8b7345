package ticketing

import (
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*Relay, *Manager, *fakeSession) {
	t.Helper()

	m, f, store := newTestManager(t)
	configureStore(t, store)

	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err, "Failed to create logger")

	return NewRelay(l, f, m, m.recorder), m, f
}

func dmMessage(userID, content string) *discordgo.Message {
	return &discordgo.Message{
		ChannelID: "dm-" + userID,
		Author:    &discordgo.User{ID: userID, Username: userID},
		Content:   content,
	}
}

func TestForwardUserMessage_NoOpenTicket(t *testing.T) {
	relay, _, _ := newTestRelay(t)

	err := relay.ForwardUserMessage(dmMessage("u1", "hello"))
	require.ErrorIs(t, err, ErrNoOpenTicket)
}

func TestForwardUserMessage_RelaysToTicketChannel(t *testing.T) {
	relay, m, f := newTestRelay(t)
	f.addMember("u1", "alice")

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	require.NoError(t, relay.ForwardUserMessage(dmMessage("u1", "my account is locked")))

	sent := f.sentTo(ticket.ChannelID)
	require.Len(t, sent, 2) // announcement + relayed message
	require.Len(t, sent[1].data.Embeds, 1)
	require.Equal(t, "my account is locked", sent[1].data.Embeds[0].Description)

	entries := m.recorder.Entries(ticket.ChannelID)
	require.Len(t, entries, 1)
	require.Equal(t, "u1", entries[0].AuthorID)
	require.Equal(t, "my account is locked", entries[0].Content)
}

func TestForwardUserMessage_ReuploadsAttachments(t *testing.T) {
	relay, m, f := newTestRelay(t)
	f.addMember("u1", "alice")
	f.attachments["https://cdn.example/shot.png"] = []byte("png-bytes")

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	msg := dmMessage("u1", "see screenshot")
	msg.Attachments = []*discordgo.MessageAttachment{{
		Filename:    "shot.png",
		URL:         "https://cdn.example/shot.png",
		ContentType: "image/png",
	}}
	require.NoError(t, relay.ForwardUserMessage(msg))

	sent := f.sentTo(ticket.ChannelID)
	require.Len(t, sent, 2)
	require.Len(t, sent[1].data.Files, 1)
	require.Equal(t, "shot.png", sent[1].data.Files[0].Name)

	// The first image rides inline on the embed.
	require.NotNil(t, sent[1].data.Embeds[0].Image)
	require.Equal(t, "attachment://shot.png", sent[1].data.Embeds[0].Image.URL)

	// The transcript keeps the original reference.
	entries := m.recorder.Entries(ticket.ChannelID)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Attachments, 1)
	require.Equal(t, "https://cdn.example/shot.png", entries[0].Attachments[0].URL)
}

func TestForwardUserMessage_ConcurrentForwardsStayOrdered(t *testing.T) {
	relay, m, f := newTestRelay(t)
	f.addMember("u1", "alice")

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)
	seeded := len(f.sentTo(ticket.ChannelID))

	// Each message event arrives on its own goroutine; forwarding must hold
	// the channel lock across the send and the transcript append so the two
	// stay in the same order.
	const perWorker = 25
	errs := make(chan error, 2*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < perWorker; n++ {
				errs <- relay.ForwardUserMessage(dmMessage("u1", fmt.Sprintf("w%d-%d", w, n)))
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sent := f.sentTo(ticket.ChannelID)[seeded:]
	entries := m.recorder.Entries(ticket.ChannelID)
	require.Len(t, sent, 2*perWorker)
	require.Len(t, entries, 2*perWorker)
	for n, msg := range sent {
		require.Equal(t, entries[n].Content, msg.data.Embeds[0].Description)
	}
}

func TestForwardStaffMessage_NotATicketChannel(t *testing.T) {
	relay, _, f := newTestRelay(t)
	f.addMember("staff-1", "bob", testStaffRoleID)

	err := relay.ForwardStaffMessage(&discordgo.Message{
		ChannelID: "random-1",
		Author:    &discordgo.User{ID: "staff-1", Username: "bob"},
		Content:   "hello",
	})
	require.ErrorIs(t, err, ErrNotATicketChannel)
}

func TestForwardStaffMessage_NotAuthorized(t *testing.T) {
	relay, m, f := newTestRelay(t)
	f.addMember("u1", "alice")
	f.addMember("rando", "mallory")

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	err = relay.ForwardStaffMessage(&discordgo.Message{
		ChannelID: ticket.ChannelID,
		Author:    &discordgo.User{ID: "rando", Username: "mallory"},
		Content:   "let me in",
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Empty(t, f.sentTo("dm-u1"), "nothing should reach the user")
}

func TestForwardStaffMessage_RelaysToUserDM(t *testing.T) {
	relay, m, f := newTestRelay(t)
	f.addMember("u1", "alice")
	f.addMember("staff-1", "bob", testStaffRoleID)

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	require.NoError(t, relay.ForwardStaffMessage(&discordgo.Message{
		ChannelID: ticket.ChannelID,
		Author:    &discordgo.User{ID: "staff-1", Username: "bob"},
		Content:   "try resetting your password",
	}))

	dms := f.sentTo("dm-u1")
	require.Len(t, dms, 2) // open notice + relayed reply
	require.Equal(t, "try resetting your password", dms[1].data.Embeds[0].Description)
	require.Equal(t, "Staff", dms[1].data.Embeds[0].Author.Name)

	entries := m.recorder.Entries(ticket.ChannelID)
	require.Len(t, entries, 1)
	require.Equal(t, "staff-1", entries[0].AuthorID)
}

func TestForwardStaffMessage_ClosedDMsWarnInChannel(t *testing.T) {
	relay, m, f := newTestRelay(t)
	f.addMember("u1", "alice")
	f.addMember("staff-1", "bob", testStaffRoleID)

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	f.dmFailFor["u1"] = true

	require.NoError(t, relay.ForwardStaffMessage(&discordgo.Message{
		ChannelID: ticket.ChannelID,
		Author:    &discordgo.User{ID: "staff-1", Username: "bob"},
		Content:   "are you there?",
	}))

	// The failure is reported back into the ticket channel instead of
	// escalating.
	sent := f.sentTo(ticket.ChannelID)
	require.Len(t, sent, 2)
	require.Contains(t, sent[1].data.Embeds[0].Description, "DM")
}
