package ticketing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/custom"
	"github.com/finchbot/modmail/pkg/dataaccess"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/stretchr/testify/require"
)

const (
	testGuildID     = "guild-1"
	testStaffRoleID = "role-staff"
	testCategoryID  = "cat-1"
	testLogChannel  = "log-1"
)

func newTestManager(t *testing.T) (*Manager, *fakeSession, dataaccess.SettingsStore) {
	t.Helper()

	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err, "Failed to create logger")

	store, err := dataaccess.NewFileSettingsStore(filepath.Join(t.TempDir(), "settings.json"), l)
	require.NoError(t, err, "Failed to create settings store")

	f := newFakeSession()
	f.addChannel(testLogChannel)

	m := NewManager(l, f, store, NewRecorder(), testGuildID, nil, nil)
	return m, f, store
}

func configureStore(t *testing.T, store dataaccess.SettingsStore) {
	t.Helper()
	require.NoError(t, store.Update(func(s *entities.Settings) error {
		s.StaffRoleID = testStaffRoleID
		s.TicketCategoryID = testCategoryID
		s.LogChannelID = testLogChannel
		return nil
	}))
}

func TestOpenTicket_NotConfigured(t *testing.T) {
	m, f, _ := newTestManager(t)
	f.addMember("u1", "alice")

	ticket, created, err := m.OpenTicket("u1")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Nil(t, ticket)
	require.False(t, created)
}

func TestOpenTicket_CreatesChannelAndCommits(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")

	ticket, created, err := m.OpenTicket("u1")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "u1", ticket.UserID)
	require.Equal(t, "alice", ticket.Username)
	require.NotEmpty(t, ticket.ChannelID)

	// The channel is parented under the configured category and hidden from
	// @everyone.
	channel, err := f.Channel(ticket.ChannelID)
	require.NoError(t, err)
	require.Equal(t, testCategoryID, channel.ParentID)
	require.Equal(t, "ticket-u1", channel.Name)

	var everyoneDenied bool
	for _, ow := range channel.PermissionOverwrites {
		if ow.ID == testGuildID && ow.Deny&discordgo.PermissionViewChannel != 0 {
			everyoneDenied = true
		}
	}
	require.True(t, everyoneDenied, "expected @everyone to be denied view")

	// The record is committed and survives a snapshot.
	got, ok := store.Snapshot().Tickets["u1"]
	require.True(t, ok)
	require.Equal(t, ticket.ChannelID, got.ChannelID)

	// Staff got an announcement, the user got a DM notice, and the log
	// channel got an event.
	require.Len(t, f.sentTo(ticket.ChannelID), 1)
	require.Len(t, f.sentTo("dm-u1"), 1)
	require.Len(t, f.sentTo(testLogChannel), 1)
}

func TestOpenTicket_AlreadyOpenIsIdempotent(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")

	first, created, err := m.OpenTicket("u1")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := m.OpenTicket("u1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ChannelID, second.ChannelID)

	// No second channel was created.
	require.Len(t, f.sentTo(first.ChannelID), 1)
	require.Empty(t, f.deleted)
}

func TestOpenTicket_NotAMember(t *testing.T) {
	m, _, store := newTestManager(t)
	configureStore(t, store)

	ticket, created, err := m.OpenTicket("stranger")
	require.ErrorIs(t, err, ErrNotAMember)
	require.Nil(t, ticket)
	require.False(t, created)
}

func TestOpenTicket_OrphanedRecordSelfHeals(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")

	// A stale record pointing at a channel that no longer exists.
	require.NoError(t, store.Update(func(s *entities.Settings) error {
		s.Tickets["u1"] = &entities.Ticket{
			UserID:    "u1",
			Username:  "alice",
			ChannelID: "gone-1",
			CreatedAt: custom.Now(),
		}
		return nil
	}))

	ticket, created, err := m.OpenTicket("u1")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, "gone-1", ticket.ChannelID)

	got, ok := store.Snapshot().Tickets["u1"]
	require.True(t, ok)
	require.Equal(t, ticket.ChannelID, got.ChannelID)
}

func TestOpenTicket_LosingRacerDeletesItsChannel(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")

	// A rival open for the same user commits between our channel creation
	// and our commit.
	f.channelCreateHook = func() {
		f.channelCreateHook = nil
		f.addChannel("chan-rival")
		require.NoError(t, store.Update(func(s *entities.Settings) error {
			s.Tickets["u1"] = &entities.Ticket{
				UserID:    "u1",
				Username:  "alice",
				ChannelID: "chan-rival",
				CreatedAt: custom.Now(),
			}
			return nil
		}))
	}

	ticket, created, err := m.OpenTicket("u1")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "chan-rival", ticket.ChannelID)

	// Our freshly created channel was torn down again.
	require.Len(t, f.deleted, 1)
	require.NotEqual(t, "chan-rival", f.deleted[0])

	got, ok := store.Snapshot().Tickets["u1"]
	require.True(t, ok)
	require.Equal(t, "chan-rival", got.ChannelID)
}

func TestTicketCountListener_TracksOpenCloseAndOrphanDrop(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")
	f.addMember("staff-1", "bob", testStaffRoleID)

	var counts []int
	m.OnTicketCount(func(open int) {
		counts = append(counts, open)
	})

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)
	require.Equal(t, []int{1}, counts)

	require.NoError(t, m.CloseTicket(context.Background(), ticket.ChannelID, "staff-1"))
	require.Equal(t, []int{1, 0}, counts)

	// An orphan drop reports too, so a gauge fed by the listener cannot
	// drift when a channel is deleted out-of-band.
	ticket, _, err = m.OpenTicket("u1")
	require.NoError(t, err)
	_, err = f.ChannelDelete(ticket.ChannelID)
	require.NoError(t, err)

	require.Nil(t, m.TicketForUser("u1"))
	require.Equal(t, []int{1, 0, 1, 0}, counts)
}

func TestCloseTicket_NotATicketChannel(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("staff-1", "bob", testStaffRoleID)
	f.addChannel("random-1")

	err := m.CloseTicket(context.Background(), "random-1", "staff-1")
	require.ErrorIs(t, err, ErrNotATicketChannel)
}

func TestCloseTicket_NotAuthorized(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")
	f.addMember("rando", "mallory")

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	err = m.CloseTicket(context.Background(), ticket.ChannelID, "rando")
	require.ErrorIs(t, err, ErrNotAuthorized)

	// The ticket is untouched.
	_, ok := store.Snapshot().Tickets["u1"]
	require.True(t, ok)
}

func TestCloseTicket_FullTeardown(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")
	f.addMember("staff-1", "bob", testStaffRoleID)

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	m.recorder.Append(ticket.ChannelID, entities.TranscriptEntry{
		AuthorName: "alice",
		AuthorID:   "u1",
		Timestamp:  custom.Now(),
		Content:    "my account is locked",
	})

	require.NoError(t, m.CloseTicket(context.Background(), ticket.ChannelID, "staff-1"))

	// The log channel got the close report with both transcript renderings.
	logged := f.sentTo(testLogChannel)
	require.Len(t, logged, 2) // open event + close report
	require.Len(t, logged[1].data.Files, 2)

	// The user was told, the record is gone, the channel is gone and the
	// transcript was discarded.
	require.Len(t, f.sentTo("dm-u1"), 2) // open notice + close notice
	_, ok := store.Snapshot().Tickets["u1"]
	require.False(t, ok)
	require.Contains(t, f.deleted, ticket.ChannelID)
	require.Empty(t, m.recorder.Entries(ticket.ChannelID))
}

func TestCloseTicket_ClosedDMsStillCloses(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")
	f.addMember("staff-1", "bob", testStaffRoleID)

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	f.dmFailFor["u1"] = true

	require.NoError(t, m.CloseTicket(context.Background(), ticket.ChannelID, "staff-1"))
	_, ok := store.Snapshot().Tickets["u1"]
	require.False(t, ok)
	require.Contains(t, f.deleted, ticket.ChannelID)
}

func TestMarkSolved(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("u1", "alice")
	f.addMember("staff-1", "bob", testStaffRoleID)

	ticket, _, err := m.OpenTicket("u1")
	require.NoError(t, err)

	require.NoError(t, m.MarkSolved(ticket.ChannelID, "staff-1"))

	// Solved notice lands in both the user's DM and the ticket channel, and
	// the ticket stays open.
	require.Len(t, f.sentTo("dm-u1"), 2)
	require.Len(t, f.sentTo(ticket.ChannelID), 2)
	_, ok := store.Snapshot().Tickets["u1"]
	require.True(t, ok)
}

func TestAuthorizeStaff_AdminWithoutRole(t *testing.T) {
	m, f, store := newTestManager(t)
	configureStore(t, store)
	f.addMember("admin-1", "carol")
	f.permissions["admin-1"] = discordgo.PermissionAdministrator
	f.addChannel("chan-x")

	require.NoError(t, m.AuthorizeStaff("admin-1", "chan-x"))
}
