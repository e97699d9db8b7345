package entities

const (
	// DefaultCooldownSeconds is the cooldown applied between ticket opens when
	// no value has been configured.
	DefaultCooldownSeconds = 60

	// DefaultSolveKeyword is the staff keyword that marks a ticket solved.
	DefaultSolveKeyword = "solved"

	// DefaultCloseKeyword is the staff keyword that closes a ticket.
	DefaultCloseKeyword = "close"
)

// Settings is the durable configuration for the modmail system, plus the live
// ticket map. It is the single source of truth for "does this user have an
// open ticket".
type Settings struct {
	// StaffRoleID is the ID of the role authorized to view and close tickets.
	// When unset, only administrators are staff-authorized.
	StaffRoleID string `json:"staff_role_id" bson:"staff_role_id"`

	// LogChannelID is the channel that transcripts and lifecycle events are
	// posted to. Optional.
	LogChannelID string `json:"log_channel_id" bson:"log_channel_id"`

	// TicketCategoryID is the category that ticket channels are created under.
	TicketCategoryID string `json:"ticket_category_id" bson:"ticket_category_id"`

	// CooldownSeconds is the minimum number of seconds between ticket opens
	// per user. Zero disables the cooldown.
	CooldownSeconds int `json:"cooldown_seconds" bson:"cooldown_seconds"`

	// SolveKeyword is the staff message that marks a ticket solved.
	SolveKeyword string `json:"solve_keyword" bson:"solve_keyword"`

	// CloseKeyword is the staff message that closes a ticket.
	CloseKeyword string `json:"close_keyword" bson:"close_keyword"`

	// PanelChannelID is the channel that the open-ticket panel was sent to.
	PanelChannelID string `json:"panel_channel_id" bson:"panel_channel_id"`

	// PanelMessageID is the ID of the open-ticket panel message.
	PanelMessageID string `json:"panel_message_id" bson:"panel_message_id"`

	// Tickets is the live ticket map, keyed by user ID.
	Tickets map[string]*Ticket `json:"tickets" bson:"tickets"`
}

// ApplyDefaults fills in defaults for any unset fields. Unknown or missing
// keys in a persisted document are never an error; they simply default here.
func (s *Settings) ApplyDefaults() {
	if s.CooldownSeconds < 0 {
		s.CooldownSeconds = 0
	}
	if s.SolveKeyword == "" {
		s.SolveKeyword = DefaultSolveKeyword
	}
	if s.CloseKeyword == "" {
		s.CloseKeyword = DefaultCloseKeyword
	}
	if s.Tickets == nil {
		s.Tickets = make(map[string]*Ticket)
	}
}

// NewSettings creates settings with all defaults applied.
func NewSettings() *Settings {
	s := &Settings{
		CooldownSeconds: DefaultCooldownSeconds,
	}
	s.ApplyDefaults()
	return s
}

// Configured reports whether the minimum configuration required to open
// tickets is present.
func (s *Settings) Configured() bool {
	return s.TicketCategoryID != "" && s.StaffRoleID != ""
}

// TicketByChannel returns the ticket backed by the given channel, or nil.
// Channel membership in the ticket map is the authoritative "is this a ticket
// channel" check; channel names are never consulted.
func (s *Settings) TicketByChannel(channelID string) *Ticket {
	for _, t := range s.Tickets {
		if t.ChannelID == channelID {
			return t
		}
	}
	return nil
}

// Clone returns a deep copy of the settings.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Tickets = make(map[string]*Ticket, len(s.Tickets))
	for id, t := range s.Tickets {
		tc := *t
		c.Tickets[id] = &tc
	}
	return &c
}
