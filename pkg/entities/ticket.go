package entities

import (
	"fmt"

	"github.com/finchbot/modmail/pkg/custom"
)

// Ticket is one open modmail conversation: a single user relayed to a single
// private staff channel. At most one ticket exists per user at any time.
type Ticket struct {
	// UserID is the ID of the user that the ticket belongs to.
	UserID string `json:"user_id" bson:"user_id"`

	// Username is the username of the user at the time the ticket was opened.
	Username string `json:"username" bson:"username"`

	// ChannelID is the ID of the private staff channel backing the ticket.
	ChannelID string `json:"channel_id" bson:"channel_id"`

	// CreatedAt is the time that the ticket was opened.
	CreatedAt custom.Datetime `json:"created_at" bson:"created_at"`
}

// ChannelName returns the name used for the ticket's backing channel. This is
// cosmetic only; ticket membership is tracked by channel ID, never by name.
func (t *Ticket) ChannelName() string {
	return fmt.Sprintf("ticket-%s", t.UserID)
}
