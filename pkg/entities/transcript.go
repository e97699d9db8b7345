package entities

import "github.com/finchbot/modmail/pkg/custom"

// AttachmentRef is a reference to a file attached to a relayed message.
type AttachmentRef struct {
	// Filename is the attachment's original filename.
	Filename string `json:"filename" bson:"filename"`

	// URL is a retrievable URL for the attachment.
	URL string `json:"url" bson:"url"`
}

// TranscriptEntry is one message in a ticket's transcript, accumulated while
// the ticket is open and rendered to a durable artifact at close time.
type TranscriptEntry struct {
	// AuthorName is the display name of the message author.
	AuthorName string `json:"author_name" bson:"author_name"`

	// AuthorID is the stable ID of the message author.
	AuthorID string `json:"author_id" bson:"author_id"`

	// Timestamp is when the message was observed by the relay.
	Timestamp custom.Datetime `json:"timestamp" bson:"timestamp"`

	// Content is the message text.
	Content string `json:"content" bson:"content"`

	// Attachments are references to any files attached to the message.
	Attachments []AttachmentRef `json:"attachments,omitempty" bson:"attachments,omitempty"`
}

// ArchivedTranscript is the durable record of a closed ticket, written to the
// transcript archive when one is configured.
type ArchivedTranscript struct {
	// UserID is the ID of the user the ticket belonged to.
	UserID string `json:"user_id" bson:"user_id"`

	// Username is the username of the user at open time.
	Username string `json:"username" bson:"username"`

	// ChannelID is the ID of the (now deleted) ticket channel.
	ChannelID string `json:"channel_id" bson:"channel_id"`

	// ClosedBy is the ID of the staff member that closed the ticket.
	ClosedBy string `json:"closed_by" bson:"closed_by"`

	// Summary is a one-sentence summary of the user's issue.
	Summary string `json:"summary" bson:"summary"`

	// Entries is the full chronological transcript.
	Entries []TranscriptEntry `json:"entries" bson:"entries"`

	// OpenedAt is when the ticket was opened.
	OpenedAt custom.Datetime `json:"opened_at" bson:"opened_at"`

	// ClosedAt is when the ticket was closed.
	ClosedAt custom.Datetime `json:"closed_at" bson:"closed_at"`
}
