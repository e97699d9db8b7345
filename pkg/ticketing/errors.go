package ticketing

import "errors"

var (
	// ErrNotConfigured is returned when the ticket category or staff role has
	// not been configured yet.
	ErrNotConfigured = errors.New("ticketing is not configured")

	// ErrNotAMember is returned when the requesting user is not a member of
	// the guild.
	ErrNotAMember = errors.New("user is not a member of the guild")

	// ErrNotATicketChannel is returned when an operation targets a channel
	// that is not a tracked ticket.
	ErrNotATicketChannel = errors.New("channel is not a tracked ticket")

	// ErrNoOpenTicket is returned when a relay is attempted for a user with
	// no open ticket.
	ErrNoOpenTicket = errors.New("user has no open ticket")

	// ErrNotAuthorized is returned when the caller lacks the staff role and
	// the administrator permission.
	ErrNotAuthorized = errors.New("caller is not staff-authorized")

	// ErrGatePending is returned when a confirmation gate is already open for
	// the user.
	ErrGatePending = errors.New("confirmation already pending for user")

	// ErrNoPendingGate is returned when a gate resolution arrives for a
	// prompt that is no longer live.
	ErrNoPendingGate = errors.New("no pending confirmation for message")
)
