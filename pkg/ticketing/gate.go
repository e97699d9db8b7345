package ticketing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/logging"
)

const (
	// ConfirmButtonID is the component ID of the gate's confirm button.
	ConfirmButtonID = "modmail_confirm_open"

	// CancelButtonID is the component ID of the gate's cancel button.
	CancelButtonID = "modmail_cancel_open"

	// DefaultGateTimeout is how long a confirmation prompt stays live before
	// timing out.
	DefaultGateTimeout = 60 * time.Second
)

// GateOutcome is the terminal state of a confirmation gate.
type GateOutcome int

const (
	GateConfirmed GateOutcome = iota
	GateCancelled
	GateTimedOut
)

func (o GateOutcome) String() string {
	switch o {
	case GateConfirmed:
		return "confirmed"
	case GateCancelled:
		return "cancelled"
	case GateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type gate struct {
	userID string
	action chan GateOutcome
}

// GateRegistry tracks at most one live confirmation prompt per user. Request
// blocks until the prompt is confirmed, cancelled or timed out; Resolve feeds
// button presses into the waiting Request.
type GateRegistry struct {
	mtx sync.Mutex
	l   *slog.Logger
	s   Session

	// byUser enforces the one-live-gate-per-user rule; byMessage routes
	// button presses to the owning gate.
	byUser    map[string]*gate
	byMessage map[string]*gate

	// tick controls the countdown edit interval. Shortened in tests.
	tick time.Duration
}

// NewGateRegistry creates an empty gate registry.
func NewGateRegistry(l *slog.Logger, s Session) *GateRegistry {
	return &GateRegistry{
		l:         l,
		s:         s,
		byUser:    make(map[string]*gate),
		byMessage: make(map[string]*gate),
		tick:      time.Second,
	}
}

// Pending reports whether the user already has a live confirmation prompt.
func (r *GateRegistry) Pending(userID string) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// Request sends a confirmation prompt to the user's DM and blocks until it
// resolves. The prompt carries a live countdown and Confirm/Cancel buttons.
// Only one gate per user may be live at a time.
func (r *GateRegistry) Request(userID, preview string, timeout time.Duration) (GateOutcome, error) {
	g := &gate{
		userID: userID,
		action: make(chan GateOutcome, 1),
	}

	r.mtx.Lock()
	if _, ok := r.byUser[userID]; ok {
		r.mtx.Unlock()
		return GateCancelled, ErrGatePending
	}
	r.byUser[userID] = g
	r.mtx.Unlock()

	defer func() {
		r.mtx.Lock()
		delete(r.byUser, userID)
		r.mtx.Unlock()
	}()

	dm, err := r.s.UserChannelCreate(userID)
	if err != nil {
		return GateCancelled, fmt.Errorf("error opening dm channel: %w", err)
	}

	msg, err := r.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Content: gatePrompt(preview, timeout),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Open ticket",
						Style:    discordgo.SuccessButton,
						CustomID: ConfirmButtonID,
					},
					discordgo.Button{
						Label:    "Cancel",
						Style:    discordgo.DangerButton,
						CustomID: CancelButtonID,
					},
				},
			},
		},
	})
	if err != nil {
		return GateCancelled, fmt.Errorf("error sending confirmation prompt: %w", err)
	}

	r.mtx.Lock()
	r.byMessage[msg.ID] = g
	r.mtx.Unlock()

	defer func() {
		r.mtx.Lock()
		delete(r.byMessage, msg.ID)
		r.mtx.Unlock()
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case outcome := <-g.action:
			r.finalize(dm.ID, msg.ID, outcome)
			return outcome, nil
		case <-deadline.C:
			r.finalize(dm.ID, msg.ID, GateTimedOut)
			return GateTimedOut, nil
		case <-ticker.C:
			remaining := timeout - time.Since(start)
			if remaining <= 0 {
				continue
			}
			content := gatePrompt(preview, remaining)
			if _, err := r.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
				Channel: dm.ID,
				ID:      msg.ID,
				Content: &content,
			}); err != nil {
				r.l.Debug("Error updating confirmation countdown", slog.String(logging.KeyError, err.Error()))
			}
		}
	}
}

// Resolve routes a button press on a prompt message to its waiting gate. The
// press is rejected when the prompt is no longer live or the actor is not the
// user the gate belongs to.
func (r *GateRegistry) Resolve(messageID, actorID string, outcome GateOutcome) error {
	r.mtx.Lock()
	g, ok := r.byMessage[messageID]
	r.mtx.Unlock()

	if !ok {
		return ErrNoPendingGate
	}
	if g.userID != actorID {
		return ErrNotAuthorized
	}

	select {
	case g.action <- outcome:
	default:
		// A resolution is already in flight.
	}
	return nil
}

// finalize replaces the prompt with the outcome notice and strips the
// buttons. Edit failures are not worth surfacing; the gate has resolved.
func (r *GateRegistry) finalize(channelID, messageID string, outcome GateOutcome) {
	var content string
	switch outcome {
	case GateConfirmed:
		content = "Opening your ticket now."
	case GateCancelled:
		content = "Cancelled. No ticket was created."
	case GateTimedOut:
		content = "Confirmation timed out. No ticket was created."
	}

	components := make([]discordgo.MessageComponent, 0)
	if _, err := r.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Content:    &content,
		Components: &components,
	}); err != nil {
		r.l.Debug("Error finalizing confirmation prompt", slog.String(logging.KeyError, err.Error()))
	}
}

func gatePrompt(preview string, remaining time.Duration) string {
	secs := int(remaining.Round(time.Second).Seconds())
	return fmt.Sprintf(
		"Do you want to open a support ticket with this message?\n\n> %s\n\nExpires in %ds.",
		preview, secs,
	)
}
