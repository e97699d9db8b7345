package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalDiscordEvents is the total number of handled discord events.
	TotalDiscordEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_total_discord_events", AppName),
			Help: "Total number of handled discord events",
		},
		[]string{"event"},
	)

	// HttpTotalRequests is the total number of http requests.
	HttpTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_http_total_requests", AppName),
			Help: "Total number of http requests",
		},
		[]string{"path", "method", "status_code"},
	)

	// HttpRequestDuration is the duration of the http request.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: fmt.Sprintf("%s_http_request_duration", AppName),
			Help: "Duration of the http request",
		},
		[]string{"path", "method", "status_code"},
	)

	// DiscordCommandDuration is the duration of slash command handling.
	DiscordCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: fmt.Sprintf("%s_discord_command_duration", AppName),
			Help: "Duration of the discord command",
		},
		[]string{"command"},
	)

	// TotalDiscordGuilds is the number of guilds the bot is in.
	TotalDiscordGuilds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_total_discord_guilds", AppName),
			Help: "Total number of discord guilds",
		},
	)

	// OpenTickets is the number of currently open tickets.
	OpenTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_open_tickets", AppName),
			Help: "Number of currently open tickets",
		},
	)

	// TicketsOpened is the total number of tickets opened.
	TicketsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_tickets_opened_total", AppName),
			Help: "Total number of tickets opened",
		},
	)

	// TicketsClosed is the total number of tickets closed.
	TicketsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_tickets_closed_total", AppName),
			Help: "Total number of tickets closed",
		},
	)

	// RelayedMessages is the total number of relayed messages per direction.
	RelayedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_relayed_messages_total", AppName),
			Help: "Total number of relayed messages",
		},
		[]string{"direction"},
	)

	// RelayFailures is the total number of failed relays per direction.
	RelayFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_relay_failures_total", AppName),
			Help: "Total number of failed relays",
		},
		[]string{"direction"},
	)

	// ConfirmationOutcomes is the total number of confirmation gate outcomes.
	ConfirmationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_confirmation_outcomes_total", AppName),
			Help: "Total number of confirmation gate outcomes",
		},
		[]string{"outcome"},
	)
)
