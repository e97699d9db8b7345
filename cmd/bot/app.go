package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/dataaccess"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/finchbot/modmail/pkg/request"
	"github.com/finchbot/modmail/pkg/summarize"
	"github.com/finchbot/modmail/pkg/ticketing"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// PathMetrics is the path for metrics.
	PathMetrics = "/metrics"

	// PathHealth is the path for the health check.
	PathHealth = "/health"
)

// IApp is the interface for the application.
type IApp interface {
	// Log returns the logger.
	Log() *slog.Logger

	// Session returns the discord session.
	Session() *discordgo.Session

	// Discord returns the ticketing view of the discord session.
	Discord() ticketing.Session

	// Store returns the settings store.
	Store() dataaccess.SettingsStore

	// Manager returns the ticket manager.
	Manager() *ticketing.Manager

	// Relay returns the message relay.
	Relay() *ticketing.Relay

	// Gates returns the confirmation gate registry.
	Gates() *ticketing.GateRegistry

	// Cooldowns returns the ticket cooldown tracker.
	Cooldowns() *ticketing.CooldownTracker

	// Archive returns the transcript archive, or nil when archiving is
	// disabled.
	Archive() dataaccess.TranscriptDal
}

type App struct {
	// is the logger.
	*slog.Logger

	// r is the router for the application.
	r *mux.Router

	// svr is the server for the application.
	svr *http.Server

	// s is the discord session.
	s *discordgo.Session

	// discord is the ticketing view of the discord session.
	discord ticketing.Session

	// store is the settings store.
	store dataaccess.SettingsStore

	// recorder holds the in-flight ticket transcripts.
	recorder *ticketing.Recorder

	// manager owns the ticket lifecycle.
	manager *ticketing.Manager

	// relay carries messages between users and ticket channels.
	relay *ticketing.Relay

	// gates tracks pending open-ticket confirmations.
	gates *ticketing.GateRegistry

	// cooldowns throttles ticket creation per user.
	cooldowns *ticketing.CooldownTracker

	// archive is the transcript archive; nil when archiving is disabled.
	archive dataaccess.TranscriptDal

	// registeredCommands are the slash commands registered on startup, kept
	// so they can be unregistered on shutdown.
	registeredCommands []*discordgo.ApplicationCommand
}

// NewApp creates a new instance of App.
func NewApp(l *slog.Logger, r *mux.Router) *App {
	return &App{
		Logger: l,
		r:      r,
	}
}

func (a *App) Run() error {
	// Register bot.
	if err := a.RegisterBot(); err != nil {
		return fmt.Errorf("error registering bot: %w", err)
	}

	if err := a.buildComponents(); err != nil {
		return fmt.Errorf("error building components: %w", err)
	}

	a.s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		a.Info(fmt.Sprintf("Logged in as %s#%s", r.User.Username, r.User.Discriminator))
	})

	a.RegisterDiscordHandlers()

	// Open websocket.
	if err := a.s.Open(); err != nil {
		return fmt.Errorf("error opening connection to Discord: %w", err)
	}

	// Register slash commands.
	if err := a.registerSlashCommands(); err != nil {
		return fmt.Errorf("error registering slash commands: %w", err)
	}

	a.Info("Bot is now running.")

	a.generateServer()
	a.setupRoutes()
	a.runServer()

	// Register listener for shutdown signal.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Process shutdown signal.
	for sig := range c {
		a.Info("Received shutdown signal", slog.String("signal", sig.String()))
		if err := a.ShutdownHook(); err != nil {
			a.Error("Error shutting down application", slog.String(logging.KeyError, err.Error()))
		}
		os.Exit(0)
	}
	return nil
}

func (a *App) ShutdownHook() error {
	// Unregister slash commands.
	if err := a.unregisterSlashCommands(); err != nil {
		return fmt.Errorf("error unregistering slash commands: %w", err)
	}

	// Close the connection to Discord.
	if err := a.s.Close(); err != nil {
		return fmt.Errorf("error closing connection to Discord: %w", err)
	}
	return nil
}

func (a *App) RegisterBot() error {
	dg, err := discordgo.New("Bot " + BotToken)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	a.s = dg
	a.discord = ticketing.NewSession(dg)
	return nil
}

// buildComponents wires the ticketing core. The settings store is durable;
// everything else is rebuilt from it on startup.
func (a *App) buildComponents() error {
	store, err := dataaccess.NewFileSettingsStore(DataFile, a.Log())
	if err != nil {
		return fmt.Errorf("error opening settings store: %w", err)
	}
	a.store = store

	var summarizer summarize.Summarizer
	if OpenAIKey != "" {
		summarizer = summarize.NewOpenAI(OpenAIKey)
	}

	if dataaccess.MongoDB != nil {
		a.archive = dataaccess.NewTranscriptDal(a.Log())
	}

	a.recorder = ticketing.NewRecorder()
	a.manager = ticketing.NewManager(a.Log(), a.discord, store, a.recorder, GuildId, summarizer, a.archive)
	a.relay = ticketing.NewRelay(a.Log(), a.discord, a.manager, a.recorder)
	a.gates = ticketing.NewGateRegistry(a.Log(), a.discord)
	a.cooldowns = ticketing.NewCooldownTracker(func() time.Duration {
		return time.Duration(store.Snapshot().CooldownSeconds) * time.Second
	})

	// The gauge tracks the ticket map itself so orphan drops count too.
	a.manager.OnTicketCount(func(open int) {
		OpenTickets.Set(float64(open))
	})

	// Tickets that survived a restart still count as open.
	OpenTickets.Set(float64(len(store.Snapshot().Tickets)))
	return nil
}

func (a *App) RegisterDiscordHandlers() {
	// Bot joined guild.
	a.s.AddHandler(guildJoinedHandler(a))

	// Bot left guild.
	a.s.AddHandler(guildLeaveHandler(a))

	// Messages: DM relay, staff relay and close keywords.
	a.s.AddHandler(messageCreateHandler(a))

	// Interaction create handler.
	a.s.AddHandler(interactionHandler(a,
		// Slash Controllers
		map[string]commandController{
			ModmailCmdName: modmailCmdController,
			CloseCmdName:   closeCmdController,
		},
		// Button Controllers
		map[string]commandProcessor{
			PanelOpenButtonID:         panelOpenHandler,
			ticketing.ConfirmButtonID: gateConfirmHandler,
			ticketing.CancelButtonID:  gateCancelHandler,
		}))
}

func (a *App) registerSlashCommands() error {
	for _, cmd := range []*discordgo.ApplicationCommand{modmailCmd, closeCmd} {
		created, err := a.Session().ApplicationCommandCreate(ApplicationId, GuildId, cmd)
		if err != nil {
			return fmt.Errorf("error creating %s command for guild %s: %w", cmd.Name, GuildId, err)
		}
		a.registeredCommands = append(a.registeredCommands, created)
	}
	return nil
}

func (a *App) unregisterSlashCommands() error {
	for _, cmd := range a.registeredCommands {
		if err := a.s.ApplicationCommandDelete(ApplicationId, GuildId, cmd.ID); err != nil {
			return fmt.Errorf("error deleting %s command for guild %s: %w", cmd.Name, GuildId, err)
		}
	}
	return nil
}

func (a *App) runServer() {
	go func() {
		a.Info("Starting monitoring server")
		if err := a.svr.ListenAndServe(); err != nil {
			a.Error("Error starting monitoring server", slog.String(logging.KeyError, err.Error()))
			a.Warn("Monitoring server will not be available")
		}
	}()
}

func (a *App) setupRoutes() {
	// PathMetrics is the path for metrics.
	a.r.HandleFunc(PathMetrics, promhttp.Handler().ServeHTTP).Methods(http.MethodGet)

	// PathHealth is the path for health check.
	a.r.HandleFunc(PathHealth, middlewareHttp(a.healthCheck(), a)).Methods(http.MethodGet)

	// NotFoundHandler is the handler for 404.
	a.r.NotFoundHandler = request.NotFoundHandler(a.Log())

	// MethodNotAllowedHandler is the handler for 405.
	a.r.MethodNotAllowedHandler = request.MethodNotAllowedHandler(a.Log())
}

func (a *App) generateServer() {
	a.svr = &http.Server{
		Addr:    ":" + MonitoringPort,
		Handler: a.r,
	}
}

func (a *App) Log() *slog.Logger {
	return a.Logger
}

func (a *App) Session() *discordgo.Session {
	return a.s
}

func (a *App) Discord() ticketing.Session {
	return a.discord
}

func (a *App) Store() dataaccess.SettingsStore {
	return a.store
}

func (a *App) Manager() *ticketing.Manager {
	return a.manager
}

func (a *App) Relay() *ticketing.Relay {
	return a.relay
}

func (a *App) Gates() *ticketing.GateRegistry {
	return a.gates
}

func (a *App) Cooldowns() *ticketing.CooldownTracker {
	return a.cooldowns
}

func (a *App) Archive() dataaccess.TranscriptDal {
	return a.archive
}
