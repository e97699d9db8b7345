package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/finchbot/modmail/pkg/request"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// commandController resolves the processor for a slash command, given the
// subcommand name (empty for commands without subcommands).
type commandController func(a IApp, subcommand string) (commandProcessor, error)

// commandProcessor handles a single interaction.
type commandProcessor func(a IApp, i *discordgo.InteractionCreate) error

type Controller func(w http.ResponseWriter, r *http.Request)

func middlewareHttp(handler Controller, a IApp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		cw := request.NewClientWriter(w)

		// Recover from any panics that occur in the handler.
		defer func() {
			if rec := recover(); rec != nil {
				a.Log().Error("Panic in handler",
					slog.String(logging.KeyError, fmt.Sprintf("%v", rec)),
					slog.String("stack", string(debug.Stack())),
				)
				cw.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(cw).Encode(request.NewMessage(request.ErrInternalServer.Error())); err != nil {
					a.Log().Error("Error encoding response", slog.String(logging.KeyError, err.Error()))
				}
			}
		}()

		var path string
		route := mux.CurrentRoute(r)
		if route != nil { // The route may be nil if the request is not routed.
			var err error
			path, err = route.GetPathTemplate()
			if err != nil {
				// An error here is only returned if the route does not define a path.
				a.Log().Error("Error getting path template", slog.String(logging.KeyError, err.Error()))
				path = r.URL.Path // If the route does not define a path, use the URL path.
			}
		} else {
			path = r.URL.Path // If the route is nil, use the URL path.
		}

		defer func() {
			// Run the deferred function after the request has been handled, as the status code will not be available until then.
			HttpTotalRequests.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Inc()
			HttpRequestDuration.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Observe(time.Since(now).Seconds())
		}()

		handler(cw, r)
	}
}

// interactionHandler dispatches interactions: slash commands by name and
// button presses by component ID.
func interactionHandler(a IApp, commands map[string]commandController, buttons map[string]commandProcessor) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			TotalDiscordEvents.WithLabelValues("interaction_command").Inc()
			handleSlashCommand(a, commands, i)
		case discordgo.InteractionMessageComponent:
			TotalDiscordEvents.WithLabelValues("interaction_component").Inc()
			handleComponent(a, buttons, i)
		default:
			a.Log().Debug("Ignoring interaction", slog.String("type", fmt.Sprintf("%d", i.Type)))
		}
	}
}

func handleSlashCommand(a IApp, commands map[string]commandController, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	a.Log().Debug("Handling interaction " + data.Name)

	t := prometheus.NewTimer(DiscordCommandDuration.WithLabelValues(data.Name))
	defer t.ObserveDuration()

	controller, ok := commands[data.Name]
	if !ok {
		a.Log().Error(fmt.Sprintf("No controller found for command %s", data.Name),
			slog.String("command", data.Name))

		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	var subcommand string
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		subcommand = data.Options[0].Name
	}

	processor, err := controller(a, subcommand)
	if err != nil {
		a.Log().Error(fmt.Sprintf("Error getting processor for command %s", data.Name),
			slog.String(logging.KeyError, err.Error()))

		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
		return
	}

	if err := processor(a, i); err != nil {
		a.Log().Error(fmt.Sprintf("Error processing command %s", data.Name),
			slog.String(logging.KeyError, err.Error()))

		if err := respondSlashError(a, i); err != nil {
			a.Log().Error("Error responding to interaction", slog.String(logging.KeyError, err.Error()))
		}
	}
}

func handleComponent(a IApp, buttons map[string]commandProcessor, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	processor, ok := buttons[customID]
	if !ok {
		a.Log().Debug("No processor found for component", slog.String("component", customID))
		return
	}

	if err := processor(a, i); err != nil {
		a.Log().Error(fmt.Sprintf("Error processing component %s", customID),
			slog.String(logging.KeyError, err.Error()))
	}
}
