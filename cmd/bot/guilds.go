package main

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

func guildJoinedHandler(a IApp) func(s *discordgo.Session, g *discordgo.GuildCreate) {
	return func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		a.Log().Info(fmt.Sprintf("Joined guild %s", g.Name))

		TotalDiscordEvents.WithLabelValues("guild_create").Inc()

		// Increment the total number of guilds.
		TotalDiscordGuilds.Inc()
	}
}

func guildLeaveHandler(a IApp) func(s *discordgo.Session, g *discordgo.GuildDelete) {
	return func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		a.Log().Info(fmt.Sprintf("Left guild %s", g.ID))

		TotalDiscordEvents.WithLabelValues("guild_delete").Inc()

		// Decrement the total number of guilds.
		TotalDiscordGuilds.Dec()
	}
}
