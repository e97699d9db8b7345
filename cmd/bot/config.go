package main

import (
	"log/slog"
	"os"

	"github.com/finchbot/modmail/pkg/dataaccess"
	"github.com/finchbot/modmail/pkg/dataaccess/connection"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/joho/godotenv"
)

const (
	// AppName is the name of the application.
	AppName = "modmail"

	// EnvBotToken is the environment variable for the bot token.
	EnvBotToken = `BOT_TOKEN`

	// EnvApplicationId is the environment variable for the application ID.
	EnvApplicationId = `APPLICATION_ID`

	// EnvGuildId is the environment variable for the guild the bot serves.
	EnvGuildId = `GUILD_ID`

	// EnvDataFile is the environment variable for the settings file path.
	EnvDataFile = `DATA_FILE`

	// EnvMongoUri is the environment variable for the MongoDB URI. Optional;
	// when unset, closed transcripts are not archived.
	EnvMongoUri = `MONGO_URI`

	// EnvOpenAIKey is the environment variable for the OpenAI API key.
	// Optional; when unset, close summaries fall back to truncation.
	EnvOpenAIKey = `OPENAI_API_KEY`

	// EnvMonitoringPort is the environment variable for the monitoring port.
	EnvMonitoringPort = `MONITORING_PORT`
)

var (
	// BotToken is the token for the bot.
	BotToken string

	// ApplicationId is the ID of the application.
	ApplicationId string

	// GuildId is the ID of the guild the bot serves.
	GuildId string

	// DataFile is the path of the settings file.
	DataFile string

	// MongoUri is the URI for the MongoDB database.
	MongoUri string

	// OpenAIKey is the OpenAI API key.
	OpenAIKey string

	// MonitoringPort is the port for the monitoring server.
	MonitoringPort string
)

func parseConfig() {
	// A .env file is optional; the environment may already be populated.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", slog.String(logging.KeyError, err.Error()))
	}

	if envBT := os.Getenv(EnvBotToken); envBT != "" {
		slog.Debug("Found bot token in environment", slog.String("key", EnvBotToken))
		BotToken = envBT
	}

	if envAppId := os.Getenv(EnvApplicationId); envAppId != "" {
		slog.Debug("Found application ID in environment", slog.String("key", EnvApplicationId))
		ApplicationId = envAppId
	}

	if envGuildId := os.Getenv(EnvGuildId); envGuildId != "" {
		slog.Debug("Found guild ID in environment", slog.String("key", EnvGuildId))
		GuildId = envGuildId
	}

	if envDataFile := os.Getenv(EnvDataFile); envDataFile != "" {
		slog.Debug("Found data file in environment", slog.String("key", EnvDataFile))
		DataFile = envDataFile
	} else {
		DataFile = "modmail_settings.json"
		slog.Info("No data file provided in environment, defaulting", slog.String("path", DataFile))
	}

	if envMongoUri := os.Getenv(EnvMongoUri); envMongoUri != "" {
		slog.Debug("Found MongoDB URI in environment", slog.String("key", EnvMongoUri))
		MongoUri = envMongoUri
	}

	if envOpenAIKey := os.Getenv(EnvOpenAIKey); envOpenAIKey != "" {
		slog.Debug("Found OpenAI key in environment", slog.String("key", EnvOpenAIKey))
		OpenAIKey = envOpenAIKey
	}

	if envMonitoringPort := os.Getenv(EnvMonitoringPort); envMonitoringPort != "" {
		slog.Debug("Found monitoring port in environment", slog.String("key", EnvMonitoringPort))
		MonitoringPort = envMonitoringPort
	} else {
		// Default to 8080 if not provided.
		MonitoringPort = "8080"
		slog.Info("No monitoring port provided in environment, defaulting to 8080", slog.String("key", EnvMonitoringPort))
	}

	if BotToken == "" ||
		ApplicationId == "" ||
		GuildId == "" {

		slog.Error("Not all required environment variables have been provided", slog.String(logging.KeyError, "Incomplete configuration"))
		os.Exit(1)
	}

	if MongoUri != "" {
		connectMongo()
	} else {
		slog.Info("No MongoDB URI provided, transcript archiving is disabled")
	}
}

func connectMongo() {
	mongoConn := new(connection.MongoDB)
	mongoConn.ConnectionString = MongoUri

	db, err := mongoConn.Connect()
	if err != nil {
		slog.Error("Error connecting to mongo", slog.String(logging.KeyError, err.Error()))
		os.Exit(1)
	} else if db == nil {
		slog.Error("MongoDB came back nil", slog.String(logging.KeyError, "MongoDB came back nil"))
		os.Exit(1)
	}

	dataaccess.MongoDB = db
	slog.Debug("Connected to MongoDB", slog.String("key", EnvMongoUri))
}
