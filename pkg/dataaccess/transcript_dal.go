package dataaccess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finchbot/modmail/pkg/dataaccess/monitoring"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const transcriptDalName = "transcript_dal"

// TranscriptDal is the optional archive for closed-ticket transcripts.
type TranscriptDal interface {
	// ArchiveTranscript stores the transcript of a closed ticket.
	ArchiveTranscript(ctx context.Context, transcript *entities.ArchivedTranscript) error

	// GetTranscriptsByUser returns all archived transcripts for a user,
	// oldest first.
	GetTranscriptsByUser(ctx context.Context, userID string) ([]*entities.ArchivedTranscript, error)
}

type transcriptDalImpl struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewTranscriptDal creates a new transcript archive data access layer.
func NewTranscriptDal(logger *slog.Logger) TranscriptDal {
	l := logger.With(slog.String(logging.KeyDal, transcriptDalName))

	if MongoDB == nil {
		l.Warn("MongoDB is nil, this can cause a panic. Proceeding...")
	}

	return &transcriptDalImpl{
		l:      l,
		client: MongoDB,
	}
}

func (d *transcriptDalImpl) ArchiveTranscript(ctx context.Context, transcript *entities.ArchivedTranscript) error {
	collection := d.client.Database(mongoDatabase).Collection("transcripts")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(transcriptDalName, "archive_transcript", mongoDatabase, "transcripts").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(transcriptDalName, "archive_transcript", mongoDatabase, "transcripts"))
	defer t.ObserveDuration()

	if _, err := collection.InsertOne(ctx, transcript); err != nil {
		return fmt.Errorf("error archiving transcript: %w", err)
	}
	return nil
}

func (d *transcriptDalImpl) GetTranscriptsByUser(ctx context.Context, userID string) ([]*entities.ArchivedTranscript, error) {
	collection := d.client.Database(mongoDatabase).Collection("transcripts")

	// Start the prometheus metrics.
	monitoring.MongoTotalRequests.WithLabelValues(transcriptDalName, "get_transcripts_by_user", mongoDatabase, "transcripts").Inc()
	t := prometheus.NewTimer(monitoring.MongoLatency.WithLabelValues(transcriptDalName, "get_transcripts_by_user", mongoDatabase, "transcripts"))
	defer t.ObserveDuration()

	opts := options.Find().SetSort(bson.D{{Key: "closed_at", Value: 1}})
	cursor, err := collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("error getting transcripts: %w", err)
	}

	var transcripts []*entities.ArchivedTranscript
	if err := cursor.All(ctx, &transcripts); err != nil {
		return nil, fmt.Errorf("error decoding transcripts: %w", err)
	}
	return transcripts, nil
}
