package database

import (
	"context"
	"fmt"
	"time"

	"gator-press/internal/config"
	"gator-press/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DBAdapter defines the common interface for storage backends.
//
// Status changes and deletes are conditional on the status the caller read
// (expect). When the stored status differs the adapter returns an
// INVALID_TRANSITION AppError and changes nothing, so two writers racing on
// one post cannot both win even across processes.
type DBAdapter interface {
	// Connection
	Close(ctx context.Context) error

	// Post methods
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	UpdatePostContent(ctx context.Context, id uuid.UUID, expect models.PostStatus, title, content string, at time.Time) (*models.Post, error)
	TransitionPost(ctx context.Context, id uuid.UUID, expect, to models.PostStatus, changes []models.StatusChange) (*models.Post, error)
	DeletePost(ctx context.Context, id uuid.UUID, expect models.PostStatus) error
	IncrementLikes(ctx context.Context, id uuid.UUID, dedupKey string) (int, error)
	CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error)

	// Comment and feedback methods
	AddNote(ctx context.Context, note *models.Note) error
	GetNotes(ctx context.Context, postID uuid.UUID, channel models.NoteChannel) ([]*models.Note, error)

	// History methods
	GetStatusHistory(ctx context.Context, postID uuid.UUID) ([]*models.StatusChange, error)

	// Analytics methods
	RecordRejection(ctx context.Context, at time.Time) error
	CountRejections(ctx context.Context, since time.Time) (int, error)
	SaveAnalyticsSnapshot(ctx context.Context, snapshot *models.Analytics) error
	GetLatestAnalyticsSnapshot(ctx context.Context) (*models.Analytics, error)

	// User methods
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.User, error)
}

// Connect opens the adapter selected by cfg.Type and prepares its schema.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (DBAdapter, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.Type {
	case config.DBMemory:
		logger.Info().Msg("Using in-memory storage; data will not survive a restart")
		return NewMemoryDB(), nil
	case config.DBPostgres:
		db, err := NewPostgresDB(cfg.URI, logger)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBMongo:
		db, err := NewMongoDB(ctx, cfg.URI, cfg.Name, logger)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// dayStart truncates t to UTC midnight; rejection counters are kept per UTC day.
func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
