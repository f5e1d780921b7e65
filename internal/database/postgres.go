// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB     *sqlx.DB
	logger zerolog.Logger
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, logger zerolog.Logger) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger = logger.With().Str("component", "postgres").Logger()
	logger.Info().Msg("Successfully connected to PostgreSQL")

	return &PostgresDB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	p.logger.Info().Msg("Closing PostgreSQL connection")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	statements := []struct {
		name string
		ddl  string
	}{
		{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			email VARCHAR(100) UNIQUE NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'author',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
		{"posts", `
		CREATE TABLE IF NOT EXISTS posts (
			id UUID PRIMARY KEY,
			title VARCHAR(300) NOT NULL,
			content TEXT NOT NULL,
			author VARCHAR(100) NOT NULL DEFAULT '',
			created_by UUID,
			status VARCHAR(20) NOT NULL CHECK (status IN ('DRAFT', 'REVIEW', 'PUBLISHED')),
			likes INTEGER NOT NULL DEFAULT 0 CHECK (likes >= 0),
			seq BIGSERIAL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
		{"post_notes", `
		CREATE TABLE IF NOT EXISTS post_notes (
			id UUID PRIMARY KEY,
			post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			channel VARCHAR(20) NOT NULL,
			text TEXT NOT NULL,
			author_id VARCHAR(100) NOT NULL DEFAULT '',
			seq BIGSERIAL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
		{"post_status_history", `
		CREATE TABLE IF NOT EXISTS post_status_history (
			id BIGSERIAL PRIMARY KEY,
			post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			old_status VARCHAR(20) NOT NULL,
			new_status VARCHAR(20) NOT NULL,
			changed_by VARCHAR(100) NOT NULL,
			changed_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`},
		{"post_like_keys", `
		CREATE TABLE IF NOT EXISTS post_like_keys (
			post_id UUID NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			dedup_key VARCHAR(200) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (post_id, dedup_key)
		)`},
		{"rejection_counts", `
		CREATE TABLE IF NOT EXISTS rejection_counts (
			day DATE PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		)`},
		{"analytics_snapshots", `
		CREATE TABLE IF NOT EXISTS analytics_snapshots (
			id BIGSERIAL PRIMARY KEY,
			total_published INTEGER NOT NULL,
			total_drafts INTEGER NOT NULL,
			total_in_review INTEGER NOT NULL,
			total_rejected INTEGER NOT NULL,
			rejected_today INTEGER NOT NULL,
			generated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}

	_, err := p.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS posts_status_idx ON posts (status)`)
	if err != nil {
		return fmt.Errorf("failed to create posts status index: %w", err)
	}
	return nil
}

// --- Post Methods ---

const postColumns = `id, title, content, author, created_by, status, likes, created_at, updated_at`

// CreatePost inserts a new post.
func (p *PostgresDB) CreatePost(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (id, title, content, author, created_by, status, likes, created_at, updated_at)
		VALUES (:id, :title, :content, :author, :created_by, :status, :likes, :created_at, :updated_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, post); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return utils.NewAppError(utils.ErrDuplicate, "post already exists", err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save post", err)
	}
	return nil
}

// GetPost fetches a post by its ID.
func (p *PostgresDB) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return p.getPost(ctx, p.DB, id)
}

func (p *PostgresDB) getPost(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	err := sqlx.GetContext(ctx, q, &post, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("post", id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query post by id", err)
	}
	return &post, nil
}

// ListPosts returns posts matching filter in creation order.
func (p *PostgresDB) ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Author != "" {
		args = append(args, strings.TrimSpace(filter.Author))
		where = append(where, fmt.Sprintf("LOWER(TRIM(author)) = LOWER($%d)", len(args)))
	}
	if filter.Keyword != "" {
		args = append(args, "%"+escapeLike(filter.Keyword)+"%")
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)))
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	posts := []*models.Post{}
	if err := p.DB.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list posts", err)
	}
	return posts, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// statusMismatch explains why a conditional write matched no row.
func (p *PostgresDB) statusMismatch(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, expect models.PostStatus) error {
	current, err := p.getPost(ctx, q, id)
	if err != nil {
		return err
	}
	return utils.NewAppError(utils.ErrInvalidTransition,
		"post status changed: expected "+string(expect)+", found "+string(current.Status), nil)
}

// UpdatePostContent replaces title and content while the post still has status expect.
func (p *PostgresDB) UpdatePostContent(ctx context.Context, id uuid.UUID, expect models.PostStatus, title, content string, at time.Time) (*models.Post, error) {
	var post models.Post
	err := p.DB.GetContext(ctx, &post, `
		UPDATE posts SET title = $1, content = $2, updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING `+postColumns, title, content, at, id, expect)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.statusMismatch(ctx, p.DB, id, expect)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update post", err)
	}
	return &post, nil
}

// TransitionPost moves a post from expect to to and appends the history rows
// in the same transaction.
func (p *PostgresDB) TransitionPost(ctx context.Context, id uuid.UUID, expect, to models.PostStatus, changes []models.StatusChange) (*models.Post, error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback() // Rollback is ignored if tx is committed.

	updatedAt := time.Now()
	if n := len(changes); n > 0 {
		updatedAt = changes[n-1].At
	}

	var post models.Post
	err = tx.GetContext(ctx, &post, `
		UPDATE posts SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING `+postColumns, to, updatedAt, id, expect)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, p.statusMismatch(ctx, tx, id, expect)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update post status", err)
	}

	for _, change := range changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_status_history (post_id, old_status, new_status, changed_by, changed_at)
			VALUES ($1, $2, $3, $4, $5)`,
			id, change.OldStatus, change.NewStatus, change.ChangedBy, change.At)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to append status history", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to commit status transaction", err)
	}
	return &post, nil
}

// DeletePost removes a post that still has status expect. Notes, history and
// like keys go with it through ON DELETE CASCADE.
func (p *PostgresDB) DeletePost(ctx context.Context, id uuid.UUID, expect models.PostStatus) error {
	result, err := p.DB.ExecContext(ctx, `DELETE FROM posts WHERE id = $1 AND status = $2`, id, expect)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete post", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to get rows affected after delete", err)
	}
	if rowsAffected == 0 {
		return p.statusMismatch(ctx, p.DB, id, expect)
	}
	return nil
}

// IncrementLikes adds one like. A non-empty dedupKey is recorded and a repeat
// of it leaves the count unchanged.
func (p *PostgresDB) IncrementLikes(ctx context.Context, id uuid.UUID, dedupKey string) (int, error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if dedupKey != "" {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO post_like_keys (post_id, dedup_key) VALUES ($1, $2)
			ON CONFLICT (post_id, dedup_key) DO NOTHING`, id, dedupKey)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
				return 0, utils.NewNotFoundError("post", id)
			}
			return 0, utils.NewAppError(utils.ErrDatabase, "failed to record like key", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			post, err := p.getPost(ctx, tx, id)
			if err != nil {
				return 0, err
			}
			return post.Likes, nil
		}
	}

	var likes int
	err = tx.GetContext(ctx, &likes, `UPDATE posts SET likes = likes + 1 WHERE id = $1 RETURNING likes`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, utils.NewNotFoundError("post", id)
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to increment likes", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to commit like transaction", err)
	}
	return likes, nil
}

// CountPostsByStatus groups live posts by status.
func (p *PostgresDB) CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	rows := []struct {
		Status models.PostStatus `db:"status"`
		Count  int               `db:"count"`
	}{}
	if err := p.DB.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM posts GROUP BY status`); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to count posts", err)
	}
	counts := make(map[models.PostStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// --- Comment and Feedback Methods ---

// AddNote appends a comment or feedback entry.
func (p *PostgresDB) AddNote(ctx context.Context, note *models.Note) error {
	query := `
		INSERT INTO post_notes (id, post_id, channel, text, author_id, created_at)
		VALUES (:id, :post_id, :channel, :text, :author_id, :created_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, note); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return utils.NewNotFoundError("post", note.PostID)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save note", err)
	}
	return nil
}

// GetNotes lists one channel of a post's notes in insertion order.
func (p *PostgresDB) GetNotes(ctx context.Context, postID uuid.UUID, channel models.NoteChannel) ([]*models.Note, error) {
	if err := p.ensurePost(ctx, postID); err != nil {
		return nil, err
	}
	notes := []*models.Note{}
	err := p.DB.SelectContext(ctx, &notes, `
		SELECT id, post_id, channel, text, author_id, created_at
		FROM post_notes WHERE post_id = $1 AND channel = $2
		ORDER BY seq ASC`, postID, channel)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query notes", err)
	}
	return notes, nil
}

func (p *PostgresDB) ensurePost(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := p.DB.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, id); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to check post", err)
	}
	if !exists {
		return utils.NewNotFoundError("post", id)
	}
	return nil
}

// --- History Methods ---

// GetStatusHistory lists a post's status changes in the order they happened.
func (p *PostgresDB) GetStatusHistory(ctx context.Context, postID uuid.UUID) ([]*models.StatusChange, error) {
	if err := p.ensurePost(ctx, postID); err != nil {
		return nil, err
	}
	history := []*models.StatusChange{}
	err := p.DB.SelectContext(ctx, &history, `
		SELECT post_id, old_status, new_status, changed_by, changed_at
		FROM post_status_history WHERE post_id = $1
		ORDER BY id ASC`, postID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query status history", err)
	}
	return history, nil
}

// --- Analytics Methods ---

func (p *PostgresDB) RecordRejection(ctx context.Context, at time.Time) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO rejection_counts (day, count) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET count = rejection_counts.count + 1`, dayStart(at))
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to record rejection", err)
	}
	return nil
}

func (p *PostgresDB) CountRejections(ctx context.Context, since time.Time) (int, error) {
	var total int
	var err error
	if since.IsZero() {
		err = p.DB.GetContext(ctx, &total, `SELECT COALESCE(SUM(count), 0) FROM rejection_counts`)
	} else {
		err = p.DB.GetContext(ctx, &total, `SELECT COALESCE(SUM(count), 0) FROM rejection_counts WHERE day >= $1`, dayStart(since))
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count rejections", err)
	}
	return total, nil
}

func (p *PostgresDB) SaveAnalyticsSnapshot(ctx context.Context, snapshot *models.Analytics) error {
	query := `
		INSERT INTO analytics_snapshots (total_published, total_drafts, total_in_review, total_rejected, rejected_today, generated_at)
		VALUES (:total_published, :total_drafts, :total_in_review, :total_rejected, :rejected_today, :generated_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, snapshot); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save analytics snapshot", err)
	}
	return nil
}

func (p *PostgresDB) GetLatestAnalyticsSnapshot(ctx context.Context) (*models.Analytics, error) {
	var snapshot models.Analytics
	err := p.DB.GetContext(ctx, &snapshot, `
		SELECT total_published, total_drafts, total_in_review, total_rejected, rejected_today, generated_at
		FROM analytics_snapshots ORDER BY generated_at DESC, id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrNotFound, "no analytics snapshot saved", err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query analytics snapshot", err)
	}
	return &snapshot, nil
}

// --- User Methods ---

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

// SaveUser inserts a new user into the database.
func (p *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES (:id, :username, :email, :password_hash, :role, :created_at, :updated_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, user); err != nil {
		// Check for duplicate key violation (username or email)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return utils.NewAppError(utils.ErrDuplicate, fmt.Sprintf("user already exists: %v", pqErr.Constraint), err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// GetUser fetches a user by their ID.
func (p *PostgresDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("user", id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
	}
	return &user, nil
}

// GetUserByEmail fetches a user by their email address.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "user not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by email", err)
	}
	return &user, nil
}

// UpdateUserRole changes a user's role.
func (p *PostgresDB) UpdateUserRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `
		UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2
		RETURNING `+userColumns, role, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewNotFoundError("user", id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update user role", err)
	}
	return &user, nil
}
