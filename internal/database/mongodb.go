// internal/database/mongodb.go
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client     *mongo.Client
	Users      *mongo.Collection
	Posts      *mongo.Collection
	Notes      *mongo.Collection
	Rejections *mongo.Collection
	Snapshots  *mongo.Collection
	logger     zerolog.Logger
}

func NewMongoDB(ctx context.Context, uri, dbName string, logger zerolog.Logger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger = logger.With().Str("component", "mongodb").Str("database", dbName).Logger()
	logger.Info().Msg("Successfully connected to MongoDB")

	db := client.Database(dbName)
	return &MongoDB{
		Client:     client,
		Users:      db.Collection("users"),
		Posts:      db.Collection("posts"),
		Notes:      db.Collection("notes"),
		Rejections: db.Collection("rejections"),
		Snapshots:  db.Collection("analytics_snapshots"),
		logger:     logger,
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	m.logger.Info().Msg("Closing MongoDB connection")
	return m.Client.Disconnect(ctx)
}

// EnsureIndexes creates the lookup and uniqueness indexes the adapter relies on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.Users, mongo.IndexModel{Keys: bson.D{{Key: "emailkey", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.Users, mongo.IndexModel{Keys: bson.D{{Key: "usernamekey", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{m.Posts, mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
		{m.Posts, mongo.IndexModel{Keys: bson.D{{Key: "createdat", Value: 1}, {Key: "seq", Value: 1}}}},
		{m.Notes, mongo.IndexModel{Keys: bson.D{{Key: "postid", Value: 1}, {Key: "channel", Value: 1}, {Key: "seq", Value: 1}}}},
		{m.Snapshots, mongo.IndexModel{Keys: bson.D{{Key: "generatedat", Value: -1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// --- Documents ---

// PostDocument represents the MongoDB schema for a post. History and like
// keys live inside the post so a delete takes them along.
type PostDocument struct {
	ID            string                `bson:"_id"`
	Title         string                `bson:"title"`
	Content       string                `bson:"content"`
	Author        string                `bson:"author"`
	CreatedBy     string                `bson:"createdby"`
	Status        models.PostStatus     `bson:"status"`
	Likes         int                   `bson:"likes"`
	LikeKeys      []string              `bson:"likekeys,omitempty"`
	StatusHistory []models.StatusChange `bson:"statushistory,omitempty"`
	Seq           int64                 `bson:"seq"`
	CreatedAt     time.Time             `bson:"createdat"`
	UpdatedAt     time.Time             `bson:"updatedat"`
}

// postProjection leaves the embedded arrays out of ordinary reads.
var postProjection = bson.M{"likekeys": 0, "statushistory": 0}

func postToDocument(post *models.Post) *PostDocument {
	return &PostDocument{
		ID:        post.ID.String(),
		Title:     post.Title,
		Content:   post.Content,
		Author:    post.Author,
		CreatedBy: post.CreatedBy.String(),
		Status:    post.Status,
		Likes:     post.Likes,
		Seq:       time.Now().UnixNano(),
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
}

func documentToPost(doc *PostDocument) (*models.Post, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid post ID: %w", err)
	}
	createdBy, err := uuid.Parse(doc.CreatedBy)
	if err != nil {
		createdBy = uuid.Nil
	}
	return &models.Post{
		ID:        id,
		Title:     doc.Title,
		Content:   doc.Content,
		Author:    doc.Author,
		CreatedBy: createdBy,
		Status:    doc.Status,
		Likes:     doc.Likes,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// NoteDocument represents the MongoDB schema for a comment or feedback entry.
type NoteDocument struct {
	ID        string             `bson:"_id"`
	PostID    string             `bson:"postid"`
	Channel   models.NoteChannel `bson:"channel"`
	Text      string             `bson:"text"`
	AuthorID  string             `bson:"authorid"`
	Seq       int64              `bson:"seq"`
	CreatedAt time.Time          `bson:"createdat"`
}

// UserDocument represents the MongoDB schema for a user. The *key fields hold
// lowercased copies for case-insensitive uniqueness.
type UserDocument struct {
	ID             string      `bson:"_id"`
	Username       string      `bson:"username"`
	UsernameKey    string      `bson:"usernamekey"`
	Email          string      `bson:"email"`
	EmailKey       string      `bson:"emailkey"`
	HashedPassword string      `bson:"hashedpassword"`
	Role           models.Role `bson:"role"`
	CreatedAt      time.Time   `bson:"createdat"`
	UpdatedAt      time.Time   `bson:"updatedat"`
}

func documentToUser(doc *UserDocument) (*models.User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}
	return &models.User{
		ID:             id,
		Username:       doc.Username,
		Email:          doc.Email,
		HashedPassword: doc.HashedPassword,
		Role:           doc.Role,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// --- Post Methods ---

func (m *MongoDB) CreatePost(ctx context.Context, post *models.Post) error {
	if _, err := m.Posts.InsertOne(ctx, postToDocument(post)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrDuplicate, "post already exists", err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save post", err)
	}
	return nil
}

func (m *MongoDB) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var doc PostDocument
	err := m.Posts.FindOne(ctx, bson.M{"_id": id.String()}, options.FindOne().SetProjection(postProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("post", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query post", err)
	}
	return documentToPost(&doc)
}

func (m *MongoDB) ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if author := strings.TrimSpace(filter.Author); author != "" {
		query["author"] = primitive.Regex{Pattern: `^\s*` + regexp.QuoteMeta(author) + `\s*$`, Options: "i"}
	}
	if filter.Keyword != "" {
		query["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Keyword), Options: "i"}
	}

	opts := options.Find().
		SetProjection(postProjection).
		SetSort(bson.D{{Key: "createdat", Value: 1}, {Key: "seq", Value: 1}})

	cursor, err := m.Posts.Find(ctx, query, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list posts", err)
	}
	defer cursor.Close(ctx)

	posts := []*models.Post{}
	for cursor.Next(ctx) {
		var doc PostDocument
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Warn().Err(err).Msg("Skipping undecodable post document")
			continue
		}
		post, err := documentToPost(&doc)
		if err != nil {
			m.logger.Warn().Err(err).Str("postId", doc.ID).Msg("Skipping invalid post document")
			continue
		}
		posts = append(posts, post)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "cursor error", err)
	}
	return posts, nil
}

// statusMismatch explains why a status-filtered write matched nothing.
func (m *MongoDB) statusMismatch(ctx context.Context, id uuid.UUID, expect models.PostStatus) error {
	current, err := m.GetPost(ctx, id)
	if err != nil {
		return err
	}
	return utils.NewAppError(utils.ErrInvalidTransition,
		"post status changed: expected "+string(expect)+", found "+string(current.Status), nil)
}

// casPost applies update to the post only if it still has status expect.
func (m *MongoDB) casPost(ctx context.Context, id uuid.UUID, expect models.PostStatus, update bson.M) (*models.Post, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(postProjection)

	var doc PostDocument
	err := m.Posts.FindOneAndUpdate(ctx, bson.M{"_id": id.String(), "status": expect}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, m.statusMismatch(ctx, id, expect)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update post", err)
	}
	return documentToPost(&doc)
}

func (m *MongoDB) UpdatePostContent(ctx context.Context, id uuid.UUID, expect models.PostStatus, title, content string, at time.Time) (*models.Post, error) {
	return m.casPost(ctx, id, expect, bson.M{
		"$set": bson.M{"title": title, "content": content, "updatedat": at},
	})
}

func (m *MongoDB) TransitionPost(ctx context.Context, id uuid.UUID, expect, to models.PostStatus, changes []models.StatusChange) (*models.Post, error) {
	updatedAt := time.Now()
	entries := make([]models.StatusChange, 0, len(changes))
	for _, change := range changes {
		change.PostID = id
		entries = append(entries, change)
		updatedAt = change.At
	}

	update := bson.M{"$set": bson.M{"status": to, "updatedat": updatedAt}}
	if len(entries) > 0 {
		update["$push"] = bson.M{"statushistory": bson.M{"$each": entries}}
	}
	return m.casPost(ctx, id, expect, update)
}

func (m *MongoDB) DeletePost(ctx context.Context, id uuid.UUID, expect models.PostStatus) error {
	result, err := m.Posts.DeleteOne(ctx, bson.M{"_id": id.String(), "status": expect})
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete post", err)
	}
	if result.DeletedCount == 0 {
		return m.statusMismatch(ctx, id, expect)
	}

	// Notes live in their own collection.
	if _, err := m.Notes.DeleteMany(ctx, bson.M{"postid": id.String()}); err != nil {
		m.logger.Error().Err(err).Str("postId", id.String()).Msg("Failed to remove notes of deleted post")
		return utils.NewAppError(utils.ErrDatabase, "failed to delete post notes", err)
	}
	return nil
}

func (m *MongoDB) IncrementLikes(ctx context.Context, id uuid.UUID, dedupKey string) (int, error) {
	filter := bson.M{"_id": id.String()}
	update := bson.M{"$inc": bson.M{"likes": 1}}
	if dedupKey != "" {
		filter["likekeys"] = bson.M{"$ne": dedupKey}
		update["$addToSet"] = bson.M{"likekeys": dedupKey}
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"likes": 1})

	var doc struct {
		Likes int `bson:"likes"`
	}
	err := m.Posts.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the post is gone or the key was already counted.
		post, err := m.GetPost(ctx, id)
		if err != nil {
			return 0, err
		}
		return post.Likes, nil
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to increment likes", err)
	}
	return doc.Likes, nil
}

func (m *MongoDB) CountPostsByStatus(ctx context.Context) (map[models.PostStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := m.Posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to count posts", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.PostStatus `bson:"_id"`
		Count  int               `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to decode post counts", err)
	}
	counts := make(map[models.PostStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (m *MongoDB) ensurePost(ctx context.Context, id uuid.UUID) error {
	n, err := m.Posts.CountDocuments(ctx, bson.M{"_id": id.String()}, options.Count().SetLimit(1))
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to check post", err)
	}
	if n == 0 {
		return utils.NewNotFoundError("post", id)
	}
	return nil
}

// --- Comment and Feedback Methods ---

func (m *MongoDB) AddNote(ctx context.Context, note *models.Note) error {
	if err := m.ensurePost(ctx, note.PostID); err != nil {
		return err
	}
	doc := &NoteDocument{
		ID:        note.ID.String(),
		PostID:    note.PostID.String(),
		Channel:   note.Channel,
		Text:      note.Text,
		AuthorID:  note.AuthorID,
		Seq:       time.Now().UnixNano(),
		CreatedAt: note.CreatedAt,
	}
	if _, err := m.Notes.InsertOne(ctx, doc); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save note", err)
	}
	return nil
}

func (m *MongoDB) GetNotes(ctx context.Context, postID uuid.UUID, channel models.NoteChannel) ([]*models.Note, error) {
	if err := m.ensurePost(ctx, postID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := m.Notes.Find(ctx, bson.M{"postid": postID.String(), "channel": channel}, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query notes", err)
	}
	defer cursor.Close(ctx)

	notes := []*models.Note{}
	for cursor.Next(ctx) {
		var doc NoteDocument
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Warn().Err(err).Msg("Skipping undecodable note document")
			continue
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			m.logger.Warn().Err(err).Str("noteId", doc.ID).Msg("Skipping invalid note document")
			continue
		}
		notes = append(notes, &models.Note{
			ID:        id,
			PostID:    postID,
			Channel:   doc.Channel,
			Text:      doc.Text,
			AuthorID:  doc.AuthorID,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "cursor error", err)
	}
	return notes, nil
}

// --- History Methods ---

func (m *MongoDB) GetStatusHistory(ctx context.Context, postID uuid.UUID) ([]*models.StatusChange, error) {
	var doc PostDocument
	opts := options.FindOne().SetProjection(bson.M{"statushistory": 1})
	err := m.Posts.FindOne(ctx, bson.M{"_id": postID.String()}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("post", postID)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query status history", err)
	}

	history := make([]*models.StatusChange, 0, len(doc.StatusHistory))
	for i := range doc.StatusHistory {
		change := doc.StatusHistory[i]
		change.PostID = postID
		history = append(history, &change)
	}
	return history, nil
}

// --- Analytics Methods ---

func (m *MongoDB) RecordRejection(ctx context.Context, at time.Time) error {
	opts := options.Update().SetUpsert(true)
	_, err := m.Rejections.UpdateOne(ctx,
		bson.M{"_id": dayStart(at)},
		bson.M{"$inc": bson.M{"count": 1}},
		opts)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to record rejection", err)
	}
	return nil
}

func (m *MongoDB) CountRejections(ctx context.Context, since time.Time) (int, error) {
	filter := bson.M{}
	if !since.IsZero() {
		filter["_id"] = bson.M{"$gte": dayStart(since)}
	}
	cursor, err := m.Rejections.Find(ctx, filter)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count rejections", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to decode rejection counts", err)
	}
	total := 0
	for _, row := range rows {
		total += row.Count
	}
	return total, nil
}

func (m *MongoDB) SaveAnalyticsSnapshot(ctx context.Context, snapshot *models.Analytics) error {
	if _, err := m.Snapshots.InsertOne(ctx, snapshot); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save analytics snapshot", err)
	}
	return nil
}

func (m *MongoDB) GetLatestAnalyticsSnapshot(ctx context.Context) (*models.Analytics, error) {
	var snapshot models.Analytics
	opts := options.FindOne().SetSort(bson.D{{Key: "generatedat", Value: -1}})
	err := m.Snapshots.FindOne(ctx, bson.M{}, opts).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewAppError(utils.ErrNotFound, "no analytics snapshot saved", err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query analytics snapshot", err)
	}
	return &snapshot, nil
}

// --- User Methods ---

func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.UpdatedAt = now
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	doc := &UserDocument{
		ID:             user.ID.String(),
		Username:       user.Username,
		UsernameKey:    strings.ToLower(user.Username),
		Email:          user.Email,
		EmailKey:       strings.ToLower(user.Email),
		HashedPassword: user.HashedPassword,
		Role:           user.Role,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.Users.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrDuplicate, "user already exists", err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user", err)
	}
	return documentToUser(&doc)
}

func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, bson.M{"emailkey": strings.ToLower(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewAppError(utils.ErrNotFound, "user not found", err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by email", err)
	}
	return documentToUser(&doc)
}

func (m *MongoDB) UpdateUserRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc UserDocument
	err := m.Users.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"role": role, "updatedat": time.Now()}},
		opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to update user role", err)
	}
	return documentToUser(&doc)
}
