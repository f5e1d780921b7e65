package actors

import (
	"context"
	"testing"
	"time"

	"gator-press/internal/database"
	"gator-press/internal/lifecycle"
	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentActor(t *testing.T) {
	system := actor.NewActorSystem()
	db := database.NewMemoryDB()
	events := &recordingPublisher{}

	post := &models.Post{ID: uuid.New(), Title: "Hello", Content: "World", Status: models.StatusDraft}
	require.NoError(t, db.CreatePost(context.Background(), post))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCommentActor(db, utils.NewMetricsCollector(), events, zerolog.Nop(), time.Second)
	})
	pid := system.Root.Spawn(props)

	// Test adding a comment
	future := system.Root.RequestFuture(pid, &AddNoteMsg{
		Caller:   testAuthor,
		PostID:   post.ID,
		Channel:  models.ChannelComment,
		Text:     "Nice post",
		AuthorID: "reader-1",
	}, 5*time.Second)
	result, err := future.Result()
	assert.NoError(t, err)

	comment, ok := result.(*models.Note)
	require.True(t, ok, "unexpected reply %T", result)
	assert.Equal(t, "Nice post", comment.Text)
	assert.Equal(t, "reader-1", comment.AuthorID)

	// Feedback without an explicit author falls back to the caller
	future = system.Root.RequestFuture(pid, &AddNoteMsg{
		Caller:  testReviewer,
		PostID:  post.ID,
		Channel: models.ChannelFeedback,
		Text:    "Tighten the intro",
	}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Equal(t, "rita", result.(*models.Note).AuthorID)

	// Empty text is rejected
	future = system.Root.RequestFuture(pid, &AddNoteMsg{PostID: post.ID, Channel: models.ChannelComment, Text: "   "}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.True(t, utils.IsErrorCode(result.(*utils.AppError), utils.ErrValidation))

	// Channels are kept apart
	future = system.Root.RequestFuture(pid, &GetNotesMsg{PostID: post.ID, Channel: models.ChannelComment}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	comments := result.([]*models.Note)
	assert.Equal(t, 1, len(comments))

	future = system.Root.RequestFuture(pid, &GetNotesMsg{PostID: post.ID, Channel: models.ChannelFeedback}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.([]*models.Note)))

	assert.Equal(t, []models.EventType{models.EventCommentAdded, models.EventFeedbackAdded}, events.types())
}

func TestCommentActorUnknownPost(t *testing.T) {
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCommentActor(database.NewMemoryDB(), nil, nil, zerolog.Nop(), time.Second)
	})
	pid := system.Root.Spawn(props)

	result, err := system.Root.RequestFuture(pid, &AddNoteMsg{
		PostID:  uuid.New(),
		Channel: models.ChannelComment,
		Text:    "hello?",
	}, 5*time.Second).Result()
	assert.NoError(t, err)
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}

func TestNotesRemovedWithPost(t *testing.T) {
	system := actor.NewActorSystem()
	db := database.NewMemoryDB()
	postPID := system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewPostActor(db, nil, nil, zerolog.Nop(), time.Second)
	}))
	commentPID := system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewCommentActor(db, nil, nil, zerolog.Nop(), time.Second)
	}))

	post := createDraft(t, system, postPID)
	ask(t, system, commentPID, &AddNoteMsg{PostID: post.ID, Channel: models.ChannelComment, Text: "first"})

	result := ask(t, system, postPID, &DeletePostMsg{Caller: testAuthor, PostID: post.ID, Confirm: lifecycle.DeleteConfirmation{}})
	_, ok := result.(*PostRemoved)
	require.True(t, ok)

	result = ask(t, system, commentPID, &GetNotesMsg{PostID: post.ID, Channel: models.ChannelComment})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}
