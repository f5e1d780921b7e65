package actors

import (
	stdctx "context"
	"time"

	"gator-press/internal/database"
	"gator-press/internal/lifecycle"
	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Message types for CommentActor
type (
	AddNoteMsg struct {
		Expiry
		Caller   models.Principal
		PostID   uuid.UUID
		Channel  models.NoteChannel
		Text     string
		AuthorID string
	}

	GetNotesMsg struct {
		PostID  uuid.UUID
		Channel models.NoteChannel
	}
)

// CommentActor manages the two append-only discussion channels of a post:
// reader comments and editorial feedback.
type CommentActor struct {
	db           database.DBAdapter
	metrics      *utils.MetricsCollector
	events       EventPublisher
	logger       zerolog.Logger
	storeTimeout time.Duration
}

func NewCommentActor(db database.DBAdapter, metrics *utils.MetricsCollector, events EventPublisher, logger zerolog.Logger, storeTimeout time.Duration) actor.Actor {
	if events == nil {
		events = nopPublisher{}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &CommentActor{
		db:           db,
		metrics:      metrics,
		events:       events,
		logger:       logger.With().Str("actor", "comment").Logger(),
		storeTimeout: storeTimeout,
	}
}

func (a *CommentActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Info().Str("pid", context.Self().String()).Msg("CommentActor started")
	case *actor.Stopping:
		a.logger.Info().Msg("CommentActor stopping")
	case *actor.Stopped:
		a.logger.Info().Msg("CommentActor stopped")
	case *actor.Restarting:
		a.logger.Warn().Msg("CommentActor restarting")

	case *AddNoteMsg:
		a.handleAddNote(context, msg)
	case *GetNotesMsg:
		a.handleGetNotes(context, msg)
	default:
		a.logger.Warn().Str("type", typeName(msg)).Msg("CommentActor: Unknown message type")
	}
}

func validChannel(channel models.NoteChannel) bool {
	return channel == models.ChannelComment || channel == models.ChannelFeedback
}

func (a *CommentActor) handleAddNote(context actor.Context, msg *AddNoteMsg) {
	startTime := time.Now()
	defer func() {
		a.metrics.AddOperationLatency("add_"+string(msg.Channel), time.Since(startTime))
	}()

	if !validChannel(msg.Channel) {
		context.Respond(utils.NewValidationError("unknown channel: " + string(msg.Channel)))
		return
	}
	if err := lifecycle.ValidateNote(msg.Text); err != nil {
		context.Respond(err)
		return
	}

	authorID := msg.AuthorID
	if authorID == "" {
		authorID = msg.Caller.Name()
	}

	ctx, cancel, expired := storeContext(context, a.storeTimeout)
	if expired {
		a.logger.Warn().Str("postId", msg.PostID.String()).Msg("Dropping note that outlived its caller")
		context.Respond(utils.NewActorTimeoutError("comment"))
		return
	}
	defer cancel()

	note := &models.Note{
		ID:        uuid.New(),
		PostID:    msg.PostID,
		Channel:   msg.Channel,
		Text:      msg.Text,
		AuthorID:  authorID,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.db.AddNote(ctx, note); err != nil {
		appErr := asAppError(err)
		if appErr.Code == utils.ErrDatabase {
			a.logger.Error().Err(err).Str("postId", msg.PostID.String()).Msg("Failed to save note")
		}
		context.Respond(appErr)
		return
	}

	a.logger.Debug().
		Str("postId", note.PostID.String()).
		Str("channel", string(note.Channel)).
		Str("author", note.AuthorID).
		Msg("Note added")

	eventType := models.EventCommentAdded
	if note.Channel == models.ChannelFeedback {
		eventType = models.EventFeedbackAdded
	}
	a.events.PublishEvent(models.LifecycleEvent{
		Type:   eventType,
		PostID: note.PostID,
		Actor:  authorID,
		At:     note.CreatedAt,
	})
	context.Respond(note)
}

func (a *CommentActor) handleGetNotes(context actor.Context, msg *GetNotesMsg) {
	startTime := time.Now()
	defer func() {
		a.metrics.AddOperationLatency("list_"+string(msg.Channel), time.Since(startTime))
	}()

	if !validChannel(msg.Channel) {
		context.Respond(utils.NewValidationError("unknown channel: " + string(msg.Channel)))
		return
	}

	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
	defer cancel()

	notes, err := a.db.GetNotes(ctx, msg.PostID, msg.Channel)
	if err != nil {
		context.Respond(asAppError(err))
		return
	}
	context.Respond(notes)
}
