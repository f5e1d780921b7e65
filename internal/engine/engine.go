// Package engine exposes the post lifecycle manager. Every call is routed to
// an actor so that mutations of the shared post collection are serialized.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gator-press/internal/api"
	"gator-press/internal/database"
	"gator-press/internal/engine/actors"
	"gator-press/internal/lifecycle"
	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options wires an Engine to its collaborators.
type Options struct {
	DB             database.DBAdapter
	Metrics        *utils.MetricsCollector
	Events         actors.EventPublisher
	Tokens         actors.TokenIssuer
	Logger         zerolog.Logger
	RequestTimeout time.Duration
	BcryptCost     int
}

// Engine coordinates communication between actors
type Engine struct {
	system       *actor.ActorSystem
	postActor    *actor.PID
	commentActor *actor.PID
	userActor    *actor.PID
	timeout      time.Duration
	logger       zerolog.Logger
}

func NewEngine(system *actor.ActorSystem, opts Options) *Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = utils.NewMetricsCollector()
	}
	context := system.Root

	postProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewPostActor(opts.DB, opts.Metrics, opts.Events, opts.Logger, opts.RequestTimeout)
	})
	commentProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewCommentActor(opts.DB, opts.Metrics, opts.Events, opts.Logger, opts.RequestTimeout)
	})
	userProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewUserActor(opts.DB, opts.Tokens, opts.Metrics, opts.Logger, actors.UserActorConfig{
			BcryptCost:   opts.BcryptCost,
			StoreTimeout: opts.RequestTimeout,
		})
	})

	return &Engine{
		system:       system,
		postActor:    context.Spawn(postProps),
		commentActor: context.Spawn(commentProps),
		userActor:    context.Spawn(userProps),
		timeout:      opts.RequestTimeout,
		logger:       opts.Logger.With().Str("component", "engine").Logger(),
	}
}

// Shutdown stops the actors and waits for their mailboxes to drain.
func (e *Engine) Shutdown() {
	for _, pid := range []*actor.PID{e.postActor, e.commentActor, e.userActor} {
		if err := e.system.Root.StopFuture(pid).Wait(); err != nil {
			e.logger.Warn().Err(err).Str("pid", pid.String()).Msg("Actor did not stop cleanly")
		}
	}
}

// GetPostActor returns the PID of the post actor
func (e *Engine) GetPostActor() *actor.PID {
	return e.postActor
}

// GetCommentActor returns the PID of the comment actor
func (e *Engine) GetCommentActor() *actor.PID {
	return e.commentActor
}

// GetUserActor returns the PID of the user actor
func (e *Engine) GetUserActor() *actor.PID {
	return e.userActor
}

// request sends msg to pid and waits for the reply, bounded by both the engine
// timeout and ctx's deadline. An *utils.AppError reply becomes the returned error.
func (e *Engine) request(ctx context.Context, pid *actor.PID, actorName string, msg interface{}) (interface{}, error) {
	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil || timeout <= 0 {
		return nil, utils.NewAppError(utils.ErrActorTimeout, "request cancelled before reaching "+actorName, err)
	}

	if m, ok := msg.(actors.Expiring); ok {
		m.SetDeadline(time.Now().Add(timeout))
	}
	result, err := e.system.Root.RequestFuture(pid, msg, timeout).Result()
	if err != nil {
		if errors.Is(err, actor.ErrTimeout) {
			return nil, utils.NewActorTimeoutError(actorName)
		}
		return nil, utils.NewAppError(utils.ErrMessageRejected, "actor request failed: "+actorName, err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

// call is request plus a checked conversion of the reply.
func call[T any](ctx context.Context, e *Engine, pid *actor.PID, actorName string, msg interface{}) (T, error) {
	var zero T
	result, err := e.request(ctx, pid, actorName, msg)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, utils.NewAppError(utils.ErrMessageRejected,
			fmt.Sprintf("unexpected reply from %s: %T", actorName, result), nil)
	}
	return typed, nil
}

// --- Posts ---

func (e *Engine) CreatePost(ctx context.Context, caller models.Principal, title, content, author string) (*models.Post, error) {
	return call[*models.Post](ctx, e, e.postActor, "post", &actors.CreatePostMsg{
		Caller:  caller,
		Title:   title,
		Content: content,
		Author:  author,
	})
}

func (e *Engine) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return call[*models.Post](ctx, e, e.postActor, "post", &actors.GetPostMsg{PostID: id})
}

func (e *Engine) ListPosts(ctx context.Context, query models.PostQuery) ([]*models.Post, error) {
	return call[[]*models.Post](ctx, e, e.postActor, "post", &actors.ListPostsMsg{Query: query})
}

func (e *Engine) EditPost(ctx context.Context, caller models.Principal, id uuid.UUID, title, content string) (*models.Post, error) {
	return call[*models.Post](ctx, e, e.postActor, "post", &actors.EditPostMsg{
		Caller:  caller,
		PostID:  id,
		Title:   title,
		Content: content,
	})
}

func (e *Engine) transition(ctx context.Context, caller models.Principal, id uuid.UUID, op lifecycle.Op) (*models.Post, error) {
	return call[*models.Post](ctx, e, e.postActor, "post", &actors.TransitionPostMsg{Caller: caller, PostID: id, Op: op})
}

func (e *Engine) SubmitForReview(ctx context.Context, caller models.Principal, id uuid.UUID) (*models.Post, error) {
	return e.transition(ctx, caller, id, lifecycle.OpSubmit)
}

func (e *Engine) Approve(ctx context.Context, caller models.Principal, id uuid.UUID) (*models.Post, error) {
	return e.transition(ctx, caller, id, lifecycle.OpApprove)
}

// Publish moves a DRAFT or REVIEW post straight to PUBLISHED.
func (e *Engine) Publish(ctx context.Context, caller models.Principal, id uuid.UUID) (*models.Post, error) {
	return e.transition(ctx, caller, id, lifecycle.OpPublish)
}

// SetStatus resolves status to the named transition that reaches it and runs
// that transition with its guards.
func (e *Engine) SetStatus(ctx context.Context, caller models.Principal, id uuid.UUID, status models.PostStatus) (*models.Post, error) {
	return call[*models.Post](ctx, e, e.postActor, "post", &actors.SetStatusMsg{Caller: caller, PostID: id, Status: status})
}

// Reject permanently deletes a post under review.
func (e *Engine) Reject(ctx context.Context, caller models.Principal, id uuid.UUID) error {
	_, err := call[*actors.PostRemoved](ctx, e, e.postActor, "post", &actors.TransitionPostMsg{
		Caller: caller,
		PostID: id,
		Op:     lifecycle.OpReject,
	})
	return err
}

func (e *Engine) DeletePost(ctx context.Context, caller models.Principal, id uuid.UUID, confirm lifecycle.DeleteConfirmation) error {
	_, err := call[*actors.PostRemoved](ctx, e, e.postActor, "post", &actors.DeletePostMsg{
		Caller:  caller,
		PostID:  id,
		Confirm: confirm,
	})
	return err
}

// Like adds one like and returns the new count. Repeating a non-empty dedupKey
// does not count again.
func (e *Engine) Like(ctx context.Context, id uuid.UUID, dedupKey string) (int, error) {
	return call[int](ctx, e, e.postActor, "post", &actors.LikePostMsg{PostID: id, DedupKey: dedupKey})
}

func (e *Engine) StatusHistory(ctx context.Context, id uuid.UUID) ([]*models.StatusChange, error) {
	return call[[]*models.StatusChange](ctx, e, e.postActor, "post", &actors.GetHistoryMsg{PostID: id})
}

// Counts returns the number of live posts per status.
func (e *Engine) Counts(ctx context.Context) (map[models.PostStatus]int, error) {
	return call[map[models.PostStatus]int](ctx, e, e.postActor, "post", &actors.GetCountsMsg{})
}

// --- Comments and feedback ---

func (e *Engine) addNote(ctx context.Context, caller models.Principal, id uuid.UUID, channel models.NoteChannel, text, authorID string) (*models.Note, error) {
	return call[*models.Note](ctx, e, e.commentActor, "comment", &actors.AddNoteMsg{
		Caller:   caller,
		PostID:   id,
		Channel:  channel,
		Text:     text,
		AuthorID: authorID,
	})
}

func (e *Engine) AddComment(ctx context.Context, caller models.Principal, id uuid.UUID, text, authorID string) (*models.Note, error) {
	return e.addNote(ctx, caller, id, models.ChannelComment, text, authorID)
}

func (e *Engine) AddFeedback(ctx context.Context, caller models.Principal, id uuid.UUID, text, authorID string) (*models.Note, error) {
	return e.addNote(ctx, caller, id, models.ChannelFeedback, text, authorID)
}

func (e *Engine) ListComments(ctx context.Context, id uuid.UUID) ([]*models.Note, error) {
	return call[[]*models.Note](ctx, e, e.commentActor, "comment", &actors.GetNotesMsg{PostID: id, Channel: models.ChannelComment})
}

func (e *Engine) ListFeedback(ctx context.Context, id uuid.UUID) ([]*models.Note, error) {
	return call[[]*models.Note](ctx, e, e.commentActor, "comment", &actors.GetNotesMsg{PostID: id, Channel: models.ChannelFeedback})
}

// --- Analytics ---

func (e *Engine) Analytics(ctx context.Context) (*models.Analytics, error) {
	return call[*models.Analytics](ctx, e, e.postActor, "post", &actors.GetAnalyticsMsg{})
}

func (e *Engine) SaveAnalyticsSnapshot(ctx context.Context) (*models.Analytics, error) {
	return call[*models.Analytics](ctx, e, e.postActor, "post", &actors.SaveAnalyticsSnapshotMsg{})
}

func (e *Engine) LatestAnalyticsSnapshot(ctx context.Context) (*models.Analytics, error) {
	return call[*models.Analytics](ctx, e, e.postActor, "post", &actors.GetLatestAnalyticsSnapshotMsg{})
}

// --- Accounts ---

func (e *Engine) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	return call[*models.User](ctx, e, e.userActor, "user", &actors.RegisterUserMsg{
		Username: username,
		Email:    email,
		Password: password,
	})
}

func (e *Engine) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	return call[*api.LoginResponse](ctx, e, e.userActor, "user", &actors.LoginMsg{Email: email, Password: password})
}

func (e *Engine) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return call[*models.User](ctx, e, e.userActor, "user", &actors.GetUserProfileMsg{UserID: id})
}

func (e *Engine) SetUserRole(ctx context.Context, caller models.Principal, id uuid.UUID, role models.Role) (*models.User, error) {
	return call[*models.User](ctx, e, e.userActor, "user", &actors.SetUserRoleMsg{Caller: caller, UserID: id, Role: role})
}

// SeedAdmin creates the bootstrap admin, or promotes the existing account
// with that email.
func (e *Engine) SeedAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	return call[*models.User](ctx, e, e.userActor, "user", &actors.SeedAdminMsg{
		Username: username,
		Email:    email,
		Password: password,
	})
}
