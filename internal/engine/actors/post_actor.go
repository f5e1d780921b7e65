package actors

import (
	stdctx "context"
	"errors"
	"fmt"
	"time"

	"gator-press/internal/database"
	"gator-press/internal/lifecycle"
	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Message types for Post operations
type (
	CreatePostMsg struct {
		Expiry
		Caller  models.Principal
		Title   string
		Content string
		Author  string
	}

	GetPostMsg struct {
		PostID uuid.UUID
	}

	ListPostsMsg struct {
		Query models.PostQuery
	}

	EditPostMsg struct {
		Expiry
		Caller  models.Principal
		PostID  uuid.UUID
		Title   string
		Content string
	}

	// TransitionPostMsg runs one named workflow operation: submit, approve,
	// publish or reject.
	TransitionPostMsg struct {
		Expiry
		Caller models.Principal
		PostID uuid.UUID
		Op     lifecycle.Op
	}

	SetStatusMsg struct {
		Expiry
		Caller models.Principal
		PostID uuid.UUID
		Status models.PostStatus
	}

	DeletePostMsg struct {
		Expiry
		Caller  models.Principal
		PostID  uuid.UUID
		Confirm lifecycle.DeleteConfirmation
	}

	LikePostMsg struct {
		Expiry
		PostID   uuid.UUID
		DedupKey string
	}

	GetHistoryMsg struct {
		PostID uuid.UUID
	}

	GetCountsMsg struct{}

	GetAnalyticsMsg struct{}

	SaveAnalyticsSnapshotMsg struct {
		Expiry
	}

	GetLatestAnalyticsSnapshotMsg struct{}
)

// PostRemoved is the reply to a successful reject or delete.
type PostRemoved struct {
	PostID   uuid.UUID
	Rejected bool
}

// EventPublisher receives lifecycle events after a mutation is persisted.
// Implementations must not block the caller.
type EventPublisher interface {
	PublishEvent(event models.LifecycleEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(models.LifecycleEvent) {}

// PostActor executes every post mutation. Its mailbox serializes mutations in
// this process; the store's status-conditional writes keep other processes
// sharing the database honest.
type PostActor struct {
	db           database.DBAdapter
	metrics      *utils.MetricsCollector
	events       EventPublisher
	logger       zerolog.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// NewPostActor creates a new PostActor instance
func NewPostActor(db database.DBAdapter, metrics *utils.MetricsCollector, events EventPublisher, logger zerolog.Logger, storeTimeout time.Duration) actor.Actor {
	if events == nil {
		events = nopPublisher{}
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &PostActor{
		db:           db,
		metrics:      metrics,
		events:       events,
		logger:       logger.With().Str("actor", "post").Logger(),
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Receive handles incoming messages
func (a *PostActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Info().Str("pid", context.Self().String()).Msg("PostActor started")
	case *actor.Stopping:
		a.logger.Info().Msg("PostActor stopping")
	case *actor.Stopped:
		a.logger.Info().Msg("PostActor stopped")
	case *actor.Restarting:
		a.logger.Warn().Msg("PostActor restarting")

	case *CreatePostMsg:
		a.timed(context, "create_post", func(ctx stdctx.Context) (interface{}, error) {
			return a.handleCreatePost(ctx, msg)
		})
	case *GetPostMsg:
		a.timed(context, "get_post", func(ctx stdctx.Context) (interface{}, error) {
			return a.db.GetPost(ctx, msg.PostID)
		})
	case *ListPostsMsg:
		a.timed(context, "list_posts", func(ctx stdctx.Context) (interface{}, error) {
			posts, err := a.db.ListPosts(ctx, msg.Query.PostFilter)
			if err != nil {
				return nil, err
			}
			lifecycle.SortPosts(posts, msg.Query.Sort)
			return posts, nil
		})
	case *EditPostMsg:
		a.timed(context, "edit_post", func(ctx stdctx.Context) (interface{}, error) {
			return a.handleEditPost(ctx, msg)
		})
	case *TransitionPostMsg:
		a.timed(context, "transition_post", func(ctx stdctx.Context) (interface{}, error) {
			return a.handleTransition(ctx, msg.Caller, msg.PostID, msg.Op)
		})
	case *SetStatusMsg:
		a.timed(context, "set_status", func(ctx stdctx.Context) (interface{}, error) {
			return a.handleSetStatus(ctx, msg)
		})
	case *DeletePostMsg:
		a.timed(context, "delete_post", func(ctx stdctx.Context) (interface{}, error) {
			return a.handleDeletePost(ctx, msg)
		})
	case *LikePostMsg:
		a.timed(context, "like_post", func(ctx stdctx.Context) (interface{}, error) {
			return a.db.IncrementLikes(ctx, msg.PostID, msg.DedupKey)
		})
	case *GetHistoryMsg:
		a.timed(context, "status_history", func(ctx stdctx.Context) (interface{}, error) {
			return a.db.GetStatusHistory(ctx, msg.PostID)
		})
	case *GetCountsMsg:
		a.timed(context, "post_counts", func(ctx stdctx.Context) (interface{}, error) {
			return a.db.CountPostsByStatus(ctx)
		})
	case *GetAnalyticsMsg:
		a.timed(context, "analytics", func(ctx stdctx.Context) (interface{}, error) {
			return a.computeAnalytics(ctx)
		})
	case *SaveAnalyticsSnapshotMsg:
		a.timed(context, "save_analytics_snapshot", func(ctx stdctx.Context) (interface{}, error) {
			snapshot, err := a.computeAnalytics(ctx)
			if err != nil {
				return nil, err
			}
			if err := a.db.SaveAnalyticsSnapshot(ctx, snapshot); err != nil {
				return nil, err
			}
			return snapshot, nil
		})
	case *GetLatestAnalyticsSnapshotMsg:
		a.timed(context, "latest_analytics_snapshot", func(ctx stdctx.Context) (interface{}, error) {
			return a.db.GetLatestAnalyticsSnapshot(ctx)
		})
	default:
		a.logger.Warn().Str("type", typeName(msg)).Msg("PostActor: Unknown message type")
	}
}

// timed runs fn against the store with a deadline, records its latency and
// responds with the result or an *utils.AppError. Messages whose caller has
// already timed out are answered with ACTOR_TIMEOUT and not run.
func (a *PostActor) timed(context actor.Context, op string, fn func(ctx stdctx.Context) (interface{}, error)) {
	startTime := time.Now()
	ctx, cancel, expired := storeContext(context, a.storeTimeout)
	if expired {
		a.logger.Warn().Str("op", op).Msg("Dropping request that outlived its caller")
		context.Respond(utils.NewActorTimeoutError("post"))
		return
	}
	defer cancel()

	result, err := fn(ctx)
	a.metrics.AddOperationLatency(op, time.Since(startTime))
	if err != nil {
		appErr := asAppError(err)
		if appErr.Code == utils.ErrDatabase {
			a.logger.Error().Err(err).Str("op", op).Msg("Store operation failed")
		} else {
			a.logger.Debug().Str("op", op).Str("code", appErr.Code).Msg(appErr.Message)
		}
		context.Respond(appErr)
		return
	}
	context.Respond(result)
}

func (a *PostActor) handleCreatePost(ctx stdctx.Context, msg *CreatePostMsg) (*models.Post, error) {
	if err := lifecycle.ValidateContent(msg.Title, msg.Content); err != nil {
		return nil, err
	}

	now := a.now()
	post := &models.Post{
		ID:        uuid.New(),
		Title:     msg.Title,
		Content:   msg.Content,
		Author:    msg.Author,
		CreatedBy: msg.Caller.UserID,
		Status:    models.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.db.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	a.logger.Info().Str("postId", post.ID.String()).Str("by", msg.Caller.Name()).Msg("Post created")
	a.publish(models.EventPostCreated, post, msg.Caller)
	return post, nil
}

func (a *PostActor) handleEditPost(ctx stdctx.Context, msg *EditPostMsg) (*models.Post, error) {
	current, err := a.db.GetPost(ctx, msg.PostID)
	if err != nil {
		return nil, err
	}
	if _, err := lifecycle.Plan(lifecycle.OpEdit, current, msg.Caller, msg.Title, msg.Content); err != nil {
		return nil, err
	}

	post, err := a.db.UpdatePostContent(ctx, msg.PostID, current.Status, msg.Title, msg.Content, a.now())
	if err != nil {
		return nil, err
	}
	a.publish(models.EventPostEdited, post, msg.Caller)
	return post, nil
}

func (a *PostActor) handleSetStatus(ctx stdctx.Context, msg *SetStatusMsg) (interface{}, error) {
	if !msg.Status.Valid() {
		return nil, utils.NewValidationError("unknown status: " + string(msg.Status))
	}
	current, err := a.db.GetPost(ctx, msg.PostID)
	if err != nil {
		return nil, err
	}
	op, err := lifecycle.OpForTarget(current.Status, msg.Status)
	if err != nil {
		return nil, err
	}
	return a.transition(ctx, msg.Caller, current, op)
}

func (a *PostActor) handleTransition(ctx stdctx.Context, caller models.Principal, postID uuid.UUID, op lifecycle.Op) (interface{}, error) {
	current, err := a.db.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return a.transition(ctx, caller, current, op)
}

// transition applies op to current. It returns the updated post, or a
// PostRemoved for a reject.
func (a *PostActor) transition(ctx stdctx.Context, caller models.Principal, current *models.Post, op lifecycle.Op) (interface{}, error) {
	if lifecycle.NeedsReviewer(op, current.Status) {
		var err error
		if caller, err = currentPrincipal(ctx, a.db, caller); err != nil {
			return nil, err
		}
	}
	out, err := lifecycle.Plan(op, current, caller, current.Title, current.Content)
	if err != nil {
		return nil, err
	}

	if out.Removes {
		return a.remove(ctx, caller, current, true)
	}

	now := a.now()
	changes := make([]models.StatusChange, 0, len(out.Steps))
	for _, step := range out.Steps {
		changes = append(changes, models.StatusChange{
			PostID:    current.ID,
			OldStatus: step.From,
			NewStatus: step.To,
			ChangedBy: caller.Name(),
			At:        now,
		})
	}

	post, err := a.db.TransitionPost(ctx, current.ID, current.Status, out.To, changes)
	if err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("postId", post.ID.String()).
		Str("op", string(op)).
		Str("from", string(current.Status)).
		Str("to", string(post.Status)).
		Str("by", caller.Name()).
		Msg("Post status changed")

	switch post.Status {
	case models.StatusReview:
		a.publish(models.EventPostSubmitted, post, caller)
	case models.StatusPublished:
		a.publish(models.EventPostPublished, post, caller)
	}
	return post, nil
}

func (a *PostActor) handleDeletePost(ctx stdctx.Context, msg *DeletePostMsg) (*PostRemoved, error) {
	current, err := a.db.GetPost(ctx, msg.PostID)
	if err != nil {
		return nil, err
	}
	caller := msg.Caller
	if current.Status == models.StatusPublished {
		if caller, err = currentPrincipal(ctx, a.db, caller); err != nil {
			return nil, err
		}
	}
	if _, err := lifecycle.PlanDelete(current, caller, msg.Confirm); err != nil {
		return nil, err
	}
	return a.remove(ctx, caller, current, false)
}

// remove deletes current with a status-conditional write. A rejection also
// bumps the per-day rejection counter.
func (a *PostActor) remove(ctx stdctx.Context, caller models.Principal, current *models.Post, rejected bool) (*PostRemoved, error) {
	if err := a.db.DeletePost(ctx, current.ID, current.Status); err != nil {
		return nil, err
	}

	event := models.EventPostDeleted
	if rejected {
		event = models.EventPostRejected
		if err := a.db.RecordRejection(ctx, a.now()); err != nil {
			// The post is already gone; only the metric is lost.
			a.logger.Error().Err(err).Str("postId", current.ID.String()).Msg("Failed to record rejection")
		}
	}

	a.logger.Info().
		Str("postId", current.ID.String()).
		Str("status", string(current.Status)).
		Bool("rejected", rejected).
		Str("by", caller.Name()).
		Msg("Post removed")
	a.publish(event, current, caller)
	return &PostRemoved{PostID: current.ID, Rejected: rejected}, nil
}

func (a *PostActor) computeAnalytics(ctx stdctx.Context) (*models.Analytics, error) {
	counts, err := a.db.CountPostsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	total, err := a.db.CountRejections(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	now := a.now()
	today, err := a.db.CountRejections(ctx, now)
	if err != nil {
		return nil, err
	}
	return &models.Analytics{
		TotalPublished: counts[models.StatusPublished],
		TotalDrafts:    counts[models.StatusDraft],
		TotalInReview:  counts[models.StatusReview],
		TotalRejected:  total,
		RejectedToday:  today,
		GeneratedAt:    now,
	}, nil
}

func (a *PostActor) publish(eventType models.EventType, post *models.Post, caller models.Principal) {
	status := post.Status
	if eventType == models.EventPostRejected || eventType == models.EventPostDeleted {
		status = ""
	}
	a.events.PublishEvent(models.LifecycleEvent{
		Type:      eventType,
		PostID:    post.ID,
		Title:     post.Title,
		Status:    status,
		Actor:     caller.Name(),
		CreatedBy: post.CreatedBy,
		At:        a.now(),
	})
}

// asAppError makes sure every failure crosses the actor boundary as an AppError.
func asAppError(err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return utils.NewAppError(utils.ErrDatabase, "operation failed", err)
}

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}
