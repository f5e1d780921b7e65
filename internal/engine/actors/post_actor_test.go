package actors

import (
	"context"
	"sync"
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

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
}

func (p *recordingPublisher) PublishEvent(event models.LifecycleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var (
	testAuthor   = models.Principal{UserID: uuid.New(), Username: "alice", Role: models.RoleAuthor}
	testReviewer = models.Principal{UserID: uuid.New(), Username: "rita", Role: models.RoleReviewer}
)

func spawnPostActor(t *testing.T) (*actor.ActorSystem, *actor.PID, *database.MemoryDB, *recordingPublisher) {
	t.Helper()
	system := actor.NewActorSystem()
	db := database.NewMemoryDB()
	seedPrincipals(t, db, testAuthor, testReviewer)
	events := &recordingPublisher{}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPostActor(db, utils.NewMetricsCollector(), events, zerolog.Nop(), time.Second)
	})
	pid := system.Root.Spawn(props)
	t.Cleanup(func() { system.Root.Stop(pid) })
	return system, pid, db, events
}

// seedPrincipals stores an account for each caller so role checks can find it.
func seedPrincipals(t *testing.T, db database.DBAdapter, callers ...models.Principal) {
	t.Helper()
	for _, c := range callers {
		require.NoError(t, db.SaveUser(context.Background(), &models.User{
			ID:       c.UserID,
			Username: c.Username,
			Email:    c.Username + "@fixtures.test",
			Role:     c.Role,
		}))
	}
}

func ask(t *testing.T, system *actor.ActorSystem, pid *actor.PID, msg interface{}) interface{} {
	t.Helper()
	result, err := system.Root.RequestFuture(pid, msg, 5*time.Second).Result()
	require.NoError(t, err)
	return result
}

func createDraft(t *testing.T, system *actor.ActorSystem, pid *actor.PID) *models.Post {
	t.Helper()
	result := ask(t, system, pid, &CreatePostMsg{Caller: testAuthor, Title: "Hello", Content: "World", Author: "Alice"})
	post, ok := result.(*models.Post)
	require.True(t, ok, "unexpected reply %T", result)
	return post
}

func TestPostActorLifecycle(t *testing.T) {
	system, pid, _, events := spawnPostActor(t)

	post := createDraft(t, system, pid)
	assert.Equal(t, models.StatusDraft, post.Status)
	assert.Equal(t, testAuthor.UserID, post.CreatedBy)

	result := ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpSubmit})
	submitted := result.(*models.Post)
	assert.Equal(t, models.StatusReview, submitted.Status)

	result = ask(t, system, pid, &TransitionPostMsg{Caller: testReviewer, PostID: post.ID, Op: lifecycle.OpApprove})
	published := result.(*models.Post)
	assert.Equal(t, models.StatusPublished, published.Status)
	assert.False(t, published.UpdatedAt.Before(submitted.UpdatedAt))

	result = ask(t, system, pid, &GetHistoryMsg{PostID: post.ID})
	history := result.([]*models.StatusChange)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusDraft, history[0].OldStatus)
	assert.Equal(t, models.StatusReview, history[0].NewStatus)
	assert.Equal(t, "alice", history[0].ChangedBy)
	assert.Equal(t, models.StatusPublished, history[1].NewStatus)
	assert.Equal(t, "rita", history[1].ChangedBy)

	assert.Equal(t, []models.EventType{
		models.EventPostCreated,
		models.EventPostSubmitted,
		models.EventPostPublished,
	}, events.types())
}

func TestPostActorCreateValidation(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	result := ask(t, system, pid, &CreatePostMsg{Caller: testAuthor, Title: "", Content: "body"})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrValidation, appErr.Code)
}

func TestPostActorRejectDeletes(t *testing.T) {
	system, pid, db, events := spawnPostActor(t)

	post := createDraft(t, system, pid)

	// Reject is only defined for REVIEW.
	result := ask(t, system, pid, &TransitionPostMsg{Caller: testReviewer, PostID: post.ID, Op: lifecycle.OpReject})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidTransition, appErr.Code)

	ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpSubmit})
	result = ask(t, system, pid, &TransitionPostMsg{Caller: testReviewer, PostID: post.ID, Op: lifecycle.OpReject})
	removed, ok := result.(*PostRemoved)
	require.True(t, ok)
	assert.True(t, removed.Rejected)

	result = ask(t, system, pid, &GetPostMsg{PostID: post.ID})
	appErr, ok = result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	result = ask(t, system, pid, &GetAnalyticsMsg{})
	analytics := result.(*models.Analytics)
	assert.Equal(t, 1, analytics.TotalRejected)
	assert.Equal(t, 1, analytics.RejectedToday)

	n, err := db.CountRejections(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, events.types(), models.EventPostRejected)
}

func TestPostActorAuthorCannotApprove(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	post := createDraft(t, system, pid)
	ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpSubmit})

	result := ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpApprove})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrForbidden, appErr.Code)

	result = ask(t, system, pid, &GetPostMsg{PostID: post.ID})
	assert.Equal(t, models.StatusReview, result.(*models.Post).Status)
}

func TestPostActorSetStatus(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	post := createDraft(t, system, pid)

	result := ask(t, system, pid, &SetStatusMsg{Caller: testAuthor, PostID: post.ID, Status: models.StatusReview})
	assert.Equal(t, models.StatusReview, result.(*models.Post).Status)

	// Back to DRAFT has no named transition.
	result = ask(t, system, pid, &SetStatusMsg{Caller: testReviewer, PostID: post.ID, Status: models.StatusDraft})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidTransition, appErr.Code)

	result = ask(t, system, pid, &SetStatusMsg{Caller: testReviewer, PostID: post.ID, Status: "ARCHIVED"})
	appErr, ok = result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrValidation, appErr.Code)
}

func TestPostActorLikes(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	post := createDraft(t, system, pid)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := system.Root.RequestFuture(pid, &LikePostMsg{PostID: post.ID}, 5*time.Second).Result()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n+1, ask(t, system, pid, &LikePostMsg{PostID: post.ID, DedupKey: "k"}))
	assert.Equal(t, n+1, ask(t, system, pid, &LikePostMsg{PostID: post.ID, DedupKey: "k"}))
}

func TestPostActorListSorted(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	ask(t, system, pid, &CreatePostMsg{Caller: testAuthor, Title: "beta", Content: "x", Author: "Bob"})
	ask(t, system, pid, &CreatePostMsg{Caller: testAuthor, Title: "Alpha", Content: "x", Author: "alice"})
	ask(t, system, pid, &CreatePostMsg{Caller: testAuthor, Title: "gamma", Content: "x", Author: "Alice"})

	result := ask(t, system, pid, &ListPostsMsg{Query: models.PostQuery{
		PostFilter: models.PostFilter{Author: "ALICE"},
		Sort:       models.SortTitle,
	}})
	posts := result.([]*models.Post)
	require.Len(t, posts, 2)
	assert.Equal(t, "Alpha", posts[0].Title)
	assert.Equal(t, "gamma", posts[1].Title)
}

func TestPostActorDeletePublishedNeedsConfirmation(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	post := createDraft(t, system, pid)
	ask(t, system, pid, &TransitionPostMsg{Caller: testReviewer, PostID: post.ID, Op: lifecycle.OpPublish})

	result := ask(t, system, pid, &DeletePostMsg{Caller: testAuthor, PostID: post.ID, Confirm: lifecycle.DeleteConfirmation{Confirmed: true}})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrValidation, appErr.Code)

	result = ask(t, system, pid, &DeletePostMsg{
		Caller:  testAuthor,
		PostID:  post.ID,
		Confirm: lifecycle.DeleteConfirmation{Confirmed: true, Reconfirmed: true},
	})
	removed, ok := result.(*PostRemoved)
	require.True(t, ok)
	assert.False(t, removed.Rejected)
}

func TestPostActorSnapshots(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	result := ask(t, system, pid, &GetLatestAnalyticsSnapshotMsg{})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	createDraft(t, system, pid)
	saved := ask(t, system, pid, &SaveAnalyticsSnapshotMsg{}).(*models.Analytics)
	assert.Equal(t, 1, saved.TotalDrafts)

	latest := ask(t, system, pid, &GetLatestAnalyticsSnapshotMsg{}).(*models.Analytics)
	assert.Equal(t, saved.TotalDrafts, latest.TotalDrafts)
	assert.True(t, saved.GeneratedAt.Equal(latest.GeneratedAt))
}

func TestPostActorUsesCurrentRole(t *testing.T) {
	system, pid, db, _ := spawnPostActor(t)

	post := createDraft(t, system, pid)
	ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpSubmit})

	// The caller still claims the reviewer role, but the account was demoted.
	_, err := db.UpdateUserRole(context.Background(), testReviewer.UserID, models.RoleAuthor)
	require.NoError(t, err)

	for _, op := range []lifecycle.Op{lifecycle.OpApprove, lifecycle.OpReject, lifecycle.OpPublish} {
		result := ask(t, system, pid, &TransitionPostMsg{Caller: testReviewer, PostID: post.ID, Op: op})
		appErr, ok := result.(*utils.AppError)
		require.True(t, ok, "%s: unexpected reply %T", op, result)
		assert.Equal(t, utils.ErrForbidden, appErr.Code, string(op))
	}

	stored, err := db.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, stored.Status)

	// A promoted author gets the capability without a new token.
	_, err = db.UpdateUserRole(context.Background(), testAuthor.UserID, models.RoleReviewer)
	require.NoError(t, err)
	result := ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpApprove})
	published, ok := result.(*models.Post)
	require.True(t, ok, "unexpected reply %T", result)
	assert.Equal(t, models.StatusPublished, published.Status)
}

func TestPostActorRejectsUnknownAccount(t *testing.T) {
	system, pid, _, _ := spawnPostActor(t)

	post := createDraft(t, system, pid)
	ask(t, system, pid, &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpSubmit})

	ghost := models.Principal{UserID: uuid.New(), Username: "ghost", Role: models.RoleAdmin}
	result := ask(t, system, pid, &TransitionPostMsg{Caller: ghost, PostID: post.ID, Op: lifecycle.OpApprove})
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrUnauthorized, appErr.Code)
}

func TestPostActorDropsExpiredMessages(t *testing.T) {
	system, pid, db, events := spawnPostActor(t)
	post := createDraft(t, system, pid)

	like := &LikePostMsg{PostID: post.ID}
	like.SetDeadline(time.Now().Add(-time.Millisecond))
	result := ask(t, system, pid, like)
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrActorTimeout, appErr.Code)

	submit := &TransitionPostMsg{Caller: testAuthor, PostID: post.ID, Op: lifecycle.OpSubmit}
	submit.SetDeadline(time.Now().Add(-time.Millisecond))
	ask(t, system, pid, submit)

	stored, err := db.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Likes)
	assert.Equal(t, models.StatusDraft, stored.Status)
	assert.Equal(t, []models.EventType{models.EventPostCreated}, events.types())

	// A deadline still in the future runs normally.
	like.SetDeadline(time.Now().Add(time.Second))
	assert.Equal(t, 1, ask(t, system, pid, like))
}
