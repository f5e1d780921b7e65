package simulator

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gator-press/internal/database"
	"gator-press/internal/engine"
	"gator-press/internal/handlers"
	"gator-press/internal/middleware"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func startServer(t *testing.T) (*httptest.Server, database.DBAdapter) {
	t.Helper()
	logger := zerolog.Nop()
	db := database.NewMemoryDB()
	auth := middleware.NewJWTManager("sim-secret", time.Hour, logger)
	eng := engine.NewEngine(actor.NewActorSystem(), engine.Options{
		DB:         db,
		Tokens:     auth,
		Logger:     logger,
		BcryptCost: bcrypt.MinCost,
	})
	_, err := eng.SeedAdmin(context.Background(), "admin", "admin@example.com", "adminpass")
	require.NoError(t, err)

	srv := httptest.NewServer(handlers.NewServer(eng, nil, nil, auth, nil, logger).Router())
	t.Cleanup(func() {
		srv.Close()
		eng.Shutdown()
	})
	return srv, db
}

func TestSimulatorDrivesWorkflow(t *testing.T) {
	srv, db := startServer(t)

	config := SimConfig{
		NumAuthors:     3,
		NumReviewers:   2,
		NumReaders:     3,
		SimulationTime: 1500 * time.Millisecond,
		PostInterval:   50 * time.Millisecond,
		ReviewInterval: 30 * time.Millisecond,
		ReadInterval:   30 * time.Millisecond,
		RejectRate:     0.3,
		CommentRate:    0.5,
		EngineURL:      srv.URL,
		AdminEmail:     "admin@example.com",
		AdminPassword:  "adminpass",
	}
	sim := NewEnhancedSimulator(config, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), config.SimulationTime)
	defer cancel()
	require.NoError(t, sim.Run(ctx))

	m := sim.GetMetrics()
	assert.Equal(t, 8, m.TotalUsers)
	assert.Greater(t, m.PostsCreated, 0)
	assert.Greater(t, m.Approved+m.Rejected, 0)
	assert.Zero(t, m.ErrorCount)

	// A reject cut off by the end of the run may land without being counted.
	rejected, err := db.CountRejections(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rejected, m.Rejected)
}

func TestSimulatorWithoutAdminSkipsReviewers(t *testing.T) {
	srv, _ := startServer(t)

	sim := NewEnhancedSimulator(SimConfig{
		NumAuthors:     1,
		NumReviewers:   2,
		SimulationTime: 200 * time.Millisecond,
		PostInterval:   20 * time.Millisecond,
		EngineURL:      srv.URL,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, sim.Run(ctx))

	m := sim.GetMetrics()
	assert.Equal(t, 1, m.TotalUsers)
	assert.Zero(t, m.Approved)
}

func TestRunFailsAgainstUnreachableServer(t *testing.T) {
	sim := NewEnhancedSimulator(SimConfig{
		NumAuthors:     1,
		EngineURL:      "http://127.0.0.1:1",
		RequestTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())
	assert.Error(t, sim.Run(context.Background()))
}

func TestReviewerStepStopsWhenFeedbackFails(t *testing.T) {
	postID := uuid.New()
	var rejects int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/posts/review", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"` + postID.String() + `"}]`))
	})
	mux.HandleFunc("/api/posts/"+postID.String()+"/feedback", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"database_error","message":"down"}}`, http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/posts/"+postID.String()+"/reject", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&rejects, 1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var logs bytes.Buffer
	sim := NewEnhancedSimulator(SimConfig{EngineURL: srv.URL, RejectRate: 1}, zerolog.New(&logs))
	sim.reviewerStep(context.Background(), rand.New(rand.NewSource(1)), &SimulatedUser{Token: "t"})

	assert.Contains(t, logs.String(), `"op":"feedback"`)
	assert.Zero(t, atomic.LoadInt32(&rejects))
	assert.Zero(t, sim.GetMetrics().Rejected)
	assert.EqualValues(t, 1, sim.GetMetrics().ErrorCount)
}
