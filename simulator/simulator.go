// Package simulator drives a running gator-press server with concurrent
// authors, reviewers and readers and reports request statistics.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SimConfig struct {
	NumAuthors      int
	NumReviewers    int
	NumReaders      int
	SimulationTime  time.Duration
	PostInterval    time.Duration // per author
	ReviewInterval  time.Duration // per reviewer
	ReadInterval    time.Duration // per reader
	RejectRate      float64
	CommentRate     float64
	ZipfS           float64
	EngineURL       string
	AdminEmail      string
	AdminPassword   string
	RequestTimeout  time.Duration
	MetricsInterval time.Duration
}

// DefaultSimConfig is a small load suitable for a laptop.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumAuthors:      10,
		NumReviewers:    3,
		NumReaders:      20,
		SimulationTime:  2 * time.Minute,
		PostInterval:    2 * time.Second,
		ReviewInterval:  time.Second,
		ReadInterval:    500 * time.Millisecond,
		RejectRate:      0.2,
		CommentRate:     0.3,
		ZipfS:           1.07,
		EngineURL:       "http://localhost:8080",
		RequestTimeout:  5 * time.Second,
		MetricsInterval: 10 * time.Second,
	}
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	// Conflicts are 404/409 answers caused by another actor winning a race.
	Conflicts      int64
	AverageLatency time.Duration
	PostsCreated   int
	Submitted      int
	Approved       int
	Rejected       int
	Likes          int
	Comments       int
}

// SimulatedUser is an account the simulator logged in as.
type SimulatedUser struct {
	ID       uuid.UUID
	Username string
	Email    string
	Role     string
	Token    string
	Posts    []uuid.UUID
}

// httpError is a response with a 4xx or 5xx status.
type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

func statusOf(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

type EnhancedSimulator struct {
	config    SimConfig
	stats     *SimulationStats
	client    *http.Client
	logger    zerolog.Logger
	runID     string
	authors   []*SimulatedUser
	reviewers []*SimulatedUser
	readers   []*SimulatedUser

	mu        sync.RWMutex
	published []uuid.UUID
}

func NewEnhancedSimulator(config SimConfig, logger zerolog.Logger) *EnhancedSimulator {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 10 * time.Second
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &EnhancedSimulator{
		config: config,
		stats:  &SimulationStats{StartTime: time.Now()},
		client: &http.Client{Timeout: config.RequestTimeout},
		logger: logger.With().Str("component", "simulator").Logger(),
		runID:  uuid.NewString()[:8],
	}
}

// Run sets up accounts and then simulates until ctx is done.
func (s *EnhancedSimulator) Run(ctx context.Context) error {
	s.logger.Info().Msg("Starting simulation")

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()
	wg.Wait()
	return nil
}

func (s *EnhancedSimulator) initialize(ctx context.Context) error {
	var err error
	if s.authors, err = s.createUsers(ctx, "author", s.config.NumAuthors); err != nil {
		return err
	}
	if s.readers, err = s.createUsers(ctx, "reader", s.config.NumReaders); err != nil {
		return err
	}
	if s.config.NumReviewers == 0 {
		return nil
	}
	if s.config.AdminEmail == "" {
		s.logger.Warn().Msg("No admin credentials; running without reviewers")
		return nil
	}

	admin, err := s.login(ctx, s.config.AdminEmail, s.config.AdminPassword)
	if err != nil {
		return fmt.Errorf("admin login: %w", err)
	}
	if s.reviewers, err = s.createUsers(ctx, "reviewer", s.config.NumReviewers); err != nil {
		return err
	}
	for _, reviewer := range s.reviewers {
		if _, err := s.do(ctx, admin.Token, http.MethodPut, "/user/"+reviewer.ID.String()+"/role",
			map[string]string{"role": "reviewer"}, nil); err != nil {
			return fmt.Errorf("promote %s: %w", reviewer.Username, err)
		}
		// The role travels in the token, so log in again.
		fresh, err := s.login(ctx, reviewer.Email, simPassword)
		if err != nil {
			return err
		}
		reviewer.Token, reviewer.Role = fresh.Token, fresh.Role
	}
	s.logger.Info().
		Int("authors", len(s.authors)).
		Int("reviewers", len(s.reviewers)).
		Int("readers", len(s.readers)).
		Msg("Accounts ready")
	return nil
}

const simPassword = "testpass123"

func (s *EnhancedSimulator) createUsers(ctx context.Context, kind string, n int) ([]*SimulatedUser, error) {
	users := make([]*SimulatedUser, 0, n)
	for i := 0; i < n; i++ {
		username := fmt.Sprintf("%s_%s_%d", kind, s.runID, i)
		email := username + "@sim.example.com"

		if _, err := s.do(ctx, "", http.MethodPost, "/user/register", map[string]string{
			"username": username,
			"email":    email,
			"password": simPassword,
		}, nil); err != nil {
			return nil, fmt.Errorf("register %s: %w", username, err)
		}

		user, err := s.login(ctx, email, simPassword)
		if err != nil {
			return nil, err
		}
		user.Username = username
		users = append(users, user)
	}
	return users, nil
}

func (s *EnhancedSimulator) login(ctx context.Context, email, password string) (*SimulatedUser, error) {
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		UserID  string `json:"userId"`
		Role    string `json:"role"`
	}
	if _, err := s.do(ctx, "", http.MethodPost, "/user/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp); err != nil {
		return nil, fmt.Errorf("login %s: %w", email, err)
	}
	id, err := uuid.Parse(resp.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID returned: %w", err)
	}
	return &SimulatedUser{ID: id, Email: email, Role: resp.Role, Token: resp.Token}, nil
}

// do sends a JSON request and decodes a JSON answer into out when non-nil.
func (s *EnhancedSimulator) do(ctx context.Context, token, method, endpoint string, data, out interface{}, headers ...string) (int, error) {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		// Requests cut off by the end of the run are not failures.
		if ctx.Err() == nil {
			s.recordRequestMetrics(start, err)
		}
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= http.StatusBadRequest {
		err = &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, endpoint, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++

	switch status := statusOf(err); {
	case err == nil:
		s.stats.SuccessRequests++
	case status == http.StatusNotFound || status == http.StatusConflict:
		s.stats.Conflicts++
	default:
		s.stats.FailedRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

// pickPublished chooses a published post, skewed towards the oldest ones.
func (s *EnhancedSimulator) pickPublished(rng *rand.Rand) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.published) == 0 {
		return uuid.Nil, false
	}
	if len(s.published) == 1 {
		return s.published[0], true
	}
	zipf := rand.NewZipf(rng, s.config.ZipfS, 1, uint64(len(s.published)-1))
	return s.published[zipf.Uint64()], true
}

func (s *EnhancedSimulator) addPublished(id uuid.UUID) {
	s.mu.Lock()
	s.published = append(s.published, id)
	s.mu.Unlock()
}

func (s *EnhancedSimulator) forgetPublished(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.published {
		if p == id {
			s.published = append(s.published[:i], s.published[i+1:]...)
			return
		}
	}
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.logger.Info().
				Float64("req_per_sec", m.RequestsPerSecond).
				Float64("success_pct", m.SuccessRate).
				Dur("avg_latency", m.AverageLatency).
				Int("posts", m.PostsCreated).
				Int("approved", m.Approved).
				Int("rejected", m.Rejected).
				Int("likes", m.Likes).
				Int("comments", m.Comments).
				Int64("conflicts", m.Conflicts).
				Int64("failed", m.ErrorCount).
				Msg("Simulation metrics")
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	PostsCreated      int
	Submitted         int
	Approved          int
	Rejected          int
	Likes             int
	Comments          int
	AverageLatency    time.Duration
	Conflicts         int64
	ErrorCount        int64
	SuccessRate       float64
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)
	successRate := 0.0
	if s.stats.TotalRequests > 0 {
		successRate = float64(s.stats.SuccessRequests) / float64(s.stats.TotalRequests) * 100
	}

	return SimulationMetrics{
		TotalUsers:        len(s.authors) + len(s.reviewers) + len(s.readers),
		PostsCreated:      s.stats.PostsCreated,
		Submitted:         s.stats.Submitted,
		Approved:          s.stats.Approved,
		Rejected:          s.stats.Rejected,
		Likes:             s.stats.Likes,
		Comments:          s.stats.Comments,
		AverageLatency:    s.stats.AverageLatency,
		Conflicts:         s.stats.Conflicts,
		ErrorCount:        s.stats.FailedRequests,
		SuccessRate:       successRate,
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
