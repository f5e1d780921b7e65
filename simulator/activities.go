package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type postRef struct {
	ID uuid.UUID `json:"id"`
}

// SimulateActivities runs one goroutine per simulated account until ctx is done.
func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) {
	var wg sync.WaitGroup

	for i, author := range s.authors {
		wg.Add(1)
		go func(user *SimulatedUser, seed int64) {
			defer wg.Done()
			s.every(ctx, s.config.PostInterval, seed, func(rng *rand.Rand) { s.authorStep(ctx, rng, user) })
		}(author, int64(i))
	}
	for i, reviewer := range s.reviewers {
		wg.Add(1)
		go func(user *SimulatedUser, seed int64) {
			defer wg.Done()
			s.every(ctx, s.config.ReviewInterval, seed, func(rng *rand.Rand) { s.reviewerStep(ctx, rng, user) })
		}(reviewer, int64(1000+i))
	}
	for i, reader := range s.readers {
		wg.Add(1)
		go func(user *SimulatedUser, seed int64) {
			defer wg.Done()
			s.every(ctx, s.config.ReadInterval, seed, func(rng *rand.Rand) { s.readerStep(ctx, rng, user) })
		}(reader, int64(2000+i))
	}

	wg.Wait()
}

// every calls step on a jittered interval so accounts do not move in lockstep.
func (s *EnhancedSimulator) every(ctx context.Context, interval time.Duration, seed int64, step func(rng *rand.Rand)) {
	if interval <= 0 {
		interval = time.Second
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + seed))
	for {
		jitter := time.Duration(rng.Int63n(int64(interval)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval/2 + jitter):
			step(rng)
		}
	}
}

// authorStep writes a new draft and submits it for review.
func (s *EnhancedSimulator) authorStep(ctx context.Context, rng *rand.Rand, user *SimulatedUser) {
	var post postRef
	_, err := s.do(ctx, user.Token, http.MethodPost, "/api/posts", map[string]string{
		"title":   fmt.Sprintf("%s on %s", randomTopic(rng), time.Now().Format(time.Kitchen)),
		"content": "Simulated content #" + uuid.NewString()[:8],
		"author":  user.Username,
	}, &post)
	if err != nil {
		s.logFailure(ctx, "create post", err)
		return
	}
	user.Posts = append(user.Posts, post.ID)
	s.count(func(st *SimulationStats) { st.PostsCreated++ })

	if _, err := s.do(ctx, user.Token, http.MethodPut, "/api/posts/"+post.ID.String()+"/review", nil, nil); err != nil {
		s.logFailure(ctx, "submit", err)
		return
	}
	s.count(func(st *SimulationStats) { st.Submitted++ })
}

// reviewerStep takes a random post from the review queue and approves or
// rejects it. Reviewers race each other, so 404 and 409 are expected.
func (s *EnhancedSimulator) reviewerStep(ctx context.Context, rng *rand.Rand, user *SimulatedUser) {
	var queue []postRef
	if _, err := s.do(ctx, user.Token, http.MethodGet, "/api/posts/review", nil, &queue); err != nil {
		s.logFailure(ctx, "list review queue", err)
		return
	}
	if len(queue) == 0 {
		return
	}
	post := queue[rng.Intn(len(queue))]
	path := "/api/posts/" + post.ID.String()

	if rng.Float64() < s.config.RejectRate {
		if _, err := s.do(ctx, user.Token, http.MethodPost, path+"/feedback", map[string]string{"text": "Not ready yet"}, nil); err != nil {
			s.logFailure(ctx, "feedback", err)
			return
		}
		if _, err := s.do(ctx, user.Token, http.MethodPost, path+"/reject", nil, nil); err != nil {
			s.logFailure(ctx, "reject", err)
			return
		}
		s.count(func(st *SimulationStats) { st.Rejected++ })
		return
	}

	if _, err := s.do(ctx, user.Token, http.MethodPut, path+"/approve", nil, nil); err != nil {
		s.logFailure(ctx, "approve", err)
		return
	}
	s.addPublished(post.ID)
	s.count(func(st *SimulationStats) { st.Approved++ })
}

// readerStep likes a published post and sometimes comments on it.
func (s *EnhancedSimulator) readerStep(ctx context.Context, rng *rand.Rand, user *SimulatedUser) {
	id, ok := s.pickPublished(rng)
	if !ok {
		return
	}
	path := "/api/posts/" + id.String()

	// The key covers client retries of this one like.
	key := user.ID.String() + ":" + uuid.NewString()
	if _, err := s.do(ctx, user.Token, http.MethodPut, path+"/like", nil, nil, "Idempotency-Key", key); err != nil {
		if statusOf(err) == http.StatusNotFound {
			s.forgetPublished(id)
		}
		s.logFailure(ctx, "like", err)
		return
	}
	s.count(func(st *SimulationStats) { st.Likes++ })

	if rng.Float64() < s.config.CommentRate {
		if _, err := s.do(ctx, user.Token, http.MethodPost, path+"/comments", map[string]string{"text": "Great read!"}, nil); err != nil {
			s.logFailure(ctx, "comment", err)
			return
		}
		s.count(func(st *SimulationStats) { st.Comments++ })
	}
}

func (s *EnhancedSimulator) count(update func(st *SimulationStats)) {
	s.stats.mu.Lock()
	update(s.stats)
	s.stats.mu.Unlock()
}

// logFailure skips errors caused by shutdown and expected races.
func (s *EnhancedSimulator) logFailure(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	switch statusOf(err) {
	case http.StatusNotFound, http.StatusConflict:
		s.logger.Debug().Err(err).Str("op", op).Msg("Lost race")
	default:
		s.logger.Warn().Err(err).Str("op", op).Msg("Request failed")
	}
}

var topics = []string{
	"Go concurrency", "Actor systems", "Postgres tuning", "Editorial workflows",
	"Release notes", "Field report", "Design review", "Weekly digest",
}

func randomTopic(rng *rand.Rand) string {
	return topics[rng.Intn(len(topics))]
}
