package handlers

import (
	"net/http"
	"strconv"
	"time"

	"gator-press/internal/lifecycle"
	"gator-press/internal/models"
	"gator-press/internal/utils"
)

// CreatePostRequest represents a request to create a new post
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

// EditPostRequest replaces the title and content of a draft
type EditPostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SetStatusRequest names the target status for the guarded alias
type SetStatusRequest struct {
	Status string `json:"status"`
}

// LikeResponse reports the like count after a like
type LikeResponse struct {
	PostID string `json:"postId"`
	Likes  int    `json:"likes"`
}

// HandleHealth reports post counts per status and, when enabled, the metrics snapshot
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		counts, err := s.Engine.Counts(ctx)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		body := map[string]interface{}{
			"status":      "healthy",
			"post_counts": counts,
			"server_time": time.Now(),
		}
		if s.ExposeMetrics {
			body["metrics"] = s.Metrics.Snapshot()
		}
		respondJSON(w, http.StatusOK, body)
	}
}

// HandleListPosts lists posts. A non-empty fixed status serves the dedicated
// drafts and review lists; otherwise status, author, q and sort come from the query.
func (s *Server) HandleListPosts(fixed models.PostStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := parsePostQuery(r, fixed)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		posts, err := s.Engine.ListPosts(ctx, query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if posts == nil {
			posts = []*models.Post{}
		}
		respondJSON(w, http.StatusOK, posts)
	}
}

func parsePostQuery(r *http.Request, fixed models.PostStatus) (models.PostQuery, error) {
	values := r.URL.Query()
	query := models.PostQuery{
		PostFilter: models.PostFilter{
			Status:  fixed,
			Author:  values.Get("author"),
			Keyword: values.Get("q"),
		},
	}

	if raw := values.Get("status"); raw != "" && fixed == "" {
		status, ok := models.ParsePostStatus(raw)
		if !ok {
			return query, utils.NewValidationError("unknown status: " + raw)
		}
		query.Status = status
	}

	sortKey, ok := models.ParseSortKey(values.Get("sort"))
	if !ok {
		return query, utils.NewValidationError("unknown sort: " + values.Get("sort"))
	}
	query.Sort = sortKey
	return query, nil
}

// HandleCreatePost creates a new draft
func (s *Server) HandleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := caller(r)
		if err != nil {
			respondError(w, err)
			return
		}

		var req CreatePostRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		post, err := s.Engine.CreatePost(ctx, principal, req.Title, req.Content, req.Author)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, post)
	}
}

func (s *Server) HandleGetPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		post, err := s.Engine.GetPost(ctx, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, post)
	}
}

// HandleEditPost updates a draft's title and content
func (s *Server) HandleEditPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := caller(r)
		if err != nil {
			respondError(w, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		var req EditPostRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		post, err := s.Engine.EditPost(ctx, principal, id, req.Title, req.Content)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, post)
	}
}

// HandleDeletePost deletes a post. Published posts need both confirm=true
// and reconfirm=true.
func (s *Server) HandleDeletePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := caller(r)
		if err != nil {
			respondError(w, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		confirm := lifecycle.DeleteConfirmation{
			Confirmed:   queryBool(r, "confirm"),
			Reconfirmed: queryBool(r, "reconfirm"),
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		if err := s.Engine.DeletePost(ctx, principal, id, confirm); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// transitionHandler serves the body-less transition endpoints.
func (s *Server) transitionHandler(run func(r *http.Request, principal models.Principal) (*models.Post, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := caller(r)
		if err != nil {
			respondError(w, err)
			return
		}
		post, err := run(r, principal)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, post)
	}
}

func (s *Server) HandleSubmitForReview() http.HandlerFunc {
	return s.transitionHandler(func(r *http.Request, principal models.Principal) (*models.Post, error) {
		id, err := pathID(r)
		if err != nil {
			return nil, err
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.SubmitForReview(ctx, principal, id)
	})
}

func (s *Server) HandleApprove() http.HandlerFunc {
	return s.transitionHandler(func(r *http.Request, principal models.Principal) (*models.Post, error) {
		id, err := pathID(r)
		if err != nil {
			return nil, err
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.Approve(ctx, principal, id)
	})
}

func (s *Server) HandlePublish() http.HandlerFunc {
	return s.transitionHandler(func(r *http.Request, principal models.Principal) (*models.Post, error) {
		id, err := pathID(r)
		if err != nil {
			return nil, err
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.Publish(ctx, principal, id)
	})
}

// HandleSetStatus moves a post to the requested status through the matching
// named transition.
func (s *Server) HandleSetStatus() http.HandlerFunc {
	return s.transitionHandler(func(r *http.Request, principal models.Principal) (*models.Post, error) {
		id, err := pathID(r)
		if err != nil {
			return nil, err
		}
		var req SetStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		status, ok := models.ParsePostStatus(req.Status)
		if !ok {
			return nil, utils.NewValidationError("unknown status: " + req.Status)
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.SetStatus(ctx, principal, id, status)
	})
}

// HandleReject rejects a post under review, which deletes it
func (s *Server) HandleReject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := caller(r)
		if err != nil {
			respondError(w, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		if err := s.Engine.Reject(ctx, principal, id); err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"postId":   id,
			"rejected": true,
		})
	}
}

// HandleLike adds one like. The Idempotency-Key header makes retries safe.
func (s *Server) HandleLike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		likes, err := s.Engine.Like(ctx, id, r.Header.Get("Idempotency-Key"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, LikeResponse{PostID: id.String(), Likes: likes})
	}
}

func (s *Server) HandleStatusHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		history, err := s.Engine.StatusHistory(ctx, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if history == nil {
			history = []*models.StatusChange{}
		}
		respondJSON(w, http.StatusOK, history)
	}
}
