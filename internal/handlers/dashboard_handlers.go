package handlers

import (
	"net/http"

	"gator-press/internal/models"
)

func (s *Server) analyticsHandler(status int, get func(r *http.Request) (*models.Analytics, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analytics, err := get(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, status, analytics)
	}
}

// HandleAnalytics computes the dashboard figures from the live collection.
func (s *Server) HandleAnalytics() http.HandlerFunc {
	return s.analyticsHandler(http.StatusOK, func(r *http.Request) (*models.Analytics, error) {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.Analytics(ctx)
	})
}

func (s *Server) HandleSaveSnapshot() http.HandlerFunc {
	return s.analyticsHandler(http.StatusCreated, func(r *http.Request) (*models.Analytics, error) {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.SaveAnalyticsSnapshot(ctx)
	})
}

// HandleLatestSnapshot answers 404 until a snapshot has been saved.
func (s *Server) HandleLatestSnapshot() http.HandlerFunc {
	return s.analyticsHandler(http.StatusOK, func(r *http.Request) (*models.Analytics, error) {
		ctx, cancel := s.requestContext(r)
		defer cancel()
		return s.Engine.LatestAnalyticsSnapshot(ctx)
	})
}
