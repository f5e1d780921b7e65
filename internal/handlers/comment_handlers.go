package handlers

import (
	"net/http"

	"gator-press/internal/models"
)

// AddNoteRequest represents a comment or feedback entry. AuthorID defaults
// to the caller's username when empty.
type AddNoteRequest struct {
	Text     string `json:"text"`
	AuthorID string `json:"authorId"`
}

// HandleAddNote appends a comment or feedback entry, depending on channel.
func (s *Server) HandleAddNote(channel models.NoteChannel) http.HandlerFunc {
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

		var req AddNoteRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		var note *models.Note
		if channel == models.ChannelFeedback {
			note, err = s.Engine.AddFeedback(ctx, principal, id, req.Text, req.AuthorID)
		} else {
			note, err = s.Engine.AddComment(ctx, principal, id, req.Text, req.AuthorID)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, note)
	}
}

// HandleListNotes returns a post's comments or feedback, oldest first.
func (s *Server) HandleListNotes(channel models.NoteChannel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		var notes []*models.Note
		if channel == models.ChannelFeedback {
			notes, err = s.Engine.ListFeedback(ctx, id)
		} else {
			notes, err = s.Engine.ListComments(ctx, id)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if notes == nil {
			notes = []*models.Note{}
		}
		respondJSON(w, http.StatusOK, notes)
	}
}
