package handlers

import (
	"net/http"

	"gator-press/internal/models"
	"gator-press/internal/utils"
)

// RegisterUserRequest represents a request to register a new user
type RegisterUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a request to log in a user
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetRoleRequest represents an admin request to change a user's role
type SetRoleRequest struct {
	Role string `json:"role"`
}

// HandleUserRegistration handles requests to register a new user
func (s *Server) HandleUserRegistration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterUserRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		user, err := s.Engine.Register(ctx, req.Username, req.Email, req.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.logger.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("User registered")
		respondJSON(w, http.StatusCreated, user)
	}
}

// HandleUserLogin handles requests to log in a user
func (s *Server) HandleUserLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		resp, err := s.Engine.Login(ctx, req.Email, req.Password)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// HandleSetUserRole lets an admin change another account's role
func (s *Server) HandleSetUserRole() http.HandlerFunc {
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

		var req SetRoleRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
		role, ok := models.ParseRole(req.Role)
		if !ok {
			respondError(w, utils.NewValidationError("unknown role: "+req.Role))
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		user, err := s.Engine.SetUserRole(ctx, principal, id, role)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, user)
	}
}
