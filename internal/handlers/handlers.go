package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gator-press/internal/engine"
	"gator-press/internal/middleware"
	"gator-press/internal/models"
	"gator-press/internal/utils"
	"gator-press/internal/websocket"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server holds all server dependencies, including the engine that fronts the actors
type Server struct {
	Engine         *engine.Engine
	Metrics        *utils.MetricsCollector
	Hub            *websocket.Hub
	Auth           *middleware.JWTManager
	CORS           *middleware.CORSConfig
	RequestTimeout time.Duration
	// ExposeMetrics adds the metrics snapshot to /health.
	ExposeMetrics bool
	logger        zerolog.Logger
}

// NewServer creates a new Server instance with the given components
func NewServer(
	eng *engine.Engine,
	metrics *utils.MetricsCollector,
	hub *websocket.Hub,
	auth *middleware.JWTManager,
	cors *middleware.CORSConfig,
	logger zerolog.Logger,
) *Server {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &Server{
		Engine:         eng,
		Metrics:        metrics,
		Hub:            hub,
		Auth:           auth,
		CORS:           cors,
		RequestTimeout: 5 * time.Second, // Default timeout for engine requests
		ExposeMetrics:  true,
		logger:         logger.With().Str("component", "handlers").Logger(),
	}
}

// Router wires every route. /api and the role endpoint sit behind the JWT
// middleware; the whole tree is wrapped in CORS and request logging.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	r.HandleFunc("/user/register", s.HandleUserRegistration()).Methods(http.MethodPost)
	r.HandleFunc("/user/login", s.HandleUserLogin()).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.HandleWebSocket()).Methods(http.MethodGet)

	users := r.PathPrefix("/user").Subrouter()
	users.Use(s.Auth.AuthMiddleware)
	users.HandleFunc("/{id}/role", s.HandleSetUserRole()).Methods(http.MethodPut)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.Auth.AuthMiddleware)

	api.HandleFunc("/posts", s.HandleListPosts("")).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.HandleCreatePost()).Methods(http.MethodPost)
	api.HandleFunc("/posts/drafts", s.HandleListPosts(models.StatusDraft)).Methods(http.MethodGet)
	api.HandleFunc("/posts/review", s.HandleListPosts(models.StatusReview)).Methods(http.MethodGet)

	api.HandleFunc("/posts/{id}", s.HandleGetPost()).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}", s.HandleEditPost()).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}", s.HandleDeletePost()).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id}/review", s.HandleSubmitForReview()).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}/approve", s.HandleApprove()).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}/publish", s.HandlePublish()).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}/status", s.HandleSetStatus()).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}/reject", s.HandleReject()).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}/like", s.HandleLike()).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id}/history", s.HandleStatusHistory()).Methods(http.MethodGet)

	api.HandleFunc("/posts/{id}/comments", s.HandleListNotes(models.ChannelComment)).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}/comments", s.HandleAddNote(models.ChannelComment)).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}/feedback", s.HandleListNotes(models.ChannelFeedback)).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id}/feedback", s.HandleAddNote(models.ChannelFeedback)).Methods(http.MethodPost)

	api.HandleFunc("/dashboard/analytics", s.HandleAnalytics()).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/snapshots", s.HandleSaveSnapshot()).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/latest", s.HandleLatestSnapshot()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, utils.NewAppError(utils.ErrNotFound, "route not found", nil))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Code:    "METHOD_NOT_ALLOWED",
			Message: "Method not allowed",
		}})
	})

	var h http.Handler = r
	h = middleware.CORSMiddleware(s.CORS)(h)
	h = middleware.RequestLogger(s.logger, s.Metrics)(h)
	return h
}

// requestContext bounds an engine call by the server's request timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.RequestTimeout)
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps an engine error to its HTTP status and a JSON body.
func respondError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		appErr = utils.NewAppError(utils.ErrDatabase, "internal server error", err)
	}
	respondJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), errorBody{Error: errorDetail{
		Code:    appErr.Code,
		Message: appErr.Message,
	}})
}

// logFailure records unexpected errors; client errors are left to the access log.
func (s *Server) logFailure(r *http.Request, err error) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) && utils.AppErrorToHTTPStatus(appErr.Code) < http.StatusInternalServerError {
		return
	}
	s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logFailure(r, err)
	respondError(w, err)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return utils.NewValidationError("invalid request body")
	}
	return nil
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, utils.NewValidationError("invalid id format")
	}
	return id, nil
}

func caller(r *http.Request) (models.Principal, error) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		return models.Principal{}, utils.NewUnauthorizedError("authentication required")
	}
	return principal, nil
}
