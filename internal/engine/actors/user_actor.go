package actors

import (
	stdctx "context"
	"net/mail"
	"strings"
	"time"

	"gator-press/internal/api"
	"gator-press/internal/database"
	"gator-press/internal/models"
	"gator-press/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Message types for UserActor
type (
	RegisterUserMsg struct {
		Expiry
		Username string
		Email    string
		Password string
	}

	LoginMsg struct {
		Email    string
		Password string
	}

	GetUserProfileMsg struct {
		UserID uuid.UUID
	}

	SetUserRoleMsg struct {
		Expiry
		Caller models.Principal
		UserID uuid.UUID
		Role   models.Role
	}

	// SeedAdminMsg makes sure the bootstrap admin account exists.
	SeedAdminMsg struct {
		Username string
		Email    string
		Password string
	}
)

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

const minPasswordLength = 6

// UserActor owns account registration, login and role changes.
type UserActor struct {
	db           database.DBAdapter
	tokens       TokenIssuer
	metrics      *utils.MetricsCollector
	logger       zerolog.Logger
	bcryptCost   int
	storeTimeout time.Duration
}

// UserActorConfig tunes a UserActor. Zero values pick defaults.
type UserActorConfig struct {
	BcryptCost   int
	StoreTimeout time.Duration
}

func NewUserActor(db database.DBAdapter, tokens TokenIssuer, metrics *utils.MetricsCollector, logger zerolog.Logger, cfg UserActorConfig) actor.Actor {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &UserActor{
		db:           db,
		tokens:       tokens,
		metrics:      metrics,
		logger:       logger.With().Str("actor", "user").Logger(),
		bcryptCost:   cfg.BcryptCost,
		storeTimeout: cfg.StoreTimeout,
	}
}

func (a *UserActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Info().Str("pid", context.Self().String()).Msg("UserActor started")
	case *actor.Stopping:
		a.logger.Info().Msg("UserActor stopping")
	case *actor.Stopped:
		a.logger.Info().Msg("UserActor stopped")
	case *actor.Restarting:
		a.logger.Warn().Msg("UserActor restarting")

	case *RegisterUserMsg:
		a.respond(context, "register_user", func(ctx stdctx.Context) (interface{}, error) {
			return a.register(ctx, msg.Username, msg.Email, msg.Password, models.RoleAuthor)
		})
	case *LoginMsg:
		a.respond(context, "login", func(ctx stdctx.Context) (interface{}, error) {
			return a.login(ctx, msg)
		})
	case *GetUserProfileMsg:
		a.respond(context, "get_user", func(ctx stdctx.Context) (interface{}, error) {
			return a.db.GetUser(ctx, msg.UserID)
		})
	case *SetUserRoleMsg:
		a.respond(context, "set_user_role", func(ctx stdctx.Context) (interface{}, error) {
			return a.setRole(ctx, msg)
		})
	case *SeedAdminMsg:
		a.respond(context, "seed_admin", func(ctx stdctx.Context) (interface{}, error) {
			return a.seedAdmin(ctx, msg)
		})
	default:
		a.logger.Warn().Str("type", typeName(msg)).Msg("UserActor: Unknown message type")
	}
}

func (a *UserActor) respond(context actor.Context, op string, fn func(ctx stdctx.Context) (interface{}, error)) {
	startTime := time.Now()
	ctx, cancel, expired := storeContext(context, a.storeTimeout)
	if expired {
		a.logger.Warn().Str("op", op).Msg("Dropping request that outlived its caller")
		context.Respond(utils.NewActorTimeoutError("user"))
		return
	}
	defer cancel()

	result, err := fn(ctx)
	a.metrics.AddOperationLatency(op, time.Since(startTime))
	if err != nil {
		appErr := asAppError(err)
		if appErr.Code == utils.ErrDatabase {
			a.logger.Error().Err(err).Str("op", op).Msg("Store operation failed")
		}
		context.Respond(appErr)
		return
	}
	context.Respond(result)
}

func hashPassword(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func validateRegistration(username, email, password string) error {
	if strings.TrimSpace(username) == "" {
		return utils.NewValidationError("username is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return utils.NewValidationError("a valid email is required")
	}
	if len(password) < minPasswordLength {
		return utils.NewValidationError("password must be at least 6 characters")
	}
	return nil
}

func (a *UserActor) register(ctx stdctx.Context, username, email, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	hashedPassword, err := hashPassword(password, a.bcryptCost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrValidation, "Failed to hash password", err)
	}

	user := &models.User{
		ID:             uuid.New(),
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		Role:           role,
	}
	if err := a.db.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	a.logger.Info().Str("userId", user.ID.String()).Str("username", user.Username).Str("role", string(role)).Msg("User registered")
	return user, nil
}

func (a *UserActor) login(ctx stdctx.Context, msg *LoginMsg) (*api.LoginResponse, error) {
	invalid := utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil)

	user, err := a.db.GetUserByEmail(ctx, strings.TrimSpace(msg.Email))
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(msg.Password)); err != nil {
		a.logger.Debug().Str("userId", user.ID.String()).Msg("Login failed: password mismatch")
		return nil, invalid
	}

	token, err := a.tokens.GenerateToken(user)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrUnauthorized, "Authentication error", err)
	}

	a.logger.Info().Str("userId", user.ID.String()).Msg("Login successful")
	return &api.LoginResponse{
		Success:  true,
		Token:    token,
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     string(user.Role),
	}, nil
}

// currentPrincipal reloads caller's role from the store. Tokens carry the role
// at login time, so a demotion must win over what the token claims.
func currentPrincipal(ctx stdctx.Context, db database.DBAdapter, caller models.Principal) (models.Principal, error) {
	user, err := db.GetUser(ctx, caller.UserID)
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return caller, utils.NewUnauthorizedError("account no longer exists")
		}
		return caller, err
	}
	caller.Username = user.Username
	caller.Role = user.Role
	return caller, nil
}

func (a *UserActor) setRole(ctx stdctx.Context, msg *SetUserRoleMsg) (*models.User, error) {
	caller, err := currentPrincipal(ctx, a.db, msg.Caller)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.RoleAdmin {
		return nil, utils.NewForbiddenError("only an admin may change roles")
	}
	if _, ok := models.ParseRole(string(msg.Role)); !ok {
		return nil, utils.NewValidationError("unknown role: " + string(msg.Role))
	}

	user, err := a.db.UpdateUserRole(ctx, msg.UserID, msg.Role)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("userId", user.ID.String()).Str("role", string(user.Role)).Str("by", caller.Name()).Msg("User role changed")
	return user, nil
}

func (a *UserActor) seedAdmin(ctx stdctx.Context, msg *SeedAdminMsg) (*models.User, error) {
	existing, err := a.db.GetUserByEmail(ctx, msg.Email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return existing, nil
		}
		return a.db.UpdateUserRole(ctx, existing.ID, models.RoleAdmin)
	case utils.IsErrorCode(err, utils.ErrNotFound):
		return a.register(ctx, msg.Username, msg.Email, msg.Password, models.RoleAdmin)
	default:
		return nil, err
	}
}
