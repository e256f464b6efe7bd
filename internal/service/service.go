package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"forestlog/internal/auth"
	"forestlog/internal/models"
	"forestlog/internal/progression"
	"forestlog/internal/repo"

	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultMaxRetries   = 3
	MaxBioRunes         = 500
)

type Options struct {
	Levels          progression.LevelTable
	Rand            progression.Rand
	DefaultTimezone string
	StoreTimeout    time.Duration
	MaxRetries      int
	Logger          *slog.Logger
	Clock           func() time.Time
}

type Service struct {
	Repo   *repo.Repo
	Auth   *auth.Manager
	Levels progression.LevelTable
	Scorer *progression.Scorer
	Logger *slog.Logger

	rand         progression.Rand
	defaultLoc   *time.Location
	storeTimeout time.Duration
	maxRetries   int
	now          func() time.Time
	newID        func() string
	locks        *userLocks

	// afterLoad runs inside the completion transaction once the user row is read.
	afterLoad func(ctx context.Context, tx *repo.Repo, user *models.User) error
}

func New(r *repo.Repo, authManager *auth.Manager, opts Options) *Service {
	if opts.Levels.Step == 0 {
		opts.Levels = progression.DefaultLevelTable()
	}
	if opts.Rand == nil {
		opts.Rand = progression.DefaultRand
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	loc, err := time.LoadLocation(opts.DefaultTimezone)
	if err != nil || opts.DefaultTimezone == "" {
		loc = time.UTC
	}
	return &Service{
		Repo:         r,
		Auth:         authManager,
		Levels:       opts.Levels,
		Scorer:       progression.NewScorer(opts.Rand),
		Logger:       opts.Logger,
		rand:         opts.Rand,
		defaultLoc:   loc,
		storeTimeout: opts.StoreTimeout,
		maxRetries:   opts.MaxRetries,
		now:          opts.Clock,
		newID:        uuid.NewString,
		locks:        newUserLocks(),
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Timezone string
}

// Register creates an account with an empty aggregate and returns it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, progression.Validation("email is not a valid address")
	}
	if utf8.RuneCountInString(in.Password) < 6 {
		return nil, progression.Validation("password must be at least 6 characters")
	}
	tz := strings.TrimSpace(in.Timezone)
	if tz == "" {
		tz = s.defaultLoc.String()
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, progression.Validation("timezone is not a known IANA zone")
	}

	hash, err := s.Auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsPublic:     true,
		Timezone:     tz,
		CurrentLevel: s.Levels.Level(0).Number,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, progression.Validation("email or username already registered")
		}
		return nil, progression.Persistence("create user", err)
	}
	s.Logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, progression.Persistence("load user", err)
	}
	if err := s.Auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, expires, err := s.Auth.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.present(user)
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Profile is a user together with where they sit on the level curve.
type Profile struct {
	*models.User
	Level progression.Level `json:"level_progress"`
}

func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.Repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError("load user", err)
	}
	s.present(user)
	return &Profile{User: user, Level: s.Levels.Level(user.TotalPoints)}, nil
}

// UpdateProfile edits display fields only; points and level are never touched here.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd models.ProfileUpdate) (*Profile, error) {
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		upd.Username = &name
	}
	if upd.Bio != nil && utf8.RuneCountInString(*upd.Bio) > MaxBioRunes {
		return nil, progression.Validation("bio must be at most 500 characters")
	}
	if upd.Timezone != nil {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil || *upd.Timezone == "" {
			return nil, progression.Validation("timezone is not a known IANA zone")
		}
	}
	if err := s.Repo.UpdateProfile(ctx, userID, upd, s.now()); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, progression.Validation("username already taken")
		}
		return nil, storeError("update profile", err)
	}
	return s.Profile(ctx, userID)
}

// present recomputes the derived level so a stale stored value never leaks out.
func (s *Service) present(u *models.User) {
	u.CurrentLevel = s.Levels.Level(u.TotalPoints).Number
}

func (s *Service) location(tz string) *time.Location {
	if tz == "" {
		return s.defaultLoc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return s.defaultLoc
	}
	return loc
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 32 {
		return progression.Validation("username must be 3 to 32 characters")
	}
	return nil
}

// storeError maps repository failures onto the engine's error kinds.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case progression.KindOf(err) != "":
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return progression.Canceled(op, err)
	case errors.Is(err, repo.ErrNotFound):
		return &progression.Error{Kind: progression.KindNotFound, Message: op + ": not found", Err: err}
	case errors.Is(err, repo.ErrVersionConflict):
		return &progression.Error{Kind: progression.KindConflict, Message: op, Err: err}
	default:
		return progression.Persistence(op, err)
	}
}

// storeErrorCtx is storeError for a caller whose context may have ended.
// Drivers do not always wrap the context error when a query is interrupted.
func storeErrorCtx(ctx context.Context, op string, err error) error {
	if err != nil && ctx.Err() != nil && progression.KindOf(err) == "" {
		return progression.Canceled(op, errors.Join(ctx.Err(), err))
	}
	return storeError(op, err)
}
