// Package account provisions accounts outside the HTTP surface. The
// accountctl command is its only caller.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nickmous/beanstash/internal/auth"
	"github.com/nickmous/beanstash/internal/cache"
	"github.com/nickmous/beanstash/internal/logging"
	"github.com/nickmous/beanstash/internal/model"
	"github.com/nickmous/beanstash/internal/queue"
	"github.com/nickmous/beanstash/internal/repository"
)

// ErrUsernameWhitespace rejects usernames that could not be typed back
// unambiguously at login.
var ErrUsernameWhitespace = errors.New("username must not contain whitespace")

// ErrPasswordTooLong rejects passwords bcrypt would truncate.
var ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", auth.MaxPasswordBytes)

// NewAccount is the input to Create.
type NewAccount struct {
	Username string `validate:"required,max=64"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8"`
	Inactive bool
}

// Service creates accounts and changes their state. Every change that can
// invalidate a logged-in identity evicts the local cache entry and
// publishes an event for other processes.
type Service struct {
	accounts  repository.Accounts
	live      *repository.LiveAccounts
	hasher    auth.PasswordHasher
	cache     cache.Invalidator
	publisher queue.Publisher
	validate  *validator.Validate
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithInvalidator(inv cache.Invalidator) Option {
	return func(s *Service) { s.cache = inv }
}

func WithPublisher(p queue.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = logging.OrDiscard(l) }
}

func NewService(accounts repository.Accounts, hasher auth.PasswordHasher, opts ...Option) *Service {
	s := &Service{
		accounts:  accounts,
		hasher:    hasher,
		cache:     cache.NopInvalidator{},
		publisher: queue.NopPublisher{},
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.live = repository.NewLiveAccounts(accounts, repository.WithClock(s.now))
	return s
}

// Create validates in, hashes the password and stores a new account.
func (s *Service) Create(ctx context.Context, in NewAccount) (model.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = repository.NormalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return model.Account{}, fmt.Errorf("invalid account: %w", err)
	}
	if strings.ContainsFunc(in.Username, unicode.IsSpace) {
		return model.Account{}, ErrUsernameWhitespace
	}
	// bcrypt's limit is in bytes, not characters
	if len(in.Password) > auth.MaxPasswordBytes {
		return model.Account{}, ErrPasswordTooLong
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	a := model.Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Active:       !in.Inactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, &a); err != nil {
		return model.Account{}, err
	}
	s.logger.InfoContext(ctx, "account created", "account", a)
	return a, nil
}

// Activate allows a live account to log in again.
func (s *Service) Activate(ctx context.Context, username string) (model.Account, error) {
	return s.setActive(ctx, username, true, queue.AccountActivated)
}

// Deactivate blocks logins and token use for a live account.
func (s *Service) Deactivate(ctx context.Context, username string) (model.Account, error) {
	return s.setActive(ctx, username, false, queue.AccountDeactivated)
}

func (s *Service) setActive(ctx context.Context, username string, active bool, evType queue.EventType) (model.Account, error) {
	a, err := s.live.FindLiveByUsername(ctx, username)
	if err != nil {
		return model.Account{}, err
	}
	now := s.now().UTC()
	if err := s.accounts.SetActive(ctx, a.ID, active, now); err != nil {
		return model.Account{}, err
	}
	a.Active = active
	a.UpdatedAt = now
	s.announce(ctx, evType, a)
	return a, nil
}

// Delete soft deletes the live account named username. The username and
// email become available to new accounts.
func (s *Service) Delete(ctx context.Context, username string) (model.Account, error) {
	a, err := s.live.FindLiveByUsername(ctx, username)
	if err != nil {
		return model.Account{}, err
	}
	if _, err := s.live.SoftDelete(ctx, a.ID); err != nil {
		return model.Account{}, err
	}
	s.announce(ctx, queue.AccountDeleted, a)
	return a, nil
}

// Purge permanently removes the account with id, live or deleted.
func (s *Service) Purge(ctx context.Context, id string) (model.Account, error) {
	a, err := s.accounts.Get(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	if err := s.live.HardDelete(ctx, id); err != nil {
		return model.Account{}, err
	}
	if a.IsLive() {
		s.announce(ctx, queue.AccountPurged, a)
	}
	return a, nil
}

// List returns live accounts, or every row when all is set.
func (s *Service) List(ctx context.Context, all bool) ([]model.Account, error) {
	if all {
		return s.accounts.List(ctx)
	}
	return s.live.ListLive(ctx)
}

// announce evicts the cached identity and publishes ev. Both are best
// effort: the store change has already happened and cached entries expire.
func (s *Service) announce(ctx context.Context, evType queue.EventType, a model.Account) {
	s.logger.InfoContext(ctx, "account changed", "event", evType, "account", a)
	if err := s.cache.Invalidate(ctx, a.Username); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "username", a.Username, "err", err)
	}
	ev := queue.AccountEvent{Type: evType, AccountID: a.ID, Username: a.Username, OccurredAt: s.now().UTC()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", evType, "err", err)
	}
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs) ||
		errors.Is(err, ErrUsernameWhitespace) ||
		errors.Is(err, ErrPasswordTooLong)
}
