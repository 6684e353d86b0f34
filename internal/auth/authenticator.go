package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nickmous/beanstash/internal/logging"
	"github.com/nickmous/beanstash/internal/model"
	"github.com/nickmous/beanstash/internal/repository"
)

// CredentialStore looks up live accounts by username.
type CredentialStore interface {
	FindLiveByUsername(ctx context.Context, username string) (model.Account, error)
}

// TokenIssuer signs a token for a subject.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// fallbackDummyHash is used when the hasher cannot produce its own dummy.
const fallbackDummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO7yZ8bT1XFY5D1vPQdFhUnBjMeGLN0nS"

// Authenticator checks a username/password pair and issues a token.
type Authenticator struct {
	store  CredentialStore
	hasher PasswordHasher
	tokens TokenIssuer
	logger *slog.Logger

	// dummyHash is compared against when the username is unknown so a miss
	// costs as much as a wrong password.
	dummyHash func() string
}

func NewAuthenticator(store CredentialStore, hasher PasswordHasher, tokens TokenIssuer, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logging.OrDiscard(logger),
		dummyHash: sync.OnceValue(func() string {
			h, err := hasher.Hash("not-a-real-password")
			if err != nil {
				return fallbackDummyHash
			}
			return h
		}),
	}
}

// Login returns a signed token when username names a live, active account
// whose password matches. Every credential or account-state failure is
// ErrAuthenticationFailed.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := a.store.FindLiveByUsername(ctx, username)
	if err != nil {
		if !repository.IsNotFound(err) {
			a.logger.ErrorContext(ctx, "credential lookup failed", "err", err)
			return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		a.hasher.Verify(password, a.dummyHash())
		return "", a.reject(ctx, username, "not_found")
	}

	if !a.hasher.Verify(password, acct.PasswordHash) {
		return "", a.reject(ctx, username, "bad_password")
	}
	if !acct.Active {
		return "", a.reject(ctx, username, "inactive")
	}
	// soft-deleted rows never reach here; FindLiveByUsername excludes them

	token, err := a.tokens.Issue(acct.Username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	a.logger.InfoContext(ctx, "login succeeded", "username", acct.Username)
	return token, nil
}

func (a *Authenticator) reject(ctx context.Context, username, reason string) error {
	a.logger.InfoContext(ctx, "login rejected", "username", username, "reason", reason)
	return ErrAuthenticationFailed
}

// IsStoreFailure reports whether err came from the credential store rather
// than from the credentials.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
