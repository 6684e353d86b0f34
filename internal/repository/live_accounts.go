package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nickmous/beanstash/internal/model"
)

// LiveAccounts decorates an Accounts repository so that soft-deleted rows
// are invisible to every read. It is the credential store used by the
// authentication flow.
type LiveAccounts struct {
	accounts Accounts
	now      func() time.Time
}

// LiveOption customises a LiveAccounts.
type LiveOption func(*LiveAccounts)

// WithClock overrides the time source used for soft-delete timestamps.
func WithClock(now func() time.Time) LiveOption {
	return func(l *LiveAccounts) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLiveAccounts(accounts Accounts, opts ...LiveOption) *LiveAccounts {
	l := &LiveAccounts{accounts: accounts, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindLiveByUsername returns the live account whose username matches
// exactly (case-sensitive).
func (l *LiveAccounts) FindLiveByUsername(ctx context.Context, username string) (model.Account, error) {
	if username == "" {
		return model.Account{}, ErrNotFound
	}
	return l.findLive(ctx, FieldUsername, username, func(a model.Account) bool {
		return a.Username == username
	})
}

// FindLiveByEmail returns the live account registered under email.
func (l *LiveAccounts) FindLiveByEmail(ctx context.Context, email string) (model.Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return model.Account{}, ErrNotFound
	}
	return l.findLive(ctx, FieldEmail, email, func(a model.Account) bool {
		return a.Email == email
	})
}

func (l *LiveAccounts) findLive(ctx context.Context, field Field, value string, match func(model.Account) bool) (model.Account, error) {
	rows, err := l.accounts.FindBy(ctx, field, value)
	if err != nil {
		return model.Account{}, err
	}
	// the driver's collation may be case-insensitive; match must be exact
	for _, a := range rows {
		if a.IsLive() && match(a) {
			return a, nil
		}
	}
	return model.Account{}, ErrNotFound
}

// FindLiveByID returns the account with id unless it has been soft deleted.
func (l *LiveAccounts) FindLiveByID(ctx context.Context, id string) (model.Account, error) {
	a, err := l.accounts.Get(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	if !a.IsLive() {
		return model.Account{}, ErrNotFound
	}
	return a, nil
}

// ListLive returns every live account.
func (l *LiveAccounts) ListLive(ctx context.Context) ([]model.Account, error) {
	all, err := l.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make([]model.Account, 0, len(all))
	for _, a := range all {
		if a.IsLive() {
			live = append(live, a)
		}
	}
	return live, nil
}

// SoftDelete marks the account deleted. Deleting an account that is already
// deleted, or that does not exist, succeeds without changing anything. The
// returned bool reports whether this call performed the deletion.
func (l *LiveAccounts) SoftDelete(ctx context.Context, id string) (bool, error) {
	return l.accounts.MarkDeleted(ctx, id, l.now().UTC())
}

// HardDelete permanently removes the row, live or not. It is deliberately
// not part of the interface the authenticator depends on.
func (l *LiveAccounts) HardDelete(ctx context.Context, id string) error {
	existed, err := l.accounts.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
