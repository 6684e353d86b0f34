package auth

import (
	"context"
	"errors"
	"slices"

	"github.com/nickmous/beanstash/internal/model"
	"github.com/nickmous/beanstash/internal/repository"
)

// RoleUser is the single authority every authenticated account holds.
const RoleUser = "ROLE_USER"

// Identity is the authenticated principal attached to a request.
type Identity struct {
	AccountID   string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Authorities []string `json:"authorities"`
}

// HasAuthority reports whether the identity was granted authority.
func (i Identity) HasAuthority(authority string) bool {
	return slices.Contains(i.Authorities, authority)
}

// IdentityFor builds the identity of a live account.
func IdentityFor(a model.Account) Identity {
	return Identity{
		AccountID:   a.ID,
		Username:    a.Username,
		Email:       a.Email,
		Authorities: []string{RoleUser},
	}
}

type identityKey struct{}

// ContextWithIdentity returns a copy of ctx carrying id.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by the request
// authenticator, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// ErrUnknownIdentity is returned by resolvers when the subject does not name
// a live, active account.
var ErrUnknownIdentity = errors.New("unknown identity")

// IdentityResolver maps a token subject (username) to an Identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, username string) (Identity, error)
}

// LiveAccountFinder is the slice of the credential store identity
// resolution needs.
type LiveAccountFinder interface {
	FindLiveByUsername(ctx context.Context, username string) (model.Account, error)
}

// AccountIdentities resolves identities straight from the credential store.
type AccountIdentities struct {
	Accounts LiveAccountFinder
}

func NewAccountIdentities(accounts LiveAccountFinder) *AccountIdentities {
	return &AccountIdentities{Accounts: accounts}
}

// Resolve returns ErrUnknownIdentity for missing, deleted or inactive
// accounts, and ErrStoreUnavailable wrapping anything else.
func (r *AccountIdentities) Resolve(ctx context.Context, username string) (Identity, error) {
	a, err := r.Accounts.FindLiveByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return Identity{}, ErrUnknownIdentity
		}
		return Identity{}, errors.Join(ErrStoreUnavailable, err)
	}
	if !a.Active {
		return Identity{}, ErrUnknownIdentity
	}
	return IdentityFor(a), nil
}
