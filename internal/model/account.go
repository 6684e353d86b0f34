package model

import (
	"log/slog"
	"time"
)

// Account represents a row of the `accounts` table. The repository layer
// returns it verbatim, including soft-deleted rows; liveness filtering is
// the job of repository.LiveAccounts.
//
// Fields:
//
//	ID           – immutable uuid primary key.
//	Username     – unique among live accounts, compared case-sensitively.
//	Email        – unique among live accounts, stored lower-cased.
//	PasswordHash – bcrypt hash. Never logged or serialized.
//	Active       – whether the account may log in.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
//	DeletedAt    – soft-delete marker; nil while the account is live.
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// IsLive reports whether the account has not been soft deleted.
func (a Account) IsLive() bool {
	return a.DeletedAt == nil
}

// LogValue keeps the password hash out of structured logs.
func (a Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", a.ID),
		slog.String("username", a.Username),
		slog.Bool("active", a.Active),
		slog.Bool("live", a.IsLive()),
	)
}
