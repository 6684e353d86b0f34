package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nickmous/beanstash/internal/database/dbtest"
	"github.com/nickmous/beanstash/internal/model"
)

func newTestDB(t *testing.T) *sql.DB {
	return dbtest.New(t)
}

var baseTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newAccount(username, email string) *model.Account {
	return &model.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Active:       true,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
}
