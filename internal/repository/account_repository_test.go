package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepo_CreateAndGet(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	ctx := context.Background()

	a := newAccount("alice", "alice@example.com")
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, a.PasswordHash, got.PasswordHash)
	assert.True(t, got.Active)
	assert.True(t, got.CreatedAt.Equal(baseTime))
	assert.Nil(t, got.DeletedAt)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepo_CreateConflictOnLiveDuplicates(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAccount("alice", "alice@example.com")))
	assert.ErrorIs(t, repo.Create(ctx, newAccount("alice", "other@example.com")), ErrConflict)
	assert.ErrorIs(t, repo.Create(ctx, newAccount("bob", "alice@example.com")), ErrConflict)
}

func TestAccountRepo_UsernameReusableAfterSoftDelete(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	ctx := context.Background()

	first := newAccount("alice", "alice@example.com")
	require.NoError(t, repo.Create(ctx, first))
	changed, err := repo.MarkDeleted(ctx, first.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)

	second := newAccount("alice", "alice@example.com")
	second.CreatedAt = baseTime.Add(2 * time.Hour)
	require.NoError(t, repo.Create(ctx, second))

	rows, err := repo.FindBy(ctx, FieldUsername, "alice")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID, "live rows sort first")
	require.NotNil(t, rows[1].DeletedAt)
	assert.True(t, rows[1].DeletedAt.Equal(baseTime.Add(time.Hour)))
}

func TestAccountRepo_MarkDeletedIsConditional(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	ctx := context.Background()

	a := newAccount("alice", "alice@example.com")
	require.NoError(t, repo.Create(ctx, a))

	changed, err := repo.MarkDeleted(ctx, a.ID, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkDeleted(ctx, a.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(baseTime.Add(time.Minute)), "first deletion timestamp is kept")
}

func TestAccountRepo_SetActive(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	ctx := context.Background()

	a := newAccount("alice", "alice@example.com")
	require.NoError(t, repo.Create(ctx, a))

	require.NoError(t, repo.SetActive(ctx, a.ID, false, baseTime.Add(time.Minute)))
	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.True(t, got.UpdatedAt.Equal(baseTime.Add(time.Minute)))

	assert.ErrorIs(t, repo.SetActive(ctx, "missing", true, baseTime), ErrNotFound)
}

func TestAccountRepo_DeleteAndList(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	ctx := context.Background()

	a := newAccount("alice", "alice@example.com")
	b := newAccount("bob", "bob@example.com")
	b.CreatedAt = baseTime.Add(time.Second)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Username)

	existed, err := repo.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = repo.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	all, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bob", all[0].Username)
}

func TestAccountRepo_FindByRejectsUnknownField(t *testing.T) {
	repo := NewAccountRepo(newTestDB(t))
	_, err := repo.FindBy(context.Background(), Field("password_hash"), "x")
	require.Error(t, err)
}

func TestAccountRepo_DriverErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAccountRepo(db)
	ctx := context.Background()

	down := errors.New("connection refused")

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE username=?")).
		WithArgs("alice").
		WillReturnError(down)
	_, err = repo.FindBy(ctx, FieldUsername, "alice")
	require.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id=?")).
		WithArgs("id-1").
		WillReturnError(down)
	_, err = repo.Get(ctx, "id-1")
	require.ErrorIs(t, err, down)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET deleted_at=?")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "id-1").
		WillReturnError(down)
	_, err = repo.MarkDeleted(ctx, "id-1", baseTime)
	require.ErrorIs(t, err, down)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_MySQLDuplicateIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAccountRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'uq_accounts_live_username'"})

	err = repo.Create(context.Background(), newAccount("alice", "alice@example.com"))
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
