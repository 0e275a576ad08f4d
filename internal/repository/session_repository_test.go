package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autoshop-identity/internal/database/dbtest"
	"github.com/iliyamo/autoshop-identity/internal/model"
	"github.com/iliyamo/autoshop-identity/internal/utils"
)

func newSessionFixture(t *testing.T) (*SessionRepo, model.Principal) {
	t.Helper()
	db := dbtest.Open(t)
	p := seedPrincipal(t, NewPrincipalRepo(db), "alice", "alice@x.com")
	return NewSessionRepo(db), p
}

func seedSession(t *testing.T, repo *SessionRepo, principalID, access, refresh string, exp time.Time) model.Session {
	t.Helper()
	s := model.Session{
		PrincipalID:      principalID,
		AccessTokenHash:  utils.HashToken(access),
		RefreshTokenHash: utils.HashToken(refresh),
		ClientAddr:       "10.0.0.7",
		UserAgent:        "curl/8.5",
		ExpiresAt:        exp,
	}
	require.NoError(t, repo.Create(context.Background(), &s))
	return s
}

func TestSessionRepo_CreateAndFindByEitherToken(t *testing.T) {
	repo, p := newSessionFixture(t)
	ctx := context.Background()
	exp := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	s := seedSession(t, repo, p.ID, "access-1", "refresh-1", exp)
	require.NotEmpty(t, s.ID)

	byAccess, err := repo.FindByAccessTokenHash(ctx, utils.HashToken("access-1"))
	require.NoError(t, err)
	assert.Equal(t, s.ID, byAccess.ID)
	assert.Equal(t, p.ID, byAccess.PrincipalID)
	assert.Equal(t, "10.0.0.7", byAccess.ClientAddr)
	assert.Equal(t, "curl/8.5", byAccess.UserAgent)
	assert.True(t, byAccess.ExpiresAt.Equal(exp))

	byRefresh, err := repo.FindByRefreshTokenHash(ctx, utils.HashToken("refresh-1"))
	require.NoError(t, err)
	assert.Equal(t, s.ID, byRefresh.ID)

	_, err = repo.FindByAccessTokenHash(ctx, utils.HashToken("refresh-1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_ManySessionsPerPrincipal(t *testing.T) {
	repo, p := newSessionFixture(t)
	exp := time.Now().Add(time.Hour)

	a := seedSession(t, repo, p.ID, "a1", "r1", exp)
	b := seedSession(t, repo, p.ID, "a2", "r2", exp)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSessionRepo_DuplicateAccessTokenRejected(t *testing.T) {
	repo, p := newSessionFixture(t)
	seedSession(t, repo, p.ID, "same", "r1", time.Now().Add(time.Hour))

	dup := model.Session{
		PrincipalID:      p.ID,
		AccessTokenHash:  utils.HashToken("same"),
		RefreshTokenHash: utils.HashToken("r2"),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	assert.ErrorIs(t, repo.Create(context.Background(), &dup), ErrConflict)
}

func TestSessionRepo_UpdateAccessTokenInPlace(t *testing.T) {
	repo, p := newSessionFixture(t)
	ctx := context.Background()
	s := seedSession(t, repo, p.ID, "old-access", "refresh", time.Now().Add(time.Hour))

	newExp := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.UpdateAccessToken(ctx, s.ID, utils.HashToken("new-access"), newExp))

	_, err := repo.FindByAccessTokenHash(ctx, utils.HashToken("old-access"))
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.FindByAccessTokenHash(ctx, utils.HashToken("new-access"))
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.RefreshTokenHash, got.RefreshTokenHash, "refresh token is never rotated")
	assert.True(t, got.ExpiresAt.Equal(newExp))

	assert.ErrorIs(t, repo.UpdateAccessToken(ctx, "nope", "x", newExp), ErrNotFound)
}

func TestSessionRepo_Delete(t *testing.T) {
	repo, p := newSessionFixture(t)
	ctx := context.Background()
	s := seedSession(t, repo, p.ID, "a", "r", time.Now().Add(time.Hour))

	require.NoError(t, repo.Delete(ctx, s.ID))
	assert.ErrorIs(t, repo.Delete(ctx, s.ID), ErrNotFound)

	_, err := repo.FindByRefreshTokenHash(ctx, utils.HashToken("r"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_DeleteExpired(t *testing.T) {
	repo, p := newSessionFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	seedSession(t, repo, p.ID, "stale-1", "rs1", now.Add(-2*time.Hour))
	seedSession(t, repo, p.ID, "stale-2", "rs2", now.Add(-time.Minute))
	live := seedSession(t, repo, p.ID, "live", "rl", now.Add(time.Hour))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.FindByAccessTokenHash(ctx, utils.HashToken("live"))
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	n, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
