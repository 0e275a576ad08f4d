package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/autoshop-identity/internal/model"
)

const sessionColumns = "id,principal_id,access_token_hash,refresh_token_hash,client_addr,user_agent,expires_at,created_at,updated_at"

// SessionRepo persists sessions in the `sessions` table.  Callers pass
// token digests (utils.HashToken), never raw tokens.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts s, generating its ID when empty.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	s.CreatedAt, s.UpdatedAt = now, now
	s.ExpiresAt = s.ExpiresAt.UTC()

	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions ("+sessionColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		s.ID, s.PrincipalID, s.AccessTokenHash, s.RefreshTokenHash,
		s.ClientAddr, s.UserAgent, s.ExpiresAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return uerr
		}
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// FindByAccessTokenHash returns the session currently bound to an access
// token digest.
func (r *SessionRepo) FindByAccessTokenHash(ctx context.Context, hash string) (model.Session, error) {
	return r.findOne(ctx, "access_token_hash", hash)
}

// FindByRefreshTokenHash returns the session owning a refresh token digest.
func (r *SessionRepo) FindByRefreshTokenHash(ctx context.Context, hash string) (model.Session, error) {
	return r.findOne(ctx, "refresh_token_hash", hash)
}

func (r *SessionRepo) findOne(ctx context.Context, column, value string) (model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE "+column+"=? LIMIT 1", value,
	).Scan(&s.ID, &s.PrincipalID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.ClientAddr, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("getting session by %s: %w", column, err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

// UpdateAccessToken swaps the access token digest and expiry of one
// session in place.  The refresh token digest is left untouched.
func (r *SessionRepo) UpdateAccessToken(ctx context.Context, id, accessHash string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET access_token_hash=?, expires_at=?, updated_at=? WHERE id=?",
		accessHash, expiresAt.UTC(), time.Now().UTC().Truncate(time.Second), id)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return uerr
		}
		return fmt.Errorf("updating session access token: %w", err)
	}
	return requireOneRow(res)
}

// Delete removes a session.  ErrNotFound means it was already gone.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return requireOneRow(res)
}

// DeleteExpired removes every session whose expiry is before now and
// returns how many were reclaimed.  Maintenance only; the request path
// never calls it.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}
