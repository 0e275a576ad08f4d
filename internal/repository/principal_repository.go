package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/autoshop-identity/internal/model"
)

const principalColumns = "id,username,email,password_hash,role,is_active,last_login_at,created_at,updated_at"

// PrincipalRepo persists principals in the `principals` table.
type PrincipalRepo struct{ DB *sql.DB }

func NewPrincipalRepo(db *sql.DB) *PrincipalRepo { return &PrincipalRepo{DB: db} }

// Create inserts p.  An empty ID is filled with a new uuid; timestamps are
// set to now.  Unique violations come back as ErrUsernameTaken or
// ErrEmailTaken.
func (r *PrincipalRepo) Create(ctx context.Context, p *model.Principal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO principals ("+principalColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		p.ID, p.Username, p.Email, p.PasswordHash, string(p.Role), p.Active,
		nullTime(p.LastLoginAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if uerr := uniqueViolation(err); uerr != nil {
			return uerr
		}
		return fmt.Errorf("creating principal: %w", err)
	}
	return nil
}

// FindByUsername fetches a principal by exact (case-sensitive) username.
func (r *PrincipalRepo) FindByUsername(ctx context.Context, username string) (model.Principal, error) {
	return r.findOne(ctx, "username", username)
}

// FindByEmail fetches a principal by email.
func (r *PrincipalRepo) FindByEmail(ctx context.Context, email string) (model.Principal, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID fetches a principal by id.
func (r *PrincipalRepo) FindByID(ctx context.Context, id string) (model.Principal, error) {
	return r.findOne(ctx, "id", id)
}

// column is always one of the literals above, never caller input.
func (r *PrincipalRepo) findOne(ctx context.Context, column, value string) (model.Principal, error) {
	var (
		p         model.Principal
		role      string
		lastLogin sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE "+column+"=? LIMIT 1", value,
	).Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &role, &p.Active, &lastLogin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, fmt.Errorf("getting principal by %s: %w", column, err)
	}
	p.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		p.LastLoginAt = &t
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// UpdateLastLogin stamps the last successful login.
func (r *PrincipalRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	at = at.UTC().Truncate(time.Second)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET last_login_at=?, updated_at=? WHERE id=?", at, at, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return requireOneRow(res)
}

// Update applies the non-nil fields of upd.
func (r *PrincipalRepo) Update(ctx context.Context, id string, upd model.PrincipalUpdate) error {
	if upd.Empty() {
		return nil
	}
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if upd.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, string(*upd.Role))
	}
	if upd.Active != nil {
		sets = append(sets, "is_active=?")
		args = append(args, *upd.Active)
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC().Truncate(time.Second), id)

	res, err := r.DB.ExecContext(ctx,
		"UPDATE principals SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
