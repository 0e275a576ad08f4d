// Package service implements the authentication workflows on top of the
// credential store, session store, token issuer and event publisher.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/iliyamo/autoshop-identity/internal/model"
	"github.com/iliyamo/autoshop-identity/internal/queue"
	"github.com/iliyamo/autoshop-identity/internal/repository"
	"github.com/iliyamo/autoshop-identity/internal/token"
	"github.com/iliyamo/autoshop-identity/internal/utils"
)

// PrincipalStore is the credential store.  Lookups return
// repository.ErrNotFound when nothing matches; Create returns
// repository.ErrUsernameTaken or repository.ErrEmailTaken on a unique
// violation.
type PrincipalStore interface {
	Create(ctx context.Context, p *model.Principal) error
	FindByUsername(ctx context.Context, username string) (model.Principal, error)
	FindByEmail(ctx context.Context, email string) (model.Principal, error)
	FindByID(ctx context.Context, id string) (model.Principal, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Update(ctx context.Context, id string, upd model.PrincipalUpdate) error
}

// SessionStore is the session store, keyed by token digests.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	FindByAccessTokenHash(ctx context.Context, hash string) (model.Session, error)
	FindByRefreshTokenHash(ctx context.Context, hash string) (model.Session, error)
	UpdateAccessToken(ctx context.Context, id, accessHash string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// TokenIssuer mints and verifies signed tokens.
type TokenIssuer interface {
	Issue(sub token.Subject, kind token.Kind, ttl time.Duration) (token.Signed, error)
	Verify(raw string) (*token.Claims, error)
}

// EventPublisher is fire and forget; it has no error to report.
type EventPublisher interface {
	Publish(topic, eventType string, payload any)
}

// Options holds the configurable lifetimes and the clock.
type Options struct {
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	EventsTopic string
	Now         func() time.Time
}

// AuthService holds no per-request state; all state lives in the stores.
type AuthService struct {
	principals PrincipalStore
	sessions   SessionStore
	issuer     TokenIssuer
	hasher     utils.PasswordHasher
	events     EventPublisher

	accessTTL  time.Duration
	refreshTTL time.Duration
	topic      string
	now        func() time.Time

	// dummyHash is verified against when the principal does not exist so
	// both login failure paths cost one hash.
	dummyHash string
}

func NewAuthService(principals PrincipalStore, sessions SessionStore, issuer TokenIssuer,
	hasher utils.PasswordHasher, events EventPublisher, opts Options) (*AuthService, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 24 * time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if opts.EventsTopic == "" {
		opts.EventsTopic = "auth.events"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dummy, err := hasher.Hash("autoshop-identity-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("hashing dummy password: %w", err)
	}
	return &AuthService{
		principals: principals,
		sessions:   sessions,
		issuer:     issuer,
		hasher:     hasher,
		events:     events,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		topic:      opts.EventsTopic,
		now:        opts.Now,
		dummyHash:  dummy,
	}, nil
}

// RegisterInput is the registration payload.  An empty Role defaults to
// CUSTOMER.
type RegisterInput struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// Validate checks field shapes; role membership is checked separately so
// it can report ErrInvalidRole.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 255), is.Email),
		// bcrypt ignores anything past 72 bytes
		validation.Field(&in.Password, validation.Required, validation.Length(1, 72)),
	)
}

// Register creates an active principal.  The pre-check reads give the
// common case a clean error; the store's unique constraints catch the
// concurrent case and are mapped to the same errors.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.PublicPrincipal, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		return model.PublicPrincipal{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if in.Role == "" {
		in.Role = model.RoleCustomer
	}
	if !in.Role.Valid() {
		return model.PublicPrincipal{}, ErrInvalidRole
	}

	if _, err := s.principals.FindByUsername(ctx, in.Username); err == nil {
		return model.PublicPrincipal{}, ErrDuplicateUsername
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.PublicPrincipal{}, unavailable("checking username", err)
	}
	if _, err := s.principals.FindByEmail(ctx, in.Email); err == nil {
		return model.PublicPrincipal{}, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.PublicPrincipal{}, unavailable("checking email", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.PublicPrincipal{}, fmt.Errorf("hashing password: %w", err)
	}

	p := model.Principal{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Active:       true,
	}
	if err := s.principals.Create(ctx, &p); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return model.PublicPrincipal{}, ErrDuplicateUsername
		case errors.Is(err, repository.ErrEmailTaken):
			return model.PublicPrincipal{}, ErrDuplicateEmail
		}
		return model.PublicPrincipal{}, unavailable("creating principal", err)
	}

	s.events.Publish(s.topic, queue.EventUserRegistered, queue.UserRegistered{
		PrincipalID: p.ID,
		Username:    p.Username,
		Email:       p.Email,
		Role:        string(p.Role),
	})
	return p.Public(), nil
}

// LoginInput identifies the principal by username or email.
type LoginInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	ClientAddr string `json:"-"`
	UserAgent  string `json:"-"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Identifier, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

// LoginResult carries both tokens.  ExpiresAt is the access token and
// session expiry.
type LoginResult struct {
	Principal    model.PublicPrincipal `json:"user"`
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
	ExpiresAt    time.Time             `json:"expires_at"`
}

// Login authenticates and opens a session.  The password is verified
// before the active flag is read, so ErrInactiveAccount is only ever
// returned to a caller who knows the password.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if err := in.Validate(); err != nil {
		return LoginResult{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	p, err := s.lookup(ctx, strings.TrimSpace(in.Identifier))
	if errors.Is(err, repository.ErrNotFound) {
		_, _ = s.hasher.Verify(s.dummyHash, in.Password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, unavailable("loading principal", err)
	}

	ok, err := s.hasher.Verify(p.PasswordHash, in.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verifying password for %s: %w", p.ID, err)
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !p.Active {
		return LoginResult{}, ErrInactiveAccount
	}

	sub := subjectOf(p)
	access, err := s.issuer.Issue(sub, token.Access, s.accessTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := s.issuer.Issue(sub, token.Refresh, s.refreshTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issuing refresh token: %w", err)
	}

	sess := model.Session{
		PrincipalID:      p.ID,
		AccessTokenHash:  utils.HashToken(access.Value),
		RefreshTokenHash: utils.HashToken(refresh.Value),
		ClientAddr:       in.ClientAddr,
		UserAgent:        in.UserAgent,
		ExpiresAt:        access.ExpiresAt,
	}
	// The session row is written last: a failure anywhere before it leaves
	// nothing behind outside the credential store.
	if err := s.principals.UpdateLastLogin(ctx, p.ID, s.now()); err != nil {
		return LoginResult{}, unavailable("updating last login", err)
	}
	if err := s.sessions.Create(ctx, &sess); err != nil {
		return LoginResult{}, unavailable("creating session", err)
	}

	s.events.Publish(s.topic, queue.EventUserLoggedIn, queue.UserLoggedIn{
		PrincipalID: p.ID,
		Username:    p.Username,
		SessionID:   sess.ID,
		ClientAddr:  in.ClientAddr,
		UserAgent:   in.UserAgent,
	})
	return LoginResult{
		Principal:    p.Public(),
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		ExpiresAt:    access.ExpiresAt,
	}, nil
}

// lookup tries username first, then email.
func (s *AuthService) lookup(ctx context.Context, identifier string) (model.Principal, error) {
	p, err := s.principals.FindByUsername(ctx, identifier)
	if !errors.Is(err, repository.ErrNotFound) {
		return p, err
	}
	return s.principals.FindByEmail(ctx, strings.ToLower(identifier))
}

// ValidateToken checks the signature and then the session row.  The
// stored expiry is authoritative; a row that is gone means the token was
// revoked.
func (s *AuthService) ValidateToken(ctx context.Context, raw string) (*token.Claims, error) {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !claims.IsAccess() {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	sess, err := s.sessions.FindByAccessTokenHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, unavailable("loading session", err)
	}
	if sess.PrincipalID != claims.PrincipalID() {
		return nil, ErrInvalidSession
	}
	if sess.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// RefreshResult carries the replacement access token.
type RefreshResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RefreshToken mints a new access token for the session owning raw.  The
// refresh token is not rotated.  The new token carries the principal's
// current role.
func (s *AuthService) RefreshToken(ctx context.Context, raw string) (RefreshResult, error) {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	if !claims.IsRefresh() {
		return RefreshResult{}, fmt.Errorf("%w: not a refresh token", ErrInvalidRefreshToken)
	}

	sess, err := s.sessions.FindByRefreshTokenHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return RefreshResult{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return RefreshResult{}, unavailable("loading session", err)
	}
	if sess.PrincipalID != claims.PrincipalID() {
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	p, err := s.principals.FindByID(ctx, sess.PrincipalID)
	if errors.Is(err, repository.ErrNotFound) {
		return RefreshResult{}, ErrInvalidPrincipal
	}
	if err != nil {
		return RefreshResult{}, unavailable("loading principal", err)
	}
	if !p.Active {
		return RefreshResult{}, ErrInvalidPrincipal
	}

	access, err := s.issuer.Issue(subjectOf(p), token.Access, s.accessTTL)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issuing access token: %w", err)
	}
	err = s.sessions.UpdateAccessToken(ctx, sess.ID, utils.HashToken(access.Value), access.ExpiresAt)
	if errors.Is(err, repository.ErrNotFound) {
		// logged out between the lookup and the update
		return RefreshResult{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return RefreshResult{}, unavailable("updating session", err)
	}
	return RefreshResult{AccessToken: access.Value, ExpiresAt: access.ExpiresAt}, nil
}

// Logout deletes the session owning the access token.  Unknown tokens and
// already deleted sessions are a no-op; only store faults are returned.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	sess, err := s.sessions.FindByAccessTokenHash(ctx, utils.HashToken(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return unavailable("loading session", err)
	}

	err = s.sessions.Delete(ctx, sess.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return unavailable("deleting session", err)
	}

	s.events.Publish(s.topic, queue.EventUserLoggedOut, queue.UserLoggedOut{
		PrincipalID: sess.PrincipalID,
		SessionID:   sess.ID,
	})
	return nil
}

// UpdatePrincipal applies an administrative role or active change.
// Deactivation blocks further logins and refreshes; access tokens already
// issued stay valid until their session expires or is logged out.
func (s *AuthService) UpdatePrincipal(ctx context.Context, id string, upd model.PrincipalUpdate) (model.PublicPrincipal, error) {
	if upd.Role != nil && !upd.Role.Valid() {
		return model.PublicPrincipal{}, ErrInvalidRole
	}
	if !upd.Empty() {
		err := s.principals.Update(ctx, id, upd)
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicPrincipal{}, ErrPrincipalNotFound
		}
		if err != nil {
			return model.PublicPrincipal{}, unavailable("updating principal", err)
		}
	}

	p, err := s.principals.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PublicPrincipal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return model.PublicPrincipal{}, unavailable("loading principal", err)
	}
	return p.Public(), nil
}

func subjectOf(p model.Principal) token.Subject {
	return token.Subject{PrincipalID: p.ID, Username: p.Username, Role: p.Role}
}
