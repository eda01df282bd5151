package engine

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine/access"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
	"taskdesk/internal/token"
)

// ErrInvalidCredentials covers both an unknown email and a wrong password,
// so a login attempt cannot probe which of the two failed.
var ErrInvalidCredentials = errors.New("incorrect email or password")

// Session is the result of signup, login and refresh: the identity plus
// the credentials the transport layer turns into a body and a cookie.
type Session struct {
	Identity domain.Identity
	Access   token.Credential
	Refresh  token.Credential
}

func validatePassword(pw string) error {
	var long, upper, lower, digit, symbol bool
	long = len(pw) >= 8
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !long || !upper || !lower || !digit || !symbol {
		return ValidationError{Msg: "password must be at least 8 characters with upper, lower, digit and symbol"}
	}
	return nil
}

// Signup registers a new identity at the User tier and opens a session.
// Role escalation only ever happens through SetRole.
func (e *Engine) Signup(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return Session{}, ValidationError{Msg: "name, email and password are required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Session{}, ValidationError{Msg: "invalid email address"}
	}
	if err := validatePassword(password); err != nil {
		return Session{}, err
	}
	if _, err := e.Repo.GetIdentityByEmail(ctx, email); err == nil {
		return Session{}, ValidationError{Msg: "email already registered"}
	} else if !errors.Is(err, repo.ErrIdentityNotFound) {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}
	id := domain.Identity{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         domain.RoleUser,
		CreatedAt:    e.Now().UTC().Format(time.RFC3339),
		PasswordHash: string(hash),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertIdentity(ctx, tx, id); err != nil {
		return Session{}, err
	}
	if err := e.Events.Append(ctx, tx, "auth.signup", "identity", id.ID, id.ID, events.EventPayload{
		"email": id.Email,
	}); err != nil {
		return Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return Session{}, err
	}
	return e.openSession(id)
}

// Login verifies the password and opens a session with a full-length
// access token.
func (e *Engine) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ValidationError{Msg: "email and password are required"}
	}
	id, err := e.Repo.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrIdentityNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return e.openSession(id)
}

func (e *Engine) openSession(id domain.Identity) (Session, error) {
	acc, err := e.Tokens.IssueAccess(id.ID, e.Config.Auth.AccessTTL.Std())
	if err != nil {
		return Session{}, err
	}
	ref, err := e.Tokens.IssueRefresh(id.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Identity: id, Access: acc, Refresh: ref}, nil
}

// Refresh trades a valid refresh token for a short-lived access token.
// The refresh token itself is not rotated; it stays bound to its cookie
// until logout or expiry.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	subject, err := e.Tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	id, err := e.Repo.GetIdentity(ctx, subject)
	if err != nil {
		return Session{}, err
	}
	acc, err := e.Tokens.IssueAccess(id.ID, e.Config.Auth.RefreshedAccessTTL.Std())
	if err != nil {
		return Session{}, err
	}
	return Session{Identity: id, Access: acc}, nil
}

// Logout revokes the refresh token. Missing, expired or garbage tokens
// are treated as already logged out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	return e.Tokens.Revoke(ctx, refreshToken)
}

// PurgeSessions drops revocation entries whose refresh tokens have expired
// on their own. Called at serve startup so the table stays bounded.
func (e *Engine) PurgeSessions(ctx context.Context) (int64, error) {
	return e.Repo.PurgeExpiredSessions(ctx, e.Now().UTC().Format(time.RFC3339))
}

// Me returns the actor's own identity record.
func (e *Engine) Me(ctx context.Context, actorID string) (domain.Identity, error) {
	return e.Repo.GetIdentity(ctx, actorID)
}

// ListUsers returns all identities. Admin tier and above.
func (e *Engine) ListUsers(ctx context.Context, role domain.Role) ([]domain.Identity, error) {
	if err := access.RequireRole(role, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return e.Repo.ListIdentities(ctx)
}

// SetRole changes an identity's tier. Root only.
func (e *Engine) SetRole(ctx context.Context, actorID string, role domain.Role, targetID string, newRole domain.Role) (domain.Identity, error) {
	if err := checkID(targetID); err != nil {
		return domain.Identity{}, err
	}
	if err := access.RequireRole(role, domain.RoleRoot); err != nil {
		return domain.Identity{}, err
	}
	id, err := e.Repo.GetIdentity(ctx, targetID)
	if err != nil {
		return domain.Identity{}, err
	}
	if id.Role == newRole {
		return id, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateIdentityRole(ctx, tx, targetID, newRole); err != nil {
		return domain.Identity{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.role_changed", "identity", targetID, actorID, events.EventPayload{
		"from": id.Role.String(),
		"to":   newRole.String(),
	}); err != nil {
		return domain.Identity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Identity{}, err
	}
	id.Role = newRole
	return id, nil
}

// DeleteUser removes an identity; assignment rows go with it through the
// schema. Root only, and Root cannot delete itself.
func (e *Engine) DeleteUser(ctx context.Context, actorID string, role domain.Role, targetID string) error {
	if err := checkID(targetID); err != nil {
		return err
	}
	if err := access.RequireRole(role, domain.RoleRoot); err != nil {
		return err
	}
	if targetID == actorID {
		return ValidationError{Msg: "cannot delete your own account"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteIdentity(ctx, tx, targetID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.deleted", "identity", targetID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
