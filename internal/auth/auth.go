package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/logging"
)

var (
	ErrNoToken        = errors.New("authorization token not found")
	ErrNoWorkspace    = errors.New("workspace not found")
	ErrSessionMissing = errors.New("session not found")
	ErrNotActivated   = errors.New("user is not activated")
	ErrArchived       = errors.New("user is archived")
)

// Session is the stored login session with the embedded user state the
// authorizer checks.
type Session struct {
	Token string
	User  SessionUser
}

type SessionUser struct {
	ID          string
	IsActivated bool
	State       string
}

// SessionReader looks a session up by its access token.
type SessionReader interface {
	SessionByToken(ctx context.Context, token string) (*Session, error)
}

// Authorizer validates access tokens against the session store.
type Authorizer struct {
	sessions SessionReader
	logger   zerolog.Logger
}

func NewAuthorizer(sessions SessionReader) *Authorizer {
	return &Authorizer{sessions: sessions, logger: logging.Component("auth")}
}

// Authorize checks the token and workspace of an incoming connection.
// Global-scope callers may omit the workspace.
func (a *Authorizer) Authorize(ctx context.Context, token, workspace string, globalScope bool) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if workspace == "" && !globalScope {
		return nil, ErrNoWorkspace
	}

	session, err := a.sessions.SessionByToken(ctx, token)
	if err != nil {
		a.logger.Warn().Err(err).Msg("session lookup failed")
		return nil, ErrSessionMissing
	}
	if session == nil {
		return nil, ErrSessionMissing
	}
	if !session.User.IsActivated {
		return nil, ErrNotActivated
	}
	if session.User.State == "ARCHIVED" {
		return nil, ErrArchived
	}
	return session, nil
}
