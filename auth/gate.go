package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultSessionTTL matches the session cookie lifetime.
const DefaultSessionTTL = time.Hour

// Gate ties the OAuth client to the session store.
type Gate struct {
	github   *GitHubClient
	sessions SessionStore
	keys     keys
	state    stateSigner
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate builds a Gate. secret seeds the session id and state keys; it
// should be stable across restarts.
func NewGate(github *GitHubClient, sessions SessionStore, secret string, ttl time.Duration, logger *slog.Logger) (*Gate, error) {
	k, err := deriveKeys(secret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		github:   github,
		sessions: sessions,
		keys:     k,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
	g.state = stateSigner{key: k.state, now: func() time.Time { return g.now() }}
	return g, nil
}

// SessionTTL is how long a session (and its cookie) lives.
func (g *Gate) SessionTTL() time.Duration { return g.ttl }

// BeginLogin returns the GitHub consent URL carrying a signed state.
func (g *Gate) BeginLogin() (string, error) {
	state, err := g.state.sign()
	if err != nil {
		return "", &AuthError{Op: "begin login", Detail: "could not sign state", Err: err}
	}
	return g.github.AuthorizeURL(state), nil
}

// CompleteLogin finishes the flow for the code GitHub redirected back with
// and stores a session for the user, replacing any previous one. A
// non-empty state must be one issued by BeginLogin; a bad one is an
// AuthError wrapping ErrUnauthorized.
func (g *Gate) CompleteLogin(ctx context.Context, code, state string) (*Session, error) {
	if state != "" {
		if err := g.state.verify(state); err != nil {
			g.logger.Info("oauth state rejected", "error", err)
			return nil, &AuthError{Op: "complete login", Detail: "invalid login state", Err: ErrUnauthorized}
		}
	}
	if code == "" {
		return nil, &AuthError{Op: "complete login", Detail: "missing authorization code"}
	}

	token, err := g.github.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := g.github.FetchUser(ctx, token)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	sess := &Session{
		ID:        g.keys.sessionKey(profile.ID),
		Profile:   *profile,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.sessions.Put(ctx, sess); err != nil {
		return nil, &AuthError{Op: "complete login", Detail: "could not store session", Err: err}
	}
	g.logger.Info("user logged in", "login", profile.Login, "user_id", profile.ID)
	return sess, nil
}

// ResolveSession returns the profile behind a session cookie value.
func (g *Gate) ResolveSession(ctx context.Context, id string) (*Profile, error) {
	if id == "" {
		return nil, ErrUnauthorized
	}
	sess, err := g.sessions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			g.logger.Warn("session lookup failed", "error", err)
		}
		return nil, ErrUnauthorized
	}
	return &sess.Profile, nil
}

// Logout forgets the session if it exists.
func (g *Gate) Logout(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := g.sessions.Delete(ctx, id); err != nil {
		g.logger.Warn("session delete failed", "error", err)
	}
}
