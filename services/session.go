package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ticket-client/internal/status"
	"ticket-client/models"

	"github.com/golang-jwt/jwt/v5"
)

type SessionState int

const (
	// SessionLoading is the state before Resolve has finished once.
	SessionLoading SessionState = iota
	SessionAnonymous
	SessionAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "loading"
	case SessionAnonymous:
		return "anonymous"
	case SessionAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

type ProfileAPI interface {
	Me(ctx context.Context) (*models.User, error)
}

// Session is the process-wide record of who is signed in.
//
// Initialization order: NewSession, then Resolve. Until Resolve returns
// the state is SessionLoading, and components that must not fire with a
// missing or stale token (OrderStore.Load) refuse to run. Resolve seeds
// the wallet projection from the profile it loads.
type Session struct {
	store      TokenStore
	wallet     *WalletBalance
	defaultTTL time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	state SessionState
	token string
	user  *models.User
}

func NewSession(store TokenStore, wallet *WalletBalance, defaultTTL time.Duration) *Session {
	return &Session{
		store:      store,
		wallet:     wallet,
		defaultTTL: defaultTTL,
		now:        time.Now,
		state:      SessionLoading,
	}
}

// Resolve loads the persisted token and, when there is one, the profile
// behind it. A token the server refuses is removed from storage. A network
// failure leaves the stored token in place but resolves anonymous for now.
func (s *Session) Resolve(ctx context.Context, profile ProfileAPI) error {
	token, err := s.store.Load(ctx)
	if err != nil {
		slog.Error("failed to load session token", "error", err)
		s.resolveAnonymous()
		return err
	}

	if token == "" {
		s.resolveAnonymous()
		return nil
	}

	if s.expired(token) {
		slog.Info("stored session token expired")
		if err := s.store.Clear(ctx); err != nil {
			slog.Error("failed to clear expired token", "error", err)
		}
		s.resolveAnonymous()
		return nil
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	user, err := profile.Me(ctx)
	if err != nil {
		var rejected *status.ServerRejectedError
		if errors.As(err, &rejected) {
			if cErr := s.store.Clear(ctx); cErr != nil {
				slog.Error("failed to clear refused token", "error", cErr)
			}
		}
		slog.Error("session profile fetch failed", "error", err)
		s.resolveAnonymous()
		return fmt.Errorf("session: resolve: %w", err)
	}

	s.mu.Lock()
	s.state = SessionAuthenticated
	s.user = user
	s.mu.Unlock()

	s.wallet.Replace(user.WalletBalance)
	slog.Debug("session resolved", "user_id", user.ID)
	return nil
}

// Login persists a token issued by the authentication flow and resolves
// the session with it.
func (s *Session) Login(ctx context.Context, token string, profile ProfileAPI) error {
	if token == "" {
		return status.ErrNotAuthenticated
	}
	if s.expired(token) {
		return fmt.Errorf("session: login: %w", jwt.ErrTokenExpired)
	}

	if err := s.store.Save(ctx, token, s.ttlFor(token)); err != nil {
		return err
	}
	return s.Resolve(ctx, profile)
}

func (s *Session) Logout(ctx context.Context) error {
	s.resolveAnonymous()
	return s.store.Clear(ctx)
}

// AccessToken implements apiclient.TokenSource.
func (s *Session) AccessToken() (string, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" || s.expired(token) {
		return "", false
	}
	return token, true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Resolved() bool {
	return s.State() != SessionLoading
}

// User returns a copy of the signed-in user.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

func (s *Session) resolveAnonymous() {
	s.mu.Lock()
	s.state = SessionAnonymous
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	s.wallet.Reset()
}

// expired reads the exp claim without verifying the signature; the
// server remains the judge of validity. Opaque tokens never expire here.
func (s *Session) expired(token string) bool {
	exp, ok := tokenExpiry(token)
	return ok && !exp.After(s.now())
}

func (s *Session) ttlFor(token string) time.Duration {
	if exp, ok := tokenExpiry(token); ok {
		return exp.Sub(s.now())
	}
	return s.defaultTTL
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
