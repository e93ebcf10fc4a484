// Package auth holds the account credentials: the OAuth token, its
// keyring-backed storage, and the profile of the signed-in user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/models"
	"golang.org/x/oauth2"
)

var (
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrNoRefreshToken = errors.New("token has no refresh token")
)

// Session is the signed-in account. It is an oauth2.TokenSource for the
// provider client and a provider.Authenticator for the sync engine.
type Session struct {
	cfg   *oauth2.Config
	store *CredentialStore
	log   zerolog.Logger

	mu      sync.RWMutex
	token   *oauth2.Token
	profile models.Profile
}

// NewSession restores whatever credentials the store holds. An empty store
// yields a logged-out session.
func NewSession(cfg *oauth2.Config, store *CredentialStore, log zerolog.Logger) (*Session, error) {
	s := &Session{cfg: cfg, store: store, log: log.With().Str("component", "auth").Logger()}

	tok, err := store.LoadToken()
	switch {
	case errors.Is(err, ErrNoCredentials):
		return s, nil
	case err != nil:
		return nil, err
	}
	s.token = tok

	p, err := store.LoadProfile()
	switch {
	case errors.Is(err, ErrNoCredentials):
	case err != nil:
		s.log.Warn().Err(err).Msg("Could not restore cached profile")
	default:
		s.profile = *p
	}
	return s, nil
}

// LoginURL is where the user grants access.
func (s *Session) LoginURL(state string) string {
	return s.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Login exchanges an authorization code and stores the resulting token.
func (s *Session) Login(ctx context.Context, code string) error {
	tok, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token: %w", err)
	}
	if err := s.store.SaveToken(tok); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = tok
	s.profile = models.Profile{}
	s.mu.Unlock()
	s.log.Info().Msg("Logged in")
	return nil
}

// Logout forgets the token and the profile.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = nil
	s.profile = models.Profile{}
	s.mu.Unlock()
	return s.store.Clear()
}

// Token returns a valid access token, refreshing it when expired.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return nil, ErrNotLoggedIn
	}
	if s.token.Valid() {
		return s.token, nil
	}
	if err := s.refreshLocked(context.Background()); err != nil {
		return nil, err
	}
	return s.token, nil
}

// Refresh forces a new access token even if the current one looks valid.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return ErrNotLoggedIn
	}
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.token.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	// Without an access token the source always goes to the token endpoint.
	tok, err := s.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: s.token.RefreshToken}).Token()
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = s.token.RefreshToken
	}
	s.token = tok

	if err := s.store.SaveToken(tok); err != nil {
		s.log.Warn().Err(err).Msg("Could not persist refreshed token")
	}
	s.log.Debug().Time("expiry", tok.Expiry).Msg("Access token refreshed")
	return nil
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && (s.token.Valid() || s.token.RefreshToken != "")
}

func (s *Session) CurrentUserEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Email
}

func (s *Session) CurrentUserDisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.DisplayName
}

// SetProfile caches the profile the provider reported.
func (s *Session) SetProfile(p models.Profile) {
	s.mu.Lock()
	changed := s.profile != p
	s.profile = p
	s.mu.Unlock()

	if !changed {
		return
	}
	if err := s.store.SaveProfile(p); err != nil {
		s.log.Warn().Err(err).Msg("Could not persist profile")
	}
}
