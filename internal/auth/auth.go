// Package auth owns the access token for a folder tree. An Authority
// exchanges an authorization code or a refresh token at the OAuth2 token
// endpoint and hands the current bearer to the HTTP transport. Retrying is
// not done here: callers run Recover between attempts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/gfolder/internal/credentials"
)

// Scopes requested during onboarding.
var Scopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/drive",
}

// refreshTimeout bounds one shared refresh, which outlives the caller that
// started it.
const refreshTimeout = 30 * time.Second

// Sentinel errors. Use errors.Is to check; they arrive wrapped in *AuthError.
var (
	ErrNoRefreshToken = errors.New("no refresh token, complete onboarding first")
	ErrNotLoggedIn    = errors.New("no refresh token or authorization code available")
)

// AuthError reports a failed exchange with the token endpoint, or an
// exchange that could not be attempted.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// PersistFunc stores a refresh token durably. It runs before the token that
// carries it is installed.
type PersistFunc func(refreshToken string) error

// Authority is the single owner of the access token for every folder
// derived from one root. It is safe for concurrent use.
type Authority struct {
	cfg        *oauth2.Config
	persist    PersistFunc
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.RWMutex
	token        *oauth2.Token
	refreshToken string

	refreshes singleflight.Group
}

// Compile-time check: the transport pulls bearers straight from the Authority.
var _ oauth2.TokenSource = (*Authority)(nil)

// NewAuthority builds an Authority from the stored credentials. persist may
// be nil (nothing is written back). httpClient is used for the token
// endpoint; nil means http.DefaultClient.
func NewAuthority(
	c *credentials.Credentials,
	persist PersistFunc,
	httpClient *http.Client,
	logger *slog.Logger,
) *Authority {
	if logger == nil {
		logger = slog.Default()
	}

	return &Authority{
		cfg:          oauthConfig(c),
		persist:      persist,
		httpClient:   httpClient,
		logger:       logger,
		refreshToken: c.RefreshToken,
	}
}

func oauthConfig(c *credentials.Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI(),
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURI,
			TokenURL: c.TokenURI,
		},
	}
}

// NewState returns a random OAuth2 state parameter.
func NewState() string {
	return uuid.NewString()
}

// AuthCodeURL returns the consent page URL the user visits to obtain an
// authorization code. Offline access makes the endpoint issue a refresh token.
func (a *Authority) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// HasRefreshToken reports whether a refresh token is available.
func (a *Authority) HasRefreshToken() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.refreshToken != ""
}

// ObtainFromCode exchanges a one-time authorization code for a token. The
// returned refresh token has already been handed to the persist hook.
func (a *Authority) ObtainFromCode(ctx context.Context, code string) (*oauth2.Token, error) {
	a.logger.Info("exchanging authorization code")

	tok, err := a.cfg.Exchange(a.clientContext(ctx), code)
	if err != nil {
		return nil, &AuthError{Op: "exchange code", Err: err}
	}

	if tok.RefreshToken == "" {
		// Re-consent without prompt=consent can omit it; fall back to the
		// one we already hold, if any.
		a.logger.Warn("token endpoint returned no refresh token")

		tok.RefreshToken = a.currentRefreshToken()
		if tok.RefreshToken == "" {
			return nil, &AuthError{Op: "exchange code", Err: ErrNoRefreshToken}
		}
	}

	// The store's hook also drops the spent code.
	if err := a.persistToken(tok.RefreshToken); err != nil {
		return nil, &AuthError{Op: "exchange code", Err: err}
	}

	a.install(tok)

	a.logger.Info("authorization code exchanged", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

// Refresh obtains a fresh access token with the stored refresh token.
// Concurrent calls share one exchange.
func (a *Authority) Refresh(ctx context.Context) (*oauth2.Token, error) {
	v, err, shared := a.refreshes.Do("refresh", func() (any, error) {
		// Joined callers must not fail because the first one went away.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		return a.refresh(flightCtx)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		a.logger.Debug("joined in-flight token refresh")
	}

	return v.(*oauth2.Token), nil //nolint:forcetypeassert // refresh only returns *oauth2.Token
}

func (a *Authority) refresh(ctx context.Context) (*oauth2.Token, error) {
	rt := a.currentRefreshToken()
	if rt == "" {
		return nil, &AuthError{Op: "refresh", Err: ErrNoRefreshToken}
	}

	a.logger.Debug("refreshing access token")

	// No access token in the seed, so the source goes straight to the endpoint.
	tok, err := a.cfg.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return nil, &AuthError{Op: "refresh", Err: err}
	}

	if tok.RefreshToken != rt {
		a.logger.Info("refresh token rotated")

		if err := a.persistToken(tok.RefreshToken); err != nil {
			return nil, &AuthError{Op: "refresh", Err: err}
		}
	}

	a.install(tok)

	a.logger.Info("access token refreshed", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

// Recover refreshes the token. It is the recovery action for retried calls.
func (a *Authority) Recover(ctx context.Context) error {
	_, err := a.Refresh(ctx)
	return err
}

// Bootstrap makes sure an access token is available at startup: it refreshes
// when a refresh token is stored, otherwise exchanges pendingCode.
func (a *Authority) Bootstrap(ctx context.Context, pendingCode string) error {
	switch {
	case a.HasRefreshToken():
		_, err := a.Refresh(ctx)
		return err
	case pendingCode != "":
		_, err := a.ObtainFromCode(ctx, pendingCode)
		return err
	default:
		return &AuthError{Op: "bootstrap", Err: ErrNotLoggedIn}
	}
}

// Token returns the current access token. Expiry is not checked here: a
// rejected bearer surfaces as a failure status and the caller recovers.
func (a *Authority) Token() (*oauth2.Token, error) {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()

	if tok != nil {
		return tok, nil
	}

	// oauth2.TokenSource has no context parameter.
	return a.Refresh(context.Background())
}

func (a *Authority) currentRefreshToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.refreshToken
}

func (a *Authority) persistToken(refreshToken string) error {
	if a.persist == nil {
		return nil
	}

	if err := a.persist(refreshToken); err != nil {
		return fmt.Errorf("persisting refresh token: %w", err)
	}

	return nil
}

// Forget drops the tokens held in memory. Onboarding calls it after
// clearing the store so a stale refresh token cannot stand in for a new one.
func (a *Authority) Forget() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.token = nil
	a.refreshToken = ""
}

// install replaces the token wholesale.
func (a *Authority) install(tok *oauth2.Token) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.token = tok
	a.refreshToken = tok.RefreshToken
}

func (a *Authority) clientContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
