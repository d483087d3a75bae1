package auth

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gfolder/internal/credentials"
	"github.com/tonimelisma/gfolder/internal/drivetest"
)

func testCredentials(srv *drivetest.Server, refreshToken string) *credentials.Credentials {
	return &credentials.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURIs: []string{"urn:ietf:wg:oauth:2.0:oob"},
		AuthURI:      srv.AuthURL(),
		TokenURI:     srv.TokenURL(),
		RefreshToken: refreshToken,
	}
}

type recorder struct {
	mu    sync.Mutex
	saved []string
}

func (r *recorder) persist(rt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saved = append(r.saved, rt)

	return nil
}

func TestAuthCodeURL(t *testing.T) {
	srv := drivetest.New(t)
	a := NewAuthority(testCredentials(srv, ""), nil, nil, nil)

	raw := a.AuthCodeURL("state-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "urn:ietf:wg:oauth:2.0:oob", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "select_account", q.Get("prompt"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/drive")
}

func TestNewState_Unique(t *testing.T) {
	assert.NotEqual(t, NewState(), NewState())
}

func TestObtainFromCode(t *testing.T) {
	srv := drivetest.New(t)
	rec := &recorder{}
	a := NewAuthority(testCredentials(srv, ""), rec.persist, nil, nil)

	tok, err := a.ObtainFromCode(context.Background(), drivetest.ValidCode)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, drivetest.ValidRefreshToken, tok.RefreshToken)
	assert.Equal(t, []string{drivetest.ValidRefreshToken}, rec.saved)
	assert.True(t, a.HasRefreshToken())

	current, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, tok.AccessToken, current.AccessToken)
}

func TestObtainFromCode_InvalidCode(t *testing.T) {
	srv := drivetest.New(t)
	rec := &recorder{}
	a := NewAuthority(testCredentials(srv, ""), rec.persist, nil, nil)

	_, err := a.ObtainFromCode(context.Background(), "4/wrong")
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "exchange code", authErr.Op)
	assert.Empty(t, rec.saved)
	assert.False(t, a.HasRefreshToken())
}

func TestObtainFromCode_NoRefreshTokenIssued(t *testing.T) {
	srv := drivetest.New(t)
	srv.SetOmitRefreshToken(true)

	rec := &recorder{}
	a := NewAuthority(testCredentials(srv, ""), rec.persist, nil, nil)

	_, err := a.ObtainFromCode(context.Background(), drivetest.ValidCode)
	require.ErrorIs(t, err, ErrNoRefreshToken)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "exchange code", authErr.Op)
	assert.Empty(t, rec.saved)
	assert.False(t, a.HasRefreshToken())
}

func TestObtainFromCode_KeepsHeldRefreshToken(t *testing.T) {
	srv := drivetest.New(t)
	srv.SetOmitRefreshToken(true)

	rec := &recorder{}
	a := NewAuthority(testCredentials(srv, drivetest.ValidRefreshToken), rec.persist, nil, nil)

	tok, err := a.ObtainFromCode(context.Background(), drivetest.ValidCode)
	require.NoError(t, err)

	assert.Equal(t, drivetest.ValidRefreshToken, tok.RefreshToken)
	// Persisted again so the store drops the spent code.
	assert.Equal(t, []string{drivetest.ValidRefreshToken}, rec.saved)
}

func TestObtainFromCode_MalformedResponse(t *testing.T) {
	srv := drivetest.New(t)
	srv.SetMalformedTokens(true)

	a := NewAuthority(testCredentials(srv, ""), nil, nil, nil)

	_, err := a.ObtainFromCode(context.Background(), drivetest.ValidCode)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestRefresh(t *testing.T) {
	srv := drivetest.New(t)
	rec := &recorder{}
	a := NewAuthority(testCredentials(srv, drivetest.ValidRefreshToken), rec.persist, nil, nil)

	first, err := a.Refresh(context.Background())
	require.NoError(t, err)

	second, err := a.Refresh(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, drivetest.ValidRefreshToken, second.RefreshToken)
	assert.Empty(t, rec.saved, "an unchanged refresh token is not persisted again")

	current, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, second.AccessToken, current.AccessToken)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	srv := drivetest.New(t)
	a := NewAuthority(testCredentials(srv, ""), nil, nil, nil)

	_, err := a.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Equal(t, 0, srv.Calls(drivetest.OpToken))
}

func TestRefresh_Rejected(t *testing.T) {
	srv := drivetest.New(t)
	a := NewAuthority(testCredentials(srv, "revoked"), nil, nil, nil)

	err := a.Recover(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "refresh", authErr.Op)
}

func TestRefresh_PersistFailure(t *testing.T) {
	srv := drivetest.New(t)
	boom := errors.New("disk full")
	a := NewAuthority(testCredentials(srv, ""), func(string) error { return boom }, nil, nil)

	_, err := a.ObtainFromCode(context.Background(), drivetest.ValidCode)
	require.ErrorIs(t, err, boom)
	assert.False(t, a.HasRefreshToken())
}

func TestRefresh_ConcurrentCallersShareToken(t *testing.T) {
	srv := drivetest.New(t)
	a := NewAuthority(testCredentials(srv, drivetest.ValidRefreshToken), nil, nil, nil)

	const callers = 8

	var wg sync.WaitGroup

	errs := make(chan error, callers)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs <- a.Recover(context.Background())
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, srv.Calls(drivetest.OpToken), callers)

	// Everyone observes the same installed token afterwards.
	tok, err := a.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
}

func TestToken_LazyRefresh(t *testing.T) {
	srv := drivetest.New(t)
	a := NewAuthority(testCredentials(srv, drivetest.ValidRefreshToken), nil, nil, nil)

	tok, err := a.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
	assert.Equal(t, 1, srv.Calls(drivetest.OpToken))

	_, err = a.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls(drivetest.OpToken))
}

func TestBootstrap(t *testing.T) {
	srv := drivetest.New(t)

	t.Run("refresh token", func(t *testing.T) {
		a := NewAuthority(testCredentials(srv, drivetest.ValidRefreshToken), nil, nil, nil)
		require.NoError(t, a.Bootstrap(context.Background(), ""))
	})

	t.Run("pending code", func(t *testing.T) {
		a := NewAuthority(testCredentials(srv, ""), nil, nil, nil)
		require.NoError(t, a.Bootstrap(context.Background(), drivetest.ValidCode))
		assert.True(t, a.HasRefreshToken())
	})

	t.Run("nothing", func(t *testing.T) {
		a := NewAuthority(testCredentials(srv, ""), nil, nil, nil)
		require.ErrorIs(t, a.Bootstrap(context.Background(), ""), ErrNotLoggedIn)
	})
}

func TestOnboard(t *testing.T) {
	srv := drivetest.New(t)
	path := filepath.Join(t.TempDir(), "gfolderrc")

	c := testCredentials(srv, "stale")
	require.NoError(t, credentials.Save(path, c))

	store := credentials.NewStore(path, nil)
	a := NewAuthority(c, store.SaveRefreshToken, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shown string

	display := func(authURL string) {
		shown = authURL

		go func() {
			time.Sleep(50 * time.Millisecond)

			pasted, err := credentials.Load(path)
			if err != nil {
				return
			}

			pasted.Code = drivetest.ValidCode
			_ = credentials.Save(path, pasted)
		}()
	}

	require.NoError(t, Onboard(ctx, a, store, display))
	assert.Contains(t, shown, "access_type=offline")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, drivetest.ValidRefreshToken, got.RefreshToken)
	assert.Empty(t, got.Code)
}

func TestOnboard_MissingFile(t *testing.T) {
	srv := drivetest.New(t)
	path := filepath.Join(t.TempDir(), "missing")

	store := credentials.NewStore(path, nil)
	a := NewAuthority(testCredentials(srv, ""), store.SaveRefreshToken, nil, nil)

	err := Onboard(context.Background(), a, store, func(string) {})
	require.ErrorIs(t, err, credentials.ErrConfigMissing)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOnboard_NoRefreshTokenIssued(t *testing.T) {
	srv := drivetest.New(t)
	srv.SetOmitRefreshToken(true)

	path := filepath.Join(t.TempDir(), "gfolderrc")

	c := testCredentials(srv, "stale")
	require.NoError(t, credentials.Save(path, c))

	store := credentials.NewStore(path, nil)
	a := NewAuthority(c, store.SaveRefreshToken, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	display := func(string) {
		go func() {
			time.Sleep(50 * time.Millisecond)

			pasted, err := credentials.Load(path)
			if err != nil {
				return
			}

			pasted.Code = drivetest.ValidCode
			_ = credentials.Save(path, pasted)
		}()
	}

	err := Onboard(ctx, a, store, display)
	require.ErrorIs(t, err, ErrNoRefreshToken)
	assert.False(t, a.HasRefreshToken())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got.RefreshToken)
	assert.Empty(t, got.Code)

	// The next start asks for a login instead of replaying the spent code.
	next := NewAuthority(got, store.SaveRefreshToken, nil, nil)
	require.ErrorIs(t, next.Bootstrap(ctx, got.Code), ErrNotLoggedIn)
}

func TestRefresh_IgnoresCanceledCaller(t *testing.T) {
	srv := drivetest.New(t)
	a := NewAuthority(testCredentials(srv, drivetest.ValidRefreshToken), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tok, err := a.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)
}
