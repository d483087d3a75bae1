package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/tonimelisma/gfolder/internal/auth"
	"github.com/tonimelisma/gfolder/internal/config"
	"github.com/tonimelisma/gfolder/internal/credentials"
	"github.com/tonimelisma/gfolder/internal/drive"
	"github.com/tonimelisma/gfolder/internal/folder"
)

// Session holds the authority, the remote client and the configured root
// folder for one command invocation.
type Session struct {
	Store     *credentials.Store
	Authority *auth.Authority
	Client    *drive.Client
	Root      *folder.Folder
}

// newAuthority loads the credential file and builds an authority that
// persists refreshed tokens back to it.
func newAuthority(cfg *config.Resolved, logger *slog.Logger) (*credentials.Store, *credentials.Credentials, *auth.Authority, error) {
	store := credentials.NewStore(cfg.CredentialsFile, logger)

	creds, err := store.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	a := auth.NewAuthority(creds, store.SaveRefreshToken, newHTTPClient(cfg), logger)

	return store, creds, a, nil
}

// NewSession authenticates and opens the root folder. A pending code in the
// credential file is exchanged when no refresh token is stored yet.
func NewSession(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*Session, error) {
	store, creds, a, err := newAuthority(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := a.Bootstrap(ctx, creds.Code); err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return nil, fmt.Errorf("not logged in, run 'gfolder login' first")
		}

		return nil, err
	}

	client, err := drive.NewClient(ctx, a, drive.Options{
		Endpoint:  cfg.APIEndpoint,
		UserAgent: cfg.UserAgent,
		PageSize:  cfg.PageSize,
		Transport: newTransport(cfg),
		Timeout:   cfg.DataTimeoutDuration(),
	}, logger)
	if err != nil {
		return nil, err
	}

	root, err := folder.Open(ctx, client, cfg.RootFolder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening root folder %q: %w", cfg.RootFolder, err)
	}

	logger.Debug("session ready", slog.String("root", root.Path()), slog.String("root_id", root.ID()))

	return &Session{Store: store, Authority: a, Client: client, Root: root}, nil
}

// newTransport clones the default transport with the configured dial timeout.
func newTransport(cfg *config.Resolved) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeoutDuration()}
	t.DialContext = dialer.DialContext

	return t
}

// newHTTPClient is used for the token endpoint.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	return &http.Client{
		Transport: newTransport(cfg),
		Timeout:   cfg.DataTimeoutDuration(),
	}
}
