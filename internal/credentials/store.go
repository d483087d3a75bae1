package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Store binds the credential file path so callers do not thread it through
// every call. All methods re-read the file; nothing is cached.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a Store for the credential file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{path: path, logger: logger}
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the credentials.
func (s *Store) Load() (*Credentials, error) {
	return Load(s.path)
}

// SaveRefreshToken records a newly obtained refresh token and drops the
// one-time authorization code that produced it.
func (s *Store) SaveRefreshToken(refreshToken string) error {
	c, err := s.Load()
	if err != nil {
		return err
	}

	c.RefreshToken = refreshToken
	c.Code = ""

	if err := Save(s.path, c); err != nil {
		return err
	}

	s.logger.Info("persisted refresh token", slog.String("path", s.path))

	return nil
}

// ClearAuthorization removes the refresh token and any pending code, so the
// next start requires onboarding again.
func (s *Store) ClearAuthorization() error {
	c, err := s.Load()
	if err != nil {
		return err
	}

	if c.RefreshToken == "" && c.Code == "" {
		s.logger.Info("no authorization to clear", slog.String("path", s.path))
		return nil
	}

	c.RefreshToken = ""
	c.Code = ""

	if err := Save(s.path, c); err != nil {
		return err
	}

	s.logger.Info("cleared authorization", slog.String("path", s.path))

	return nil
}

// WaitForCode blocks until the credential file carries an authorization code
// and returns it. The user pastes the code into the file by hand during
// onboarding. The parent directory is watched rather than the file itself so
// editors that save by rename are seen too.
func (s *Store) WaitForCode(ctx context.Context) (string, error) {
	if c, err := s.Load(); err == nil && c.Code != "" {
		return c.Code, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("credentials: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return "", fmt.Errorf("credentials: watching %s: %w", dir, err)
	}

	// Written between the first check and Add.
	if c, err := s.Load(); err == nil && c.Code != "" {
		return c.Code, nil
	}

	target := filepath.Clean(s.path)

	s.logger.Info("waiting for authorization code", slog.String("path", s.path))

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("credentials: waiting for code: %w", ctx.Err())

		case ev, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("credentials: watcher closed")
			}

			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			c, loadErr := s.Load()
			if loadErr != nil {
				// Half-written file; the next event brings the rest.
				s.logger.Debug("credential file not readable yet", slog.String("error", loadErr.Error()))
				continue
			}

			if c.Code != "" {
				s.logger.Info("authorization code received")
				return c.Code, nil
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("credentials: watcher closed")
			}

			s.logger.Warn("credential watcher error", slog.String("error", werr.Error()))
		}
	}
}
