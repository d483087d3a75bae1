// Package credentials reads and writes the credential file: the OAuth client
// registration downloaded from the API console, wrapped in an "installed"
// object, plus the refresh token once authorization has completed.
// This is a leaf package imported by auth/ and the CLI.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential file's directory.
const DirPerms = 0o700

// ErrConfigMissing is returned by Load when the credential file does not exist.
var ErrConfigMissing = errors.New("credentials: credential file is required")

// Credentials is the content of the "installed" object.
type Credentials struct {
	ClientID            string   `json:"client_id"`
	ClientSecret        string   `json:"client_secret"`
	RedirectURIs        []string `json:"redirect_uris"`
	AuthURI             string   `json:"auth_uri"`
	TokenURI            string   `json:"token_uri"`
	ProjectID           string   `json:"project_id,omitempty"`
	AuthProviderCertURL string   `json:"auth_provider_x509_cert_url,omitempty"`
	RefreshToken        string   `json:"refresh_token,omitempty"`
	Code                string   `json:"code,omitempty"`
}

// RedirectURI returns the first registered redirect URI, or "" if none.
func (c *Credentials) RedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}

	return c.RedirectURIs[0]
}

// File is the on-disk format.
type File struct {
	Installed *Credentials `json:"installed"`
}

// Load reads the credential file at path. Returns an error wrapping
// ErrConfigMissing if the file does not exist.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s must be a JSON file with an \"installed\" key "+
			"holding the OAuth client credentials (client_id, client_secret, auth_uri, token_uri, ...)",
			ErrConfigMissing, path)
	}

	if err != nil {
		return nil, fmt.Errorf("credentials: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credentials: decoding %s: %w", path, err)
	}

	if f.Installed == nil {
		return nil, fmt.Errorf("credentials: %s missing \"installed\" object", path)
	}

	return f.Installed, nil
}

// Save writes the credential file atomically (write-to-temp + rename) with
// 0600 permissions. Never logs secret values.
func Save(path string, c *Credentials) error {
	data, err := json.MarshalIndent(File{Installed: c}, "", "    ")
	if err != nil {
		return fmt.Errorf("credentials: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credentials: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credentials: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credentials: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credentials: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credentials: renaming: %w", err)
	}

	success = true

	return nil
}
