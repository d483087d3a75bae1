package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minPageSize       = 1
	maxPageSize       = 1000
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateFolder(&cfg.FolderConfig)...)
	errs = append(errs, validateDrive(&cfg.DriveConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense after the
// override chain has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateFolder(&r.FolderConfig)...)

	if !filepath.IsAbs(r.CredentialsFile) {
		errs = append(errs, fmt.Errorf("credentials_file: must be absolute after expansion, got %q", r.CredentialsFile))
	}

	return errors.Join(errs...)
}

func validateFolder(f *FolderConfig) []error {
	var errs []error

	if f.CredentialsFile == "" {
		errs = append(errs, errors.New("credentials_file: must not be empty"))
	}

	if f.RootFolder == "" {
		errs = append(errs, errors.New("root_folder: must not be empty, use \"/\" for the drive root"))
	}

	return errs
}

func validateDrive(d *DriveConfig) []error {
	var errs []error

	if d.PageSize < minPageSize || d.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("page_size: must be between %d and %d, got %d", minPageSize, maxPageSize, d.PageSize))
	}

	u, err := url.Parse(d.APIEndpoint)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("api_endpoint: %w", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, fmt.Errorf("api_endpoint: must be an absolute http(s) URL, got %q", d.APIEndpoint))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %v, got %q", validLogLevels, l.LogLevel))
	}

	if !contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %v, got %q", validLogFormats, l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDurationMin(name, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", name, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", name, minimum, d)}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
