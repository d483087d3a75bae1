// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gfolder. Values are layered:
// defaults -> config file -> environment -> CLI flags.
package config

import "time"

// Config is the top-level configuration parsed from a TOML file. All keys are
// flat; the embedded sections only group them in code.
type Config struct {
	FolderConfig
	DriveConfig
	LoggingConfig
	NetworkConfig
}

// FolderConfig locates the credentials and the folder the CLI operates on.
type FolderConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	RootFolder      string `toml:"root_folder"`
}

// DriveConfig tunes the remote API.
type DriveConfig struct {
	APIEndpoint string `toml:"api_endpoint"`
	PageSize    int    `toml:"page_size"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// ConnectTimeoutDuration parses ConnectTimeout. Validate has already
// rejected malformed values, so a parse failure yields the default.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(n.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeoutDuration parses DataTimeout like ConnectTimeoutDuration.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return parseDurationOr(n.DataTimeout, defaultDataTimeout)
}

func parseDurationOr(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath      string  // --config flag (empty = use default)
	CredentialsFile *string // --credentials flag
	RootFolder      *string // --root flag
}
